package backend

import (
	"fmt"

	"finsync/internal/config"
	"finsync/internal/remote/resilient"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Cache:         BackendType(appConfig.DataBackend),
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		Remote:        RemoteType(appConfig.RemoteBackend),
		RemoteBaseURL: appConfig.RemoteBaseURL,
		RemoteToken:   appConfig.RemoteToken,
		Resilience: resilient.Config{
			Name:             "remote",
			Timeout:          appConfig.RemoteTimeout,
			RatePerSecond:    appConfig.RemoteRateLimit,
			Burst:            appConfig.RemoteBurst,
			MaxFailures:      uint32(max(appConfig.BreakerMaxFailures, 1)),
			OpenTimeout:      appConfig.BreakerTimeout,
			HalfOpenRequests: 1,
		},
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Cache.IsValid() {
		return fmt.Errorf("invalid cache backend: %s", c.Cache)
	}
	if c.Cache == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	if !c.Remote.IsValid() {
		return fmt.Errorf("invalid remote backend: %s", c.Remote)
	}
	if c.Remote == HTTPRemote && c.RemoteBaseURL == "" {
		return fmt.Errorf("remote base URL is required for http remote")
	}
	return nil
}
