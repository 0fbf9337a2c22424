// Package cli provides common initialization shared by the finsync commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"finsync/internal/config"
	"finsync/internal/log"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from cfg and installs it as the slog
// default. An invalid logging configuration falls back to the defaults and
// is reported through the fallback logger.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger, err := log.New(cfg.Logging(component))
	if err != nil {
		def := log.DefaultConfig()
		def.Component = component
		logger, _ = log.New(def)
		logger.Warn("Invalid logging configuration, using defaults", "error", err)
	}
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads .env, the environment configuration and the
// logger. It exits the process when the configuration is invalid.
func LoadAndValidateConfig(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	return cfg, logger
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Fatal logs err and exits with status 1.
func Fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	_ = logger.Sync()
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
