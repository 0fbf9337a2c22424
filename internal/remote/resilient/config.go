package resilient

import "time"

// Config holds the protection settings shared by every gateway behind one
// Guard.
type Config struct {
	// Name labels the breaker in logs and metrics.
	Name string
	// Timeout bounds each remote call. Zero disables it.
	Timeout time.Duration
	// RatePerSecond caps outgoing calls. Zero disables limiting.
	RatePerSecond float64
	Burst         int
	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a probe
	// through.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultConfig returns sensible defaults for a mobile-grade remote.
func DefaultConfig() Config {
	return Config{
		Name:             "remote",
		Timeout:          10 * time.Second,
		RatePerSecond:    20,
		Burst:            10,
		MaxFailures:      5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}
