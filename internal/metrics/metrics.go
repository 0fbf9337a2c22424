// Package metrics defines the collector the data layer reports to.
package metrics

import "time"

// Collector records sync and remote-call metrics. Implementations must be
// safe for concurrent use.
type Collector interface {
	// RecordRemoteCall records one gateway call. outcome is a
	// remote.Classify label ("ok", "timeout", ...).
	RecordRemoteCall(resource, op, outcome string, duration time.Duration)
	// RecordSync records the terminal signal of a coordinator operation.
	RecordSync(kind, op, outcome string)
	// RecordPending reports how many cached rows of kind are still pending.
	RecordPending(kind string, n int)
	RecordCircuitState(name string, state CircuitState)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything. It is the default collector.
type NoOpCollector struct{}

func (NoOpCollector) RecordRemoteCall(resource, op, outcome string, duration time.Duration) {}
func (NoOpCollector) RecordSync(kind, op, outcome string)                                   {}
func (NoOpCollector) RecordPending(kind string, n int)                                      {}
func (NoOpCollector) RecordCircuitState(name string, state CircuitState)                     {}
