package prometheus

import (
	"time"

	"finsync/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector for Prometheus.
type Collector struct {
	remoteCalls   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	syncOutcomes  *prometheus.CounterVec
	pendingRows   *prometheus.GaugeVec
	circuitState  *prometheus.GaugeVec
	circuitOpens  *prometheus.CounterVec
}

var _ metrics.Collector = (*Collector)(nil)

// NewCollector creates a collector whose metric names are prefixed with
// namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		remoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_calls_total",
				Help:      "Total number of remote gateway calls per resource, operation and outcome",
			},
			[]string{"resource", "operation", "outcome"},
		),
		remoteLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_call_duration_seconds",
				Help:      "Remote gateway call latency",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"resource", "operation"},
		),
		syncOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_operations_total",
				Help:      "Total number of coordinator operations per entity kind and terminal state",
			},
			[]string{"kind", "operation", "outcome"},
		),
		pendingRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_records",
				Help:      "Cached records not yet acknowledged by the remote",
			},
			[]string{"kind"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (c *Collector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.remoteCalls,
		c.remoteLatency,
		c.syncOutcomes,
		c.pendingRows,
		c.circuitState,
		c.circuitOpens,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordRemoteCall(resource, op, outcome string, duration time.Duration) {
	c.remoteCalls.WithLabelValues(resource, op, outcome).Inc()
	c.remoteLatency.WithLabelValues(resource, op).Observe(duration.Seconds())
}

func (c *Collector) RecordSync(kind, op, outcome string) {
	c.syncOutcomes.WithLabelValues(kind, op, outcome).Inc()
}

func (c *Collector) RecordPending(kind string, n int) {
	c.pendingRows.WithLabelValues(kind).Set(float64(n))
}

func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(name).Inc()
	}
}
