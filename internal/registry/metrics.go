package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the registration orchestrator. All methods are nil-safe
// so the service runs unchanged without a registry.
type Metrics struct {
	registrations *prometheus.CounterVec
	flags         prometheus.Counter
	ledgerRetries prometheus.Counter
	mirrorLookups *prometheus.CounterVec
	ledgerLatency *prometheus.HistogramVec
}

// NewMetrics registers the orchestrator metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genmark",
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Registration requests by outcome.",
		}, []string{"outcome"}),
		flags: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "genmark",
			Subsystem: "registry",
			Name:      "misuse_flags_total",
			Help:      "Committed misuse flags.",
		}),
		ledgerRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "genmark",
			Subsystem: "registry",
			Name:      "ledger_write_retries_total",
			Help:      "Ledger write attempts retried after a timeout.",
		}),
		mirrorLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genmark",
			Subsystem: "registry",
			Name:      "mirror_lookups_total",
			Help:      "Mirror lookups by result.",
		}, []string{"result"}),
		ledgerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "genmark",
			Subsystem: "registry",
			Name:      "ledger_call_seconds",
			Help:      "Latency of ledger calls by operation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"op"}),
	}
}

func (m *Metrics) Registration(outcome string) {
	if m != nil {
		m.registrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Flag() {
	if m != nil {
		m.flags.Inc()
	}
}

func (m *Metrics) LedgerRetry() {
	if m != nil {
		m.ledgerRetries.Inc()
	}
}

func (m *Metrics) MirrorLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.mirrorLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) LedgerCall(op string, start time.Time) {
	if m != nil {
		m.ledgerLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
