package doclock

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetrics is a MetricsCollector backed by prometheus counters,
// modeled on this corpus's PrometheusLockMetrics shape (one
// prometheus.Counter field per transition, registered by the caller with
// prometheus.MustRegister before use).
type PrometheusMetrics struct {
	AcquireAttempts  prometheus.Counter
	AcquireSuccesses prometheus.Counter
	AcquireReentrant prometheus.Counter
	AcquireTimeouts  prometheus.Counter
	AcquireFailures  prometheus.Counter
	Releases         prometheus.Counter
}

// NewPrometheusMetrics builds a PrometheusMetrics with counters under the
// given namespace, ready to be passed to prometheus.MustRegister by the
// caller (this package never registers metrics on its own, to avoid
// surprising double-registration in a process that wires up several
// Lockers).
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "doclock",
			Name:      name,
			Help:      help,
		})
	}
	return &PrometheusMetrics{
		AcquireAttempts:  counter("acquire_attempts_total", "Lock acquire attempts."),
		AcquireSuccesses: counter("acquire_successes_total", "Lock acquires that succeeded."),
		AcquireReentrant: counter("acquire_reentrant_total", "Non-blocking re-entrant acquires."),
		AcquireTimeouts:  counter("acquire_timeouts_total", "Acquires that exhausted their retry budget."),
		AcquireFailures:  counter("acquire_failures_total", "Acquires that failed on an unrecoverable store error."),
		Releases:         counter("releases_total", "Lock releases."),
	}
}

// Collectors returns every counter so the caller can pass them to
// prometheus.MustRegister in one call.
func (m *PrometheusMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.AcquireAttempts, m.AcquireSuccesses, m.AcquireReentrant,
		m.AcquireTimeouts, m.AcquireFailures, m.Releases,
	}
}

func (m *PrometheusMetrics) IncAcquireAttempt()   { m.AcquireAttempts.Inc() }
func (m *PrometheusMetrics) IncAcquireSuccess()   { m.AcquireSuccesses.Inc() }
func (m *PrometheusMetrics) IncAcquireReentrant() { m.AcquireReentrant.Inc() }
func (m *PrometheusMetrics) IncAcquireTimeout()   { m.AcquireTimeouts.Inc() }
func (m *PrometheusMetrics) IncAcquireFailure()   { m.AcquireFailures.Inc() }
func (m *PrometheusMetrics) IncRelease()          { m.Releases.Inc() }
