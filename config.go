package doclock

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// CollectionProducer lazily materializes a Store, matching spec.md SS6's
// "collection: either a concrete collection handle or a lazy producer of
// one. Lazy producers are materialized on first use." New also accepts a
// plain Store directly for the eager case.
type CollectionProducer func(ctx context.Context) (Store, error)

// MetricsCollector receives a count for every transition of the acquire/
// release state machine (spec.md SS4.E.3). It is ambient observability,
// not part of the lock protocol itself. A Locker uses a no-op collector
// unless WithMetrics supplies one; NewAtomicMetrics returns a
// dependency-free implementation and the prometheus-backed one lives in
// metrics_prometheus.go.
type MetricsCollector interface {
	IncAcquireAttempt()
	IncAcquireSuccess()
	IncAcquireReentrant()
	IncAcquireTimeout()
	IncAcquireFailure()
	IncRelease()
}

// AtomicMetrics is a MetricsCollector backed by atomic counters, with no
// external dependency; pass it to a Locker with WithMetrics.
type AtomicMetrics struct {
	AcquireAttempts  int64
	AcquireSuccesses int64
	AcquireReentrant int64
	AcquireTimeouts  int64
	AcquireFailures  int64
	Releases         int64
}

// NewAtomicMetrics returns a ready-to-use AtomicMetrics.
func NewAtomicMetrics() *AtomicMetrics { return &AtomicMetrics{} }

func (m *AtomicMetrics) IncAcquireAttempt()   { atomic.AddInt64(&m.AcquireAttempts, 1) }
func (m *AtomicMetrics) IncAcquireSuccess()   { atomic.AddInt64(&m.AcquireSuccesses, 1) }
func (m *AtomicMetrics) IncAcquireReentrant() { atomic.AddInt64(&m.AcquireReentrant, 1) }
func (m *AtomicMetrics) IncAcquireTimeout()   { atomic.AddInt64(&m.AcquireTimeouts, 1) }
func (m *AtomicMetrics) IncAcquireFailure()   { atomic.AddInt64(&m.AcquireFailures, 1) }
func (m *AtomicMetrics) IncRelease()          { atomic.AddInt64(&m.Releases, 1) }

// noopMetrics discards everything; used internally as a non-nil default so
// the engine never has to nil-check Metrics on the hot path.
type noopMetrics struct{}

func (noopMetrics) IncAcquireAttempt()   {}
func (noopMetrics) IncAcquireSuccess()   {}
func (noopMetrics) IncAcquireReentrant() {}
func (noopMetrics) IncAcquireTimeout()   {}
func (noopMetrics) IncAcquireFailure()   {}
func (noopMetrics) IncRelease()          {}

// Config is the global, one-shot configuration described in spec.md SS6,
// built with New and a set of Options rather than mutable package-level
// singletons (Design Notes, "avoid module-level mutable singletons").
type Config struct {
	producer CollectionProducer
	logger   *slog.Logger
	metrics  MetricsCollector
}

// Option configures a Locker at construction time.
type Option func(*Config)

// WithLogger overrides the logger used for the debug/warn-level messages
// described in spec.md SS6 ("logger: optional sink accepting debug/info/
// warn/error/fatal"). Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// WithMetrics overrides the MetricsCollector. Defaults to a no-op
// collector; pass NewAtomicMetrics() or a prometheus-backed one to observe
// the engine's transition counts.
func WithMetrics(m MetricsCollector) Option {
	return func(c *Config) { c.metrics = m }
}

// Locker is the engine context described throughout spec.md SS4.E-F: it
// owns the lazily-materialized Store, the re-entrancy table, and the
// logger and metrics hooks every Lock call drives. The retry and lifetime
// tunables live on each Descriptor.
type Locker struct {
	cfg Config

	once       sync.Once
	onceErr    error
	store      Store
	reentrancy *reentrancyTable
}

// New constructs a Locker around collection, which may be a ready Store or
// a CollectionProducer for lazy materialization. Index provisioning (the
// compound unique index on (scope,key) plus the refcount/expire_at
// secondary indices from spec.md SS6) is the collection producer's
// responsibility - see mongostore.Open, which wires EnsureIndexes in.
func New(collection any, opts ...Option) *Locker {
	cfg := Config{
		logger:  slog.Default(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	l := &Locker{cfg: cfg, reentrancy: newReentrancyTable()}
	switch c := collection.(type) {
	case Store:
		l.store = c
	case CollectionProducer:
		cfg.producer = c
	case func(context.Context) (Store, error):
		cfg.producer = c
	default:
		panic("doclock: New requires a Store or a CollectionProducer")
	}
	l.cfg = cfg
	return l
}

func (l *Locker) resolveStore(ctx context.Context) (Store, error) {
	if l.store != nil {
		return l.store, nil
	}
	l.once.Do(func() {
		l.store, l.onceErr = l.cfg.producer(ctx)
	})
	if l.onceErr != nil {
		return nil, l.onceErr
	}
	return l.store, nil
}
