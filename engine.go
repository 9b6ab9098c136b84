package doclock

import (
	"context"
	"errors"
	"time"
)

// errRetryAnomaly is raised by attemptAcquire's anomaly branch (spec.md
// SS4.E.1.b): it still backs off and loops like errRetry, but acquire does
// not count it against the caller's retry budget.
var errRetryAnomaly = errors.New("doclock: internal anomaly retry signal")

// acquire implements spec.md SS4.E.1. desc, scope and key must be the
// root's, as returned by resolveRoot.
func (l *Locker) acquire(ctx context.Context, desc *Descriptor, owner OwnerID, scope, key string) error {
	l.cfg.metrics.IncAcquireAttempt()

	// Step 2: re-entrancy fast path. No store interaction at all.
	if n := l.reentrancy.bump(owner, desc.ClassName, key); n > 1 {
		l.cfg.metrics.IncAcquireReentrant()
		l.cfg.logger.DebugContext(ctx, "doclock: re-using held lock", "scope", scope, "key", key, "nesting", n)
		return nil
	}

	store, err := l.resolveStore(ctx)
	if err != nil {
		l.reentrancy.drop(owner, desc.ClassName, key)
		l.cfg.metrics.IncAcquireFailure()
		return newLockError("acquire", scope, key, errors.Join(ErrLockFailure, err))
	}

	interval := desc.FirstRetryInterval
	retries := 0

	for {
		err := l.attemptAcquire(ctx, store, scope, key, desc.MaxLifetime)
		if err == nil {
			l.cfg.metrics.IncAcquireSuccess()
			return nil
		}

		anomaly := errors.Is(err, errRetryAnomaly)
		if !anomaly && !errors.Is(err, errRetry) {
			l.reentrancy.drop(owner, desc.ClassName, key)
			l.cfg.metrics.IncAcquireFailure()
			l.cfg.logger.WarnContext(ctx, "doclock: acquire failed", "scope", scope, "key", key, "err", err)
			return newLockError("acquire", scope, key, errors.Join(ErrLockFailure, err))
		}

		// Anomalies retry without consuming the retry budget (spec.md
		// SS4.E.1.b: "decrement retries, then raise the internal retry
		// signal" nets out to no change here); ordinary contention and
		// lost expiry races do consume it.
		if !anomaly {
			if retries+1 >= desc.MaxRetries {
				l.reentrancy.drop(owner, desc.ClassName, key)
				l.cfg.metrics.IncAcquireTimeout()
				return newLockError("acquire", scope, key, ErrLockTimeout)
			}
			retries++
		}

		select {
		case <-ctx.Done():
			l.reentrancy.drop(owner, desc.ClassName, key)
			l.cfg.metrics.IncAcquireFailure()
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = nextInterval(interval, desc.MaxRetryInterval)
	}
}

func nextInterval(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// attemptAcquire runs a single pass of spec.md SS4.E.1 steps 4.a-4.e,
// returning nil on success, errRetryAnomaly or errRetry when the
// caller should back off and try again, or any other error for an
// unrecoverable store failure.
func (l *Locker) attemptAcquire(ctx context.Context, store Store, scope, key string, maxLifetime time.Duration) error {
	doc, err := store.AtomicInc(ctx, scope, key, 1, GuardNone)
	if err != nil {
		return err
	}
	r := doc.Refcount

	// 4.b: anomaly - a post-increment count below 1 is impossible in a
	// well-formed document.
	if r < 1 {
		l.cfg.logger.WarnContext(ctx, "doclock: observed refcount < 1 after increment", "scope", scope, "key", key, "refcount", r)
		return errRetryAnomaly
	}

	// 4.c: expiry reclamation, checked only after observing refcount
	// (spec.md SS9 Design Decision D3: the later, defensive version).
	if !doc.ExpireAt.IsZero() && doc.ExpireAt.Before(timeNow()) {
		undone, err := store.AtomicInc(ctx, scope, key, -1, GuardRefcountGreaterThan(1))
		if err != nil {
			if errors.Is(err, ErrStoreConflict) {
				// Another process won the reclamation race.
				return errRetry
			}
			return err
		}
		if undone == nil {
			return errRetry
		}
		r = undone.Refcount
	}

	switch {
	case r > 1:
		// 4.d: lost the race; compensate and retry.
		if _, err := store.AtomicInc(ctx, scope, key, -1, GuardNone); err != nil {
			return err
		}
		return errRetry
	case r == 1:
		// 4.e: success. Stamp a fresh expiry horizon.
		if _, err := store.AtomicSet(ctx, scope, key, timeNow().Add(maxLifetime)); err != nil {
			return err
		}
		return nil
	default:
		// r == 0 after a net +1 increment (possibly followed by a
		// reclamation decrement) cannot happen in a well-formed
		// document; treat it the same as the anomaly branch.
		return errRetryAnomaly
	}
}

// release implements spec.md SS4.E.2.
func (l *Locker) release(ctx context.Context, desc *Descriptor, owner OwnerID, scope, key string) error {
	if n := l.reentrancy.drop(owner, desc.ClassName, key); n > 0 {
		l.cfg.logger.DebugContext(ctx, "doclock: re-using held lock on release", "scope", scope, "key", key, "nesting", n)
		return nil
	}

	l.cfg.metrics.IncRelease()
	store, err := l.resolveStore(ctx)
	if err != nil {
		return newLockError("release", scope, key, errors.Join(ErrLockFailure, err))
	}

	doc, err := store.AtomicInc(ctx, scope, key, -1, GuardNone)
	if err != nil {
		l.cfg.logger.WarnContext(ctx, "doclock: release failed", "scope", scope, "key", key, "err", err)
		return newLockError("release", scope, key, errors.Join(ErrLockFailure, err))
	}

	if doc.Refcount == 0 {
		// Garbage-collect. Losing this race to a concurrent acquirer
		// is expected and silently swallowed (spec.md SS4.E.2 step 4).
		_, _ = store.AtomicDelete(ctx, scope, key, GuardRefcountEquals(0))
	}
	return nil
}

// timeNow is a seam so tests can control expiry without sleeping for real
// durations.
var timeNow = time.Now
