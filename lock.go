package doclock

import "context"

// Lock implements the closure frontend from spec.md SS4.F: resolve h's
// root, acquire it, run body, and release on every exit path - success,
// error, or panic propagating out of body - via defer, the Go equivalent
// of the host-language "scoped acquisition with guaranteed release"
// facility the Design Notes call for.
//
// If ctx carries no OwnerID (see context.go), one is minted for the
// duration of this call; nested Lock calls made with the context passed to
// body (or anything built from it) are non-blocking re-entrant
// acquisitions of the same resource in the same logical flow.
func (l *Locker) Lock(ctx context.Context, h Handle, body func(ctx context.Context) error) (err error) {
	desc, _, scope, key, err := resolveRoot(h)
	if err != nil {
		return err
	}

	ctx, owner := ownerOrNew(ctx)

	if err := l.acquire(ctx, desc, owner, scope, key); err != nil {
		return err
	}
	defer func() {
		if relErr := l.release(ctx, desc, owner, scope, key); relErr != nil && err == nil {
			err = relErr
		}
	}()

	return body(ctx)
}

// HaveLock reports whether the owner carried on ctx currently holds a
// non-blocking re-entrant claim on h's resolved root, per spec.md SS4.F's
// "have_lock?" query.
func (l *Locker) HaveLock(ctx context.Context, h Handle) (bool, error) {
	desc, _, _, key, err := resolveRoot(h)
	if err != nil {
		return false, err
	}
	owner, ok := OwnerFromContext(ctx)
	if !ok {
		return false, nil
	}
	return l.reentrancy.count(owner, desc.ClassName, key) > 0, nil
}
