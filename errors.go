package doclock

import (
	"errors"
	"fmt"
)

// Sentinel errors visible to callers. Check with errors.Is; LockError below
// carries the scope/key/op context for richer inspection with errors.As.
var (
	// ErrArgumentError means a registration parameter was unusable;
	// Register returns it for a Descriptor without a ClassName.
	ErrArgumentError = errors.New("doclock: argument error")

	// ErrInvalidConfig means the resolver hit an unknown source kind at
	// runtime, or a parent chain terminated at a non-root descriptor.
	ErrInvalidConfig = errors.New("doclock: invalid config")

	// ErrCircularLock means resolveRoot revisited a class while walking
	// parent references.
	ErrCircularLock = errors.New("doclock: circular lock graph")

	// ErrLockTimeout means acquire exhausted its retry budget. The
	// pre-increment has already been rolled back by the time this is
	// returned.
	ErrLockTimeout = errors.New("doclock: lock timeout")

	// ErrLockFailure means a store operation failed in a way the retry
	// loop does not know how to recover from, or release could not
	// complete.
	ErrLockFailure = errors.New("doclock: lock failure")

	// ErrStoreConflict is returned by a Store implementation when a
	// predicated query (e.g. refcount > 1) matches no document and the
	// operation cannot proceed as an upsert.
	ErrStoreConflict = errors.New("doclock: store conflict")
)

// errRetry is the internal control signal described in spec.md as
// "internally also used as a control signal within the retry loop and never
// escapes in that role". It never crosses the package boundary.
var errRetry = errors.New("doclock: internal retry signal")

// LockError decorates one of the sentinel errors above with the scope/key/
// operation that produced it. errors.Is(err, ErrLockTimeout) and friends
// still work because Unwrap returns the sentinel.
type LockError struct {
	Op    string
	Scope string
	Key   string
	Err   error
}

func (e *LockError) Error() string {
	if e.Scope == "" && e.Key == "" {
		return fmt.Sprintf("doclock: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("doclock: %s %s/%s: %v", e.Op, e.Scope, e.Key, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

func newLockError(op, scope, key string, err error) *LockError {
	return &LockError{Op: op, Scope: scope, Key: key, Err: err}
}

// CircularLockError is returned when resolveRoot detects a cycle, and
// unwraps to ErrCircularLock. Classes lists the class names visited from the
// starting instance, in traversal order, ending with the class that was
// revisited.
type CircularLockError struct {
	Classes []string
}

func (e *CircularLockError) Error() string {
	return fmt.Sprintf("doclock: circular lock graph through %v", e.Classes)
}

func (e *CircularLockError) Unwrap() error { return ErrCircularLock }
