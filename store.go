package doclock

import (
	"context"
	"time"
)

// LockDocument mirrors the shared-collection document described in spec.md
// SS3: one per distinct (Scope, Key), Refcount tracking holders and
// ExpireAt bounding how long a holder may go unreleased before another
// acquirer may reclaim the lock.
type LockDocument struct {
	Scope    string
	Key      string
	Refcount int64
	ExpireAt time.Time
}

// Guard expresses an optional extra predicate layered on top of the
// (scope, key) compound query that every Store operation takes, matching
// spec.md SS4.A's "query may include a predicate (e.g. refcount > 1)".
// The zero value, GuardNone, adds no extra predicate.
type Guard struct {
	kind guardKind
	n    int64
}

type guardKind int

const (
	guardNone guardKind = iota
	guardRefcountGreaterThan
	guardRefcountEquals
)

// GuardNone adds no predicate beyond (scope, key).
var GuardNone = Guard{kind: guardNone}

// GuardRefcountGreaterThan requires the existing document's refcount to be
// strictly greater than n, used by the expiry-reclamation conditional
// decrement in spec.md SS4.E.1.c.i.
func GuardRefcountGreaterThan(n int64) Guard { return Guard{kind: guardRefcountGreaterThan, n: n} }

// GuardRefcountEquals requires the existing document's refcount to equal n,
// used by the release-time garbage-collection delete in spec.md SS4.E.2.
func GuardRefcountEquals(n int64) Guard { return Guard{kind: guardRefcountEquals, n: n} }

// Matches reports whether refcount satisfies g's predicate. Store
// implementations backed by an in-process map (as used by this package's
// own tests) can use it directly instead of rendering a query language.
func (g Guard) Matches(refcount int64) bool {
	switch g.kind {
	case guardNone:
		return true
	case guardRefcountGreaterThan:
		return refcount > g.n
	case guardRefcountEquals:
		return refcount == g.n
	default:
		return false
	}
}

// Threshold returns g's comparison operator ("gt", "eq", or "" for
// GuardNone) and threshold value, letting Store implementations backed by a
// real query language (e.g. mongostore) render the predicate in their own
// terms without reaching into doclock's unexported fields.
func (g Guard) Threshold() (op string, n int64) {
	switch g.kind {
	case guardRefcountGreaterThan:
		return "gt", g.n
	case guardRefcountEquals:
		return "eq", g.n
	default:
		return "", 0
	}
}

// Store is the only interface the engine depends on: three primitive,
// atomic find-and-modify operations against a remote collection, keyed by
// (scope, key), as described in spec.md SS4.A. mongostore.Collection is the
// concrete MongoDB-backed implementation; tests in this package use a small
// in-memory fake.
type Store interface {
	// AtomicInc finds-or-creates the document for (scope, key) matching
	// guard, adds delta to its Refcount, and returns the post-update
	// document. It must be an upsert when guard is GuardNone. If guard
	// excludes every existing document (or none exists and guard is not
	// GuardNone), it returns ErrStoreConflict.
	AtomicInc(ctx context.Context, scope, key string, delta int64, guard Guard) (*LockDocument, error)

	// AtomicSet finds-or-creates the document for (scope, key) and
	// replaces its ExpireAt, returning the post-update document. Like
	// AtomicInc, it is an upsert.
	AtomicSet(ctx context.Context, scope, key string, expireAt time.Time) (*LockDocument, error)

	// AtomicDelete removes the document matching (scope, key) and guard,
	// returning the removed document, or (nil, nil) if none matched. It
	// never creates a document.
	AtomicDelete(ctx context.Context, scope, key string, guard Guard) (*LockDocument, error)
}
