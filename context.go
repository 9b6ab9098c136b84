package doclock

import (
	"context"
	"sync/atomic"
)

// OwnerID is the Go rendition of spec.md's "thread" for re-entrancy
// purposes (see SPEC_FULL.md Design Decision D1). Go exposes no public
// goroutine identity, so ownership of a lock, for re-entrancy purposes, is
// made explicit: callers that want nested Lock calls to be non-blocking
// must thread the same context.Context (and therefore the same OwnerID)
// through the call chain, exactly as idiomatic Go code already does for
// request-scoped values.
type OwnerID uint64

type ownerContextKey struct{}

var ownerSeq uint64

// NewOwnerID returns a fresh, process-unique OwnerID. Lock calls this
// automatically for a context that does not already carry an owner, so a
// non-nested caller needs no ceremony.
func NewOwnerID() OwnerID {
	return OwnerID(atomic.AddUint64(&ownerSeq, 1))
}

// WithOwner returns a copy of ctx carrying owner as its OwnerID. Nested
// Lock calls made with a descendant of this context (or with ctx itself)
// are non-blocking re-entrant acquisitions for the same owner.
func WithOwner(ctx context.Context, owner OwnerID) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, owner)
}

// OwnerFromContext returns the OwnerID carried on ctx, and false if ctx
// carries none.
func OwnerFromContext(ctx context.Context) (OwnerID, bool) {
	v, ok := ctx.Value(ownerContextKey{}).(OwnerID)
	return v, ok
}

// ownerOrNew returns (ctx, owner) where owner is either the OwnerID already
// carried by ctx, or a freshly minted one attached to the returned context.
func ownerOrNew(ctx context.Context) (context.Context, OwnerID) {
	if owner, ok := OwnerFromContext(ctx); ok {
		return ctx, owner
	}
	owner := NewOwnerID()
	return WithOwner(ctx, owner), owner
}
