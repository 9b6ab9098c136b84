package doclock

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store used by this package's own tests. It
// implements the same find-and-modify contract mongostore.Collection does
// against a real MongoDB collection, including upsert-or-update semantics
// and guard predicates, but never leaves the process.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string]*LockDocument

	incCalls    int
	setCalls    int
	deleteCalls int

	// beforeInc, if set, runs while holding the lock right before an
	// AtomicInc is applied, letting tests inject another process's
	// write mid-race (spec.md SS8 scenarios 5 and 6).
	beforeInc func(scope, key string, delta int64, guard Guard)

	// beforeDelete, if set, runs while holding the lock right before an
	// AtomicDelete's guard is evaluated, letting tests simulate a
	// concurrent acquirer winning the release/acquire race described in
	// spec.md SS8 scenario 6.
	beforeDelete func(scope, key string, guard Guard)
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*LockDocument)}
}

func docKey(scope, key string) string { return scope + "/" + key }

func (s *fakeStore) AtomicInc(_ context.Context, scope, key string, delta int64, guard Guard) (*LockDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incCalls++

	if s.beforeInc != nil {
		s.beforeInc(scope, key, delta, guard)
	}

	dk := docKey(scope, key)
	doc, ok := s.docs[dk]
	if !ok {
		if guard != GuardNone {
			return nil, ErrStoreConflict
		}
		doc = &LockDocument{Scope: scope, Key: key}
		s.docs[dk] = doc
	}
	if !guard.Matches(doc.Refcount) {
		return nil, ErrStoreConflict
	}
	doc.Refcount += delta

	cp := *doc
	return &cp, nil
}

func (s *fakeStore) AtomicSet(_ context.Context, scope, key string, expireAt time.Time) (*LockDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++

	dk := docKey(scope, key)
	doc, ok := s.docs[dk]
	if !ok {
		doc = &LockDocument{Scope: scope, Key: key}
		s.docs[dk] = doc
	}
	doc.ExpireAt = expireAt

	cp := *doc
	return &cp, nil
}

func (s *fakeStore) AtomicDelete(_ context.Context, scope, key string, guard Guard) (*LockDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++

	if s.beforeDelete != nil {
		s.beforeDelete(scope, key, guard)
	}

	dk := docKey(scope, key)
	doc, ok := s.docs[dk]
	if !ok || !guard.Matches(doc.Refcount) {
		return nil, nil
	}
	delete(s.docs, dk)
	return doc, nil
}

func (s *fakeStore) get(scope, key string) (LockDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docKey(scope, key)]
	if !ok {
		return LockDocument{}, false
	}
	return *doc, true
}
