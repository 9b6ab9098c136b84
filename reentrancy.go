package doclock

import "sync"

// reentrancyTable is the process-wide, owner-scoped map described in
// spec.md SS4.D: one mapping per (owner, class, key) triple, values are
// non-negative nesting counts with an implicit zero for missing keys.
//
// It is guarded by a single mutex rather than sharded per owner: the
// critical sections here are map lookups and integer increments, never a
// store round-trip or a sleep, so contention on this mutex is not on the
// suspension-point list in spec.md SS5.
type reentrancyTable struct {
	mu     sync.Mutex
	counts map[OwnerID]map[string]map[string]int
}

func newReentrancyTable() *reentrancyTable {
	return &reentrancyTable{counts: make(map[OwnerID]map[string]map[string]int)}
}

// bump increments the nesting count for (owner, class, key) and returns the
// new value. A return of 1 means this owner did not already hold the lock
// and must drive the store state machine; anything greater means a
// non-blocking re-entrant acquire.
func (t *reentrancyTable) bump(owner OwnerID, class, key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	byClass, ok := t.counts[owner]
	if !ok {
		byClass = make(map[string]map[string]int)
		t.counts[owner] = byClass
	}
	byKey, ok := byClass[class]
	if !ok {
		byKey = make(map[string]int)
		byClass[class] = byKey
	}
	byKey[key]++
	return byKey[key]
}

// drop decrements the nesting count for (owner, class, key) and returns the
// new value. Entries that return to zero are deleted to bound memory
// across long-lived owners (spec.md SS4.D).
func (t *reentrancyTable) drop(owner OwnerID, class, key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	byClass, ok := t.counts[owner]
	if !ok {
		return 0
	}
	byKey, ok := byClass[class]
	if !ok {
		return 0
	}
	byKey[key]--
	n := byKey[key]
	if n <= 0 {
		delete(byKey, key)
		if len(byKey) == 0 {
			delete(byClass, class)
			if len(byClass) == 0 {
				delete(t.counts, owner)
			}
		}
	}
	return n
}

// count returns the current nesting count for (owner, class, key) without
// mutating it, used by HaveLock.
func (t *reentrancyTable) count(owner OwnerID, class, key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	byClass, ok := t.counts[owner]
	if !ok {
		return 0
	}
	byKey, ok := byClass[class]
	if !ok {
		return 0
	}
	return byKey[key]
}
