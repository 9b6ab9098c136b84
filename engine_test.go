package doclock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor(t *testing.T, tune func(*Descriptor)) *Descriptor {
	t.Helper()
	d := &Descriptor{
		ClassName:          "Order",
		KeySource:          Method("ID"),
		MaxRetries:         2,
		FirstRetryInterval: 5 * time.Millisecond,
		MaxRetryInterval:   20 * time.Millisecond,
		MaxLifetime:        time.Second,
	}
	if tune != nil {
		tune(d)
	}
	return d
}

func TestAcquireSurfacesLazyProducerFailureAsLockFailure(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	l := New(CollectionProducer(func(ctx context.Context) (Store, error) {
		return nil, boom
	}))
	desc := testDescriptor(t, nil)
	owner := NewOwnerID()

	err := l.acquire(context.Background(), desc, owner, "Order", "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockFailure), "a failing lazy CollectionProducer must surface as ErrLockFailure")
	assert.True(t, errors.Is(err, boom))

	// The failed acquire must not leave a stale re-entrancy entry behind.
	assert.Equal(t, 0, l.reentrancy.count(owner, "Order", "1"))
}

func TestAcquireReleaseHappyPath(t *testing.T) {
	store := newFakeStore()
	l := New(store)
	desc := testDescriptor(t, nil)
	owner := NewOwnerID()

	require.NoError(t, l.acquire(context.Background(), desc, owner, "Order", "1"))

	doc, ok := store.get("Order", "1")
	require.True(t, ok)
	assert.EqualValues(t, 1, doc.Refcount)
	assert.True(t, doc.ExpireAt.After(time.Now()))

	require.NoError(t, l.release(context.Background(), desc, owner, "Order", "1"))
	_, ok = store.get("Order", "1")
	assert.False(t, ok, "refcount reaching zero must garbage-collect the document")
}

func TestAcquireContentionTimesOut(t *testing.T) {
	store := newFakeStore()
	l := New(store)
	desc := testDescriptor(t, nil)

	holder := NewOwnerID()
	require.NoError(t, l.acquire(context.Background(), desc, holder, "Order", "1"))

	contender := NewOwnerID()
	err := l.acquire(context.Background(), desc, contender, "Order", "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))

	// Roll-back on timeout: the contender's re-entrancy count must
	// return to its pre-acquire value (spec.md SS8 "Roll-back on
	// timeout").
	assert.Equal(t, 0, l.reentrancy.count(contender, "Order", "1"))

	doc, ok := store.get("Order", "1")
	require.True(t, ok)
	assert.EqualValues(t, 1, doc.Refcount, "holder's refcount must be undisturbed by the failed contender")
}

func TestAcquireBackoffIsMonotonicAndBounded(t *testing.T) {
	store := newFakeStore()
	l := New(store)
	desc := testDescriptor(t, func(d *Descriptor) {
		d.MaxRetries = 5
		d.FirstRetryInterval = 5 * time.Millisecond
		d.MaxRetryInterval = 15 * time.Millisecond
	})

	require.NoError(t, l.acquire(context.Background(), desc, NewOwnerID(), "Order", "1"))

	var sleeps []time.Duration
	var last time.Time
	store.beforeInc = func(scope, key string, delta int64, guard Guard) {
		if delta != 1 || guard != GuardNone {
			return
		}
		now := time.Now()
		if !last.IsZero() {
			sleeps = append(sleeps, now.Sub(last))
		}
		last = now
	}

	err := l.acquire(context.Background(), desc, NewOwnerID(), "Order", "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))

	require.NotEmpty(t, sleeps)
	for i, s := range sleeps {
		assert.LessOrEqual(t, s, desc.MaxRetryInterval+5*time.Millisecond, "sleep %d exceeded the configured ceiling", i)
	}
	for i := 1; i < len(sleeps); i++ {
		assert.GreaterOrEqual(t, sleeps[i]+time.Millisecond, sleeps[i-1], "sleeps must be non-decreasing")
	}
}

func TestAcquireReclaimsExpiredLock(t *testing.T) {
	store := newFakeStore()
	l := New(store)
	desc := testDescriptor(t, nil)

	crashed := NewOwnerID()
	require.NoError(t, l.acquire(context.Background(), desc, crashed, "Order", "1"))
	// Simulate the crashed holder never releasing, past its expiry.
	_, err := store.AtomicSet(context.Background(), "Order", "1", time.Now().Add(-time.Second))
	require.NoError(t, err)

	reclaimer := NewOwnerID()
	require.NoError(t, l.acquire(context.Background(), desc, reclaimer, "Order", "1"))

	doc, ok := store.get("Order", "1")
	require.True(t, ok)
	assert.EqualValues(t, 1, doc.Refcount)
	assert.True(t, doc.ExpireAt.After(time.Now()), "reclaimer must stamp a fresh expiry")
}

func TestDualExpiryRaceOnlyOneReclaims(t *testing.T) {
	store := newFakeStore()
	l := New(store)
	desc := testDescriptor(t, func(d *Descriptor) {
		d.MaxRetries = 10
		d.FirstRetryInterval = time.Millisecond
		d.MaxRetryInterval = 4 * time.Millisecond
	})

	crashed := NewOwnerID()
	require.NoError(t, l.acquire(context.Background(), desc, crashed, "Order", "1"))
	_, err := store.AtomicSet(context.Background(), "Order", "1", time.Now().Add(-time.Second))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = l.acquire(context.Background(), desc, NewOwnerID(), "Order", "1")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one of the two racing reclaimers must win")

	doc, ok := store.get("Order", "1")
	require.True(t, ok)
	assert.EqualValues(t, 1, doc.Refcount)
}

func TestAnomalyRetryDoesNotConsumeBudget(t *testing.T) {
	store := newFakeStore()
	store.docs[docKey("Order", "1")] = &LockDocument{Scope: "Order", Key: "1", Refcount: -2}

	calls := 0
	store.beforeInc = func(scope, key string, delta int64, guard Guard) {
		calls++
		if calls == 2 {
			// Simulate another process fixing the corrupt document
			// between our two attempts.
			store.docs[docKey(scope, key)].Refcount = 0
		}
	}

	l := New(store)
	desc := testDescriptor(t, func(d *Descriptor) {
		d.MaxRetries = 1
		d.FirstRetryInterval = 2 * time.Millisecond
	})

	// With MaxRetries == 1, a single budget-consuming retry would time
	// out immediately; the anomaly branch must not count against that
	// budget (spec.md SS4.E.1.b).
	err := l.acquire(context.Background(), desc, NewOwnerID(), "Order", "1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestReleaseGCRaceIsSwallowed(t *testing.T) {
	store := newFakeStore()
	l := New(store)
	desc := testDescriptor(t, nil)

	holder := NewOwnerID()
	require.NoError(t, l.acquire(context.Background(), desc, holder, "Order", "1"))

	// Inject a concurrent acquirer's +1 right before the release's
	// guarded delete evaluates, so the refcount==0 predicate no longer
	// matches - the delete must find nothing and release must not
	// surface that as an error (spec.md SS8 scenario 6).
	store.beforeDelete = func(scope, key string, guard Guard) {
		store.beforeDelete = nil
		doc := store.docs[docKey(scope, key)]
		doc.Refcount++
	}

	require.NoError(t, l.release(context.Background(), desc, holder, "Order", "1"))

	doc, ok := store.get("Order", "1")
	require.True(t, ok, "the concurrent acquirer's document must survive the swallowed delete")
	assert.EqualValues(t, 1, doc.Refcount)
}
