package doclock

import "testing"

// testOrder and testOrderItem mirror the end-to-end scenarios in spec.md
// SS8: Order is a root lockable keyed by id, OrderItem is locked by its
// parent order.
type testOrder struct{ id string }

func (o *testOrder) ClassName() string { return "Order" }
func (o *testOrder) ID() string        { return o.id }

type testOrderItem struct {
	id    string
	order *testOrder
}

func (i *testOrderItem) ClassName() string { return "OrderItem" }
func (i *testOrderItem) Parent() Handle {
	if i.order == nil {
		return nil
	}
	return i.order
}

// cycleA/cycleB form a two-class parent cycle for resolver cycle-detection
// tests.
type cycleA struct{ other *cycleB }
type cycleB struct{ other *cycleA }

func (a *cycleA) ClassName() string { return "CycleA" }
func (a *cycleA) Parent() Handle    { return a.other }
func (b *cycleB) ClassName() string { return "CycleB" }
func (b *cycleB) Parent() Handle    { return b.other }

func registerTestDescriptors(t *testing.T) {
	t.Helper()
	mustRegisterFresh(t, &Descriptor{
		ClassName: "Order",
		KeySource: Method("ID"),
	})
	mustRegisterFresh(t, &Descriptor{
		ClassName:    "OrderItem",
		KeySource:    Literal("unused"),
		ParentSource: ParentMethod("Parent"),
	})
}

// mustRegisterFresh registers desc, restoring any previous registration for
// the same class name once the test finishes, so tests don't leak
// registrations into one another through the process-global registry.
func mustRegisterFresh(t *testing.T, desc *Descriptor) {
	t.Helper()
	registryMu.Lock()
	prev, hadPrev := registry[desc.ClassName]
	registryMu.Unlock()

	if err := Register(desc); err != nil {
		t.Fatalf("Register(%s): %v", desc.ClassName, err)
	}
	t.Cleanup(func() {
		registryMu.Lock()
		defer registryMu.Unlock()
		if hadPrev {
			registry[desc.ClassName] = prev
		} else {
			delete(registry, desc.ClassName)
		}
	})
}
