package reconciler

import (
	"testing"
	"time"

	"github.com/tiffinbox/ordersync/internal/service/models/order"
)

const clientID = "customer_1723000000000_abc123def"

func makeOrder(id string, status order.Status) order.Order {
	return order.Order{
		ID:          id,
		CustomerID:  clientID,
		OrderNumber: "ORD123456",
		Items: []order.LineItem{
			{ID: "item-1", Name: "Paneer Tikka", Price: 250, Quantity: 1, IsVeg: true},
		},
		TotalAmount: 250,
		Status:      status,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestApply_IdempotentMerge(t *testing.T) {
	r := New(clientID, nil)

	a := makeOrder("a", order.StatusReady)
	r.Apply(a)
	once := r.Orders()

	r.Apply(a)
	twice := r.Orders()

	if len(once) != 1 || len(twice) != 1 {
		t.Fatalf("expected 1 order after both applies, got %d then %d", len(once), len(twice))
	}
	if twice[0].ID != "a" || twice[0].Status != order.StatusReady {
		t.Fatalf("unexpected order after duplicate apply: %+v", twice[0])
	}
}

func TestApply_UniquenessInvariant(t *testing.T) {
	r := New(clientID, nil)

	r.Apply(makeOrder("a", order.StatusPreparing))
	r.Apply(makeOrder("b", order.StatusPreparing))
	r.Apply(makeOrder("a", order.StatusReady))

	orders := r.Orders()
	seen := map[string]int{}
	for _, o := range orders {
		seen[o.ID]++
	}
	for id, count := range seen {
		if count > 1 {
			t.Fatalf("order %s appears %d times", id, count)
		}
	}

	// The updated snapshot moves to the head.
	if orders[0].ID != "a" || orders[0].Status != order.StatusReady {
		t.Fatalf("expected updated order a at head, got %+v", orders[0])
	}
}

func TestApply_CompletedRemoves(t *testing.T) {
	r := New(clientID, nil)

	r.Apply(makeOrder("a", order.StatusReady))
	r.Apply(makeOrder("a", order.StatusCompleted))

	for _, o := range r.Orders() {
		if o.ID == "a" {
			t.Fatalf("completed order still present: %+v", o)
		}
	}
	if got := len(r.Orders()); got != 0 {
		t.Fatalf("expected empty list, got %d entries", got)
	}

	// Applying completed again stays removed.
	r.Apply(makeOrder("a", order.StatusCompleted))
	if got := len(r.Orders()); got != 0 {
		t.Fatalf("expected empty list after replay, got %d entries", got)
	}
}

func TestApply_ReadyNotifiedOncePerTransition(t *testing.T) {
	var fired int
	r := New(clientID, NotifierFunc(func(o order.Order) { fired++ }))

	ready := makeOrder("a", order.StatusReady)
	r.Apply(ready)
	r.Apply(ready) // duplicate delivery

	if fired != 1 {
		t.Fatalf("expected exactly 1 ready notification, got %d", fired)
	}

	// A different order's transition still fires.
	r.Apply(makeOrder("b", order.StatusReady))
	if fired != 2 {
		t.Fatalf("expected 2 notifications after second order, got %d", fired)
	}
}

func TestApply_ForeignIdentityIgnored(t *testing.T) {
	r := New(clientID, nil)
	r.Apply(makeOrder("a", order.StatusPreparing))
	before := r.Orders()

	foreign := makeOrder("b", order.StatusReady)
	foreign.CustomerID = "customer_999_zzzzzzzzz"
	r.Apply(foreign)

	after := r.Orders()
	if len(after) != len(before) {
		t.Fatalf("foreign envelope changed state: %d -> %d entries", len(before), len(after))
	}
	if after[0].ID != "a" {
		t.Fatalf("unexpected head after foreign apply: %+v", after[0])
	}
}

func TestReplace_EstablishesBaseline(t *testing.T) {
	var fired int
	r := New(clientID, NotifierFunc(func(o order.Order) { fired++ }))

	r.Apply(makeOrder("stale", order.StatusPreparing))

	baseline := []order.Order{
		makeOrder("a", order.StatusReady),
		makeOrder("b", order.StatusPreparing),
		makeOrder("c", order.StatusCompleted), // dropped defensively
		makeOrder("a", order.StatusReady),     // duplicate dropped
	}
	r.Replace(baseline)

	orders := r.Orders()
	if len(orders) != 2 {
		t.Fatalf("expected 2 baseline orders, got %d", len(orders))
	}
	if orders[0].ID != "a" || orders[1].ID != "b" {
		t.Fatalf("baseline order mismatch: %+v", orders)
	}

	// Baseline is not an observed transition.
	if fired != 0 {
		t.Fatalf("baseline fired %d notifications", fired)
	}

	// A replayed ready envelope after the baseline stays silent too.
	r.Apply(makeOrder("a", order.StatusReady))
	if fired != 0 {
		t.Fatalf("replayed baseline ready fired %d notifications", fired)
	}
}
