package reconciler

import (
	"log/slog"
	"sync"

	"github.com/tiffinbox/ordersync/internal/service/models/order"
)

// Notifier surfaces a user-facing notification when one of the customer's
// orders becomes ready for pickup.
type Notifier interface {
	OrderReady(o order.Order)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(o order.Order)

func (f NotifierFunc) OrderReady(o order.Order) { f(o) }

// Reconciler maintains the authoritative in-memory, most-recent-first list of
// one customer's active (non-completed) orders, merging resync pulls and
// streamed snapshots. The merge is idempotent and last-snapshot-wins, which
// is what makes duplicate or out-of-order delivery safe.
type Reconciler struct {
	clientID string
	notifier Notifier

	mu       sync.Mutex
	orders   []order.Order
	notified map[string]struct{}
}

// New creates a reconciler scoped to one client identity. A nil notifier
// disables ready notifications.
func New(clientID string, notifier Notifier) *Reconciler {
	return &Reconciler{
		clientID: clientID,
		notifier: notifier,
		notified: make(map[string]struct{}),
	}
}

// Apply merges one order snapshot: any existing entry with the same id is
// removed, and the snapshot is reinserted at the head unless it is completed.
// Applying the same snapshot twice yields the same list. Snapshots for other
// identities are ignored.
func (r *Reconciler) Apply(o order.Order) {
	if o.CustomerID != r.clientID {
		return
	}

	var ready bool

	r.mu.Lock()
	r.merge(o)
	if o.Status == order.StatusReady {
		key := o.ID + "|" + string(o.Status)
		if _, seen := r.notified[key]; !seen {
			r.notified[key] = struct{}{}
			ready = true
		}
	}
	r.mu.Unlock()

	if ready && r.notifier != nil {
		r.notifier.OrderReady(o)
	}
}

// Replace rebuilds the list from a resync pull, establishing ground truth.
// Terminal or duplicate rows are dropped defensively. Ready orders in the
// baseline are recorded as already notified: the baseline is not an observed
// transition.
func (r *Reconciler) Replace(orders []order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders = r.orders[:0]
	seen := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		if o.CustomerID != r.clientID || o.Status == order.StatusCompleted {
			continue
		}
		if _, dup := seen[o.ID]; dup {
			slog.Warn("Resync returned duplicate order, dropped", "order_id", o.ID)

			continue
		}
		seen[o.ID] = struct{}{}
		r.orders = append(r.orders, o)

		if o.Status == order.StatusReady {
			r.notified[o.ID+"|"+string(o.Status)] = struct{}{}
		}
	}
}

// Orders returns a copy of the current active-order list, newest first.
func (r *Reconciler) Orders() []order.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]order.Order, len(r.orders))
	copy(out, r.orders)

	return out
}

// merge applies the remove-then-conditionally-reinsert rule under r.mu.
func (r *Reconciler) merge(o order.Order) {
	kept := r.orders[:0]
	for _, existing := range r.orders {
		if existing.ID != o.ID {
			kept = append(kept, existing)
		}
	}
	r.orders = kept

	if o.Status != order.StatusCompleted {
		r.orders = append([]order.Order{o}, r.orders...)
	}
}
