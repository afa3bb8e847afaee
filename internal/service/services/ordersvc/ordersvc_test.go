package ordersvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tiffinbox/ordersync/internal/reconciler"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
)

const clientID = "customer_1723000000000_abc123def"

type fakeRepo struct {
	orders       map[string]order.Order
	insertErr    error
	receivedErr  error
	activeErr    error
	activeCalls  int
	receivedWith [][2]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]order.Order)}
}

func (r *fakeRepo) Insert(_ context.Context, o order.Order) (order.Order, error) {
	if r.insertErr != nil {
		return order.Order{}, r.insertErr
	}
	o.ID = "generated-id"
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	r.orders[o.ID] = o

	return o, nil
}

func (r *fakeRepo) ActiveByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	r.activeCalls++
	if r.activeErr != nil {
		return nil, r.activeErr
	}
	out := []order.Order{}
	for _, o := range r.orders {
		if o.CustomerID == customerID && o.Status != order.StatusCompleted {
			out = append(out, o)
		}
	}

	return out, nil
}

func (r *fakeRepo) Active(_ context.Context) ([]order.Order, error) { return nil, nil }

func (r *fakeRepo) Completed(_ context.Context, _ *time.Time) ([]order.Order, error) {
	return nil, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, _ string, _ order.Status) error { return nil }

func (r *fakeRepo) MarkReceived(_ context.Context, orderID, customerID string) error {
	if r.receivedErr != nil {
		return r.receivedErr
	}
	r.receivedWith = append(r.receivedWith, [2]string{orderID, customerID})

	o, ok := r.orders[orderID]
	if !ok || o.CustomerID != customerID || o.Status != order.StatusReady {
		return errors.New("order not found or not in a mutable state")
	}
	now := time.Now()
	o.Status = order.StatusCompleted
	o.UpdatedAt = now
	o.CompletedAt = &now
	r.orders[orderID] = o

	return nil
}

func newService(repo *fakeRepo) (*OrderService, *reconciler.Reconciler) {
	rec := reconciler.New(clientID, nil)
	svc := MustNewOrderService(
		WithOrderRepository(repo),
		WithReconciler(rec),
		WithClientID(clientID),
	)

	return svc, rec
}

func items() []order.LineItem {
	return []order.LineItem{
		{ID: "item-1", Name: "Paneer Tikka", Price: 250, Quantity: 1, IsVeg: true},
	}
}

func TestCreateOrder(t *testing.T) {
	repo := newFakeRepo()
	svc, rec := newService(repo)

	id, err := svc.CreateOrder(context.Background(), items(), 250, order.PaymentUPI)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if id == "" {
		t.Fatal("expected a store-assigned order id")
	}

	stored := repo.orders[id]
	if stored.Status != order.StatusPreparing {
		t.Fatalf("new order status = %q, want preparing", stored.Status)
	}
	if stored.CustomerID != clientID {
		t.Fatalf("new order customer = %q, want %q", stored.CustomerID, clientID)
	}
	if stored.TotalAmount != 250 {
		t.Fatalf("new order total = %v, want 250", stored.TotalAmount)
	}
	if stored.OrderNumber == "" || stored.TransactionID == "" {
		t.Fatalf("creation metadata missing: %+v", stored)
	}

	// Creation is followed by a resync so the creator sees its own order.
	if repo.activeCalls != 1 {
		t.Fatalf("expected 1 resync after create, got %d", repo.activeCalls)
	}
	if got := rec.Orders(); len(got) != 1 || got[0].ID != id {
		t.Fatalf("reconciler missing created order: %+v", got)
	}
}

func TestCreateOrder_ResyncFailureTolerated(t *testing.T) {
	repo := newFakeRepo()
	repo.activeErr = errors.New("store unavailable")
	svc, _ := newService(repo)

	// The order is durable even when the follow-up refresh fails.
	id, err := svc.CreateOrder(context.Background(), items(), 250, order.PaymentUPI)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, ok := repo.orders[id]; !ok {
		t.Fatal("order not persisted")
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	svc, _ := newService(newFakeRepo())
	ctx := context.Background()

	if _, err := svc.CreateOrder(ctx, nil, 0, order.PaymentUPI); !errors.Is(err, ErrNoItems) {
		t.Fatalf("empty items: got %v, want ErrNoItems", err)
	}
	if _, err := svc.CreateOrder(ctx, items(), 250, "cheque"); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("bad payment: got %v, want ErrInvalidPayment", err)
	}
	if _, err := svc.CreateOrder(ctx, items(), 999, order.PaymentCard); !errors.Is(err, ErrTotalMismatch) {
		t.Fatalf("bad total: got %v, want ErrTotalMismatch", err)
	}

	bad := items()
	bad[0].Quantity = 0
	if _, err := svc.CreateOrder(ctx, bad, 0, order.PaymentCash); !errors.Is(err, ErrInvalidItems) {
		t.Fatalf("zero quantity: got %v, want ErrInvalidItems", err)
	}
}

func TestMarkReceived(t *testing.T) {
	repo := newFakeRepo()
	svc, rec := newService(repo)

	id, err := svc.CreateOrder(context.Background(), items(), 250, order.PaymentCash)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	ready := repo.orders[id]
	ready.Status = order.StatusReady
	repo.orders[id] = ready

	if err := svc.MarkReceived(context.Background(), id); err != nil {
		t.Fatalf("mark received: %v", err)
	}

	completed := repo.orders[id]
	if completed.Status != order.StatusCompleted {
		t.Fatalf("status = %q, want completed", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if got := repo.receivedWith; len(got) != 1 || got[0] != [2]string{id, clientID} {
		t.Fatalf("mark received scoped wrong: %+v", got)
	}

	// The refreshed active list no longer contains the order.
	if got := rec.Orders(); len(got) != 0 {
		t.Fatalf("completed order still in active list: %+v", got)
	}
}

func TestMarkReceived_NotReady(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newService(repo)

	id, err := svc.CreateOrder(context.Background(), items(), 250, order.PaymentCash)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// Still preparing: the terminal acknowledgment is only valid from ready.
	if err := svc.MarkReceived(context.Background(), id); err == nil {
		t.Fatal("mark received accepted for a preparing order")
	}
	if repo.orders[id].Status != order.StatusPreparing {
		t.Fatalf("status changed despite rejection: %q", repo.orders[id].Status)
	}
}

func TestRefreshOrders(t *testing.T) {
	repo := newFakeRepo()
	svc, rec := newService(repo)

	repo.orders["x"] = order.Order{
		ID: "x", CustomerID: clientID, Status: order.StatusReady, Items: items(),
	}

	if err := svc.RefreshOrders(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := rec.Orders(); len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("refresh did not install baseline: %+v", got)
	}
	if got := svc.Orders(); len(got) != 1 {
		t.Fatalf("service view mismatch: %+v", got)
	}
}
