package ordersvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tiffinbox/ordersync/internal/dal/interfaces/iorderrepo"
	"github.com/tiffinbox/ordersync/internal/reconciler"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
)

var (
	// ErrNoItems rejects an order without line items.
	ErrNoItems = errors.New("at least one item is required")
	// ErrInvalidPayment rejects an unknown payment method.
	ErrInvalidPayment = errors.New("invalid payment method")
	// ErrTotalMismatch rejects a submitted total that disagrees with the sum
	// of the line items.
	ErrTotalMismatch = errors.New("total amount does not match items")
	// ErrInvalidItems rejects a line item with a non-positive quantity or a
	// negative price.
	ErrInvalidItems = errors.New("invalid line items")
)

// OrderService exposes the customer-facing order operations for one client
// identity: creation, terminal acknowledgment and the reconciled live view.
type OrderService struct {
	repo     iorderrepo.IOrderRepository
	rec      *reconciler.Reconciler
	clientID string
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithOrderRepository sets the order repository for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *OrderService) {
		s.repo = repo
	}
}

// WithReconciler sets the local order reconciler for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithReconciler(rec *reconciler.Reconciler) option {
	return func(s *OrderService) {
		s.rec = rec
	}
}

// WithClientID sets the client identity the service acts for.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClientID(clientID string) option {
	return func(s *OrderService) {
		s.clientID = clientID
	}
}

// Orders returns the customer's active orders, newest first, from the
// reconciled in-memory view.
func (s *OrderService) Orders() []order.Order {
	return s.rec.Orders()
}

// CreateOrder places a new order with status preparing and returns its
// store-assigned id. Creation events are not relayed, so the caller's view is
// refreshed through a resync afterwards.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	items []order.LineItem,
	totalAmount float64,
	paymentMethod order.PaymentMethod,
) (string, error) {
	if len(items) == 0 {
		return "", ErrNoItems
	}
	if !paymentMethod.Valid() {
		return "", ErrInvalidPayment
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return "", fmt.Errorf("%w: bad quantity for item %s", ErrInvalidItems, item.Name)
		}
		if item.Price < 0 {
			return "", fmt.Errorf("%w: bad price for item %s", ErrInvalidItems, item.Name)
		}
	}

	computed := order.Total(items)
	if math.Abs(computed-totalAmount) > 0.01 {
		return "", ErrTotalMismatch
	}

	now := time.Now()
	o := order.Order{
		CustomerID:    s.clientID,
		OrderNumber:   order.NewOrderNumber(now),
		Items:         items,
		TotalAmount:   computed,
		Status:        order.StatusPreparing,
		PaymentMethod: paymentMethod,
		TransactionID: fmt.Sprintf("%d", now.UnixNano()),
	}

	inserted, err := s.repo.Insert(ctx, o)
	if err != nil {
		return "", fmt.Errorf("failed to create order: %w", err)
	}

	if err := s.RefreshOrders(ctx); err != nil {
		// The order exists; the next resync will pick it up.
		slog.Warn("Resync after order creation failed", "order_id", inserted.ID, "error", err)
	}

	return inserted.ID, nil
}

// MarkReceived acknowledges a ready order, moving it directly to completed.
// The store enforces the ready precondition and the caller's identity.
func (s *OrderService) MarkReceived(ctx context.Context, orderID string) error {
	if err := s.repo.MarkReceived(ctx, orderID, s.clientID); err != nil {
		return err
	}

	return s.RefreshOrders(ctx)
}

// RefreshOrders forces a resync: a full pull of the identity's non-terminal
// orders installed as the reconciler baseline.
func (s *OrderService) RefreshOrders(ctx context.Context) error {
	orders, err := s.repo.ActiveByCustomer(ctx, s.clientID)
	if err != nil {
		return fmt.Errorf("failed to refresh orders: %w", err)
	}

	s.rec.Replace(orders)

	return nil
}
