package adminsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tiffinbox/ordersync/internal/changefeed"
	"github.com/tiffinbox/ordersync/internal/dal/interfaces/iorderrepo"
	"github.com/tiffinbox/ordersync/internal/identity"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
)

// ErrInvalidStatus rejects an unknown status target.
var ErrInvalidStatus = errors.New("invalid order status")

// AdminService holds the kitchen dashboard state, live active and completed
// order lists driven by the change feed, and exposes the admin-side
// mutations. The dashboard mirror is independent of relay leadership.
type AdminService struct {
	repo iorderrepo.IOrderRepository

	mu        sync.Mutex
	active    []order.Order
	completed []order.Order
}

// option is a function that configures the AdminService.
type option func(*AdminService)

// MustNewAdminService creates a new AdminService.
func MustNewAdminService(opts ...option) *AdminService {
	s := &AdminService{}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithOrderRepository sets the order repository for the AdminService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *AdminService) {
		s.repo = repo
	}
}

// Resync loads both dashboard lists from the store. Called at startup before
// feed events start flowing.
func (s *AdminService) Resync(ctx context.Context) error {
	active, err := s.repo.Active(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active orders: %w", err)
	}

	completed, err := s.repo.Completed(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to load completed orders: %w", err)
	}

	s.mu.Lock()
	s.active = active
	s.completed = completed
	s.mu.Unlock()

	return nil
}

// ApplyFeedEvent folds one change-feed event into the dashboard lists.
func (s *AdminService) ApplyFeedEvent(event changefeed.Event) {
	o := event.Order

	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case changefeed.EventInsert:
		if o.Status != order.StatusCompleted {
			s.active = prepend(withoutID(s.active, o.ID), o)
		}
	case changefeed.EventUpdate:
		if o.Status == order.StatusCompleted {
			s.active = withoutID(s.active, o.ID)
			s.completed = prepend(withoutID(s.completed, o.ID), o)
		} else {
			s.active = prepend(withoutID(s.active, o.ID), o)
		}
	case changefeed.EventDelete:
		s.active = withoutID(s.active, o.ID)
		s.completed = withoutID(s.completed, o.ID)
	}
}

// Active returns the live list of non-terminal orders across all customers.
func (s *AdminService) Active() []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, len(s.active))
	copy(out, s.active)

	return out
}

// Completed returns the mirrored completed list.
func (s *AdminService) Completed() []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, len(s.completed))
	copy(out, s.completed)

	return out
}

// CompletedByDay queries the store for orders completed on the given day.
func (s *AdminService) CompletedByDay(ctx context.Context, day time.Time) ([]order.Order, error) {
	return s.repo.Completed(ctx, &day)
}

// UpdateStatus performs an admin-commanded status write. Any of the four
// statuses is a valid target regardless of the current state; the store
// refreshes updated_at and stamps completed_at on entry into completed. On
// store rejection nothing changes locally.
func (s *AdminService) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}

	return s.repo.UpdateStatus(ctx, orderID, status)
}

// CreateWalkInOrder places a cash order on behalf of a walk-in customer, who
// gets a throwaway identity.
func (s *AdminService) CreateWalkInOrder(ctx context.Context, items []order.LineItem) (order.Order, error) {
	if len(items) == 0 {
		return order.Order{}, errors.New("at least one item is required")
	}

	now := time.Now()
	o := order.Order{
		CustomerID:    identity.Generate(),
		OrderNumber:   order.NewOrderNumber(now),
		Items:         items,
		TotalAmount:   order.Total(items),
		Status:        order.StatusPreparing,
		PaymentMethod: order.PaymentCash,
		TransactionID: fmt.Sprintf("%d", now.UnixNano()),
	}

	inserted, err := s.repo.Insert(ctx, o)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to create walk-in order: %w", err)
	}

	return inserted, nil
}

func withoutID(orders []order.Order, id string) []order.Order {
	kept := orders[:0]
	for _, o := range orders {
		if o.ID != id {
			kept = append(kept, o)
		}
	}

	return kept
}

func prepend(orders []order.Order, o order.Order) []order.Order {
	return append([]order.Order{o}, orders...)
}
