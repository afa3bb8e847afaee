package iorderrepo

import (
	"context"
	"time"

	"github.com/tiffinbox/ordersync/internal/service/models/order"
)

// IOrderRepository is the durable order store surface consumed by the
// services. The update surface is restricted to status, updated_at and
// completed_at; everything else is immutable after Insert.
type IOrderRepository interface {
	Insert(ctx context.Context, o order.Order) (order.Order, error)
	ActiveByCustomer(ctx context.Context, customerID string) ([]order.Order, error)
	Active(ctx context.Context) ([]order.Order, error)
	Completed(ctx context.Context, day *time.Time) ([]order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status order.Status) error
	MarkReceived(ctx context.Context, orderID, customerID string) error
}
