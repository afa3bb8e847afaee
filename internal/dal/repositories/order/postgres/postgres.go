package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/tiffinbox/ordersync/internal/dal/postgres"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
)

// ErrOrderNotFound is returned when a status mutation matches no row, either
// because the order does not exist or because its current state forbids the
// transition.
var ErrOrderNotFound = errors.New("order not found or not in a mutable state")

const ordersTable = "orders"

var orderColumns = []string{
	"id",
	"customer_id",
	"order_number",
	"items",
	"total_amount",
	"status",
	"payment_method",
	"transaction_id",
	"created_at",
	"updated_at",
	"completed_at",
}

// OrderRepository implements the order repository for PostgreSQL.
type OrderRepository struct {
	client *postgres.Client
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(client *postgres.Client) *OrderRepository {
	return &OrderRepository{
		client: client,
	}
}

// Insert stores a new order and returns it with the store-assigned id and
// timestamps.
func (r *OrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to marshal order items: %w", err)
	}

	query, args, err := sq.Insert(ordersTable).
		Columns(
			"customer_id",
			"order_number",
			"items",
			"total_amount",
			"status",
			"payment_method",
			"transaction_id",
		).
		Values(
			o.CustomerID,
			o.OrderNumber,
			items,
			o.TotalAmount,
			o.Status,
			o.PaymentMethod,
			o.TransactionID,
		).
		Suffix("RETURNING id, created_at, updated_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	row := r.client.Pool().QueryRow(ctx, query, args...)
	if err := row.Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return order.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	return o, nil
}

// ActiveByCustomer returns the customer's non-terminal orders, newest first.
// This is the resync query.
func (r *OrderRepository) ActiveByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	builder := sq.Select(orderColumns...).
		From(ordersTable).
		Where(sq.Eq{"customer_id": customerID}).
		Where(sq.NotEq{"status": order.StatusCompleted}).
		OrderBy("created_at DESC")

	return r.queryOrders(ctx, builder)
}

// Active returns all non-terminal orders across customers, newest first. Used
// by the admin surface.
func (r *OrderRepository) Active(ctx context.Context) ([]order.Order, error) {
	builder := sq.Select(orderColumns...).
		From(ordersTable).
		Where(sq.NotEq{"status": order.StatusCompleted}).
		OrderBy("created_at DESC")

	return r.queryOrders(ctx, builder)
}

// Completed returns completed orders newest-completed first, optionally
// restricted to the calendar day of the given time.
func (r *OrderRepository) Completed(ctx context.Context, day *time.Time) ([]order.Order, error) {
	builder := sq.Select(orderColumns...).
		From(ordersTable).
		Where(sq.Eq{"status": order.StatusCompleted}).
		OrderBy("completed_at DESC")

	if day != nil {
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		end := start.Add(24 * time.Hour)
		builder = builder.
			Where(sq.GtOrEq{"completed_at": start}).
			Where(sq.Lt{"completed_at": end})
	}

	return r.queryOrders(ctx, builder)
}

// UpdateStatus patches an order's status, refreshing updated_at and setting
// completed_at exactly once on entry into completed. Completed orders are
// terminal and never match.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	builder := sq.Update(ordersTable).
		Set("status", status).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": orderID}).
		Where(sq.NotEq{"status": order.StatusCompleted})

	if status == order.StatusCompleted {
		builder = builder.Set("completed_at", sq.Expr("now()"))
	}

	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.client.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// MarkReceived is the customer-initiated terminal acknowledgment: it moves a
// ready order directly to completed, scoped to the caller's identity.
func (r *OrderRepository) MarkReceived(ctx context.Context, orderID, customerID string) error {
	query, args, err := sq.Update(ordersTable).
		Set("status", order.StatusCompleted).
		Set("updated_at", sq.Expr("now()")).
		Set("completed_at", sq.Expr("now()")).
		Where(sq.Eq{"id": orderID}).
		Where(sq.Eq{"customer_id": customerID}).
		Where(sq.Eq{"status": order.StatusReady}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build mark-received query: %w", err)
	}

	tag, err := r.client.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark order received: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *OrderRepository) queryOrders(ctx context.Context, builder sq.SelectBuilder) ([]order.Order, error) {
	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order rows: %w", err)
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o     order.Order
		items []byte
	)

	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.OrderNumber,
		&items,
		&o.TotalAmount,
		&o.Status,
		&o.PaymentMethod,
		&o.TransactionID,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.CompletedAt,
	)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to scan order row: %w", err)
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("failed to unmarshal order items: %w", err)
	}

	return o, nil
}
