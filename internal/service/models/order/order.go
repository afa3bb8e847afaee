package order

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an order. It is mutated only through the
// admin workflow, except for the customer acknowledgment that moves a ready
// order to completed.
type Status string

const (
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPreparing, StatusReady, StatusDelivered, StatusCompleted:
		return true
	}

	return false
}

// Terminal reports whether no further transition exists out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// PaymentMethod is the payment channel chosen at checkout.
type PaymentMethod string

const (
	PaymentUPI  PaymentMethod = "upi"
	PaymentCard PaymentMethod = "card"
	PaymentCash PaymentMethod = "cash"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentUPI, PaymentCard, PaymentCash:
		return true
	}

	return false
}

// LineItem is an immutable snapshot of a menu item captured at order-creation
// time. Later menu edits never alter a placed order.
type LineItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Image    string  `json:"image"`
	IsVeg    bool    `json:"is_veg"`
}

// Order represents one placed order. Only Status, UpdatedAt and CompletedAt
// ever change after creation.
type Order struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customer_id"`
	OrderNumber   string        `json:"order_number"`
	Items         []LineItem    `json:"items"`
	TotalAmount   float64       `json:"total_amount"`
	Status        Status        `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	TransactionID string        `json:"transaction_id"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// NewOrderNumber derives the human-readable order number from the creation
// time: "ORD" plus the last six digits of the unix millisecond clock. Unique
// within the operating window, not across long time spans.
func NewOrderNumber(t time.Time) string {
	millis := fmt.Sprintf("%d", t.UnixMilli())

	return "ORD" + millis[len(millis)-6:]
}

// Total computes the order total as the sum of price times quantity over the
// items. Computed once at creation, immutable thereafter.
func Total(items []LineItem) float64 {
	total := 0.0
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}

	return total
}
