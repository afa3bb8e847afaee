package envelope

import (
	"errors"

	"github.com/tiffinbox/ordersync/internal/service/models/order"
)

var (
	// ErrMissingCustomerID marks an envelope without a routing key.
	ErrMissingCustomerID = errors.New("envelope has no customer id")
	// ErrNoItems marks an envelope whose order carries no line items.
	ErrNoItems = errors.New("envelope order has no items")
)

// RelayEnvelope is the message unit carried on the broadcast channel: a full
// order snapshot plus the customer id used as the routing key. Ephemeral, not
// persisted.
type RelayEnvelope struct {
	Order      order.Order `json:"order"`
	CustomerID string      `json:"customer_id"`
}

// New wraps an order snapshot into an envelope routed by its customer id.
func New(o order.Order) RelayEnvelope {
	return RelayEnvelope{Order: o, CustomerID: o.CustomerID}
}

// Validate rejects malformed envelopes. A missing customer id or an empty
// items sequence must be dropped at the subscriber boundary, never merged.
func (e RelayEnvelope) Validate() error {
	if e.CustomerID == "" || e.Order.CustomerID == "" {
		return ErrMissingCustomerID
	}
	if len(e.Order.Items) == 0 {
		return ErrNoItems
	}

	return nil
}
