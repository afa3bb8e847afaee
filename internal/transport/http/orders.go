package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	orderrepo "github.com/tiffinbox/ordersync/internal/dal/repositories/order/postgres"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
	"github.com/tiffinbox/ordersync/internal/service/services/ordersvc"
)

type createOrderRequest struct {
	Items         []order.LineItem    `json:"items"`
	TotalAmount   float64             `json:"total_amount"`
	PaymentMethod order.PaymentMethod `json:"payment_method"`
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.service.Orders()); err != nil {
		slog.Error("Error sending orders response", "error", err)
	}
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Failed to decode request body", http.StatusBadRequest)
		slog.Error("Error decoding create order request", "error", err)

		return
	}

	orderID, err := h.service.CreateOrder(r.Context(), req.Items, req.TotalAmount, req.PaymentMethod)
	if err != nil {
		// Validation failures are the caller's fault; anything else is a
		// store fault.
		status := http.StatusInternalServerError
		if errors.Is(err, ordersvc.ErrNoItems) ||
			errors.Is(err, ordersvc.ErrInvalidPayment) ||
			errors.Is(err, ordersvc.ErrTotalMismatch) ||
			errors.Is(err, ordersvc.ErrInvalidItems) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		slog.Error("Error creating order", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(createOrderResponse{OrderID: orderID}); err != nil {
		slog.Error("Error sending create order response", "error", err)
	}
}

func (h *HTTPTransport) markReceived(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	if err := h.service.MarkReceived(r.Context(), orderID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, orderrepo.ErrOrderNotFound) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		slog.Error("Error marking order received", "order_id", orderID, "error", err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPTransport) refreshOrders(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RefreshOrders(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error refreshing orders", "error", err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
