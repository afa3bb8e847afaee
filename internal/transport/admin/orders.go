package admintransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	orderrepo "github.com/tiffinbox/ordersync/internal/dal/repositories/order/postgres"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
	"github.com/tiffinbox/ordersync/internal/service/services/adminsvc"
)

type updateStatusRequest struct {
	Status order.Status `json:"status"`
}

type createWalkInRequest struct {
	Items []order.LineItem `json:"items"`
}

type leaderInfoResponse struct {
	InstanceID string `json:"instance_id"`
	IsLeader   bool   `json:"is_leader"`
}

func (t *AdminTransport) listActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, t.service.Active())
}

func (t *AdminTransport) listCompleted(w http.ResponseWriter, r *http.Request) {
	if date := r.URL.Query().Get("date"); date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)

			return
		}

		completed, err := t.service.CompletedByDay(r.Context(), day)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			slog.Error("Error listing completed orders", "error", err)

			return
		}

		writeJSON(w, completed)

		return
	}

	writeJSON(w, t.service.Completed())
}

func (t *AdminTransport) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Failed to decode request body", http.StatusBadRequest)

		return
	}

	if err := t.service.UpdateStatus(r.Context(), orderID, req.Status); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, adminsvc.ErrInvalidStatus):
			status = http.StatusBadRequest
		case errors.Is(err, orderrepo.ErrOrderNotFound):
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		slog.Error("Error updating order status", "order_id", orderID, "error", err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (t *AdminTransport) createWalkInOrder(w http.ResponseWriter, r *http.Request) {
	var req createWalkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Failed to decode request body", http.StatusBadRequest)

		return
	}

	created, err := t.service.CreateWalkInOrder(r.Context(), req.Items)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error creating walk-in order", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(created); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}

func (t *AdminTransport) leaderInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, leaderInfoResponse{
		InstanceID: t.elector.InstanceID(),
		IsLeader:   t.elector.IsLeader(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}
