package httptransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tiffinbox/ordersync/internal/service/models/order"
	"github.com/tiffinbox/ordersync/internal/service/services/ordersvc"
)

type fakeService struct {
	createErr error
}

func (s *fakeService) Orders() []order.Order { return nil }

func (s *fakeService) CreateOrder(_ context.Context, _ []order.LineItem, _ float64, _ order.PaymentMethod) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}

	return "new-id", nil
}

func (s *fakeService) MarkReceived(_ context.Context, _ string) error { return nil }

func (s *fakeService) RefreshOrders(_ context.Context) error { return nil }

func newTestTransport(svc service) *HTTPTransport {
	transport := NewHTTPTransport(svc)
	transport.RegisterRoutes()

	return transport
}

func postOrder(t *testing.T, transport *HTTPTransport, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	transport.router.ServeHTTP(rec, req)

	return rec
}

const validBody = `{"items":[{"id":"item-1","name":"Thali","price":180,"quantity":1}],"total_amount":180,"payment_method":"cash"}`

func TestCreateOrderHandler_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		createErr  error
		body       string
		wantStatus int
	}{
		{"created", nil, validBody, http.StatusCreated},
		{"undecodable body", nil, "not json", http.StatusBadRequest},
		{"no items", ordersvc.ErrNoItems, validBody, http.StatusBadRequest},
		{"bad payment", ordersvc.ErrInvalidPayment, validBody, http.StatusBadRequest},
		{"total mismatch", ordersvc.ErrTotalMismatch, validBody, http.StatusBadRequest},
		{
			"bad line item",
			fmt.Errorf("%w: bad quantity for item Thali", ordersvc.ErrInvalidItems),
			validBody,
			http.StatusBadRequest,
		},
		{
			"store failure",
			fmt.Errorf("failed to create order: %w", errors.New("connection refused")),
			validBody,
			http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newTestTransport(&fakeService{createErr: tt.createErr})
			rec := postOrder(t, transport, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestCreateOrderHandler_ResponseBody(t *testing.T) {
	transport := newTestTransport(&fakeService{})
	rec := postOrder(t, transport, validBody)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if got := rec.Body.String(); !strings.Contains(got, `"order_id":"new-id"`) {
		t.Fatalf("unexpected response body: %s", got)
	}
}
