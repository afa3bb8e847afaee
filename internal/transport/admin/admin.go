package admintransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
	"github.com/tiffinbox/ordersync/pkg/http/middleware/trace"
	"github.com/tiffinbox/ordersync/pkg/logger"
)

// service is the admin-facing order surface.
type service interface {
	Active() []order.Order
	Completed() []order.Order
	CompletedByDay(ctx context.Context, day time.Time) ([]order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status order.Status) error
	CreateWalkInOrder(ctx context.Context, items []order.LineItem) (order.Order, error)
}

// elector exposes leadership introspection for the dashboard.
type elector interface {
	InstanceID() string
	IsLeader() bool
}

type AdminTransport struct {
	server  *http.Server
	router  *chi.Mux
	service service
	elector elector
}

func NewAdminTransport(service service, elector elector) *AdminTransport {
	router := newRouter()
	server := newServer(router)
	return &AdminTransport{
		server:  server,
		router:  router,
		service: service,
		elector: elector,
	}
}

func (t *AdminTransport) Run() error {
	return t.server.ListenAndServe()
}

func (t *AdminTransport) Shutdown(ctx context.Context) error {
	return t.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the AdminTransport.
func (t *AdminTransport) RegisterRoutes() {
	t.router.Route("/api/admin", func(r chi.Router) {
		r.Get("/orders", t.listActive)
		r.Get("/orders/completed", t.listCompleted)
		r.Post("/orders", t.createWalkInOrder)
		r.Patch("/orders/{orderID}/status", t.updateStatus)
		r.Get("/leader", t.leaderInfo)
	})
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(trace.NewTraceMiddleware("relay-svc"))
	router.Use(logger.NewLoggerMiddleware(slog.Default()))

	c := cors.New(cors.Options{
		AllowedOrigins: viper.GetStringSlice("server.admin.cors.allowed_origins"),
		AllowedMethods: viper.GetStringSlice("server.admin.cors.allowed_methods"),
		AllowedHeaders: viper.GetStringSlice("server.admin.cors.allowed_headers"),
		MaxAge:         viper.GetInt("server.admin.cors.max_age"),
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.admin.port"),
		Handler: router,
	}
}
