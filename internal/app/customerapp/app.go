package customerapp

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/tiffinbox/ordersync/internal/dal/postgres"
	"github.com/tiffinbox/ordersync/internal/dal/rabbitmq"
	orderrepo "github.com/tiffinbox/ordersync/internal/dal/repositories/order/postgres"
	"github.com/tiffinbox/ordersync/internal/identity"
	"github.com/tiffinbox/ordersync/internal/otel"
	"github.com/tiffinbox/ordersync/internal/reconciler"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
	"github.com/tiffinbox/ordersync/internal/service/services/ordersvc"
	"github.com/tiffinbox/ordersync/internal/subscriber"
	httptransport "github.com/tiffinbox/ordersync/internal/transport/http"
	"golang.org/x/sync/errgroup"
)

// App represents one customer browsing context: a persisted pseudonymous
// identity, the broadcast subscription, the local reconciler and the customer
// HTTP surface.
type App struct {
	orderSvc       *ordersvc.OrderService
	transport      *httptransport.HTTPTransport
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	subscriber     *subscriber.Subscriber
	otelController *otel.OtelController
}

// MustNewApp creates a new customer application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel("customer-svc")

	postgresClient := postgres.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()

	identityPath := viper.GetString("client.identity_path")
	if identityPath == "" {
		identityPath = "./data/identity"
	}
	clientID, err := identity.Load(identityPath)
	if err != nil {
		panic(err)
	}
	slog.Info("Client identity loaded", "customer_id", clientID)

	rec := reconciler.New(clientID, reconciler.NotifierFunc(func(o order.Order) {
		slog.Info("Order ready for pickup", "order_number", o.OrderNumber, "order_id", o.ID)
	}))

	repo := orderrepo.NewOrderRepository(postgresClient)

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithOrderRepository(repo),
		ordersvc.WithReconciler(rec),
		ordersvc.WithClientID(clientID),
	)

	sub := subscriber.New(clientID, repo, rabbitClient, rec)

	transport := httptransport.NewHTTPTransport(orderSvc)
	transport.RegisterRoutes()

	return &App{
		orderSvc:       orderSvc,
		transport:      transport,
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		subscriber:     sub,
		otelController: otelController,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.subscriber.Run(groupCtx) })

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	<-stop
	slog.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.transport.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	cancel()
	if err := group.Wait(); err != nil {
		slog.Error("Subscriber error", "error", err)
	}

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Tracer provider shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}
