package relayapp

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tiffinbox/ordersync/internal/changefeed"
	"github.com/tiffinbox/ordersync/internal/dal/postgres"
	"github.com/tiffinbox/ordersync/internal/dal/rabbitmq"
	leadershiprepo "github.com/tiffinbox/ordersync/internal/dal/repositories/leadership/postgres"
	orderrepo "github.com/tiffinbox/ordersync/internal/dal/repositories/order/postgres"
	"github.com/tiffinbox/ordersync/internal/election"
	"github.com/tiffinbox/ordersync/internal/otel"
	"github.com/tiffinbox/ordersync/internal/service/services/adminsvc"
	admintransport "github.com/tiffinbox/ordersync/internal/transport/admin"
	relayworker "github.com/tiffinbox/ordersync/internal/worker/relay"
	"golang.org/x/sync/errgroup"
)

// App represents the relay (admin-side observer) application: leader
// election, change-feed consumption, leadership-gated relay and the admin
// HTTP surface.
type App struct {
	adminSvc       *adminsvc.AdminService
	transport      *admintransport.AdminTransport
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	elector        *election.Elector
	feed           *changefeed.Feed
	worker         *relayworker.Worker
	otelController *otel.OtelController
}

// MustNewApp creates a new relay application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel("relay-svc")

	postgresClient := postgres.MustNewClient()

	rabbitClient := rabbitmq.MustNewClient()
	if err := rabbitClient.DeclareBroadcast(); err != nil {
		panic(err)
	}

	adminSvc := adminsvc.MustNewAdminService(
		adminsvc.WithOrderRepository(orderrepo.NewOrderRepository(postgresClient)),
	)

	elector := election.NewElector(leadershiprepo.NewLeadershipRepository(postgresClient))
	feed := changefeed.New(postgresClient)
	worker := relayworker.NewWorker(feed.Events(), elector, rabbitClient, adminSvc)

	transport := admintransport.NewAdminTransport(adminSvc, elector)
	transport.RegisterRoutes()

	return &App{
		adminSvc:       adminSvc,
		transport:      transport,
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		elector:        elector,
		feed:           feed,
		worker:         worker,
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

	if err := a.adminSvc.Resync(ctx); err != nil {
		slog.Error("Initial dashboard resync failed", "error", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.elector.Run(groupCtx) })
	group.Go(func() error { return a.feed.Run(groupCtx) })
	group.Go(func() error { return a.worker.Run(groupCtx) })

	go func() {
		slog.Info("Starting admin HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("Admin HTTP server error", "error", err)
		}
	}()

	<-stop
	slog.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.transport.Shutdown(shutdownCtx); err != nil {
		slog.Error("Admin HTTP server shutdown error", "error", err)
	} else {
		slog.Info("Admin HTTP server stopped gracefully")
	}

	cancel()
	if err := group.Wait(); err != nil {
		slog.Error("Background worker error", "error", err)
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
