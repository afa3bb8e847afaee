package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"github.com/tiffinbox/ordersync/internal/service/models/envelope"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
	"go.opentelemetry.io/otel"
)

// State is the subscriber connection lifecycle state.
type State string

const (
	StateConnecting State = "CONNECTING"
	StateSubscribed State = "SUBSCRIBED"
	StateError      State = "ERROR"
	StateTimedOut   State = "TIMED_OUT"
	StateClosed     State = "CLOSED"
)

// store is the resync surface of the durable order store.
type store interface {
	ActiveByCustomer(ctx context.Context, customerID string) ([]order.Order, error)
}

// broker is the broadcast-channel surface consumed by the subscriber.
type broker interface {
	SubscribeBroadcast(consumerTag string) (<-chan amqp.Delivery, error)
	CancelConsumer(consumerTag string) error
}

// applier receives reconciled state: the full resync baseline and streamed
// snapshots.
type applier interface {
	Replace(orders []order.Order)
	Apply(o order.Order)
}

// Subscriber maintains one client identity's live subscription to the
// broadcast channel, self-healing on failure. Every (re)connect runs a fresh
// resync before subscribing, which is the system's sole retry policy:
// unconditional, and safe because resync re-establishes ground truth while
// the reconciler's dedup eliminates replay artifacts.
type Subscriber struct {
	clientID       string
	store          store
	broker         broker
	applier        applier
	reconnectDelay time.Duration
	subscribeWait  time.Duration
	state          State
}

// New creates a subscriber scoped to one client identity.
func New(clientID string, st store, br broker, ap applier) *Subscriber {
	delayMillis := viper.GetInt("subscriber.reconnect_delay_ms")
	if delayMillis == 0 {
		delayMillis = 500
	}

	waitSeconds := viper.GetInt("subscriber.subscribe_timeout_seconds")
	if waitSeconds == 0 {
		waitSeconds = 10
	}

	return &Subscriber{
		clientID:       clientID,
		store:          st,
		broker:         br,
		applier:        ap,
		reconnectDelay: time.Duration(delayMillis) * time.Millisecond,
		subscribeWait:  time.Duration(waitSeconds) * time.Second,
	}
}

// Run drives the connection lifecycle until ctx is cancelled:
// CONNECTING -> SUBSCRIBED -> (ERROR | TIMED_OUT | CLOSED) -> CONNECTING.
func (s *Subscriber) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			s.setState(StateClosed)

			return nil
		}

		attempt++
		s.setState(StateConnecting)

		if err := s.Resync(ctx); err != nil {
			if ctx.Err() != nil {
				s.setState(StateClosed)

				return nil
			}
			slog.Error("Resync failed", "customer_id", s.clientID, "error", err)
			s.failover(ctx, StateError)

			continue
		}

		consumerTag := fmt.Sprintf("%s-%d", s.clientID, attempt)
		deliveries, err := s.subscribe(consumerTag)
		if err != nil {
			state := StateError
			if errors.Is(err, errSubscribeTimeout) {
				state = StateTimedOut
			}
			slog.Error("Broadcast subscription failed", "customer_id", s.clientID, "error", err)
			s.failover(ctx, state)

			continue
		}

		s.setState(StateSubscribed)

		if closed := s.consume(ctx, deliveries); closed {
			_ = s.broker.CancelConsumer(consumerTag)
			s.setState(StateClosed)

			return nil
		}

		// Channel ended underneath us: resubscribe from scratch.
		s.failover(ctx, StateClosed)
	}
}

// Resync pulls the identity's non-terminal orders from the store and installs
// them as the reconciler baseline.
func (s *Subscriber) Resync(ctx context.Context) error {
	orders, err := s.store.ActiveByCustomer(ctx, s.clientID)
	if err != nil {
		return fmt.Errorf("failed to fetch active orders: %w", err)
	}

	s.applier.Replace(orders)

	return nil
}

var errSubscribeTimeout = errors.New("broadcast subscribe timed out")

type subscribeResult struct {
	deliveries <-chan amqp.Delivery
	err        error
}

func (s *Subscriber) subscribe(consumerTag string) (<-chan amqp.Delivery, error) {
	results := make(chan subscribeResult, 1)
	go func() {
		deliveries, err := s.broker.SubscribeBroadcast(consumerTag)
		results <- subscribeResult{deliveries: deliveries, err: err}
	}()

	select {
	case res := <-results:
		return res.deliveries, res.err
	case <-time.After(s.subscribeWait):
		return nil, errSubscribeTimeout
	}
}

// consume dispatches deliveries until the channel dies or ctx is cancelled.
// Returns true on deliberate teardown, false when the channel ended and the
// caller should reconnect.
func (s *Subscriber) consume(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case delivery, ok := <-deliveries:
			if !ok {
				return false
			}
			s.handleDelivery(ctx, delivery)
		}
	}
}

func (s *Subscriber) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	_, span := otel.Tracer("subscriber").Start(ctx, "Subscriber.handleDelivery")
	defer span.End()

	var env envelope.RelayEnvelope
	if err := json.Unmarshal(delivery.Body, &env); err != nil {
		slog.Warn("Dropping undecodable envelope", "error", err)

		return
	}

	if err := env.Validate(); err != nil {
		slog.Warn("Dropping malformed envelope", "order_id", env.Order.ID, "error", err)

		return
	}

	if env.CustomerID != s.clientID {
		return
	}

	s.applier.Apply(env.Order)
}

func (s *Subscriber) failover(ctx context.Context, state State) {
	s.setState(state)

	select {
	case <-ctx.Done():
	case <-time.After(s.reconnectDelay):
	}
}

func (s *Subscriber) setState(state State) {
	if s.state == state {
		return
	}

	s.state = state
	slog.Info("Subscription state changed", "customer_id", s.clientID, "state", string(state))
}
