package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tiffinbox/ordersync/internal/changefeed"
	"github.com/tiffinbox/ordersync/internal/service/models/envelope"
	"go.opentelemetry.io/otel"
)

// elector answers whether this observer instance currently holds relay
// leadership.
type elector interface {
	IsLeader() bool
	Recheck()
}

// publisher is the broadcast-channel publish surface.
type publisher interface {
	PublishBroadcast(body []byte) error
}

// mirror receives every feed event for the local admin view, independent of
// leadership.
type mirror interface {
	ApplyFeedEvent(event changefeed.Event)
}

// Worker translates change-feed events into relay envelopes on the broadcast
// channel while this instance holds leadership. Leadership gates only the
// outbound relay; the admin mirror observes everything.
type Worker struct {
	events  <-chan changefeed.Event
	elector elector
	pub     publisher
	mirror  mirror
}

// NewWorker creates a relay worker over the given feed events.
func NewWorker(events <-chan changefeed.Event, el elector, pub publisher, mirror mirror) *Worker {
	return &Worker{
		events:  events,
		elector: el,
		pub:     pub,
		mirror:  mirror,
	}
}

// Run processes feed events until ctx is cancelled or the feed closes.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("Relay worker started")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Relay worker shutting down")

			return nil
		case event, ok := <-w.events:
			if !ok {
				slog.Info("Change feed closed, relay worker stopping")

				return nil
			}
			w.processEvent(ctx, event)
		}
	}
}

func (w *Worker) processEvent(ctx context.Context, event changefeed.Event) {
	_, span := otel.Tracer("relay").Start(ctx, "Worker.processEvent")
	defer span.End()

	if w.mirror != nil {
		w.mirror.ApplyFeedEvent(event)
	}

	if !w.elector.IsLeader() {
		// Feed activity doubles as the opportunistic trigger to observe a
		// vacated slot.
		w.elector.Recheck()

		return
	}

	// Only updates carry status changes customers care about; creations reach
	// their creator through the post-create resync.
	if event.Type != changefeed.EventUpdate || event.Order.CustomerID == "" {
		return
	}

	env := envelope.New(event.Order)
	body, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to marshal relay envelope", "order_id", event.Order.ID, "error", err)

		return
	}

	// Fire-and-forget: no acknowledgment, no retry. Disconnected subscribers
	// miss it and catch up on their next resync.
	if err := w.pub.PublishBroadcast(body); err != nil {
		slog.Error("Failed to publish relay envelope", "order_id", event.Order.ID, "error", err)

		return
	}

	slog.Info("Relayed order update",
		"order_id", event.Order.ID,
		"customer_id", event.Order.CustomerID,
		"status", string(event.Order.Status),
	)
}
