package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/viper"
	"github.com/tiffinbox/ordersync/internal/dal/postgres"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
)

// EventType classifies a row-level change on the orders table.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one ordered change-feed entry: the kind of mutation and the full
// row snapshot after it. Snapshots are complete and self-consistent; there
// are no partial updates.
type Event struct {
	Type  EventType   `json:"event_type"`
	Order order.Order `json:"row"`
}

// Feed consumes the store's order change feed, a trigger-driven
// LISTEN/NOTIFY channel, and delivers typed events in arrival order.
type Feed struct {
	client  *postgres.Client
	channel string
	events  chan Event
}

// New creates a feed over the configured notification channel.
func New(client *postgres.Client) *Feed {
	channel := viper.GetString("changefeed.channel")
	if channel == "" {
		channel = "orders_feed"
	}

	return &Feed{
		client:  client,
		channel: channel,
		events:  make(chan Event, 64),
	}
}

// Events returns the stream of decoded change events. Closed when Run
// returns.
func (f *Feed) Events() <-chan Event {
	return f.events
}

// Run listens for notifications until ctx is cancelled, reconnecting on
// listen errors. Undecodable payloads are logged and skipped.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.events)

	for {
		if err := f.listen(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}

			slog.Error("Change feed listener failed, reconnecting", "channel", f.channel, "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (f *Feed) listen(ctx context.Context) error {
	poolConn, err := f.client.Pool().Acquire(ctx)
	if err != nil {
		return err
	}
	defer poolConn.Release()

	conn := poolConn.Conn()
	if _, err := conn.Exec(ctx, "LISTEN "+f.channel); err != nil {
		return err
	}

	slog.Info("Change feed listening", "channel", f.channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var event Event
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			slog.Error("Change feed payload undecodable", "channel", f.channel, "error", err)

			continue
		}

		select {
		case f.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
