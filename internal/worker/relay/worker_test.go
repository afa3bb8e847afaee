package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/tiffinbox/ordersync/internal/changefeed"
	"github.com/tiffinbox/ordersync/internal/service/models/envelope"
	"github.com/tiffinbox/ordersync/internal/service/models/order"
)

type fakeElector struct {
	mu       sync.Mutex
	leader   bool
	rechecks int
}

func (e *fakeElector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.leader
}

func (e *fakeElector) Recheck() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rechecks++
}

func (e *fakeElector) recheckCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.rechecks
}

type fakePublisher struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (p *fakePublisher) PublishBroadcast(body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies = append(p.bodies, body)

	return nil
}

func (p *fakePublisher) published() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([][]byte(nil), p.bodies...)
}

type fakeMirror struct {
	mu     sync.Mutex
	events []changefeed.Event
}

func (m *fakeMirror) ApplyFeedEvent(event changefeed.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *fakeMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.events)
}

func makeEvent(eventType changefeed.EventType, customerID string) changefeed.Event {
	return changefeed.Event{
		Type: eventType,
		Order: order.Order{
			ID:         "order-1",
			CustomerID: customerID,
			Items:      []order.LineItem{{ID: "item-1", Name: "Veg Biryani", Price: 180, Quantity: 1}},
			Status:     order.StatusReady,
		},
	}
}

func runWorker(t *testing.T, el *fakeElector, pub *fakePublisher, mirror *fakeMirror, events []changefeed.Event) {
	t.Helper()

	ch := make(chan changefeed.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)

	w := NewWorker(ch, el, pub, mirror)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := w.Run(ctx); err != nil {
		t.Fatalf("worker run: %v", err)
	}
}

func TestRun_LeaderRelaysUpdates(t *testing.T) {
	el := &fakeElector{leader: true}
	pub := &fakePublisher{}
	mirror := &fakeMirror{}

	runWorker(t, el, pub, mirror, []changefeed.Event{
		makeEvent(changefeed.EventUpdate, "customer_1_aaaaaaaaa"),
	})

	bodies := pub.published()
	if len(bodies) != 1 {
		t.Fatalf("expected 1 relayed envelope, got %d", len(bodies))
	}

	var env envelope.RelayEnvelope
	if err := json.Unmarshal(bodies[0], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.CustomerID != "customer_1_aaaaaaaaa" || env.Order.ID != "order-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("relayed envelope fails validation: %v", err)
	}
}

func TestRun_NonLeaderDiscardsButMirrors(t *testing.T) {
	el := &fakeElector{leader: false}
	pub := &fakePublisher{}
	mirror := &fakeMirror{}

	runWorker(t, el, pub, mirror, []changefeed.Event{
		makeEvent(changefeed.EventUpdate, "customer_1_aaaaaaaaa"),
		makeEvent(changefeed.EventInsert, "customer_1_aaaaaaaaa"),
	})

	if got := pub.published(); len(got) != 0 {
		t.Fatalf("non-leader relayed %d envelopes", len(got))
	}
	if mirror.count() != 2 {
		t.Fatalf("mirror saw %d events, want 2", mirror.count())
	}
	if el.recheckCount() == 0 {
		t.Fatal("feed activity while not leader should poke a re-check")
	}
}

func TestRun_InsertsAndAnonymousUpdatesNotRelayed(t *testing.T) {
	el := &fakeElector{leader: true}
	pub := &fakePublisher{}
	mirror := &fakeMirror{}

	runWorker(t, el, pub, mirror, []changefeed.Event{
		makeEvent(changefeed.EventInsert, "customer_1_aaaaaaaaa"),
		makeEvent(changefeed.EventUpdate, ""),
		makeEvent(changefeed.EventDelete, "customer_1_aaaaaaaaa"),
	})

	if got := pub.published(); len(got) != 0 {
		t.Fatalf("expected no relayed envelopes, got %d", len(got))
	}
	if mirror.count() != 3 {
		t.Fatalf("mirror saw %d events, want 3", mirror.count())
	}
}
