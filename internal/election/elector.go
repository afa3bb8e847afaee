package election

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Slot is the shared, crash-tolerant coordination primitive holding the
// identity of the currently elected relay leader. Backed by any shared
// key-value primitive with read-your-writes consistency: a single-row table
// with conditional update, or an in-memory arbiter.
type Slot interface {
	// TryClaim atomically writes instanceID into the slot when it is vacant
	// and reports whether instanceID holds the slot afterwards. A claim
	// against a held slot is a no-op.
	TryClaim(ctx context.Context, instanceID string) (bool, error)
	// Renew extends the holder's claim and reports whether instanceID still
	// holds the slot.
	Renew(ctx context.Context, instanceID string) (bool, error)
	// Release clears the slot iff instanceID currently holds it.
	Release(ctx context.Context, instanceID string) error
	// Holder returns the current holder's instance id, or "" when vacant.
	Holder(ctx context.Context) (string, error)
}

// Elector runs the leader-election loop for one observer instance. At most
// one instance per slot acts as relay source at a time; a lost race costs at
// worst a duplicated relay message, absorbed by the idempotent reconciler.
type Elector struct {
	slot       Slot
	instanceID string
	renewEvery time.Duration
	leader     atomic.Bool
	recheck    chan struct{}
}

// NewElector creates an elector with a fresh instance identity.
func NewElector(slot Slot) *Elector {
	renewSeconds := viper.GetInt("election.renew_interval_seconds")
	if renewSeconds == 0 {
		renewSeconds = 5
	}

	return &Elector{
		slot:       slot,
		instanceID: uuid.NewString(),
		renewEvery: time.Duration(renewSeconds) * time.Second,
		recheck:    make(chan struct{}, 1),
	}
}

// InstanceID returns this instance's identity.
func (e *Elector) InstanceID() string {
	return e.instanceID
}

// IsLeader reports whether this instance held the slot at the last claim or
// renewal. Cheap; safe to call on every relayed event.
func (e *Elector) IsLeader() bool {
	return e.leader.Load()
}

// Recheck requests an immediate claim attempt. Non-blocking; coalesced with
// any pending request. Called opportunistically when external activity
// suggests the slot may have been vacated.
func (e *Elector) Recheck() {
	select {
	case e.recheck <- struct{}{}:
	default:
	}
}

// Run claims the slot, then keeps renewing while leader and re-claiming while
// not, until ctx is cancelled. On cancellation a held slot is released on a
// best-effort basis; abrupt termination leaves the claim to lapse with its
// lease.
func (e *Elector) Run(ctx context.Context) error {
	e.claim(ctx)

	ticker := time.NewTicker(e.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.release()

			return nil
		case <-ticker.C:
		case <-e.recheck:
		}

		if e.leader.Load() {
			e.renew(ctx)
		} else {
			e.claim(ctx)
		}
	}
}

func (e *Elector) claim(ctx context.Context) {
	claimed, err := e.slot.TryClaim(ctx, e.instanceID)
	if err != nil {
		slog.Error("Leadership claim failed", "instance_id", e.instanceID, "error", err)

		return
	}

	if claimed && !e.leader.Swap(true) {
		slog.Info("Leadership acquired", "instance_id", e.instanceID)
	}
	if !claimed {
		e.leader.Store(false)
	}
}

func (e *Elector) renew(ctx context.Context) {
	renewed, err := e.slot.Renew(ctx, e.instanceID)
	if err != nil {
		slog.Error("Leadership renewal failed", "instance_id", e.instanceID, "error", err)

		return
	}

	if !renewed {
		// Superseded: another instance claimed an expired lease.
		if e.leader.Swap(false) {
			slog.Warn("Leadership lost", "instance_id", e.instanceID)
		}
		e.claim(ctx)
	}
}

func (e *Elector) release() {
	if !e.leader.Swap(false) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := e.slot.Release(ctx, e.instanceID); err != nil {
		slog.Error("Leadership release failed", "instance_id", e.instanceID, "error", err)

		return
	}

	slog.Info("Leadership released", "instance_id", e.instanceID)
}
