package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/viper"
	"github.com/tiffinbox/ordersync/internal/dal/postgres"
)

const slotTable = "leadership_slot"

// LeadershipRepository backs the election slot with a single Postgres row per
// logical channel, claimed by conditional insert/update. Claims carry a lease:
// a holder that stops renewing is superseded once its lease expires, bounding
// failover after a crash.
type LeadershipRepository struct {
	client  *postgres.Client
	channel string
	ttl     time.Duration
}

// NewLeadershipRepository creates a new leadership slot repository.
func NewLeadershipRepository(client *postgres.Client) *LeadershipRepository {
	channel := viper.GetString("election.channel")
	if channel == "" {
		channel = "orders-relay"
	}

	ttlSeconds := viper.GetInt("election.lease_ttl_seconds")
	if ttlSeconds == 0 {
		ttlSeconds = 15
	}

	return &LeadershipRepository{
		client:  client,
		channel: channel,
		ttl:     time.Duration(ttlSeconds) * time.Second,
	}
}

// TryClaim writes instanceID into the slot when the row is absent, expired,
// or already held by this instance. Reports whether instanceID holds the slot
// afterwards.
func (r *LeadershipRepository) TryClaim(ctx context.Context, instanceID string) (bool, error) {
	query, args, err := sq.Insert(slotTable).
		Columns("channel", "holder_id", "claimed_at", "expires_at").
		Values(r.channel, instanceID, sq.Expr("now()"), sq.Expr(fmt.Sprintf("now() + interval '%d seconds'", int(r.ttl.Seconds())))).
		Suffix(`ON CONFLICT (channel) DO UPDATE
			SET holder_id = EXCLUDED.holder_id,
			    claimed_at = EXCLUDED.claimed_at,
			    expires_at = EXCLUDED.expires_at
			WHERE leadership_slot.expires_at < now()
			   OR leadership_slot.holder_id = EXCLUDED.holder_id`).
		Suffix("RETURNING holder_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build claim query: %w", err)
	}

	var holder string
	err = r.client.Pool().QueryRow(ctx, query, args...).Scan(&holder)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict with a live holder: the upsert matched nothing.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim leadership slot: %w", err)
	}

	return holder == instanceID, nil
}

// Renew extends the lease iff instanceID still holds the slot.
func (r *LeadershipRepository) Renew(ctx context.Context, instanceID string) (bool, error) {
	query, args, err := sq.Update(slotTable).
		Set("expires_at", sq.Expr(fmt.Sprintf("now() + interval '%d seconds'", int(r.ttl.Seconds())))).
		Where(sq.Eq{"channel": r.channel}).
		Where(sq.Eq{"holder_id": instanceID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build renew query: %w", err)
	}

	tag, err := r.client.Pool().Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to renew leadership lease: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Release clears the slot iff instanceID currently holds it. Called on
// graceful shutdown only; a crashed holder's claim lapses with its lease.
func (r *LeadershipRepository) Release(ctx context.Context, instanceID string) error {
	query, args, err := sq.Delete(slotTable).
		Where(sq.Eq{"channel": r.channel}).
		Where(sq.Eq{"holder_id": instanceID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build release query: %w", err)
	}

	if _, err := r.client.Pool().Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to release leadership slot: %w", err)
	}

	return nil
}

// Holder returns the live holder's instance id, or "" when the slot is vacant
// or its lease has expired.
func (r *LeadershipRepository) Holder(ctx context.Context) (string, error) {
	query, args, err := sq.Select("holder_id").
		From(slotTable).
		Where(sq.Eq{"channel": r.channel}).
		Where(sq.Expr("expires_at >= now()")).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build holder query: %w", err)
	}

	var holder string
	err = r.client.Pool().QueryRow(ctx, query, args...).Scan(&holder)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read leadership slot: %w", err)
	}

	return holder, nil
}
