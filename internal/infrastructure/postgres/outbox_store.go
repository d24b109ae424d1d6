package postgres

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
)

// OutboxStore leases pending records with SKIP LOCKED so several relays can
// share the table without claiming the same row.
type OutboxStore struct {
	pool *pgxpool.Pool
}

var _ outbox.Store = (*OutboxStore)(nil)

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

func (s *OutboxStore) ClaimPending(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]outbox.Record, error) {
	rows, err := s.pool.Query(ctx, `UPDATE outbox SET leased_until = now() + ($3 * interval '1 millisecond')
		WHERE id IN (
			SELECT id FROM outbox
			WHERE dispatched_at IS NULL
			  AND parked_at IS NULL
			  AND attempts < $2
			  AND next_attempt_at <= now()
			  AND (leased_until IS NULL OR leased_until <= now())
			ORDER BY seq
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING seq, id, aggregate_id, kind, payload, attempts, last_error, created_at, next_attempt_at`,
		limit, maxAttempts, lease.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("outbox store: claim: %w", err)
	}

	type claimed struct {
		seq int64
		rec outbox.Record
	}
	all, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (claimed, error) {
		var c claimed
		err := row.Scan(&c.seq, &c.rec.ID, &c.rec.AggregateID, &c.rec.Kind, &c.rec.Payload,
			&c.rec.Attempts, &c.rec.LastError, &c.rec.CreatedAt, &c.rec.NextAttemptAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("outbox store: claim: %w", err)
	}

	slices.SortFunc(all, func(a, b claimed) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]outbox.Record, len(all))
	for i, c := range all {
		out[i] = c.rec
	}
	return out, nil
}

func (s *OutboxStore) MarkDispatched(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET dispatched_at = now(), leased_until = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("outbox store: mark dispatched: %w", err)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, reason string, nextAttempt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3, leased_until = NULL
		WHERE id = $1`, id, reason, nextAttempt)
	if err != nil {
		return fmt.Errorf("outbox store: mark failed: %w", err)
	}
	return nil
}

func (s *OutboxStore) Park(ctx context.Context, id string, reason string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox
		SET attempts = attempts + 1, last_error = $2, parked_at = now(), leased_until = NULL
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("outbox store: park: %w", err)
	}
	return nil
}
