package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"certregistry/internal/events"
	txcontext "certregistry/pkg/platform/tx"
)

// PostgresStore implements the transactional outbox. Append joins the
// caller's transaction; the relay reads and marks outside of it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e *events.Entry) error {
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		e.ID,
		e.AggregateType,
		e.AggregateID,
		e.EventType,
		e.Payload,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Claim leases a batch in one statement. SKIP LOCKED keeps two relays
// claiming at the same moment off each other's rows; the lease keeps them
// off once the claiming transaction has committed.
func (s *PostgresStore) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*events.Entry, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		UPDATE outbox SET claimed_until = $3
		WHERE seq IN (
			SELECT seq FROM outbox
			WHERE published_at IS NULL
			  AND (claimed_until IS NULL OR claimed_until <= $2)
			ORDER BY seq
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING seq, id, aggregate_type, aggregate_id, event_type, payload, created_at, claimed_until
	`, limit, now, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var out []*events.Entry
	for rows.Next() {
		var (
			e     events.Entry
			until time.Time
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &until); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.ClaimedUntil = &until
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *PostgresStore) Release(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE outbox SET claimed_until = NULL
		WHERE id = ANY($1::uuid[]) AND published_at IS NULL
	`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return fmt.Errorf("release outbox claim: %w", err)
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return strs
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE outbox SET published_at = $2, claimed_until = NULL
		WHERE id = ANY($1::uuid[]) AND published_at IS NULL
	`, pq.Array(uuidStrings(ids)), at)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountUnpublished(ctx context.Context) (int, error) {
	var n int
	err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}
