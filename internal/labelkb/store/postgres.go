// Package store persists the label knowledge base.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"certregistry/internal/labelkb"
	"certregistry/internal/platform/postgres"
	txcontext "certregistry/pkg/platform/tx"
)

// PostgresStore keeps label entries in the label_entries table. It only
// stores rows; collision checks happen in labelkb.NewIndex before Upsert.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert writes entries keyed by their normalized key. Existing rows are
// overwritten in full.
func (s *PostgresStore) Upsert(ctx context.Context, entries []labelkb.Entry, now time.Time) error {
	query := `
		INSERT INTO label_entries (
			key, country, year, coin_name, grade_label, serial_format,
			addl1, addl2, addl3, aliases, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (key) DO UPDATE SET
			country = EXCLUDED.country,
			year = EXCLUDED.year,
			coin_name = EXCLUDED.coin_name,
			grade_label = EXCLUDED.grade_label,
			serial_format = EXCLUDED.serial_format,
			addl1 = EXCLUDED.addl1,
			addl2 = EXCLUDED.addl2,
			addl3 = EXCLUDED.addl3,
			aliases = EXCLUDED.aliases,
			updated_at = EXCLUDED.updated_at
	`
	q := txcontext.Pick(ctx, s.db)
	for _, e := range entries {
		aliases := e.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		_, err := q.ExecContext(ctx, query,
			labelkb.Normalize(e.Key),
			e.Country,
			e.Year,
			e.CoinName,
			e.GradeLabel,
			e.SerialFormat,
			e.Addl1,
			e.Addl2,
			e.Addl3,
			pq.Array(aliases),
			now,
		)
		if err != nil {
			return fmt.Errorf("upsert label %q: %w", e.Key, postgres.TranslateError(err))
		}
	}
	return nil
}

// LoadAll returns every stored entry ordered by key.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]labelkb.Entry, error) {
	query := `
		SELECT key, country, year, coin_name, grade_label, serial_format,
		       addl1, addl2, addl3, aliases
		FROM label_entries
		ORDER BY key
	`
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query label entries: %w", err)
	}
	defer rows.Close()

	var entries []labelkb.Entry
	for rows.Next() {
		var e labelkb.Entry
		if err := rows.Scan(
			&e.Key,
			&e.Country,
			&e.Year,
			&e.CoinName,
			&e.GradeLabel,
			&e.SerialFormat,
			&e.Addl1,
			&e.Addl2,
			&e.Addl3,
			pq.Array(&e.Aliases),
		); err != nil {
			return nil, fmt.Errorf("scan label entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate label entries: %w", err)
	}
	return entries, nil
}
