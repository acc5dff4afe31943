package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"certregistry/internal/census/models"
	txcontext "certregistry/pkg/platform/tx"
)

// PostgresStore keeps buckets in population_buckets. Every adjustment is a
// relative UPDATE so concurrent writers on one bucket never lose counts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Increment(ctx context.Context, key models.BucketKey) error {
	q := txcontext.Pick(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO population_buckets (denomination_slug, strike, year, grade_num, count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (denomination_slug, strike, year, grade_num)
		DO UPDATE SET count = population_buckets.count + 1
	`, key.Slug, key.Strike, key.Year, key.GradeNum)
	if err != nil {
		return fmt.Errorf("increment bucket %s: %w", key, err)
	}
	return nil
}

// Decrement reports false when the bucket was already empty. A bucket that
// reaches zero is deleted.
func (s *PostgresStore) Decrement(ctx context.Context, key models.BucketKey) (bool, error) {
	q := txcontext.Pick(ctx, s.db)
	var remaining int
	err := q.QueryRowContext(ctx, `
		UPDATE population_buckets SET count = count - 1
		WHERE denomination_slug = $1 AND strike = $2 AND year = $3 AND grade_num = $4 AND count > 0
		RETURNING count
	`, key.Slug, key.Strike, key.Year, key.GradeNum).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("decrement bucket %s: %w", key, err)
	}
	if remaining == 0 {
		_, err := q.ExecContext(ctx, `
			DELETE FROM population_buckets
			WHERE denomination_slug = $1 AND strike = $2 AND year = $3 AND grade_num = $4 AND count = 0
		`, key.Slug, key.Strike, key.Year, key.GradeNum)
		if err != nil {
			return false, fmt.Errorf("prune bucket %s: %w", key, err)
		}
	}
	return true, nil
}

func (s *PostgresStore) Population(ctx context.Context, series models.SeriesKey) ([]models.GradeCount, error) {
	q := txcontext.Pick(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT grade_num, count FROM population_buckets
		WHERE denomination_slug = $1 AND strike = $2 AND year = $3 AND count > 0
		ORDER BY grade_num
	`, series.Slug, series.Strike, series.Year)
	if err != nil {
		return nil, fmt.Errorf("query population %s: %w", series, err)
	}
	defer rows.Close()

	out := []models.GradeCount{}
	for rows.Next() {
		var gc models.GradeCount
		if err := rows.Scan(&gc.GradeNum, &gc.Count); err != nil {
			return nil, fmt.Errorf("scan population row: %w", err)
		}
		out = append(out, gc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) All(ctx context.Context) (map[models.BucketKey]int, error) {
	q := txcontext.Pick(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT denomination_slug, strike, year, grade_num, count FROM population_buckets
	`)
	if err != nil {
		return nil, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()

	out := make(map[models.BucketKey]int)
	for rows.Next() {
		var k models.BucketKey
		var n int
		if err := rows.Scan(&k.Slug, &k.Strike, &k.Year, &k.GradeNum, &n); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out[k] = n
	}
	return out, rows.Err()
}

// ReplaceAll rewrites the table. Run it inside a transaction.
func (s *PostgresStore) ReplaceAll(ctx context.Context, counts map[models.BucketKey]int) error {
	q := txcontext.Pick(ctx, s.db)
	if _, err := q.ExecContext(ctx, `DELETE FROM population_buckets`); err != nil {
		return fmt.Errorf("clear buckets: %w", err)
	}
	for k, n := range counts {
		if n <= 0 {
			continue
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO population_buckets (denomination_slug, strike, year, grade_num, count)
			VALUES ($1, $2, $3, $4, $5)
		`, k.Slug, k.Strike, k.Year, k.GradeNum, n)
		if err != nil {
			return fmt.Errorf("insert bucket %s: %w", k, err)
		}
	}
	return nil
}
