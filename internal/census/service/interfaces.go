package service

import (
	"context"

	"certregistry/internal/census/models"
)

// Store persists population buckets.
type Store interface {
	Increment(ctx context.Context, key models.BucketKey) error
	// Decrement reports false when the bucket was already empty.
	Decrement(ctx context.Context, key models.BucketKey) (bool, error)
	Population(ctx context.Context, series models.SeriesKey) ([]models.GradeCount, error)
	All(ctx context.Context) (map[models.BucketKey]int, error)
	ReplaceAll(ctx context.Context, counts map[models.BucketKey]int) error
}

// Cache holds population reports outside the database. Failures are never
// fatal to a read.
type Cache interface {
	Get(ctx context.Context, series models.SeriesKey) ([]models.GradeCount, bool, error)
	// Generation must be read before the store so Set can refuse rows that
	// an invalidation has overtaken.
	Generation(ctx context.Context, series models.SeriesKey) (int64, error)
	Set(ctx context.Context, series models.SeriesKey, gen int64, rows []models.GradeCount) (bool, error)
	Invalidate(ctx context.Context, series ...models.SeriesKey) error
	InvalidateAll(ctx context.Context) error
}

// BucketSource counts the certificates that should be in each bucket.
type BucketSource interface {
	CountBuckets(ctx context.Context) (map[models.BucketKey]int, error)
}
