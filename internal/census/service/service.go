// Package service maintains population buckets as certificates are created,
// regraded and revoked, and answers population and standing queries.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"certregistry/internal/census/models"
	"certregistry/internal/coin"
	"certregistry/internal/platform/metrics"
	dErrors "certregistry/pkg/domain-errors"
	"certregistry/pkg/platform/tx"
	"certregistry/pkg/requestcontext"
)

type Service struct {
	store   Store
	tx      tx.Runner
	cache   Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache enables the population read-through cache.
func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func New(store Store, runner tx.Runner, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("census store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	svc := &Service{
		store:  store,
		tx:     runner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// OnCertCreated counts a new certificate. Call it inside the transaction
// that inserted the certificate.
func (s *Service) OnCertCreated(ctx context.Context, key models.BucketKey) error {
	if err := s.store.Increment(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update population")
	}
	return nil
}

// OnGradeRevised moves one certificate between buckets.
func (s *Service) OnGradeRevised(ctx context.Context, oldKey, newKey models.BucketKey) error {
	if oldKey == newKey {
		return nil
	}
	if err := s.decrement(ctx, oldKey, "grade_revised"); err != nil {
		return err
	}
	return s.OnCertCreated(ctx, newKey)
}

// OnCertRevoked removes a certificate from its bucket. An empty bucket is
// left at zero and reported as an anomaly, never as an error.
func (s *Service) OnCertRevoked(ctx context.Context, key models.BucketKey) error {
	return s.decrement(ctx, key, "revoked")
}

// OnCertSuperseded removes a reslabbed certificate from its bucket.
func (s *Service) OnCertSuperseded(ctx context.Context, key models.BucketKey) error {
	return s.decrement(ctx, key, "superseded")
}

func (s *Service) decrement(ctx context.Context, key models.BucketKey, cause string) error {
	ok, err := s.store.Decrement(ctx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update population")
	}
	if !ok {
		s.logger.WarnContext(ctx, "population decrement on empty bucket",
			"integrity_violation", true,
			"bucket", key.String(),
			"cause", cause,
			"request_id", requestcontext.RequestID(ctx),
		)
		if s.metrics != nil {
			s.metrics.IncrementCensusAnomaly()
		}
	}
	return nil
}

// Invalidate drops cached reports for the series touched by keys. Call it
// after the transaction commits; failures only shorten cache life and are
// logged.
func (s *Service) Invalidate(ctx context.Context, keys ...models.BucketKey) {
	if s.cache == nil || len(keys) == 0 {
		return
	}
	seen := make(map[models.SeriesKey]struct{}, len(keys))
	series := make([]models.SeriesKey, 0, len(keys))
	for _, k := range keys {
		sk := k.Series()
		if _, dup := seen[sk]; dup {
			continue
		}
		seen[sk] = struct{}{}
		series = append(series, sk)
	}
	if err := s.cache.Invalidate(ctx, series...); err != nil {
		s.logger.WarnContext(ctx, "population cache invalidation failed", "error", err)
	}
}

// Population returns the non-empty buckets of a series in ascending grade.
func (s *Service) Population(ctx context.Context, series models.SeriesKey) ([]models.GradeCount, error) {
	series.Slug = strings.TrimSpace(series.Slug)
	series.Strike = strings.ToUpper(strings.TrimSpace(series.Strike))
	if series.Slug == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "denomination slug is required")
	}
	if !coin.ValidStrike(series.Strike) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown strike %q", series.Strike)
	}
	if series.Year <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "year must be positive")
	}
	defer s.observe("census_population", time.Now())

	cacheable := false
	var gen int64
	if s.cache != nil {
		rows, hit, err := s.cache.Get(ctx, series)
		switch {
		case err != nil:
			s.cacheLookup("error")
			s.logger.WarnContext(ctx, "population cache read failed", "error", err, "series", series.String())
		case hit:
			s.cacheLookup("hit")
			return rows, nil
		default:
			s.cacheLookup("miss")
			if gen, err = s.cache.Generation(ctx, series); err != nil {
				s.logger.WarnContext(ctx, "population cache generation read failed", "error", err, "series", series.String())
			} else {
				cacheable = true
			}
		}
	}

	rows, err := s.store.Population(ctx, series)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read population")
	}
	if cacheable {
		stored, err := s.cache.Set(ctx, series, gen, rows)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "population cache write failed", "error", err, "series", series.String())
		case !stored:
			s.logger.DebugContext(ctx, "population changed during read, not cached", "series", series.String())
		}
	}
	return rows, nil
}

// Standing places a counted certificate within its series.
func (s *Service) Standing(ctx context.Context, key models.BucketKey) (models.Standing, error) {
	rows, err := s.Population(ctx, key.Series())
	if err != nil {
		return models.Standing{}, err
	}
	return models.NewStanding(key, rows), nil
}

// Rebuild replaces every bucket with counts recomputed from src in one
// transaction. It is a repair tool; steady-state maintenance is incremental.
func (s *Service) Rebuild(ctx context.Context, src BucketSource) (int, error) {
	defer s.observe("census_rebuild", time.Now())
	var buckets int
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		counts, err := src.CountBuckets(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count certificates")
		}
		if err := s.store.ReplaceAll(ctx, counts); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to replace population")
		}
		buckets = len(counts)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			s.logger.WarnContext(ctx, "population cache flush failed", "error", err)
		}
	}
	s.logger.InfoContext(ctx, "census rebuilt",
		"log_type", "audit",
		"event", "census_rebuilt",
		"buckets", buckets,
		"actor", requestcontext.Actor(ctx),
	)
	return buckets, nil
}

// Drift compares stored buckets against src without changing anything.
// Keys map to stored minus expected.
func (s *Service) Drift(ctx context.Context, src BucketSource) (map[models.BucketKey]int, error) {
	expected, err := src.CountBuckets(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count certificates")
	}
	stored, err := s.store.All(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read population")
	}
	drift := make(map[models.BucketKey]int)
	for k, n := range stored {
		if d := n - expected[k]; d != 0 {
			drift[k] = d
		}
	}
	for k, n := range expected {
		if _, ok := stored[k]; !ok && n != 0 {
			drift[k] = -n
		}
	}
	return drift, nil
}

func (s *Service) cacheLookup(result string) {
	if s.metrics != nil {
		s.metrics.IncrementCacheLookup(result)
	}
}

func (s *Service) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, start)
	}
}
