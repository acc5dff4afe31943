//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"certregistry/internal/census/models"
	"certregistry/internal/census/store"
	"certregistry/pkg/platform/tx"
	"certregistry/pkg/testutil/containers"
)

type PostgresCensusSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *store.PostgresStore
	tx    *tx.SQLRunner
}

func TestPostgresCensusSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresCensusSuite))
}

func (s *PostgresCensusSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.pg.DB)
	s.tx = tx.NewSQLRunner(s.pg.DB, 0)
}

func (s *PostgresCensusSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
}

func key(grade int) models.BucketKey {
	return models.BucketKey{Slug: "2-shillings", Strike: "MS", Year: 1897, GradeNum: grade}
}

func (s *PostgresCensusSuite) TestRelativeAdjustments() {
	ctx := context.Background()
	s.Require().NoError(s.store.Increment(ctx, key(63)))
	s.Require().NoError(s.store.Increment(ctx, key(63)))

	ok, err := s.store.Decrement(ctx, key(63))
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.store.Decrement(ctx, key(63))
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.Decrement(ctx, key(63))
	s.Require().NoError(err)
	s.False(ok, "empty bucket must report underflow")

	all, err := s.store.All(ctx)
	s.Require().NoError(err)
	s.Empty(all, "zero buckets are pruned")
}

func (s *PostgresCensusSuite) TestConcurrentIncrementsAreNotLost() {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.tx.RunInTx(ctx, func(ctx context.Context) error {
				return s.store.Increment(ctx, key(64))
			}))
		}()
	}
	wg.Wait()

	rows, err := s.store.Population(ctx, key(0).Series())
	s.Require().NoError(err)
	s.Equal([]models.GradeCount{{GradeNum: 64, Count: 20}}, rows)
}

func (s *PostgresCensusSuite) TestReplaceAllInTransaction() {
	ctx := context.Background()
	s.Require().NoError(s.store.Increment(ctx, key(50)))

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.ReplaceAll(ctx, map[models.BucketKey]int{key(61): 2, key(66): 1})
	})
	s.Require().NoError(err)

	rows, err := s.store.Population(ctx, key(0).Series())
	s.Require().NoError(err)
	s.Equal([]models.GradeCount{{GradeNum: 61, Count: 2}, {GradeNum: 66, Count: 1}}, rows)
}
