package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"certregistry/internal/census/models"
)

type RedisCacheSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	cache *RedisCache
	ctx   context.Context
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	s.cache = NewRedisCache(client, time.Minute)
	s.ctx = context.Background()
}

var pond = models.SeriesKey{Slug: "1-pond", Strike: "MS", Year: 1892}

func (s *RedisCacheSuite) set(series models.SeriesKey, rows []models.GradeCount) {
	gen, err := s.cache.Generation(s.ctx, series)
	s.Require().NoError(err)
	stored, err := s.cache.Set(s.ctx, series, gen, rows)
	s.Require().NoError(err)
	s.Require().True(stored)
}

func (s *RedisCacheSuite) TestRoundTrip() {
	rows := []models.GradeCount{{GradeNum: 62, Count: 3}, {GradeNum: 65, Count: 1}}
	s.set(pond, rows)

	got, ok, err := s.cache.Get(s.ctx, pond)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(rows, got)
	s.True(s.mr.Exists("census:pop:1-pond/MS/1892"))
}

func (s *RedisCacheSuite) TestMissAndExpiry() {
	_, ok, err := s.cache.Get(s.ctx, pond)
	s.Require().NoError(err)
	s.False(ok)

	s.set(pond, []models.GradeCount{{GradeNum: 60, Count: 1}})
	s.mr.FastForward(2 * time.Minute)
	_, ok, err = s.cache.Get(s.ctx, pond)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisCacheSuite) TestInvalidate() {
	other := models.SeriesKey{Slug: "1-pond", Strike: "MS", Year: 1893}
	s.set(pond, []models.GradeCount{})
	s.set(other, []models.GradeCount{})

	s.Require().NoError(s.cache.Invalidate(s.ctx, pond))
	_, ok, _ := s.cache.Get(s.ctx, pond)
	s.False(ok)
	_, ok, _ = s.cache.Get(s.ctx, other)
	s.True(ok)

	s.Require().NoError(s.cache.InvalidateAll(s.ctx))
	_, ok, _ = s.cache.Get(s.ctx, other)
	s.False(ok)
	s.NoError(s.cache.InvalidateAll(s.ctx), "nothing left to delete")
}

func (s *RedisCacheSuite) TestSetRefusesRowsOvertakenByInvalidate() {
	other := models.SeriesKey{Slug: "1-pond", Strike: "MS", Year: 1893}
	gen, err := s.cache.Generation(s.ctx, pond)
	s.Require().NoError(err)

	s.Require().NoError(s.cache.Invalidate(s.ctx, other))
	stored, err := s.cache.Set(s.ctx, pond, gen, []models.GradeCount{{GradeNum: 65, Count: 1}})
	s.Require().NoError(err)
	s.True(stored, "another series changing does not matter")

	gen, err = s.cache.Generation(s.ctx, pond)
	s.Require().NoError(err)
	s.Require().NoError(s.cache.Invalidate(s.ctx, pond))
	stored, err = s.cache.Set(s.ctx, pond, gen, []models.GradeCount{{GradeNum: 65, Count: 1}})
	s.Require().NoError(err)
	s.False(stored)
	_, ok, err := s.cache.Get(s.ctx, pond)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisCacheSuite) TestSetRefusesRowsOvertakenByInvalidateAll() {
	gen, err := s.cache.Generation(s.ctx, pond)
	s.Require().NoError(err)
	s.Require().NoError(s.cache.InvalidateAll(s.ctx))

	stored, err := s.cache.Set(s.ctx, pond, gen, []models.GradeCount{{GradeNum: 65, Count: 1}})
	s.Require().NoError(err)
	s.False(stored)
	s.False(s.mr.Exists("census:pop:1-pond/MS/1892"))
}

func (s *RedisCacheSuite) TestCorruptEntry() {
	s.Require().NoError(s.mr.Set("census:pop:1-pond/MS/1892", "not json"))
	_, _, err := s.cache.Get(s.ctx, pond)
	s.Error(err)
}
