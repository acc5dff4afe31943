//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certregistry/internal/events"
	"certregistry/pkg/platform/tx"
	"certregistry/pkg/testutil/containers"
)

type PostgresOutboxSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	tx    *tx.SQLRunner
}

func TestPostgresOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresOutboxSuite))
}

func (s *PostgresOutboxSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.tx = tx.NewSQLRunner(s.pg.DB, 0)
}

func (s *PostgresOutboxSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
}

func (s *PostgresOutboxSuite) TestClaimReleaseAndMark() {
	ctx := context.Background()
	a, b := entry(), entry()
	s.Require().NoError(s.store.Append(ctx, a))
	s.Require().NoError(s.store.Append(ctx, b))
	now := time.Now().UTC()

	batch, err := s.store.Claim(ctx, now, 10, time.Minute)
	s.Require().NoError(err)
	s.Require().Len(batch, 2)
	s.Equal(a.ID, batch[0].ID)
	s.Less(batch[0].Seq, batch[1].Seq)
	s.Require().NotNil(batch[0].ClaimedUntil)

	again, err := s.store.Claim(ctx, now, 10, time.Minute)
	s.Require().NoError(err)
	s.Empty(again, "leased rows are hidden after the claim commits")

	s.Require().NoError(s.store.Release(ctx, []uuid.UUID{b.ID}))
	again, err = s.store.Claim(ctx, now, 10, time.Minute)
	s.Require().NoError(err)
	s.Require().Len(again, 1)
	s.Equal(b.ID, again[0].ID)

	expired, err := s.store.Claim(ctx, now.Add(2*time.Minute), 10, time.Minute)
	s.Require().NoError(err)
	s.Len(expired, 2, "expired leases are reclaimed")

	s.Require().NoError(s.store.MarkPublished(ctx, []uuid.UUID{a.ID}, time.Now()))
	n, err := s.store.CountUnpublished(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresOutboxSuite) TestConcurrentRelaysDoNotShareRows() {
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		s.Require().NoError(s.store.Append(ctx, entry()))
	}

	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
		wg   sync.WaitGroup
		hold = make(chan struct{})
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.tx.RunInTx(ctx, func(ctx context.Context) error {
				batch, err := s.store.Claim(ctx, time.Now().UTC(), 5, time.Minute)
				if err != nil {
					return err
				}
				mu.Lock()
				for _, e := range batch {
					seen[e.ID]++
				}
				mu.Unlock()
				<-hold
				return nil
			}))
		}()
	}
	time.Sleep(200 * time.Millisecond)
	close(hold)
	wg.Wait()

	for entryID, n := range seen {
		s.Equal(1, n, "entry %s claimed by both relays", entryID)
	}
}

var _ events.OutboxStore = (*PostgresStore)(nil)
