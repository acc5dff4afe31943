package events

//go:generate mockgen -source=relay.go -destination=mocks/mocks.go -package=mocks Publisher,OutboxStore

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"certregistry/internal/platform/metrics"
	"certregistry/pkg/platform/tx"
)

// Record is one message handed to a Publisher.
type Record struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

// Publisher delivers records to the event stream. Publish returns only once
// every record is acknowledged or an error occurred.
type Publisher interface {
	Publish(ctx context.Context, records []Record) error
}

// OutboxStore is what the relay needs from the outbox.
type OutboxStore interface {
	// Claim leases up to limit unpublished rows that no live lease holds,
	// oldest first, until now+lease.
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*Entry, error)
	// Release drops the lease so the rows can be claimed again at once.
	Release(ctx context.Context, ids []uuid.UUID) error
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Relay drains the outbox into a Publisher.
type Relay struct {
	store     OutboxStore
	publisher Publisher
	tx        tx.Runner
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	lease     time.Duration
	now       func() time.Time
}

type RelayOption func(*Relay)

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) { r.interval = d }
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) { r.batchSize = n }
}

// WithLease sets how long a claimed batch stays hidden from other relays.
// It must outlast a publish; an expired lease lets another relay resend.
func WithLease(d time.Duration) RelayOption {
	return func(r *Relay) { r.lease = d }
}

func WithClock(now func() time.Time) RelayOption {
	return func(r *Relay) { r.now = now }
}

func NewRelay(store OutboxStore, publisher Publisher, runner tx.Runner, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		tx:        runner,
		logger:    slog.Default(),
		interval:  time.Second,
		batchSize: 100,
		lease:     30 * time.Second,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Publish failures are logged and retried
// on the next tick; they never stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "outbox relay started", "interval", r.interval, "batch_size", r.batchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(context.WithoutCancel(ctx), "outbox relay stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := r.RelayOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.logger.WarnContext(ctx, "outbox relay batch failed", "error", err)
					}
					break
				}
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// RelayOnce publishes at most one batch and returns how many rows it
// published. The batch is claimed and marked in two short transactions;
// Publish runs between them without holding any. Rows are released for
// retry when Publish fails.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var entries []*Entry
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		entries, err = r.store.Claim(ctx, r.now(), r.batchSize, r.lease)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records := make([]Record, 0, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		records = append(records, Record{
			Key:   e.AggregateID,
			Value: e.Payload,
			Headers: map[string]string{
				"event_type":     e.EventType,
				"aggregate_type": e.AggregateType,
				"event_id":       e.ID.String(),
			},
		})
		ids = append(ids, e.ID)
	}

	if err := r.publisher.Publish(ctx, records); err != nil {
		if r.metrics != nil {
			r.metrics.IncrementOutboxFailure()
		}
		relErr := r.tx.RunInTx(context.WithoutCancel(ctx), func(ctx context.Context) error {
			return r.store.Release(ctx, ids)
		})
		if relErr != nil {
			r.logger.WarnContext(ctx, "outbox lease release failed", "error", relErr, "count", len(ids))
		}
		return 0, err
	}

	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		return r.store.MarkPublished(ctx, ids, r.now())
	})
	if err != nil {
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.AddOutboxPublished(len(entries))
	}
	r.logger.DebugContext(ctx, "outbox batch published", "count", len(entries))
	return len(entries), nil
}
