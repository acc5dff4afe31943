// Package store persists outbox rows.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"certregistry/internal/events"
)

type InMemory struct {
	mu      sync.Mutex
	nextSeq int64
	entries []*events.Entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

// Snapshot implements tx.Snapshotter.
func (s *InMemory) Snapshot() func() {
	s.mu.Lock()
	saved := make([]*events.Entry, len(s.entries))
	for i, e := range s.entries {
		cp := *e
		saved[i] = &cp
	}
	seq := s.nextSeq
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries = saved
		s.nextSeq = seq
	}
}

func (s *InMemory) Append(_ context.Context, e *events.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	cp := *e
	cp.Seq = s.nextSeq
	s.entries = append(s.entries, &cp)
	return nil
}

// Claim leases up to limit unpublished rows whose lease is absent or
// expired, oldest first.
func (s *InMemory) Claim(_ context.Context, now time.Time, limit int, lease time.Duration) ([]*events.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until := now.Add(lease)
	var out []*events.Entry
	for _, e := range s.entries {
		if e.PublishedAt != nil || (e.ClaimedUntil != nil && e.ClaimedUntil.After(now)) {
			continue
		}
		t := until
		e.ClaimedUntil = &t
		cp := *e
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) Release(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for _, e := range s.entries {
		if _, ok := want[e.ID]; ok && e.PublishedAt == nil {
			e.ClaimedUntil = nil
		}
	}
	return nil
}

func (s *InMemory) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for _, e := range s.entries {
		if _, ok := want[e.ID]; ok && e.PublishedAt == nil {
			t := at
			e.PublishedAt = &t
		}
	}
	return nil
}

// CountUnpublished reports the backlog.
func (s *InMemory) CountUnpublished(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.PublishedAt == nil {
			n++
		}
	}
	return n, nil
}
