// Package event persists the append-only certificate history.
package event

import (
	"context"
	"sync"

	"certregistry/internal/certificate/models"
	id "certregistry/pkg/domain"
)

type InMemory struct {
	mu     sync.RWMutex
	events map[id.CertificateID][]*models.Event
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[id.CertificateID][]*models.Event)}
}

// Snapshot implements tx.Snapshotter. Events are immutable once appended,
// so copying the slice headers is enough.
func (s *InMemory) Snapshot() func() {
	s.mu.RLock()
	saved := make(map[id.CertificateID][]*models.Event, len(s.events))
	for k, v := range s.events {
		saved[k] = append([]*models.Event(nil), v...)
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = saved
	}
}

func (s *InMemory) Append(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events[e.CertID] = append(s.events[e.CertID], &cp)
	return nil
}

// ListByCert returns events oldest first.
func (s *InMemory) ListByCert(_ context.Context, certID id.CertificateID) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[certID]
	out := make([]*models.Event, 0, len(src))
	for _, e := range src {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
