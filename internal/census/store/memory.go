package store

import (
	"context"
	"maps"
	"sort"
	"sync"

	"certregistry/internal/census/models"
)

// InMemory keeps population buckets in a map. Zero buckets are deleted.
type InMemory struct {
	mu      sync.RWMutex
	buckets map[models.BucketKey]int
}

func NewInMemory() *InMemory {
	return &InMemory{buckets: make(map[models.BucketKey]int)}
}

func (s *InMemory) Snapshot() func() {
	s.mu.RLock()
	saved := maps.Clone(s.buckets)
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		s.buckets = saved
		s.mu.Unlock()
	}
}

func (s *InMemory) Increment(_ context.Context, key models.BucketKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[key]++
	return nil
}

// Decrement reports false when the bucket was already empty.
func (s *InMemory) Decrement(_ context.Context, key models.BucketKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.buckets[key]
	if !ok || n <= 0 {
		delete(s.buckets, key)
		return false, nil
	}
	if n == 1 {
		delete(s.buckets, key)
	} else {
		s.buckets[key] = n - 1
	}
	return true, nil
}

func (s *InMemory) Population(_ context.Context, series models.SeriesKey) ([]models.GradeCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.GradeCount{}
	for k, n := range s.buckets {
		if k.Series() == series && n > 0 {
			out = append(out, models.GradeCount{GradeNum: k.GradeNum, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GradeNum < out[j].GradeNum })
	return out, nil
}

func (s *InMemory) All(_ context.Context) (map[models.BucketKey]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.buckets), nil
}

// ReplaceAll swaps every bucket for counts, dropping non-positive entries.
func (s *InMemory) ReplaceAll(_ context.Context, counts map[models.BucketKey]int) error {
	next := make(map[models.BucketKey]int, len(counts))
	for k, n := range counts {
		if n > 0 {
			next[k] = n
		}
	}
	s.mu.Lock()
	s.buckets = next
	s.mu.Unlock()
	return nil
}
