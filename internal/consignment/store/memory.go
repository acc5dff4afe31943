// Package store persists consignments and their items.
package store

import (
	"context"
	"sort"
	"sync"

	"certregistry/internal/consignment/models"
	id "certregistry/pkg/domain"
	"certregistry/pkg/platform/sentinel"
)

// InMemory keeps consignments and items in maps. Deleting a consignment
// removes its items.
type InMemory struct {
	mu           sync.RWMutex
	consignments map[id.ConsignmentID]models.Consignment
	byNumber     map[string]id.ConsignmentID
	items        map[id.ConsignmentID][]models.Item
}

func NewInMemory() *InMemory {
	return &InMemory{
		consignments: make(map[id.ConsignmentID]models.Consignment),
		byNumber:     make(map[string]id.ConsignmentID),
		items:        make(map[id.ConsignmentID][]models.Item),
	}
}

func (s *InMemory) Snapshot() func() {
	s.mu.RLock()
	consignments := make(map[id.ConsignmentID]models.Consignment, len(s.consignments))
	for k, v := range s.consignments {
		consignments[k] = v
	}
	byNumber := make(map[string]id.ConsignmentID, len(s.byNumber))
	for k, v := range s.byNumber {
		byNumber[k] = v
	}
	items := make(map[id.ConsignmentID][]models.Item, len(s.items))
	for k, v := range s.items {
		items[k] = append([]models.Item(nil), v...)
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.consignments, s.byNumber, s.items = consignments, byNumber, items
	}
}

func (s *InMemory) CreateConsignment(_ context.Context, c *models.Consignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byNumber[c.Number]; taken {
		return sentinel.AlreadyUsed("consignment_number")
	}
	s.consignments[c.ID] = *c
	s.byNumber[c.Number] = c.ID
	return nil
}

func (s *InMemory) FindConsignment(_ context.Context, consignmentID id.ConsignmentID) (*models.Consignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consignments[consignmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

// FindConsignmentForUpdate is FindConsignment; the transaction runner's
// lock already serializes writers.
func (s *InMemory) FindConsignmentForUpdate(ctx context.Context, consignmentID id.ConsignmentID) (*models.Consignment, error) {
	return s.FindConsignment(ctx, consignmentID)
}

func (s *InMemory) FindConsignmentByNumber(ctx context.Context, number string) (*models.Consignment, error) {
	s.mu.RLock()
	consignmentID, ok := s.byNumber[number]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindConsignment(ctx, consignmentID)
}

// ListConsignments returns every consignment ordered by number.
func (s *InMemory) ListConsignments(_ context.Context) ([]*models.Consignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Consignment, 0, len(s.consignments))
	for _, c := range s.consignments {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *InMemory) DeleteConsignment(_ context.Context, consignmentID id.ConsignmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consignments[consignmentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.consignments, consignmentID)
	delete(s.byNumber, c.Number)
	delete(s.items, consignmentID)
	return nil
}

func (s *InMemory) AddItem(_ context.Context, it *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consignments[it.ConsignmentID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.items[it.ConsignmentID] {
		if existing.ItemNo == it.ItemNo {
			return sentinel.AlreadyUsed("item_no")
		}
	}
	s.items[it.ConsignmentID] = append(s.items[it.ConsignmentID], *it)
	return nil
}

// NextItemNo returns one past the highest item number in use.
func (s *InMemory) NextItemNo(_ context.Context, consignmentID id.ConsignmentID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	highest := 0
	for _, it := range s.items[consignmentID] {
		if it.ItemNo > highest {
			highest = it.ItemNo
		}
	}
	return highest + 1, nil
}

// ListItems returns items ordered by item number.
func (s *InMemory) ListItems(_ context.Context, consignmentID id.ConsignmentID) ([]*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.items[consignmentID]
	out := make([]*models.Item, 0, len(src))
	for i := range src {
		it := src[i]
		out = append(out, &it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemNo < out[j].ItemNo })
	return out, nil
}
