package certificate

import (
	"context"
	"sort"
	"sync"

	censusmodels "certregistry/internal/census/models"
	"certregistry/internal/certificate/models"
	id "certregistry/pkg/domain"
	"certregistry/pkg/platform/sentinel"
)

// InMemory is a map-backed store. Uniqueness of serial and display number
// is checked under the write lock, mirroring the Postgres constraints.
type InMemory struct {
	mu        sync.RWMutex
	byID      map[id.CertificateID]*models.Certificate
	bySerial  map[string]id.CertificateID
	byDisplay map[string]id.CertificateID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:      make(map[id.CertificateID]*models.Certificate),
		bySerial:  make(map[string]id.CertificateID),
		byDisplay: make(map[string]id.CertificateID),
	}
}

// Snapshot implements tx.Snapshotter.
func (s *InMemory) Snapshot() func() {
	s.mu.RLock()
	byID := make(map[id.CertificateID]*models.Certificate, len(s.byID))
	for k, v := range s.byID {
		byID[k] = v.Clone()
	}
	bySerial := make(map[string]id.CertificateID, len(s.bySerial))
	for k, v := range s.bySerial {
		bySerial[k] = v
	}
	byDisplay := make(map[string]id.CertificateID, len(s.byDisplay))
	for k, v := range s.byDisplay {
		byDisplay[k] = v
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.byID, s.bySerial, s.byDisplay = byID, bySerial, byDisplay
	}
}

func (s *InMemory) Create(_ context.Context, c *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.bySerial[c.SerialNumber]; taken {
		return sentinel.AlreadyUsed("serial_number")
	}
	if c.DisplayNumber != "" {
		if _, taken := s.byDisplay[c.DisplayNumber]; taken {
			return sentinel.AlreadyUsed("display_number")
		}
	}
	if c.SupersededBy != nil {
		if _, ok := s.byID[*c.SupersededBy]; !ok {
			return sentinel.ErrInvalidState
		}
	}
	stored := c.Clone()
	s.byID[c.ID] = stored
	s.bySerial[c.SerialNumber] = c.ID
	if c.DisplayNumber != "" {
		s.byDisplay[c.DisplayNumber] = c.ID
	}
	return nil
}

// Update replaces the stored row. The serial number is immutable and is
// ignored.
func (s *InMemory) Update(_ context.Context, c *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.DisplayNumber != existing.DisplayNumber && c.DisplayNumber != "" {
		if other, taken := s.byDisplay[c.DisplayNumber]; taken && other != c.ID {
			return sentinel.AlreadyUsed("display_number")
		}
	}
	if c.SupersededBy != nil {
		if _, ok := s.byID[*c.SupersededBy]; !ok {
			return sentinel.ErrInvalidState
		}
	}
	if existing.DisplayNumber != "" && existing.DisplayNumber != c.DisplayNumber {
		delete(s.byDisplay, existing.DisplayNumber)
	}
	if c.DisplayNumber != "" {
		s.byDisplay[c.DisplayNumber] = c.ID
	}
	stored := c.Clone()
	stored.SerialNumber = existing.SerialNumber
	s.byID[c.ID] = stored
	return nil
}

func (s *InMemory) FindByID(_ context.Context, certID id.CertificateID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[certID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// FindByIDForUpdate is FindByID; the transaction runner's lock already
// serializes writers.
func (s *InMemory) FindByIDForUpdate(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	return s.FindByID(ctx, certID)
}

func (s *InMemory) FindBySerial(ctx context.Context, serial string) (*models.Certificate, error) {
	s.mu.RLock()
	certID, ok := s.bySerial[serial]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindByID(ctx, certID)
}

func (s *InMemory) FindByDisplayNumber(ctx context.Context, displayNumber string) (*models.Certificate, error) {
	s.mu.RLock()
	certID, ok := s.byDisplay[displayNumber]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindByID(ctx, certID)
}

// ExistingSerials reports which of serials are already issued.
func (s *InMemory) ExistingSerials(_ context.Context, serials []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool)
	for _, serial := range serials {
		if _, ok := s.bySerial[serial]; ok {
			out[serial] = true
		}
	}
	return out, nil
}

// ListLinks returns every certificate's integrity-relevant fields ordered
// by serial.
func (s *InMemory) ListLinks(_ context.Context) ([]Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links := make([]Link, 0, len(s.byID))
	for _, c := range s.byID {
		link := Link{
			ID:            c.ID,
			SerialNumber:  c.SerialNumber,
			DisplayNumber: c.DisplayNumber,
			Status:        c.Status,
		}
		if c.SupersededBy != nil {
			v := *c.SupersededBy
			link.SupersededBy = &v
		}
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].SerialNumber < links[j].SerialNumber })
	return links, nil
}

// CountBuckets tallies counted certificates per census bucket.
func (s *InMemory) CountBuckets(_ context.Context) (map[censusmodels.BucketKey]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[censusmodels.BucketKey]int)
	for _, c := range s.byID {
		if c.IsCounted() {
			counts[c.BucketKey()]++
		}
	}
	return counts, nil
}

// DetachConsignment clears the consignment and item links of every
// certificate minted from consignmentID.
func (s *InMemory) DetachConsignment(_ context.Context, consignmentID id.ConsignmentID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.byID {
		if c.ConsignmentID != nil && *c.ConsignmentID == consignmentID {
			c.ConsignmentID = nil
			c.ItemID = nil
			n++
		}
	}
	return n, nil
}
