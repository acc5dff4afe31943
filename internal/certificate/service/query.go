package service

import (
	"context"
	"strings"

	"certregistry/internal/certificate/models"
	"certregistry/internal/identifier"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
)

func (s *Service) GetByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	cert, err := s.certs.FindByID(ctx, certID)
	if err != nil {
		return nil, translateStoreError(err, "certificate not found")
	}
	return cert, nil
}

func (s *Service) GetBySerial(ctx context.Context, serial string) (*models.Certificate, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "serial number is required")
	}
	cert, err := s.certs.FindBySerial(ctx, serial)
	if err != nil {
		return nil, translateStoreError(err, "certificate not found")
	}
	return cert, nil
}

// GetByDisplayNumber rejects malformed numbers before querying.
func (s *Service) GetByDisplayNumber(ctx context.Context, displayNumber string) (*models.Certificate, error) {
	displayNumber = strings.TrimSpace(displayNumber)
	if err := identifier.ValidateDisplayNumber(displayNumber); err != nil {
		return nil, err
	}
	cert, err := s.certs.FindByDisplayNumber(ctx, displayNumber)
	if err != nil {
		return nil, translateStoreError(err, "certificate not found")
	}
	return cert, nil
}

// Lookup resolves the number printed on a slab: a display number first,
// then a serial. Eight-digit display numbers share their shape with some
// serials, so a display miss falls back to the serial index.
func (s *Service) Lookup(ctx context.Context, number string) (*models.Certificate, error) {
	number = strings.TrimSpace(number)
	if _, ok := identifier.DisplayNumberFormat(number); ok {
		cert, err := s.GetByDisplayNumber(ctx, number)
		if err == nil || !dErrors.Is(err, dErrors.CodeNotFound) {
			return cert, err
		}
		return s.GetBySerial(ctx, number)
	}
	if identifier.IsSerialShape(number) {
		return s.GetBySerial(ctx, number)
	}
	return nil, dErrors.Newf(dErrors.CodeValidation, "%q is neither a display number nor a serial", number)
}

// Events returns a certificate's history, oldest first.
func (s *Service) Events(ctx context.Context, certID id.CertificateID) ([]*models.Event, error) {
	if _, err := s.GetByID(ctx, certID); err != nil {
		return nil, err
	}
	list, err := s.events.ListByCert(ctx, certID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read certificate events")
	}
	return list, nil
}
