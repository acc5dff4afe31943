package service

import (
	"context"

	censusmodels "certregistry/internal/census/models"
	"certregistry/internal/certificate/models"
	certstore "certregistry/internal/certificate/store/certificate"
	"certregistry/internal/events"
	"certregistry/internal/labelkb"
	id "certregistry/pkg/domain"
)

// CertificateStore persists certificates. Stores return sentinel errors.
type CertificateStore interface {
	Create(ctx context.Context, c *models.Certificate) error
	Update(ctx context.Context, c *models.Certificate) error
	FindByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
	FindBySerial(ctx context.Context, serial string) (*models.Certificate, error)
	FindByDisplayNumber(ctx context.Context, displayNumber string) (*models.Certificate, error)
	ListLinks(ctx context.Context) ([]certstore.Link, error)
}

// EventStore appends certificate history.
type EventStore interface {
	Append(ctx context.Context, e *models.Event) error
	ListByCert(ctx context.Context, certID id.CertificateID) ([]*models.Event, error)
}

// Census receives bucket adjustments inside lifecycle transactions and
// cache invalidations after they commit.
type Census interface {
	OnCertCreated(ctx context.Context, key censusmodels.BucketKey) error
	OnGradeRevised(ctx context.Context, oldKey, newKey censusmodels.BucketKey) error
	OnCertRevoked(ctx context.Context, key censusmodels.BucketKey) error
	OnCertSuperseded(ctx context.Context, key censusmodels.BucketKey) error
	Invalidate(ctx context.Context, keys ...censusmodels.BucketKey)
}

// Outbox records events for asynchronous publication.
type Outbox interface {
	Append(ctx context.Context, e *events.Entry) error
}

// LabelResolver looks up knowledge base entries.
type LabelResolver interface {
	Lookup(key string) (labelkb.Entry, bool)
	ResolveAlias(freeText string) (labelkb.Entry, bool)
}
