package service

import (
	"context"

	certmodels "certregistry/internal/certificate/models"
	"certregistry/internal/consignment/models"
	id "certregistry/pkg/domain"
)

type Store interface {
	CreateConsignment(ctx context.Context, c *models.Consignment) error
	FindConsignment(ctx context.Context, consignmentID id.ConsignmentID) (*models.Consignment, error)
	FindConsignmentForUpdate(ctx context.Context, consignmentID id.ConsignmentID) (*models.Consignment, error)
	FindConsignmentByNumber(ctx context.Context, number string) (*models.Consignment, error)
	ListConsignments(ctx context.Context) ([]*models.Consignment, error)
	DeleteConsignment(ctx context.Context, consignmentID id.ConsignmentID) error
	AddItem(ctx context.Context, it *models.Item) error
	NextItemNo(ctx context.Context, consignmentID id.ConsignmentID) (int, error)
	ListItems(ctx context.Context, consignmentID id.ConsignmentID) ([]*models.Item, error)
}

// Issuer creates certificates for minted items.
type Issuer interface {
	Create(ctx context.Context, req certmodels.CreateRequest, actor string) (*certmodels.Certificate, error)
}

// CertificateIndex answers which serials exist and clears back-references
// when a consignment goes away.
type CertificateIndex interface {
	ExistingSerials(ctx context.Context, serials []string) (map[string]bool, error)
	DetachConsignment(ctx context.Context, consignmentID id.ConsignmentID) (int, error)
}
