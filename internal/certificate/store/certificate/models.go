// Package certificate persists certificates and their images.
package certificate

import (
	"certregistry/internal/certificate/models"
	id "certregistry/pkg/domain"
)

// Link is the slice of a certificate that integrity audits read.
type Link struct {
	ID            id.CertificateID
	SerialNumber  string
	DisplayNumber string
	Status        models.Status
	SupersededBy  *id.CertificateID
}
