package service

import (
	"context"

	"certregistry/internal/consignment/models"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
)

// MintFailure records an item whose certificate could not be created.
type MintFailure struct {
	ItemNo int    `json:"item_no"`
	Serial string `json:"serial_number"`
	Code   string `json:"error"`
	Reason string `json:"error_description"`
}

// MintResult lists serials by outcome.
type MintResult struct {
	Minted  []string      `json:"minted"`
	Skipped []string      `json:"skipped"`
	Failed  []MintFailure `json:"failed"`
}

// MintCertificates creates a pending certificate for every item that does
// not have one yet. Items are minted independently, so one bad item does not
// hold back the rest; running it again only picks up what is left.
func (s *Service) MintCertificates(ctx context.Context, consignmentID id.ConsignmentID, actor string) (*MintResult, error) {
	c, err := s.store.FindConsignment(ctx, consignmentID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	items, err := s.store.ListItems(ctx, consignmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list items")
	}

	serials := make([]string, len(items))
	for i, it := range items {
		if serials[i], err = c.SerialFor(it.ItemNo); err != nil {
			return nil, err
		}
	}
	existing, err := s.certs.ExistingSerials(ctx, serials)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing serials")
	}

	result := &MintResult{Minted: []string{}, Skipped: []string{}, Failed: []MintFailure{}}
	for i, it := range items {
		serial := serials[i]
		if existing[serial] {
			result.Skipped = append(result.Skipped, serial)
			continue
		}
		_, err := s.issuer.Create(ctx, mintRequest(c, it, serial), actor)
		switch {
		case err == nil:
			result.Minted = append(result.Minted, serial)
		case dErrors.HasCode(err, dErrors.CodeConflict):
			// minted concurrently since the existence check
			result.Skipped = append(result.Skipped, serial)
		case dErrors.HasCode(err, dErrors.CodeInternal), dErrors.HasCode(err, dErrors.CodeTimeout):
			return result, err
		default:
			result.Failed = append(result.Failed, failure(it, serial, err))
		}
	}

	s.audit(ctx, "consignment_minted", c,
		"minted", len(result.Minted),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
	)
	return result, nil
}

func failure(it *models.Item, serial string, err error) MintFailure {
	return MintFailure{
		ItemNo: it.ItemNo,
		Serial: serial,
		Code:   string(dErrors.CodeOf(err)),
		Reason: dErrors.MessageOf(err),
	}
}
