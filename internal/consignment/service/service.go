// Package service handles consignment intake: creating consignments,
// adding items, minting certificates and exporting label rows.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	certmodels "certregistry/internal/certificate/models"
	"certregistry/internal/consignment/models"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
	"certregistry/pkg/platform/sentinel"
	"certregistry/pkg/platform/tx"
	"certregistry/pkg/requestcontext"
)

type Service struct {
	store  Store
	issuer Issuer
	certs  CertificateIndex
	tx     tx.Runner
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, issuer Issuer, certs CertificateIndex, runner tx.Runner, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("consignment store is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("certificate issuer is required")
	}
	if certs == nil {
		return nil, fmt.Errorf("certificate index is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	svc := &Service{
		store:  store,
		issuer: issuer,
		certs:  certs,
		tx:     runner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateConsignmentRequest opens a new consignment.
type CreateConsignmentRequest struct {
	Number        string              `json:"number"`
	PedigreeMode  models.PedigreeMode `json:"pedigree_mode"`
	PedigreeValue string              `json:"pedigree_value"`
}

func (s *Service) CreateConsignment(ctx context.Context, req CreateConsignmentRequest) (*models.Consignment, error) {
	c, err := models.NewConsignment(req.Number, req.PedigreeMode, req.PedigreeValue, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateConsignment(ctx, c); err != nil {
		return nil, translateStoreError(err)
	}
	s.audit(ctx, "consignment_created", c, "pedigree_mode", string(c.PedigreeMode))
	return c, nil
}

// Resolve accepts a consignment id or its number.
func (s *Service) Resolve(ctx context.Context, ref string) (*models.Consignment, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "consignment reference is required")
	}
	var (
		c   *models.Consignment
		err error
	)
	if consignmentID, parseErr := id.ParseConsignmentID(ref); parseErr == nil {
		c, err = s.store.FindConsignment(ctx, consignmentID)
	} else {
		c, err = s.store.FindConsignmentByNumber(ctx, ref)
	}
	if err != nil {
		return nil, translateStoreError(err)
	}
	return c, nil
}

// AddItem appends an item. Without an explicit item_no it takes the next
// number after the highest in use.
func (s *Service) AddItem(ctx context.Context, consignmentID id.ConsignmentID, req models.AddItemRequest) (*models.Item, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var item *models.Item
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.store.FindConsignmentForUpdate(ctx, consignmentID)
		if err != nil {
			return translateStoreError(err)
		}
		itemNo := req.ItemNo
		if itemNo == 0 {
			if itemNo, err = s.store.NextItemNo(ctx, c.ID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to number item")
			}
		}
		if _, err := c.SerialFor(itemNo); err != nil {
			return err
		}
		item = models.NewItem(c, itemNo, req, requestcontext.Now(ctx))
		if err := s.store.AddItem(ctx, item); err != nil {
			return translateStoreError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) ListItems(ctx context.Context, consignmentID id.ConsignmentID) ([]*models.Item, error) {
	if _, err := s.store.FindConsignment(ctx, consignmentID); err != nil {
		return nil, translateStoreError(err)
	}
	items, err := s.store.ListItems(ctx, consignmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list items")
	}
	return items, nil
}

// DeleteConsignment removes a consignment and its items. Certificates
// minted from it keep existing with their links cleared.
func (s *Service) DeleteConsignment(ctx context.Context, consignmentID id.ConsignmentID) error {
	var (
		c        *models.Consignment
		detached int
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.store.FindConsignmentForUpdate(ctx, consignmentID)
		if err != nil {
			return translateStoreError(err)
		}
		if detached, err = s.certs.DetachConsignment(ctx, consignmentID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to detach certificates")
		}
		if err := s.store.DeleteConsignment(ctx, consignmentID); err != nil {
			return translateStoreError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.audit(ctx, "consignment_deleted", c, "certificates_detached", detached)
	return nil
}

// ExportRows flattens items into label rows, ordered by consignment number
// then item number. A nil consignmentID exports everything.
func (s *Service) ExportRows(ctx context.Context, consignmentID *id.ConsignmentID) ([]models.ExportRow, error) {
	var consignments []*models.Consignment
	if consignmentID != nil {
		c, err := s.store.FindConsignment(ctx, *consignmentID)
		if err != nil {
			return nil, translateStoreError(err)
		}
		consignments = []*models.Consignment{c}
	} else {
		all, err := s.store.ListConsignments(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consignments")
		}
		consignments = all
	}
	sort.SliceStable(consignments, func(i, j int) bool {
		return models.NumberLess(consignments[i].Number, consignments[j].Number)
	})

	rows := []models.ExportRow{}
	for _, c := range consignments {
		items, err := s.store.ListItems(ctx, c.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list items")
		}
		for _, it := range items {
			row, err := models.NewExportRow(c, it)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func translateStoreError(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "consignment not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		field, _ := sentinel.UsedField(err)
		if field == "item_no" {
			return dErrors.Wrap(err, dErrors.CodeConflict, "item number already in use")
		}
		return dErrors.Wrap(err, dErrors.CodeConflict, "consignment number already in use")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "consignment store failure")
}

func (s *Service) audit(ctx context.Context, event string, c *models.Consignment, attrs ...any) {
	args := append([]any{
		"log_type", "audit",
		"event", event,
		"consignment_id", c.ID.String(),
		"consignment_number", c.Number,
		"actor", requestcontext.Actor(ctx),
		"request_id", requestcontext.RequestID(ctx),
	}, attrs...)
	s.logger.InfoContext(ctx, event, args...)
}

// mintRequest maps an item onto a certificate request. The first
// additional line is the variety; the others become notes.
func mintRequest(c *models.Consignment, it *models.Item, serial string) certmodels.CreateRequest {
	var notes []string
	for _, n := range []string{it.Addl2, it.Addl3} {
		if n != "" {
			notes = append(notes, n)
		}
	}
	consignmentID, itemID := c.ID, it.ID
	req := certmodels.CreateRequest{
		SerialNumber:  serial,
		ConsignmentID: &consignmentID,
		ItemID:        &itemID,
		Country:       it.Country,
		YearAndName:   it.YearAndName,
		Grade:         it.Grade1,
		Variety:       it.Addl1,
		LabelType:     it.LabelType,
		Notes:         strings.Join(notes, "; "),
	}
	if c.PedigreeMode == models.PedigreePerConsignment {
		req.Pedigree = c.PedigreeValue
	}
	return req
}
