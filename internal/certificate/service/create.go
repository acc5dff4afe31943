package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"certregistry/internal/certificate/models"
	"certregistry/internal/coin"
	"certregistry/internal/identifier"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
	"certregistry/pkg/requestcontext"
)

// Create issues a pending certificate. Everything is validated before the
// first write; a duplicate serial or display number is a ConflictError.
func (s *Service) Create(ctx context.Context, req models.CreateRequest, actor string) (cert *models.Certificate, err error) {
	ctx, span, start := s.startSpan(ctx, "create")
	defer func() { s.endSpan(span, "create", start, err) }()

	actor = resolveActor(ctx, actor)
	cert, err = s.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("cert.serial", cert.SerialNumber))

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.insert(ctx, cert, actor, map[string]any{})
	})
	if err != nil {
		return nil, err
	}

	s.census.Invalidate(ctx, cert.BucketKey())
	if s.metrics != nil {
		s.metrics.IncrementCertificatesCreated()
	}
	s.audit(ctx, "certificate_created", cert, actor,
		"display_number", cert.DisplayNumber,
		"bucket", cert.BucketKey().String(),
	)
	return cert, nil
}

// Reslab issues a replacement for a verified certificate and marks the old
// one reslabbed. Both changes commit together or not at all.
func (s *Service) Reslab(ctx context.Context, oldID id.CertificateID, req models.CreateRequest, actor string) (old, replacement *models.Certificate, err error) {
	ctx, span, start := s.startSpan(ctx, "reslab")
	defer func() { s.endSpan(span, "reslab", start, err) }()
	span.SetAttributes(attribute.String("cert.id", oldID.String()))

	actor = resolveActor(ctx, actor)
	replacement, err = s.prepare(ctx, &req)
	if err != nil {
		return nil, nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.findForUpdate(ctx, oldID)
		if err != nil {
			return err
		}
		if _, err := current.CanTransition(models.StatusReslabbed); err != nil {
			s.rejected(current.Status, models.StatusReslabbed)
			return err
		}

		if err := s.insert(ctx, replacement, actor, map[string]any{
			"supersedes":        current.ID.String(),
			"superseded_serial": current.SerialNumber,
		}); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		wasCounted := current.IsCounted()
		current.ApplyTransition(models.StatusReslabbed, &replacement.ID, now)
		if err := current.Validate(); err != nil {
			return err
		}
		if err := s.certs.Update(ctx, current); err != nil {
			return translateStoreError(err, "certificate not found")
		}
		e := models.NewEvent(current.ID, models.EventRevised, actor, map[string]any{
			"superseded_by":     replacement.ID.String(),
			"superseded_serial": replacement.SerialNumber,
		}, now)
		if err := s.record(ctx, e, current); err != nil {
			return err
		}
		if wasCounted {
			if err := s.census.OnCertSuperseded(ctx, current.BucketKey()); err != nil {
				return err
			}
		}
		old = current
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.census.Invalidate(ctx, old.BucketKey(), replacement.BucketKey())
	s.transitioned(models.StatusVerified, models.StatusReslabbed)
	if s.metrics != nil {
		s.metrics.IncrementCertificatesCreated()
	}
	s.audit(ctx, "certificate_reslabbed", old, actor,
		"superseded_by", replacement.ID.String(),
		"new_serial_number", replacement.SerialNumber,
	)
	return old, replacement, nil
}

// prepare validates req and builds the certificate without touching storage.
func (s *Service) prepare(ctx context.Context, req *models.CreateRequest) (*models.Certificate, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.DisplayNumber != "" {
		if err := identifier.ValidateDisplayNumber(req.DisplayNumber); err != nil {
			return nil, err
		}
	}
	serialFormat, err := s.enrich(ctx, req)
	if err != nil {
		return nil, err
	}
	serial, err := s.serialFor(req, serialFormat)
	if err != nil {
		return nil, err
	}

	detail, err := coin.Derive(req.CoinFields())
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	cert, err := models.NewCertificate(serial, req.DisplayNumber, detail, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid certificate")
	}
	cert.Variety = req.Variety
	cert.LabelType = req.LabelType
	cert.Pedigree = req.Pedigree
	cert.Notes = req.Notes
	cert.ConsignmentID = req.ConsignmentID
	cert.ItemID = req.ItemID
	for _, img := range req.Images {
		cert.Images = append(cert.Images, models.Image{
			ID:     id.NewImageID(),
			CertID: cert.ID,
			Kind:   img.Kind,
			Path:   img.Path,
			Width:  img.Width,
			Height: img.Height,
		})
	}
	return cert, nil
}

// serialFor prefers an explicit serial, then the label's serial format,
// then the plain derivation.
func (s *Service) serialFor(req *models.CreateRequest, format string) (string, error) {
	if req.SerialNumber != "" {
		if _, _, err := identifier.ParseSerial(req.SerialNumber); err != nil {
			return "", err
		}
		return req.SerialNumber, nil
	}
	return identifier.FormatSerial(format, req.ConsignmentNumber, req.ItemSeq)
}

// enrich fills empty descriptors from the knowledge base and returns the
// matched entry's serial format. An unknown label_key is an error;
// unresolved free text falls through to manual entry.
func (s *Service) enrich(ctx context.Context, req *models.CreateRequest) (string, error) {
	if s.labels == nil || (req.LabelKey == "" && req.LabelText == "") {
		return "", nil
	}
	if req.LabelKey != "" {
		entry, ok := s.labels.Lookup(req.LabelKey)
		if !ok {
			return "", dErrors.Newf(dErrors.CodeValidation, "unknown label key %q", req.LabelKey)
		}
		req.ApplyDescriptors(entry.Apply(req.Descriptors()))
		return entry.SerialFormat, nil
	}
	entry, ok := s.labels.ResolveAlias(req.LabelText)
	if !ok {
		s.logger.DebugContext(ctx, "label text not in knowledge base", "label_text", req.LabelText)
		return "", nil
	}
	req.ApplyDescriptors(entry.Apply(req.Descriptors()))
	return entry.SerialFormat, nil
}

// insert writes a new certificate with its created event and census
// increment. Must run inside a transaction.
func (s *Service) insert(ctx context.Context, cert *models.Certificate, actor string, meta map[string]any) error {
	if err := s.certs.Create(ctx, cert); err != nil {
		return translateStoreError(err, "certificate not found")
	}
	meta["serial_number"] = cert.SerialNumber
	if cert.DisplayNumber != "" {
		meta["display_number"] = cert.DisplayNumber
	}
	e := models.NewEvent(cert.ID, models.EventCreated, actor, meta, cert.CreatedAt)
	if err := s.record(ctx, e, cert); err != nil {
		return err
	}
	return s.census.OnCertCreated(ctx, cert.BucketKey())
}
