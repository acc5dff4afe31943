package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	censusmodels "certregistry/internal/census/models"
	"certregistry/internal/certificate/models"
	"certregistry/internal/coin"
	"certregistry/internal/identifier"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
	"certregistry/pkg/requestcontext"
)

// Transition moves a certificate along the lifecycle table. The status
// update and its event commit together. A disallowed edge returns
// InvalidTransition and leaves the certificate unchanged; repeating verify
// or revoke succeeds without a new event.
//
// Reslabbing needs a replacement certificate and goes through Reslab.
func (s *Service) Transition(ctx context.Context, certID id.CertificateID, target models.Status, actor string, meta map[string]any) (result *models.TransitionResult, err error) {
	ctx, span, start := s.startSpan(ctx, "transition")
	defer func() { s.endSpan(span, "transition", start, err) }()
	span.SetAttributes(
		attribute.String("cert.id", certID.String()),
		attribute.String("cert.target_status", string(target)),
	)

	if !target.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", target)
	}
	if target == models.StatusReslabbed {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "reslabbing requires a replacement certificate")
	}
	actor = resolveActor(ctx, actor)

	var uncounted *censusmodels.BucketKey
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cert, err := s.findForUpdate(ctx, certID)
		if err != nil {
			return err
		}
		from := cert.Status
		changed, err := cert.CanTransition(target)
		if err != nil {
			s.rejected(from, target)
			return err
		}
		if !changed {
			result = &models.TransitionResult{Certificate: cert, From: from, To: target}
			return nil
		}

		now := requestcontext.Now(ctx)
		wasCounted := cert.IsCounted()
		cert.ApplyTransition(target, nil, now)
		if err := cert.Validate(); err != nil {
			return err
		}
		if err := s.certs.Update(ctx, cert); err != nil {
			return translateStoreError(err, "certificate not found")
		}

		typ, _ := models.TransitionEvent(target)
		e := models.NewEvent(cert.ID, typ, actor, copyMeta(meta), now)
		e.Meta["from"] = string(from)
		if err := s.record(ctx, e, cert); err != nil {
			return err
		}

		if wasCounted && !cert.IsCounted() {
			key := cert.BucketKey()
			if err := s.census.OnCertRevoked(ctx, key); err != nil {
				return err
			}
			uncounted = &key
		}
		result = &models.TransitionResult{Certificate: cert, From: from, To: target, Changed: true, Event: e}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Changed {
		s.logger.DebugContext(ctx, "transition is a no-op", "cert_id", certID.String(), "status", string(target))
		return result, nil
	}
	if uncounted != nil {
		s.census.Invalidate(ctx, *uncounted)
	}
	s.transitioned(result.From, result.To)
	s.audit(ctx, "certificate_"+string(result.Event.Type), result.Certificate, actor,
		"from", string(result.From),
		"to", string(result.To),
	)
	return result, nil
}

// Verify marks a pending certificate as slabbed and verified.
func (s *Service) Verify(ctx context.Context, certID id.CertificateID, actor string) (*models.TransitionResult, error) {
	return s.Transition(ctx, certID, models.StatusVerified, actor, nil)
}

// Revoke withdraws a certificate. The reason is kept in the event metadata.
func (s *Service) Revoke(ctx context.Context, certID id.CertificateID, actor, reason string) (*models.TransitionResult, error) {
	meta := map[string]any{}
	if reason = strings.TrimSpace(reason); reason != "" {
		meta["reason"] = reason
	}
	return s.Transition(ctx, certID, models.StatusRevoked, actor, meta)
}

// ReviseGrade replaces the grade of a pending or verified certificate and
// moves it between census buckets.
func (s *Service) ReviseGrade(ctx context.Context, certID id.CertificateID, gradeText, actor string) (cert *models.Certificate, err error) {
	ctx, span, start := s.startSpan(ctx, "revise_grade")
	defer func() { s.endSpan(span, "revise_grade", start, err) }()
	span.SetAttributes(attribute.String("cert.id", certID.String()))

	gradeText = strings.TrimSpace(gradeText)
	gradeNum := coin.GradeNumber(gradeText)
	if gradeNum == 0 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "grade %q has no number in 1..70", gradeText)
	}
	strike := coin.Strike(gradeText)
	if strike == "" {
		strike = coin.StrikeMS
	}
	actor = resolveActor(ctx, actor)

	var oldKey censusmodels.BucketKey
	var changed bool
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.findForUpdate(ctx, certID)
		if err != nil {
			return err
		}
		if err := current.CanReviseGrade(); err != nil {
			return err
		}
		cert = current
		if current.GradeText == gradeText && current.GradeNum == gradeNum && current.Strike == strike {
			return nil
		}

		now := requestcontext.Now(ctx)
		oldKey = current.BucketKey()
		oldGrade := current.GradeText
		current.ApplyGrade(gradeText, gradeNum, strike, now)
		if err := current.Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid grade")
		}
		if err := s.certs.Update(ctx, current); err != nil {
			return translateStoreError(err, "certificate not found")
		}
		e := models.NewEvent(current.ID, models.EventRegraded, actor, map[string]any{
			"old_grade":     oldGrade,
			"new_grade":     gradeText,
			"old_grade_num": oldKey.GradeNum,
			"new_grade_num": gradeNum,
		}, now)
		if err := s.record(ctx, e, current); err != nil {
			return err
		}
		if err := s.census.OnGradeRevised(ctx, oldKey, current.BucketKey()); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.census.Invalidate(ctx, oldKey, cert.BucketKey())
		s.audit(ctx, "certificate_regraded", cert, actor,
			"old_bucket", oldKey.String(),
			"new_bucket", cert.BucketKey().String(),
		)
	}
	return cert, nil
}

// Renumber sets or replaces the public display number. The format is
// checked before any storage access.
func (s *Service) Renumber(ctx context.Context, certID id.CertificateID, displayNumber, actor string) (cert *models.Certificate, err error) {
	ctx, span, start := s.startSpan(ctx, "renumber")
	defer func() { s.endSpan(span, "renumber", start, err) }()
	span.SetAttributes(attribute.String("cert.id", certID.String()))

	displayNumber = strings.TrimSpace(displayNumber)
	if err := identifier.ValidateDisplayNumber(displayNumber); err != nil {
		return nil, err
	}
	actor = resolveActor(ctx, actor)

	var previous string
	var changed bool
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.findForUpdate(ctx, certID)
		if err != nil {
			return err
		}
		cert = current
		if current.DisplayNumber == displayNumber {
			return nil
		}
		if err := current.CanRenumber(displayNumber); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		previous = current.DisplayNumber
		current.ApplyRenumber(displayNumber, now)
		if err := s.certs.Update(ctx, current); err != nil {
			return translateStoreError(err, "certificate not found")
		}
		e := models.NewEvent(current.ID, models.EventRenumbered, actor, map[string]any{
			"old_display_number": previous,
			"new_display_number": displayNumber,
		}, now)
		if err := s.record(ctx, e, current); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.audit(ctx, "certificate_renumbered", cert, actor,
			"old_display_number", previous,
			"display_number", displayNumber,
		)
	}
	return cert, nil
}

func copyMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	return out
}
