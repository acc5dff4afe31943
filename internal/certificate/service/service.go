// Package service runs the certificate lifecycle: issuing, verifying,
// reslabbing, revoking, regrading and renumbering certificates.
//
// Every mutation runs in one transaction covering the certificate row, its
// history event, the census adjustment and the outbox entry. Cache
// invalidation happens only after commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certregistry/internal/certificate/models"
	"certregistry/internal/events"
	"certregistry/internal/platform/metrics"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
	"certregistry/pkg/platform/sentinel"
	"certregistry/pkg/platform/tx"
	"certregistry/pkg/requestcontext"
)

const tracerName = "certregistry/certificate"

// systemActor is recorded when neither the caller nor the context names one.
const systemActor = "system"

type Service struct {
	certs   CertificateStore
	events  EventStore
	census  Census
	tx      tx.Runner
	outbox  Outbox
	labels  LabelResolver
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithOutbox writes every event to the outbox for the relay.
func WithOutbox(o Outbox) Option {
	return func(s *Service) {
		s.outbox = o
	}
}

// WithLabels enables knowledge base enrichment on create.
func WithLabels(r LabelResolver) Option {
	return func(s *Service) {
		s.labels = r
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(certs CertificateStore, eventStore EventStore, census Census, runner tx.Runner, opts ...Option) (*Service, error) {
	if certs == nil {
		return nil, fmt.Errorf("certificate store is required")
	}
	if eventStore == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if census == nil {
		return nil, fmt.Errorf("census is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	svc := &Service{
		certs:  certs,
		events: eventStore,
		census: census,
		tx:     runner,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// record appends e to the history and the outbox. Must run inside a
// transaction.
func (s *Service) record(ctx context.Context, e *models.Event, cert *models.Certificate) error {
	if err := s.events.Append(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append certificate event")
	}
	if s.outbox == nil {
		return nil
	}
	entry, err := events.NewEntry(e, cert, requestcontext.RequestID(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build outbox entry")
	}
	if err := s.outbox.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append outbox entry")
	}
	return nil
}

func (s *Service) findForUpdate(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	cert, err := s.certs.FindByIDForUpdate(ctx, certID)
	if err != nil {
		return nil, translateStoreError(err, "certificate not found")
	}
	return cert, nil
}

// translateStoreError maps sentinel errors to coded domain errors. Errors
// that already carry a code pass through.
func translateStoreError(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		field, _ := sentinel.UsedField(err)
		switch field {
		case "display_number":
			return dErrors.Wrap(err, dErrors.CodeConflict, "display number already in use")
		case "serial_number":
			return dErrors.Wrap(err, dErrors.CodeConflict, "serial number already in use")
		case "":
			return dErrors.Wrap(err, dErrors.CodeConflict, "certificate already exists")
		default:
			return dErrors.Wrap(err, dErrors.CodeConflict, field+" already in use")
		}
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeIntegrityViolation, "certificate link points at a missing certificate")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "certificate store failure")
}

// resolveActor prefers the explicit actor, then the authenticated caller.
func resolveActor(ctx context.Context, actor string) string {
	if actor != "" {
		return actor
	}
	if a := requestcontext.Actor(ctx); a != "" {
		return a
	}
	return systemActor
}

func (s *Service) audit(ctx context.Context, event string, cert *models.Certificate, actor string, attrs ...any) {
	args := append([]any{
		"log_type", "audit",
		"event", event,
		"cert_id", cert.ID.String(),
		"serial_number", cert.SerialNumber,
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	}, attrs...)
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "certificate."+name)
	return ctx, span, time.Now()
}

func (s *Service) endSpan(span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
	if s.metrics != nil {
		s.metrics.ObserveOperation("certificate_"+op, start)
	}
}

func (s *Service) rejected(from, to models.Status) {
	if s.metrics != nil {
		s.metrics.IncrementRejectedTransition(string(from), string(to))
	}
}

func (s *Service) transitioned(from, to models.Status) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(from), string(to))
	}
}
