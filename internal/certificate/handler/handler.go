// Package handler exposes certificate lookups publicly and the lifecycle
// operations to staff.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	censusmodels "certregistry/internal/census/models"
	"certregistry/internal/certificate/models"
	id "certregistry/pkg/domain"
	dErrors "certregistry/pkg/domain-errors"
	"certregistry/pkg/platform/httputil"
	"certregistry/pkg/requestcontext"
)

// Service defines the certificate operations the handler needs.
type Service interface {
	Lookup(ctx context.Context, number string) (*models.Certificate, error)
	GetByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
	Events(ctx context.Context, certID id.CertificateID) ([]*models.Event, error)
	Create(ctx context.Context, req models.CreateRequest, actor string) (*models.Certificate, error)
	Verify(ctx context.Context, certID id.CertificateID, actor string) (*models.TransitionResult, error)
	Revoke(ctx context.Context, certID id.CertificateID, actor, reason string) (*models.TransitionResult, error)
	Reslab(ctx context.Context, oldID id.CertificateID, req models.CreateRequest, actor string) (*models.Certificate, *models.Certificate, error)
	ReviseGrade(ctx context.Context, certID id.CertificateID, gradeText, actor string) (*models.Certificate, error)
	Renumber(ctx context.Context, certID id.CertificateID, displayNumber, actor string) (*models.Certificate, error)
}

// Census answers standing questions for the public population page.
type Census interface {
	Standing(ctx context.Context, key censusmodels.BucketKey) (censusmodels.Standing, error)
}

// Handler handles certificate endpoints.
type Handler struct {
	certs  Service
	census Census
	logger *slog.Logger
}

// New creates a new certificate Handler.
func New(certs Service, census Census, logger *slog.Logger) *Handler {
	return &Handler{certs: certs, census: census, logger: logger}
}

// RegisterPublic registers the anonymous lookup routes, where {ref} is a
// display number or serial.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/api/certs/{ref}", h.handleLookup)
	r.Get("/api/certs/{ref}/population", h.handlePopulation)
}

// RegisterStaff registers the mutating routes, where {ref} is the
// certificate id. r must already enforce auth.
func (h *Handler) RegisterStaff(r chi.Router) {
	r.Post("/api/certs", h.handleCreate)
	r.Post("/api/certs/{ref}/verify", h.handleVerify)
	r.Post("/api/certs/{ref}/revoke", h.handleRevoke)
	r.Post("/api/certs/{ref}/reslab", h.handleReslab)
	r.Post("/api/certs/{ref}/grade", h.handleReviseGrade)
	r.Post("/api/certs/{ref}/display-number", h.handleRenumber)
	r.Get("/api/certs/{ref}/events", h.handleEvents)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	cert, err := h.certs.Lookup(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, "certificate lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

type populationResponse struct {
	SerialNumber  string `json:"serial_number"`
	DisplayNumber string `json:"display_number,omitempty"`
	censusmodels.Standing
}

func (h *Handler) handlePopulation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cert, err := h.certs.Lookup(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, "certificate lookup failed", err)
		return
	}
	if !cert.IsCounted() {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "certificate is %s and not part of the population", cert.Status))
		return
	}
	standing, err := h.census.Standing(ctx, cert.BucketKey())
	if err != nil {
		h.fail(w, r, "population standing failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, populationResponse{
		SerialNumber:  cert.SerialNumber,
		DisplayNumber: cert.DisplayNumber,
		Standing:      standing,
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	cert, err := h.certs.Create(r.Context(), req, requestcontext.Actor(r.Context()))
	if err != nil {
		h.fail(w, r, "create certificate failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, cert)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	certID, ok := h.certID(w, r)
	if !ok {
		return
	}
	res, err := h.certs.Verify(r.Context(), certID, requestcontext.Actor(r.Context()))
	if err != nil {
		h.fail(w, r, "verify failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	certID, ok := h.certID(w, r)
	if !ok {
		return
	}
	var req revokeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.certs.Revoke(r.Context(), certID, requestcontext.Actor(r.Context()), req.Reason)
	if err != nil {
		h.fail(w, r, "revoke failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type reslabResponse struct {
	Superseded  *models.Certificate `json:"superseded"`
	Replacement *models.Certificate `json:"replacement"`
}

func (h *Handler) handleReslab(w http.ResponseWriter, r *http.Request) {
	certID, ok := h.certID(w, r)
	if !ok {
		return
	}
	var req models.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	old, replacement, err := h.certs.Reslab(r.Context(), certID, req, requestcontext.Actor(r.Context()))
	if err != nil {
		h.fail(w, r, "reslab failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, reslabResponse{Superseded: old, Replacement: replacement})
}

type gradeRequest struct {
	Grade string `json:"grade"`
}

func (h *Handler) handleReviseGrade(w http.ResponseWriter, r *http.Request) {
	certID, ok := h.certID(w, r)
	if !ok {
		return
	}
	var req gradeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	cert, err := h.certs.ReviseGrade(r.Context(), certID, req.Grade, requestcontext.Actor(r.Context()))
	if err != nil {
		h.fail(w, r, "grade revision failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

type renumberRequest struct {
	DisplayNumber string `json:"display_number"`
}

func (h *Handler) handleRenumber(w http.ResponseWriter, r *http.Request) {
	certID, ok := h.certID(w, r)
	if !ok {
		return
	}
	var req renumberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	cert, err := h.certs.Renumber(r.Context(), certID, req.DisplayNumber, requestcontext.Actor(r.Context()))
	if err != nil {
		h.fail(w, r, "renumber failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	certID, ok := h.certID(w, r)
	if !ok {
		return
	}
	events, err := h.certs.Events(r.Context(), certID)
	if err != nil {
		h.fail(w, r, "list events failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) certID(w http.ResponseWriter, r *http.Request) (id.CertificateID, bool) {
	certID, err := id.ParseCertificateID(chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid certificate id"))
		return id.CertificateID{}, false
	}
	return certID, true
}

// fail logs server-side failures at ERROR and client mistakes at DEBUG, then
// writes the error envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.DebugContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
