// Package handler exposes consignment intake to staff.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certregistry/internal/consignment/models"
	"certregistry/internal/consignment/service"
	id "certregistry/pkg/domain"
	"certregistry/pkg/platform/httputil"
	"certregistry/pkg/requestcontext"
)

type Service interface {
	CreateConsignment(ctx context.Context, req service.CreateConsignmentRequest) (*models.Consignment, error)
	Resolve(ctx context.Context, ref string) (*models.Consignment, error)
	AddItem(ctx context.Context, consignmentID id.ConsignmentID, req models.AddItemRequest) (*models.Item, error)
	ListItems(ctx context.Context, consignmentID id.ConsignmentID) ([]*models.Item, error)
	MintCertificates(ctx context.Context, consignmentID id.ConsignmentID, actor string) (*service.MintResult, error)
	DeleteConsignment(ctx context.Context, consignmentID id.ConsignmentID) error
	ExportRows(ctx context.Context, consignmentID *id.ConsignmentID) ([]models.ExportRow, error)
}

type Handler struct {
	consignments Service
	logger       *slog.Logger
}

func New(consignments Service, logger *slog.Logger) *Handler {
	return &Handler{consignments: consignments, logger: logger}
}

// Register registers the staff routes. {ref} is a consignment id or number.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/consignments", h.handleCreate)
	r.Delete("/api/consignments/{ref}", h.handleDelete)
	r.Get("/api/consignments/{ref}/items", h.handleListItems)
	r.Post("/api/consignments/{ref}/items", h.handleAddItem)
	r.Post("/api/consignments/{ref}/mint", h.handleMint)
	r.Get("/api/consignments/{ref}/export", h.handleExport)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req service.CreateConsignmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.consignments.CreateConsignment(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create consignment failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := h.consignments.DeleteConsignment(r.Context(), c.ID); err != nil {
		h.fail(w, r, "delete consignment failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	items, err := h.consignments.ListItems(r.Context(), c.ID)
	if err != nil {
		h.fail(w, r, "list items failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req models.AddItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	it, err := h.consignments.AddItem(r.Context(), c.ID, req)
	if err != nil {
		h.fail(w, r, "add item failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, it)
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	res, err := h.consignments.MintCertificates(r.Context(), c.ID, requestcontext.Actor(r.Context()))
	if err != nil {
		h.fail(w, r, "mint failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// handleExport returns CSV when the client asks for text/csv, JSON otherwise.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	rows, err := h.consignments.ExportRows(r.Context(), &c.ID)
	if err != nil {
		h.fail(w, r, "export failed", err)
		return
	}
	if r.Header.Get("Accept") != "text/csv" {
		httputil.WriteJSON(w, http.StatusOK, rows)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="consignment-`+c.Number+`.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := models.WriteCSV(w, rows); err != nil {
		h.logger.ErrorContext(r.Context(), "write export csv", "error", err,
			"request_id", requestcontext.RequestID(r.Context()))
	}
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*models.Consignment, bool) {
	c, err := h.consignments.Resolve(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return c, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
