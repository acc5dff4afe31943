// Package handler serves public population reports.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certregistry/internal/census/models"
	dErrors "certregistry/pkg/domain-errors"
	"certregistry/pkg/platform/httputil"
	"certregistry/pkg/requestcontext"
)

type Service interface {
	Population(ctx context.Context, series models.SeriesKey) ([]models.GradeCount, error)
}

type Handler struct {
	census Service
	logger *slog.Logger
}

func New(census Service, logger *slog.Logger) *Handler {
	return &Handler{census: census, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/census/{slug}/{strike}/{year}", h.handlePopulation)
}

type populationResponse struct {
	models.SeriesKey
	Total  int                 `json:"total"`
	Grades []models.GradeCount `json:"grades"`
}

func (h *Handler) handlePopulation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "year must be a number"))
		return
	}
	series := models.SeriesKey{
		Slug:   chi.URLParam(r, "slug"),
		Strike: chi.URLParam(r, "strike"),
		Year:   year,
	}
	rows, err := h.census.Population(ctx, series)
	if err != nil {
		if httputil.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "population query failed",
				"error", err,
				"series", series.String(),
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		httputil.WriteError(w, err)
		return
	}
	total := 0
	for _, row := range rows {
		total += row.Count
	}
	httputil.WriteJSON(w, http.StatusOK, populationResponse{SeriesKey: series, Total: total, Grades: rows})
}
