// Package httptransport assembles the public and staff route groups.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	censushandler "certregistry/internal/census/handler"
	certhandler "certregistry/internal/certificate/handler"
	consignmenthandler "certregistry/internal/consignment/handler"
	jwttoken "certregistry/internal/jwt_token"
	"certregistry/internal/platform/metrics"
	"certregistry/internal/platform/middleware"
	"certregistry/pkg/platform/httputil"
)

// requestTimeout bounds handler time; transactions carry their own timeout.
const requestTimeout = 30 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps collects what the router mounts.
type Deps struct {
	Certificates *certhandler.Handler
	Census       *censushandler.Handler
	Consignments *consignmenthandler.Handler
	Tokens       middleware.TokenValidator
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Health       map[string]HealthCheck
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(d.Logger, d.Metrics))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/healthz", healthz(d.Health))
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	d.Certificates.RegisterPublic(r)
	d.Census.Register(r)

	r.Group(func(staff chi.Router) {
		staff.Use(middleware.RequireAuth(d.Tokens, d.Logger))
		staff.Use(middleware.RequireRole(d.Logger, jwttoken.RoleStaff, jwttoken.RoleAdmin))
		d.Certificates.RegisterStaff(staff)
		d.Consignments.Register(staff)
	})
	return r
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
