package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/rakeshshah18/philanzel-sub001/pkg/health"
	"github.com/rakeshshah18/philanzel-sub001/pkg/middleware"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/service"
)

// RouterConfig carries the transport settings the router needs.
type RouterConfig struct {
	ServiceName        string
	CORSAllowedOrigins []string
	PprofCIDRs         []string

	// Token bucket for the public routes, per client IP. Zero disables it.
	PublicRPS   float64
	PublicBurst int
	// Recalculation runs allowed per minute across all callers. Zero
	// disables the limit.
	RecalculatePerMinute int
}

// NewRouter creates a chi router with all review service routes registered.
func NewRouter(
	reviewService *service.ReviewSectionService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins)))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("review"))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	h := NewReviewSectionHandler(reviewService, logger)

	// Public endpoints read by the site renderer.
	r.Route("/api/v1/review-sections", func(r chi.Router) {
		r.Use(middleware.RateLimit(rate.Limit(cfg.PublicRPS), cfg.PublicBurst, middleware.ClientIP, logger))
		r.Use(middleware.CacheControl("no-cache"))

		r.Get("/", h.ListActiveSections)
		r.Get("/{id}/reviews", h.ListVisibleReviews)
	})

	// Admin endpoints. The gateway authenticates the caller and forwards
	// its identity headers.
	r.Route("/api/v1/admin/review-sections", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.GatewayIdentity())
		r.Use(middleware.RequireRole(middleware.RoleAdmin))
		r.Use(middleware.CacheControl("no-store"))

		r.Get("/", h.ListSections)
		r.Post("/", h.CreateSection)

		// Must come before /{id}.
		r.With(middleware.RateLimit(recalculateLimit(cfg.RecalculatePerMinute), 1, middleware.GlobalKey, logger)).
			Post("/recalculate", h.Recalculate)

		r.Get("/{id}", h.GetSection)
		r.Patch("/{id}", h.UpdateSectionMeta)

		r.Put("/{id}/reviews", h.ReplaceReviews)
		r.Post("/{id}/reviews", h.AddReview)
		r.Patch("/{id}/reviews/{ref}", h.UpdateReview)
		r.Delete("/{id}/reviews/{ref}", h.DeleteReview)
		r.Put("/{id}/reviews/{ref}/visibility", h.SetReviewVisibility)
	})

	return r
}

func recalculateLimit(perMinute int) rate.Limit {
	if perMinute <= 0 {
		return 0
	}
	return rate.Every(time.Minute / time.Duration(perMinute))
}
