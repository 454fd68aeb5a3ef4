package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vendra/activity-service/internal/domain"
	"github.com/vendra/activity-service/internal/metrics"
	"github.com/vendra/activity-service/internal/security"
	"github.com/vendra/activity-service/internal/transport/rest/response"
)

type RouterDeps struct {
	Cache     domain.CacheRepository
	Handler   *Handler
	Verifier  security.AccessTokenVerifier
	JWTIssuer string

	RateLimitEnabled bool
	RateLimit        int
	RateLimitWindow  time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	// Cross-cutting
	if d.RateLimitEnabled && d.Cache != nil {
		r.Use(RateLimitMiddleware(d.Cache, RateLimitOptions{
			Limit:  d.RateLimit,
			Window: d.RateLimitWindow,
		}))
	}
	r.Use(SecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.MetricsHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(d.Verifier, AuthOptions{ExpectedIssuer: d.JWTIssuer}))

		r.Post("/activities", d.Handler.IngestBatch)

		r.Get("/me/activities", d.Handler.MeActivities)
		r.Get("/me/preferences", d.Handler.MePreferences)
	})

	return r
}
