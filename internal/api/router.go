package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/covergen/internal/api/middleware"
	"github.com/kiranshivaraju/covergen/internal/api/response"
	"github.com/rs/zerolog"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Logger    zerolog.Logger
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	GenerateHandler  http.HandlerFunc
	GetJobHandler    http.HandlerFunc
	JobStatusHandler http.HandlerFunc
	CreateJobHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger(deps.Logger))
	r.Use(mw.Recovery(deps.Logger))

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/covers/generate", orNotImplemented(deps.GenerateHandler))
		r.Get("/api/v1/covers/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Get("/api/v1/covers/jobs/{jobID}/status", orNotImplemented(deps.JobStatusHandler))

		r.Post("/api/v1/manuscripts/{manuscriptID}/cover-jobs", orNotImplemented(deps.CreateJobHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
