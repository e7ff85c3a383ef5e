package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/oci-onboarding/app"
	"github.com/upb/oci-onboarding/handlers"
	"github.com/upb/oci-onboarding/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if t := deps.Config.Server.RequestTimeout; t > 0 {
		r.Use(middleware.Timeout(t))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	health := handlers.NewHealthHandler(deps.AuditHealth(), deps.Logger)
	onboard := handlers.NewOnboardingHandler(deps.Onboarding, deps.Logger)
	customer := handlers.NewCustomerHandler(deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Onboarding is unauthenticated and rate limited per client IP
	r.With(deps.RateLimiter.RateLimit).Post("/onboard", onboard.HandleOnboard)

	r.Route("/customer", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Get("/me", customer.HandleMe)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteMethodNotAllowed(w)
	})

	return r
}
