package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/lead-router/internal/pkg/httputil"
)

// SetupRoutes configures the router. An empty apiKey leaves /api open, for
// local development only.
func SetupRoutes(h *Handlers, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://portal.ignite.media", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	// Liveness and metrics stay unauthenticated for the load balancer and
	// the Prometheus scraper.
	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if apiKey != "" {
			r.Use(requireAPIKey(apiKey))
		}
		r.Route("/v1", func(r chi.Router) {
			r.Get("/rules", h.ListRules)
			r.Post("/rules", h.CreateRule)
			r.Get("/rules/{ruleID}", h.GetRule)
			r.Put("/rules/{ruleID}", h.UpdateRule)
			r.Delete("/rules/{ruleID}", h.DeleteRule)

			r.Get("/flags", h.GetFlags)
			r.Get("/caps/{ruleID}", h.GetCapUsage)
			r.Get("/leads/unassigned", h.ListUnassignedLeads)
			r.Post("/leads/{funnelID}/{leadID}/assign", h.AssignLead)
		})
	})

	return r
}

func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got := req.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				httputil.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
