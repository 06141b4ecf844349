package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/web/handlers"
	"github.com/kozaktomas/face-registry/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	identitiesHandler := handlers.NewIdentitiesHandler(s.config, s.enroller, s.verifier, s.logger)
	verifyHandler := handlers.NewVerifyHandler(s.config, s.verifier, s.logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/identities", identitiesHandler.List)
		r.Get("/identities/{name}", identitiesHandler.Get)
		r.Get("/cache", verifyHandler.CacheStatus)

		// Writes require the API token when one is configured
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.config.API.Token))

			r.Post("/identities", identitiesHandler.Enroll)
			r.Put("/identities/{name}", identitiesHandler.Edit)
			r.Delete("/identities/{name}", identitiesHandler.Delete)
		})

		r.With(middleware.RateLimit(s.config.API.VerifyRateLimit)).Post("/verify", verifyHandler.Verify)
	})
}
