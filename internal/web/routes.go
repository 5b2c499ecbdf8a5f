package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-registry/internal/web/handlers"
	"github.com/kozaktomas/face-registry/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	identitiesHandler := handlers.NewIdentitiesHandler(s.engine,
		s.config.Matching.MinImages, s.config.Matching.MinFaces, s.logger)
	recognitionHandler := handlers.NewRecognitionHandler(s.engine, s.logger)
	indexHandler := handlers.NewIndexHandler(s.engine, s.logger)

	// Write endpoints are guarded only when a JWT secret is configured
	guard := s.writeGuard()

	if s.registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", indexHandler.Health)

		r.Post("/recognize", recognitionHandler.Recognize)
		r.Get("/identities", identitiesHandler.List)
		r.Get("/identities/{id}", identitiesHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(guard)
			r.Post("/identities", identitiesHandler.Register)
			r.Post("/index/rebuild", indexHandler.Rebuild)
		})
	})

	// Legacy form endpoints
	s.router.With(guard).Post("/register", identitiesHandler.Register)
	s.router.Post("/recognize", recognitionHandler.Recognize)
}

func (s *Server) writeGuard() func(http.Handler) http.Handler {
	if s.config.Auth.JWTSecret == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RequireJWT(s.config.Auth.JWTSecret, s.config.Auth.JWTAudience)
}
