package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/copwatch-uk/copwatch/internal/web/handlers"
	"github.com/copwatch-uk/copwatch/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.config.AuthToken))

			// Media
			r.Post("/media", s.media.Upload)
			r.Post("/media/check", s.media.Check)
			r.Get("/media/{uid}", s.media.Get)
			r.Get("/media/{uid}/appearances", s.media.Appearances)

			// Officers
			r.Get("/officers", s.officers.List)
			r.Get("/officers/{id}", s.officers.Get)
			r.Patch("/officers/{id}", s.officers.Update)
			r.Get("/officers/{id}/appearances", s.officers.Appearances)
			r.Get("/officers/{id}/merges", s.merges.ListForOfficer)

			// Merges
			r.Get("/merges/candidates", s.merges.Candidates)
			r.Post("/merges", s.merges.Create)
			r.Post("/merges/{id}/unmerge", s.merges.Unmerge)
		})
	})
}
