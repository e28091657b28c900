package tabs

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/workbench/internal/ui/features/common"
)

// SetupRoutes configures routes for the tabs feature.
func SetupRoutes(router chi.Router, sessions *common.Sessions, logger *slog.Logger) error {
	h := NewHandlers(sessions, logger)

	router.Route("/api/tabs", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Open)
		r.Put("/active/text", h.UpdateText)
		r.Delete("/{id}", h.Close)
		r.Post("/{id}/activate", h.Activate)
		r.Put("/{id}/title", h.Rename)
		r.Post("/{id}/compile", h.Compile)
		r.Post("/{id}/cancel", h.Cancel)
	})
	router.Post("/api/execute", h.Execute)
	router.Post("/api/execute/sse", h.ExecuteSSE)
	router.Get("/api/complete", h.Complete)

	return nil
}
