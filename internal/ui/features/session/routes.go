package session

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/workbench/internal/ui/features/common"
)

// SetupRoutes configures routes for the session feature.
func SetupRoutes(router chi.Router, sessions *common.Sessions, logger *slog.Logger) error {
	h := NewHandlers(sessions, logger)

	router.Get("/api/session", h.Snapshot)
	router.Get("/api/session/updates", h.Updates)
	router.Post("/api/session/flush", h.Flush)
	router.Put("/api/session/environment", h.SetEnvironment)
	router.Put("/api/session/theme", h.SetTheme)
	router.Put("/api/session/panel", h.SetPanel)
	router.Put("/api/session/layout", h.SetLayout)
	router.Post("/api/session/layout/reset", h.ResetLayout)
	router.Put("/api/session/layout/focus", h.SetFocus)
	router.Put("/api/workspace", h.SetWorkspace)
	router.Get("/api/environments", h.Environments)
	router.Get("/api/metadata", h.Metadata)

	return nil
}
