package files

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/workbench/internal/ui/features/common"
)

// SetupRoutes configures routes for the files feature.
func SetupRoutes(router chi.Router, sessions *common.Sessions, logger *slog.Logger) error {
	h := NewHandlers(sessions, logger)

	router.Get("/api/files/tree", h.Tree)
	router.Post("/api/files/open", h.Open)
	router.Post("/api/files/save", h.Save)
	router.Get("/api/vcs", h.Status)

	return nil
}
