package history

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/workbench/internal/ui/features/common"
)

// SetupRoutes configures routes for the history feature.
func SetupRoutes(router chi.Router, sessions *common.Sessions, logger *slog.Logger) error {
	h := NewHandlers(sessions, logger)

	router.Get("/api/history", h.List)
	router.Delete("/api/history/{id}", h.Delete)

	return nil
}
