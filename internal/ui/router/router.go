// Package router sets up HTTP routes for the UI server.
package router

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/workbench/internal/ui/features/common"
	filesFeature "github.com/leapstack-labs/workbench/internal/ui/features/files"
	historyFeature "github.com/leapstack-labs/workbench/internal/ui/features/history"
	sessionFeature "github.com/leapstack-labs/workbench/internal/ui/features/session"
	tabsFeature "github.com/leapstack-labs/workbench/internal/ui/features/tabs"
	"github.com/leapstack-labs/workbench/internal/ui/resources"
)

// SetupRoutes configures all routes for the UI server.
func SetupRoutes(router chi.Router, sessions *common.Sessions, logger *slog.Logger) error {
	router.Handle("/", resources.IndexHandler())
	router.Handle("/static/*", resources.Handler())

	if err := sessionFeature.SetupRoutes(router, sessions, logger); err != nil {
		return err
	}
	if err := tabsFeature.SetupRoutes(router, sessions, logger); err != nil {
		return err
	}
	if err := filesFeature.SetupRoutes(router, sessions, logger); err != nil {
		return err
	}
	if err := historyFeature.SetupRoutes(router, sessions, logger); err != nil {
		return err
	}

	return nil
}
