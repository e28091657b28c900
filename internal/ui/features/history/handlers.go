// Package history serves the query history.
package history

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/workbench/internal/ui/features/common"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// Handlers provides HTTP handlers for the history feature.
type Handlers struct {
	sessions *common.Sessions
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions *common.Sessions, logger *slog.Logger) *Handlers {
	return &Handlers{sessions: sessions, logger: logger}
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", common.ErrBadRequest, name)
	}
	return n, nil
}

// List returns one page of history filtered by ?search=, ?environmentId=,
// ?status=, ?limit= and ?offset=.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	page, err := h.sessions.ForRequest(r).History(r.Context(), core.HistoryFilter{
		Search:        q.Get("search"),
		EnvironmentID: q.Get("environmentId"),
		Status:        q.Get("status"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, page)
}

// Delete removes one entry.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.ForRequest(r).DeleteHistoryEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
