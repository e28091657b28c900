// Package session serves the session snapshot, its SSE update stream and
// the session-wide settings: environment, theme, panel, layout, workspace.
package session

import (
	"log/slog"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/workbench/internal/ui/features/common"
	"github.com/leapstack-labs/workbench/internal/workbench"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// Signals is the datastar signal payload patched on every update.
type Signals struct {
	Session workbench.Snapshot `json:"session"`
}

// Handlers provides HTTP handlers for the session feature.
type Handlers struct {
	sessions *common.Sessions
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions *common.Sessions, logger *slog.Logger) *Handlers {
	return &Handlers{sessions: sessions, logger: logger}
}

// Snapshot returns the session of the request's workspace.
func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, h.sessions.ForRequest(r).Snapshot())
}

// Updates is the long-lived SSE endpoint. It patches the snapshot once on
// connect and again whenever the session changes.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	wsID := h.sessions.WorkspaceID(r)
	m := h.sessions.Get(wsID)
	n := h.sessions.Notifier()

	updates := n.Subscribe(wsID)
	defer n.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(Signals{Session: m.Snapshot()}); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := sse.MarshalAndPatchSignals(Signals{Session: m.Snapshot()}); err != nil {
				h.logger.Debug("sse client gone", "workspace_id", wsID, "error", err)
				return
			}
		}
	}
}

type environmentRequest struct {
	EnvironmentID string `json:"environmentId"`
}

// SetEnvironment selects the session environment.
func (h *Handlers) SetEnvironment(w http.ResponseWriter, r *http.Request) {
	var req environmentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	m := h.sessions.ForRequest(r)
	if err := m.SetEnvironment(r.Context(), req.EnvironmentID); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, m.Snapshot())
}

// Environments lists the execution targets.
func (h *Handlers) Environments(w http.ResponseWriter, r *http.Request) {
	envs, err := h.sessions.ForRequest(r).Environments(r.Context())
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, envs)
}

type themeRequest struct {
	Theme core.EditorTheme `json:"theme"`
}

// SetTheme sets the editor theme.
func (h *Handlers) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	m := h.sessions.ForRequest(r)
	if err := m.SetTheme(req.Theme); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, m.Snapshot())
}

type panelRequest struct {
	Panel core.BottomPanel `json:"panel"`
}

// SetPanel selects the bottom panel.
func (h *Handlers) SetPanel(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	m := h.sessions.ForRequest(r)
	if err := m.SetBottomPanel(req.Panel); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, m.Snapshot())
}

// SetLayout replaces the layout; sizes are clamped to their bounds.
func (h *Handlers) SetLayout(w http.ResponseWriter, r *http.Request) {
	var req core.Layout
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	c := h.sessions.ForRequest(r).Layout()
	c.SetLayout(req)
	common.WriteJSON(w, http.StatusOK, c.Layout())
}

// ResetLayout restores the default layout.
func (h *Handlers) ResetLayout(w http.ResponseWriter, r *http.Request) {
	c := h.sessions.ForRequest(r).Layout()
	c.ResetLayout()
	common.WriteJSON(w, http.StatusOK, c.Layout())
}

type focusRequest struct {
	Focused bool `json:"focused"`
}

// SetFocus records whether the editor has focus.
func (h *Handlers) SetFocus(w http.ResponseWriter, r *http.Request) {
	var req focusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	c := h.sessions.ForRequest(r).Layout()
	if req.Focused {
		c.FocusEditor()
	} else {
		c.UnfocusEditor()
	}
	common.WriteJSON(w, http.StatusOK, c.Layout())
}

type workspaceRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

// SetWorkspace binds the browser to another workspace identity.
func (h *Handlers) SetWorkspace(w http.ResponseWriter, r *http.Request) {
	var req workspaceRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	// Persist the session being left before the browser moves on.
	h.sessions.ForRequest(r).Flush()
	if err := h.sessions.SetWorkspaceID(w, r, req.WorkspaceID); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, h.sessions.Get(req.WorkspaceID).Snapshot())
}

type flushResponse struct {
	Written bool `json:"written"`
}

// Flush persists the session now.
func (h *Handlers) Flush(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, flushResponse{Written: h.sessions.ForRequest(r).Flush()})
}

// Metadata refreshes and returns the catalog.
func (h *Handlers) Metadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.sessions.ForRequest(r).RefreshMetadata(r.Context())
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, md)
}
