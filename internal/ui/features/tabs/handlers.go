// Package tabs serves the editor tabs: opening, closing, renaming, editing,
// compiling and executing them.
package tabs

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/workbench/internal/ui/features/common"
	"github.com/leapstack-labs/workbench/internal/workbench"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// Handlers provides HTTP handlers for the tabs feature.
type Handlers struct {
	sessions *common.Sessions
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions *common.Sessions, logger *slog.Logger) *Handlers {
	return &Handlers{sessions: sessions, logger: logger}
}

// List returns the open tabs.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, h.sessions.ForRequest(r).Tabs())
}

type openRequest struct {
	Title      string       `json:"title"`
	Mode       core.TabMode `json:"mode"`
	Text       *string      `json:"text"`
	FilePath   string       `json:"filePath"`
	ModelID    string       `json:"modelId"`
	ForceNew   bool         `json:"forceNew"`
	IsReadonly bool         `json:"isReadonly"`
}

type openResponse struct {
	TabID   string `json:"tabId"`
	Created bool   `json:"created"`
	Reused  bool   `json:"reused"`
	Evicted string `json:"evicted,omitempty"`
}

func toOpenResponse(res workbench.OpenResult) openResponse {
	return openResponse{TabID: res.TabID, Created: res.Created, Reused: res.Reused, Evicted: res.Evicted}
}

// Open opens or reuses a tab.
func (h *Handlers) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	res, err := h.sessions.ForRequest(r).OpenTab(workbench.OpenOptions{
		Title:      req.Title,
		Mode:       req.Mode,
		Text:       req.Text,
		FilePath:   req.FilePath,
		ModelID:    req.ModelID,
		ForceNew:   req.ForceNew,
		IsReadonly: req.IsReadonly,
	})
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	common.WriteJSON(w, status, toOpenResponse(res))
}

// Close closes a tab. A dirty tab needs ?force=true, which the client sends
// after the user confirmed discarding the edits.
func (h *Handlers) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m := h.sessions.ForRequest(r)

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	var err error
	if force {
		err = m.ForceCloseTab(id)
	} else {
		err = m.CloseTab(id)
	}
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activate makes a tab active.
func (h *Handlers) Activate(w http.ResponseWriter, r *http.Request) {
	m := h.sessions.ForRequest(r)
	if err := m.SetActiveTab(chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, m.ActiveTab())
}

type renameRequest struct {
	Title string `json:"title"`
}

// Rename retitles a tab.
func (h *Handlers) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	m := h.sessions.ForRequest(r)
	if err := m.RenameTab(chi.URLParam(r, "id"), req.Title); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type textRequest struct {
	Text string `json:"text"`
}

// UpdateText replaces the active tab's buffer.
func (h *Handlers) UpdateText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	m := h.sessions.ForRequest(r)
	if err := m.UpdateActiveText(req.Text); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, m.ActiveTab())
}

type compileRequest struct {
	Force         bool   `json:"force"`
	Hydrate       bool   `json:"hydrate"`
	ModelID       string `json:"modelId"`
	EnvironmentID string `json:"environmentId"`
}

// Compile resolves the compiled SQL of a bound-model tab.
func (h *Handlers) Compile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteError(w, h.logger, err)
			return
		}
	}
	compiled, err := h.sessions.ForRequest(r).ResolveCompiled(r.Context(), chi.URLParam(r, "id"), workbench.ResolveOptions{
		Force:            req.Force,
		HydrateSourceSQL: req.Hydrate,
		ModelID:          req.ModelID,
		EnvironmentID:    req.EnvironmentID,
	})
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, compiled)
}

// ExecuteSignals are the request fields of an execution, sent as JSON or
// as datastar signals.
type ExecuteSignals struct {
	TabID            string `json:"tabId"`
	SQL              string `json:"sql"`
	IncludeProfiling bool   `json:"includeProfiling"`
}

func (s ExecuteSignals) options() workbench.ExecuteOptions {
	return workbench.ExecuteOptions{TabID: s.TabID, SQL: s.SQL, IncludeProfiling: s.IncludeProfiling}
}

// Execute runs a tab and returns the new result tab.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteSignals
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	res, err := h.sessions.ForRequest(r).Execute(r.Context(), req.options())
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}

// ExecuteSignalsResult is patched back to the datastar client.
type ExecuteSignalsResult struct {
	Running    bool            `json:"running"`
	LastResult *core.ResultTab `json:"lastResult,omitempty"`
	LastError  string          `json:"lastError"`
}

// ExecuteSSE runs a tab from datastar signals and patches the outcome.
func (h *Handlers) ExecuteSSE(w http.ResponseWriter, r *http.Request) {
	// Signals are read before the SSE writer takes over the response.
	var signals ExecuteSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		sse := datastar.NewSSE(w, r)
		_ = sse.MarshalAndPatchSignals(ExecuteSignalsResult{LastError: fmt.Sprintf("failed to read signals: %v", err)})
		return
	}
	m := h.sessions.ForRequest(r)

	sse := datastar.NewSSE(w, r)
	_ = sse.MarshalAndPatchSignals(ExecuteSignalsResult{Running: true})

	res, err := m.Execute(r.Context(), signals.options())
	if err != nil {
		_ = sse.MarshalAndPatchSignals(ExecuteSignalsResult{LastError: err.Error()})
		return
	}
	_ = sse.MarshalAndPatchSignals(ExecuteSignalsResult{LastResult: res})
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// Cancel abandons a tab's in-flight execution.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	ok := h.sessions.ForRequest(r).CancelExecution(chi.URLParam(r, "id"))
	common.WriteJSON(w, http.StatusOK, cancelResponse{Cancelled: ok})
}

// Complete returns suggestions for the active tab at ?cursor=N.
func (h *Handlers) Complete(w http.ResponseWriter, r *http.Request) {
	cursor, err := strconv.Atoi(r.URL.Query().Get("cursor"))
	if err != nil || cursor < 0 {
		common.WriteError(w, h.logger, fmt.Errorf("%w: cursor must be a non-negative integer", common.ErrBadRequest))
		return
	}
	common.WriteJSON(w, http.StatusOK, h.sessions.ForRequest(r).Complete(cursor))
}
