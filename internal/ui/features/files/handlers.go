// Package files serves the project file tree, opening files into tabs and
// saving the active tab.
package files

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/leapstack-labs/workbench/internal/filetree"
	"github.com/leapstack-labs/workbench/internal/ui/features/common"
	"github.com/leapstack-labs/workbench/internal/workbench"
)

// Handlers provides HTTP handlers for the files feature.
type Handlers struct {
	sessions *common.Sessions
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions *common.Sessions, logger *slog.Logger) *Handlers {
	return &Handlers{sessions: sessions, logger: logger}
}

type openRequest struct {
	Path string `json:"path"`
}

type openResponse struct {
	TabID   string `json:"tabId"`
	Created bool   `json:"created"`
	Reused  bool   `json:"reused"`
}

// Open loads a project file into a tab.
func (h *Handlers) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	res, err := h.sessions.ForRequest(r).LoadFileIntoTab(r.Context(), req.Path)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, openResponse{TabID: res.TabID, Created: res.Created, Reused: res.Reused})
}

type saveRequest struct {
	Message    string `json:"message"`
	Authorized bool   `json:"authorized"`
}

// Save writes the active tab back to its file.
func (h *Handlers) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	res, err := h.sessions.ForRequest(r).SaveActiveTab(r.Context(), workbench.SaveOptions{
		Message:    req.Message,
		Authorized: req.Authorized,
	})
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}

// Row is one display row of the tree.
type Row struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
	Depth    int    `json:"depth"`
}

type treeResponse struct {
	Tree         []*filetree.Node `json:"tree"`
	Rows         []Row            `json:"rows"`
	AutoExpanded []string         `json:"autoExpanded"`
}

// Tree returns the file tree filtered by ?q= with the folders listed in
// ?expanded= (repeated or comma separated) open.
func (h *Handlers) Tree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expanded := map[string]bool{}
	for _, v := range q["expanded"] {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				expanded[p] = true
			}
		}
	}

	view, err := h.sessions.ForRequest(r).FileTree(r.Context(), q.Get("q"), expanded)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	resp := treeResponse{Tree: view.Tree, Rows: make([]Row, 0, len(view.Rows)), AutoExpanded: view.AutoExpanded}
	for _, row := range view.Rows {
		resp.Rows = append(resp.Rows, Row{
			Name:     row.Node.Name,
			Path:     row.Node.Path,
			Type:     string(row.Node.Type),
			Category: row.Node.Category,
			Depth:    row.Depth,
		})
	}
	common.WriteJSON(w, http.StatusOK, resp)
}

// Status reports the version-control state of the project.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.ForRequest(r).VCSStatus(r.Context())
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, st)
}
