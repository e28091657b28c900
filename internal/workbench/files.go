package workbench

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/workbench/internal/filetree"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// LoadFileIntoTab reads path from the file service and opens it in a clean
// tab, merging with a tab already showing the file or its model. A file
// that is the source of a known model opens bound to that model and its
// compiled SQL is force-refreshed, hydrating the buffer from the compiler's
// reported source. A failed read leaves the session untouched.
func (m *Manager) LoadFileIntoTab(ctx context.Context, filePath string) (OpenResult, error) {
	if m.cfg.Files == nil {
		return OpenResult{}, ErrNotConfigured
	}
	filePath = NormalizePath(filePath)

	content, err := m.cfg.Files.ReadFile(ctx, filePath)
	if err != nil {
		m.mu.Lock()
		m.output(core.OutputError, fmt.Sprintf("Failed to open %s: %v", filePath, err))
		m.unlock()
		return OpenResult{}, serviceErr("read file", err)
	}

	m.mu.Lock()
	md := m.metadata
	m.mu.Unlock()
	if md == nil && m.cfg.Query != nil {
		// model matching degrades to raw SQL without metadata
		md, _ = m.RefreshMetadata(ctx)
	}

	opts := OpenOptions{
		Mode:       core.TabModeRawSQL,
		FilePath:   filePath,
		Text:       &content.Content,
		IsReadonly: content.Readonly,
	}
	model, isModel := modelForPath(md, filePath)
	if isModel {
		opts.Mode = core.TabModeBoundModel
		opts.ModelID = model.UniqueID
		opts.Title = model.Name
	}

	m.mu.Lock()
	res, err := m.openTabLocked(opts)
	if err == nil {
		m.output(core.OutputInfo, fmt.Sprintf("Opened %s", filePath))
	}
	m.unlock()
	if err != nil {
		return OpenResult{}, err
	}

	if isModel {
		_, err := m.ResolveCompiled(ctx, res.TabID, ResolveOptions{Force: true, HydrateSourceSQL: true})
		if err != nil && !errors.Is(err, ErrStaleResponse) {
			m.logger.Debug("compile after open failed", "tab_id", res.TabID, "error", err)
		}
	}
	return res, nil
}

func modelForPath(md *core.Metadata, filePath string) (core.Relation, bool) {
	if md == nil {
		return core.Relation{}, false
	}
	want := NormalizePath(filePath)
	for _, r := range md.Models {
		if r.UniqueID != "" && NormalizePath(r.OriginalFilePath) == want {
			return r, true
		}
	}
	return core.Relation{}, false
}

// SaveOptions tunes SaveActiveTab.
type SaveOptions struct {
	Message    string
	Authorized bool
}

// SaveActiveTab writes the active tab through the file service. It needs a
// backing file, a writable tab and caller authorization. A rejected write
// returns a *ValidationError and leaves the tab unchanged. After a
// successful write the file is re-read and the tab is marked clean, unless
// it was edited while the write was in flight.
func (m *Manager) SaveActiveTab(ctx context.Context, opts SaveOptions) (*core.WriteResult, error) {
	m.mu.Lock()
	tab, ok := m.state.ActiveTab()
	m.mu.Unlock()

	switch {
	case !ok:
		return nil, ErrTabNotFound
	case tab.SourceFilePath == "":
		return nil, ErrNoFilePath
	case tab.IsReadonly:
		return nil, ErrReadonly
	case !opts.Authorized:
		return nil, ErrUnauthorized
	case m.cfg.Files == nil:
		return nil, ErrNotConfigured
	}

	written := tab.Text
	res, err := m.cfg.Files.WriteFile(ctx, core.WriteRequest{
		Path:    tab.SourceFilePath,
		Content: written,
		Message: opts.Message,
	})
	if err != nil {
		m.mu.Lock()
		m.output(core.OutputError, fmt.Sprintf("Failed to save %s: %v", tab.SourceFilePath, err))
		m.unlock()
		return nil, serviceErr("write file", err)
	}
	if res == nil || !res.IsValid {
		ve := &ValidationError{Path: tab.SourceFilePath}
		if res != nil {
			ve.Errors = res.Errors
		}
		m.mu.Lock()
		m.output(core.OutputError, ve.Error())
		m.unlock()
		return res, ve
	}

	reread, readErr := m.cfg.Files.ReadFile(ctx, tab.SourceFilePath)

	m.mu.Lock()
	defer m.unlock()
	if readErr != nil {
		reread = nil
		m.output(core.OutputWarning, fmt.Sprintf("Saved %s but could not reload it: %v", tab.SourceFilePath, readErr))
	} else {
		m.output(core.OutputSuccess, fmt.Sprintf("Saved %s", tab.SourceFilePath))
	}
	m.commit(ApplySaved(m.state, tab.ID, written, reread))
	return res, nil
}

// FileTreeView is the indexed project tree plus its display rows.
type FileTreeView struct {
	Tree         []*filetree.Node `json:"tree"`
	Rows         []filetree.Row   `json:"-"`
	AutoExpanded []string         `json:"autoExpanded"`
}

// FileTree lists project files and indexes them. A non-empty query filters
// the tree; folders kept for a matching descendant are expanded in Rows in
// addition to expanded.
func (m *Manager) FileTree(ctx context.Context, query string, expanded map[string]bool) (*FileTreeView, error) {
	if m.cfg.Files == nil {
		return nil, ErrNotConfigured
	}
	records, err := m.cfg.Files.ListFiles(ctx)
	if err != nil {
		return nil, serviceErr("list files", err)
	}

	tree := filetree.BuildTree(records)
	filtered, auto := filetree.Filter(tree, query)

	open := make(map[string]bool, len(expanded)+len(auto))
	for p, v := range expanded {
		open[p] = v
	}
	for _, p := range auto {
		open[p] = true
	}
	return &FileTreeView{
		Tree:         filtered,
		Rows:         filetree.Flatten(filtered, open),
		AutoExpanded: auto,
	}, nil
}

// VCSStatus reports the file service status.
func (m *Manager) VCSStatus(ctx context.Context) (*core.VCSStatus, error) {
	if m.cfg.Files == nil {
		return nil, ErrNotConfigured
	}
	st, err := m.cfg.Files.Status(ctx)
	if err != nil {
		return nil, serviceErr("read status", err)
	}
	return st, nil
}
