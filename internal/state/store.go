// Package state persists workbench sessions.
//
// A session is stored as one versioned JSON record per workspace under
// Key(workspaceID). A legacy single-buffer record under LegacyKey is read
// once, migrated into the current format and removed. Two core.Storage
// backends are provided: MemoryStore and SQLiteStore.
package state

import (
	"time"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// CurrentVersion is the only record version Load accepts without migration.
const CurrentVersion = 2

// LegacyKey is the fixed, workspace-agnostic key of the single-buffer record.
const LegacyKey = "workbench:editor-state"

// keyPrefix namespaces current-version records apart from LegacyKey.
const keyPrefix = "workbench:session:v2:"

// DefaultWorkspace is used when no workspace identity is given.
const DefaultWorkspace = "default"

// DefaultMaxTabs caps the number of tabs kept by the sanitizer.
const DefaultMaxTabs = 12

// Key returns the storage key of a workspace's session record.
func Key(workspaceID string) string {
	if workspaceID == "" {
		workspaceID = DefaultWorkspace
	}
	return keyPrefix + workspaceID
}

// Session is the persisted projection of a workbench session.
type Session struct {
	Version           int              `json:"version"`
	Tabs              []TabRecord      `json:"tabs"`
	ActiveTabID       string           `json:"activeTabId"`
	EnvironmentID     *string          `json:"environmentId"`
	EditorTheme       core.EditorTheme `json:"editorTheme"`
	ActiveBottomPanel core.BottomPanel `json:"activeBottomPanel"`
	Layout            core.Layout      `json:"layout"`
}

// Environment returns the selected environment id, or "" for the default.
func (s *Session) Environment() string {
	if s.EnvironmentID == nil {
		return ""
	}
	return *s.EnvironmentID
}

// TabRecord is the persisted subset of a core.Tab. Compiled-SQL cache and
// loading state are environment-bound and never stored.
type TabRecord struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Mode           core.TabMode `json:"mode"`
	Text           string       `json:"text"`
	SourceFilePath string       `json:"sourceFilePath,omitempty"`
	BoundModelID   string       `json:"boundModelId,omitempty"`
	IsDirty        bool         `json:"isDirty"`
	IsReadonly     bool         `json:"isReadonly"`
	LastUsedAt     time.Time    `json:"lastUsedAt"`
}

// RecordFromTab projects a runtime tab onto its persisted fields.
func RecordFromTab(t *core.Tab) TabRecord {
	return TabRecord{
		ID:             t.ID,
		Title:          t.Title,
		Mode:           t.Mode,
		Text:           t.Text,
		SourceFilePath: t.SourceFilePath,
		BoundModelID:   t.BoundModelID,
		IsDirty:        t.IsDirty,
		IsReadonly:     t.IsReadonly,
		LastUsedAt:     t.LastUsedAt.UTC(),
	}
}

// Tab rebuilds a runtime tab with an empty compiled-SQL cache.
func (r TabRecord) Tab() *core.Tab {
	return &core.Tab{
		ID:             r.ID,
		Title:          r.Title,
		Mode:           r.Mode,
		Text:           r.Text,
		SourceFilePath: r.SourceFilePath,
		BoundModelID:   r.BoundModelID,
		IsDirty:        r.IsDirty,
		IsReadonly:     r.IsReadonly,
		LastUsedAt:     r.LastUsedAt,
	}
}

// LegacyRecord is the single-buffer format written by earlier releases.
type LegacyRecord struct {
	SQLText         string  `json:"sqlText"`
	EnvironmentID   *string `json:"environmentId"`
	Mode            string  `json:"mode"`
	EditorTheme     string  `json:"editorTheme"`
	SelectedModelID *string `json:"selectedModelId"`
}
