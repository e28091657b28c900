package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// Sanitizer errors. Each one drops the record.
var (
	ErrNotObject          = errors.New("session record is not an object")
	ErrUnsupportedVersion = errors.New("unsupported session version")
	ErrNoTabs             = errors.New("session record has no tabs")
)

// SanitizeOptions tunes Sanitize.
type SanitizeOptions struct {
	MaxTabs int
	NewID   func() string
}

// Sanitize strictly decodes a current-version record.
//
// The record itself must be an object tagged with CurrentVersion holding a
// non-empty tabs array, otherwise an error is returned. Inside that shell
// every field is coerced: wrong-typed scalars take their defaults, tabs
// that are not objects are skipped, layout sizes are clamped and unknown
// enum values fall back silently.
func Sanitize(data []byte, opts SanitizeOptions) (*Session, error) {
	if opts.MaxTabs <= 0 {
		opts.MaxTabs = DefaultMaxTabs
	}
	if opts.NewID == nil {
		opts.NewID = newID
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, ErrNotObject
	}

	var version float64
	if err := json.Unmarshal(raw["version"], &version); err != nil || version != CurrentVersion {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, strings.TrimSpace(string(raw["version"])))
	}

	var rawTabs []json.RawMessage
	if err := json.Unmarshal(raw["tabs"], &rawTabs); err != nil || len(rawTabs) == 0 {
		return nil, ErrNoTabs
	}

	s := &Session{Version: CurrentVersion}
	seen := make(map[string]bool, len(rawTabs))
	for _, rt := range rawTabs {
		rec, ok := sanitizeTab(rt, len(s.Tabs)+1, opts.NewID)
		if !ok {
			continue
		}
		for rec.ID == "" || seen[rec.ID] {
			rec.ID = opts.NewID()
		}
		seen[rec.ID] = true
		s.Tabs = append(s.Tabs, rec)
		if len(s.Tabs) == opts.MaxTabs {
			break
		}
	}
	if len(s.Tabs) == 0 {
		return nil, ErrNoTabs
	}

	s.ActiveTabID = stringField(raw["activeTabId"], "")
	if !seen[s.ActiveTabID] {
		s.ActiveTabID = s.Tabs[0].ID
	}

	if env := stringField(raw["environmentId"], ""); env != "" {
		s.EnvironmentID = &env
	}

	s.EditorTheme = core.EditorTheme(stringField(raw["editorTheme"], ""))
	if !s.EditorTheme.Valid() {
		s.EditorTheme = core.DefaultTheme
	}
	s.ActiveBottomPanel = core.BottomPanel(stringField(raw["activeBottomPanel"], ""))
	if !s.ActiveBottomPanel.Valid() {
		s.ActiveBottomPanel = core.DefaultPanel
	}

	s.Layout = sanitizeLayout(raw["layout"])
	return s, nil
}

func sanitizeTab(data json.RawMessage, ordinal int, newTabID func() string) (TabRecord, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return TabRecord{}, false
	}

	rec := TabRecord{
		ID:             stringField(raw["id"], ""),
		Title:          stringField(raw["title"], ""),
		Mode:           core.TabMode(stringField(raw["mode"], string(core.TabModeRawSQL))),
		Text:           stringField(raw["text"], ""),
		SourceFilePath: stringField(raw["sourceFilePath"], ""),
		BoundModelID:   stringField(raw["boundModelId"], ""),
		IsDirty:        boolField(raw["isDirty"]),
		IsReadonly:     boolField(raw["isReadonly"]),
		LastUsedAt:     timeField(raw["lastUsedAt"]),
	}
	if rec.ID == "" {
		rec.ID = newTabID()
	}
	if strings.TrimSpace(rec.Title) == "" {
		rec.Title = DefaultTitle(ordinal)
	}
	if !rec.Mode.Valid() || (rec.Mode == core.TabModeBoundModel && rec.BoundModelID == "") {
		rec.Mode = core.TabModeRawSQL
	}
	return rec, true
}

func sanitizeLayout(data json.RawMessage) core.Layout {
	l := core.DefaultLayout()
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return l
	}
	if w, ok := numberField(raw["leftPaneWidth"]); ok {
		l.LeftPaneWidth = ClampLeft(w)
	}
	if h, ok := numberField(raw["bottomPaneHeight"]); ok {
		l.BottomPaneHeight = ClampBottom(h)
	}
	l.IsEditorFocused = boolField(raw["isEditorFocused"])
	return l
}

// ClampLeft bounds a side pane width.
func ClampLeft(w int) int {
	return clamp(w, core.MinLeftPaneWidth, core.MaxLeftPaneWidth)
}

// ClampBottom bounds a bottom pane height.
func ClampBottom(h int) int {
	return clamp(h, core.MinBottomPaneHeight, core.MaxBottomPaneHeight)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultTitle names the n-th untitled tab.
func DefaultTitle(n int) string {
	return fmt.Sprintf("Query %d", n)
}

func stringField(data json.RawMessage, def string) string {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return def
	}
	return s
}

func boolField(data json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return false
	}
	return b
}

func numberField(data json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt32 {
		f = math.MaxInt32
	}
	if f < math.MinInt32 {
		f = math.MinInt32
	}
	return int(math.Round(f)), true
}

func timeField(data json.RawMessage) time.Time {
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return time.Time{}
	}
	return t.UTC()
}
