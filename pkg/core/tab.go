package core

import "time"

// TabMode describes where a tab's executable SQL comes from.
type TabMode string

// Tab mode constants.
const (
	// TabModeRawSQL tabs execute their own text.
	TabModeRawSQL TabMode = "raw_sql"
	// TabModeBoundModel tabs execute the compiled SQL of an upstream model.
	TabModeBoundModel TabMode = "bound_model"
)

// Valid reports whether m is a known tab mode.
func (m TabMode) Valid() bool {
	return m == TabModeRawSQL || m == TabModeBoundModel
}

// Tab is one open, independently editable SQL buffer.
type Tab struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Mode           TabMode `json:"mode"`
	Text           string  `json:"text"`
	SourceFilePath string  `json:"sourceFilePath,omitempty"`
	BoundModelID   string  `json:"boundModelId,omitempty"`

	// Compiled-SQL cache payload. The four fields are cleared together.
	CompiledSQL              string `json:"compiledSql,omitempty"`
	CompiledChecksum         string `json:"compiledChecksum,omitempty"`
	CompiledTarget           string `json:"compiledTarget,omitempty"`
	CompiledForEnvironmentID string `json:"compiledForEnvironmentId,omitempty"`

	CompileError      string `json:"compileError,omitempty"`
	IsLoadingCompiled bool   `json:"isLoadingCompiled"`
	IsRunning         bool   `json:"isRunning"`

	IsDirty    bool      `json:"isDirty"`
	IsReadonly bool      `json:"isReadonly"`
	LastUsedAt time.Time `json:"lastUsedAt"`

	// Seq is the creation order within a session and breaks LRU ties.
	Seq int64 `json:"-"`
}

// HasCompiled reports whether the cache payload is populated.
func (t *Tab) HasCompiled() bool {
	return t.CompiledSQL != ""
}

// CompiledValidFor reports whether the cache payload may be used for envID.
func (t *Tab) CompiledValidFor(envID string) bool {
	return t.HasCompiled() && t.CompiledForEnvironmentID == envID
}

// ClearCompiled drops the cache payload and loading state.
func (t *Tab) ClearCompiled() {
	t.CompiledSQL = ""
	t.CompiledChecksum = ""
	t.CompiledTarget = ""
	t.CompiledForEnvironmentID = ""
	t.IsLoadingCompiled = false
}

// Layout holds the resizable pane sizes and the focus flag.
type Layout struct {
	LeftPaneWidth    int  `json:"leftPaneWidth"`
	BottomPaneHeight int  `json:"bottomPaneHeight"`
	IsEditorFocused  bool `json:"isEditorFocused"`
}

// Layout bounds and defaults in pixels.
const (
	MinLeftPaneWidth        = 220
	MaxLeftPaneWidth        = 520
	DefaultLeftPaneWidth    = 320
	MinBottomPaneHeight     = 180
	MaxBottomPaneHeight     = 520
	DefaultBottomPaneHeight = 280
)

// DefaultLayout returns the documented default layout.
func DefaultLayout() Layout {
	return Layout{
		LeftPaneWidth:    DefaultLeftPaneWidth,
		BottomPaneHeight: DefaultBottomPaneHeight,
	}
}

// EditorTheme is the editor color theme.
type EditorTheme string

// Editor themes.
const (
	ThemeLight EditorTheme = "light"
	ThemeDark  EditorTheme = "dark"
)

// DefaultTheme is used when a stored theme is unknown.
const DefaultTheme = ThemeLight

// Valid reports whether t is a known theme.
func (t EditorTheme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// BottomPanel identifies the panel shown under the editor.
type BottomPanel string

// Bottom panels.
const (
	PanelResults   BottomPanel = "results"
	PanelCompiled  BottomPanel = "compiled"
	PanelHistory   BottomPanel = "history"
	PanelLogs      BottomPanel = "logs"
	PanelProfiling BottomPanel = "profiling"
)

// DefaultPanel is used when a stored panel is unknown.
const DefaultPanel = PanelResults

// Valid reports whether p is a known panel.
func (p BottomPanel) Valid() bool {
	switch p {
	case PanelResults, PanelCompiled, PanelHistory, PanelLogs, PanelProfiling:
		return true
	}
	return false
}
