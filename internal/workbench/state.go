package workbench

import (
	"path"
	"strings"
	"time"

	"github.com/leapstack-labs/workbench/internal/state"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// DefaultMaxTabs is the open-tab cap.
const DefaultMaxTabs = 12

// State is the explicit session state. Transition functions take a State
// and return a new one; the input is never modified.
type State struct {
	Tabs              []core.Tab
	ActiveTabID       string
	EnvironmentID     string
	EditorTheme       core.EditorTheme
	ActiveBottomPanel core.BottomPanel
	Layout            core.Layout
	MaxTabs           int
	// NextSeq is the creation counter handed to the next new tab.
	NextSeq int64
}

// NewState creates a session holding one fresh raw-SQL tab.
func NewState(maxTabs int, id string, now time.Time) State {
	if maxTabs <= 0 {
		maxTabs = DefaultMaxTabs
	}
	s := State{
		EditorTheme:       core.DefaultTheme,
		ActiveBottomPanel: core.DefaultPanel,
		Layout:            core.DefaultLayout(),
		MaxTabs:           maxTabs,
	}
	return s.withDefaultTab(id, now)
}

func (s State) clone() State {
	s.Tabs = append([]core.Tab(nil), s.Tabs...)
	return s
}

func (s State) index(id string) int {
	for i := range s.Tabs {
		if s.Tabs[i].ID == id {
			return i
		}
	}
	return -1
}

// Tab returns a copy of the tab with id.
func (s State) Tab(id string) (core.Tab, bool) {
	if i := s.index(id); i >= 0 {
		return s.Tabs[i], true
	}
	return core.Tab{}, false
}

// ActiveTab returns a copy of the active tab.
func (s State) ActiveTab() (core.Tab, bool) {
	return s.Tab(s.ActiveTabID)
}

func (s State) withDefaultTab(id string, now time.Time) State {
	s.Tabs = append(s.Tabs, core.Tab{
		ID:         id,
		Title:      state.DefaultTitle(int(s.NextSeq) + 1),
		Mode:       core.TabModeRawSQL,
		LastUsedAt: now,
		Seq:        s.NextSeq,
	})
	s.NextSeq++
	s.ActiveTabID = id
	return s
}

// OpenOptions describes a tab to open.
type OpenOptions struct {
	Title string
	Mode  core.TabMode
	// Text replaces the buffer when set. An existing tab that receives
	// text is marked clean.
	Text       *string
	FilePath   string
	ModelID    string
	ForceNew   bool
	IsReadonly bool
}

// OpenResult reports what ApplyOpenTab did.
type OpenResult struct {
	TabID   string
	Created bool
	Reused  bool
	// Evicted is the id of the tab dropped to make room.
	Evicted string
}

// NormalizePath canonicalizes a project-relative path for comparison.
func NormalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return ""
	}
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// FindMatch returns the id of an open tab for the same file or bound model.
func (s State) FindMatch(opts OpenOptions) string {
	file := NormalizePath(opts.FilePath)
	for _, t := range s.Tabs {
		if file != "" && NormalizePath(t.SourceFilePath) == file {
			return t.ID
		}
		if opts.Mode == core.TabModeBoundModel && opts.ModelID != "" &&
			t.Mode == core.TabModeBoundModel && t.BoundModelID == opts.ModelID {
			return t.ID
		}
	}
	return ""
}

// EvictionCandidate returns the least recently used clean tab.
// Ties on LastUsedAt go to the earlier-created tab.
func (s State) EvictionCandidate() (string, bool) {
	best := -1
	for i, t := range s.Tabs {
		if t.IsDirty {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := s.Tabs[best]
		if t.LastUsedAt.Before(b.LastUsedAt) || (t.LastUsedAt.Equal(b.LastUsedAt) && t.Seq < b.Seq) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return s.Tabs[best].ID, true
}

// ApplyOpenTab activates a matching tab, or appends a new tab with id,
// evicting the least recently used clean tab when at the cap.
func ApplyOpenTab(s State, opts OpenOptions, id string, now time.Time) (State, OpenResult, error) {
	if opts.Mode == "" {
		opts.Mode = core.TabModeRawSQL
	}
	if !opts.Mode.Valid() {
		return s, OpenResult{}, ErrInvalidOption
	}
	if opts.Mode == core.TabModeBoundModel && opts.ModelID == "" {
		return s, OpenResult{}, ErrNotBoundModel
	}

	if !opts.ForceNew {
		if match := s.FindMatch(opts); match != "" {
			return applyMerge(s, match, opts, now), OpenResult{TabID: match, Reused: true}, nil
		}
	}

	ns := s.clone()
	var res OpenResult
	if len(ns.Tabs) >= ns.max() {
		victim, ok := ns.EvictionCandidate()
		if !ok {
			return s, OpenResult{}, ErrTabLimitReached
		}
		ns.Tabs = removeTab(ns.Tabs, ns.index(victim))
		res.Evicted = victim
	}

	tab := core.Tab{
		ID:             id,
		Title:          opts.Title,
		Mode:           opts.Mode,
		SourceFilePath: NormalizePath(opts.FilePath),
		IsReadonly:     opts.IsReadonly,
		LastUsedAt:     now,
		Seq:            ns.NextSeq,
	}
	if opts.Text != nil {
		tab.Text = *opts.Text
	}
	if opts.Mode == core.TabModeBoundModel {
		tab.BoundModelID = opts.ModelID
	}
	if tab.Title == "" {
		tab.Title = defaultTitle(tab, ns.NextSeq)
	}
	ns.NextSeq++
	ns.Tabs = append(ns.Tabs, tab)
	ns.ActiveTabID = id

	res.TabID = id
	res.Created = true
	return ns, res, nil
}

func applyMerge(s State, id string, opts OpenOptions, now time.Time) State {
	ns := s.clone()
	t := &ns.Tabs[ns.index(id)]
	t.LastUsedAt = now
	if opts.Text != nil {
		t.Text = *opts.Text
		t.IsDirty = false
		t.IsReadonly = opts.IsReadonly
	}
	if opts.FilePath != "" {
		t.SourceFilePath = NormalizePath(opts.FilePath)
	}
	if opts.Mode == core.TabModeBoundModel && t.BoundModelID != opts.ModelID {
		t.Mode = core.TabModeBoundModel
		t.BoundModelID = opts.ModelID
		t.ClearCompiled()
		t.CompileError = ""
	}
	ns.ActiveTabID = id
	return ns
}

func defaultTitle(t core.Tab, seq int64) string {
	switch {
	case t.SourceFilePath != "":
		return path.Base(t.SourceFilePath)
	case t.BoundModelID != "":
		return state.ModelTitle(t.BoundModelID)
	default:
		return state.DefaultTitle(int(seq) + 1)
	}
}

func (s State) max() int {
	if s.MaxTabs <= 0 {
		return DefaultMaxTabs
	}
	return s.MaxTabs
}

func removeTab(tabs []core.Tab, i int) []core.Tab {
	return append(tabs[:i:i], tabs[i+1:]...)
}

// ApplyCloseTab removes a tab. Dirty tabs need confirmed. When the active
// tab goes, the last remaining tab becomes active; when the last tab goes,
// a fresh default tab with newID is created.
func ApplyCloseTab(s State, id string, confirmed bool, newID string, now time.Time) (State, error) {
	i := s.index(id)
	if i < 0 {
		return s, ErrTabNotFound
	}
	if s.Tabs[i].IsDirty && !confirmed {
		return s, ErrCloseRejected
	}

	ns := s.clone()
	ns.Tabs = removeTab(ns.Tabs, i)
	if len(ns.Tabs) == 0 {
		return ns.withDefaultTab(newID, now), nil
	}
	if ns.ActiveTabID == id {
		last := &ns.Tabs[len(ns.Tabs)-1]
		last.LastUsedAt = now
		ns.ActiveTabID = last.ID
	}
	return ns, nil
}

// ApplySetActiveTab switches the active tab and refreshes its LastUsedAt.
func ApplySetActiveTab(s State, id string, now time.Time) (State, error) {
	i := s.index(id)
	if i < 0 {
		return s, ErrTabNotFound
	}
	ns := s.clone()
	ns.Tabs[i].LastUsedAt = now
	ns.ActiveTabID = id
	return ns, nil
}

// ApplyUpdateActiveText replaces the active buffer and marks it dirty.
// Identical text is a no-op.
func ApplyUpdateActiveText(s State, text string, now time.Time) (State, error) {
	i := s.index(s.ActiveTabID)
	if i < 0 {
		return s, ErrTabNotFound
	}
	if s.Tabs[i].IsReadonly {
		return s, ErrReadonly
	}
	if s.Tabs[i].Text == text {
		return s, nil
	}
	ns := s.clone()
	t := &ns.Tabs[i]
	t.Text = text
	t.IsDirty = true
	t.LastUsedAt = now
	return ns, nil
}

// ApplyRenameTab sets a tab title.
func ApplyRenameTab(s State, id, title string) (State, error) {
	i := s.index(id)
	if i < 0 {
		return s, ErrTabNotFound
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return s, ErrInvalidOption
	}
	ns := s.clone()
	ns.Tabs[i].Title = title
	return ns, nil
}

// ApplySetEnvironment selects an environment, clears the compiled-SQL cache
// of every bound-model tab and ends any outstanding compile.
func ApplySetEnvironment(s State, environmentID string) State {
	if s.EnvironmentID == environmentID {
		return s
	}
	ns := s.clone()
	ns.EnvironmentID = environmentID
	for i := range ns.Tabs {
		t := &ns.Tabs[i]
		t.IsLoadingCompiled = false
		if t.Mode == core.TabModeBoundModel {
			t.ClearCompiled()
			t.CompileError = ""
		}
	}
	return ns
}

// ApplyCompileStart marks a tab as loading its compiled SQL.
func ApplyCompileStart(s State, id string) (State, error) {
	i := s.index(id)
	if i < 0 {
		return s, ErrTabNotFound
	}
	if s.Tabs[i].IsLoadingCompiled {
		return s, ErrCompileInFlight
	}
	ns := s.clone()
	ns.Tabs[i].IsLoadingCompiled = true
	ns.Tabs[i].CompileError = ""
	return ns, nil
}

// ApplyCompileSuccess stores a compile result stamped with environmentID.
// With hydrate the buffer is replaced by the reported source and marked clean.
func ApplyCompileSuccess(s State, id, environmentID string, res core.CompiledSQL, hydrate bool) State {
	i := s.index(id)
	if i < 0 {
		return s
	}
	ns := s.clone()
	t := &ns.Tabs[i]
	t.CompiledSQL = res.CompiledSQL
	t.CompiledChecksum = res.Checksum
	t.CompiledTarget = res.TargetName
	t.CompiledForEnvironmentID = environmentID
	t.CompileError = ""
	t.IsLoadingCompiled = false
	if hydrate && res.SourceSQL != "" {
		t.Text = res.SourceSQL
		t.IsDirty = false
	}
	return ns
}

// ApplyCompileFailure clears the cache and records message.
func ApplyCompileFailure(s State, id, message string) State {
	i := s.index(id)
	if i < 0 {
		return s
	}
	ns := s.clone()
	ns.Tabs[i].ClearCompiled()
	ns.Tabs[i].CompileError = message
	return ns
}

// ApplyRunStart marks a tab as running.
func ApplyRunStart(s State, id string) (State, error) {
	i := s.index(id)
	if i < 0 {
		return s, ErrTabNotFound
	}
	if s.Tabs[i].IsRunning {
		return s, ErrExecutionInFlight
	}
	ns := s.clone()
	ns.Tabs[i].IsRunning = true
	return ns, nil
}

// ApplyRunEnd clears the running flag.
func ApplyRunEnd(s State, id string) State {
	i := s.index(id)
	if i < 0 || !s.Tabs[i].IsRunning {
		return s
	}
	ns := s.clone()
	ns.Tabs[i].IsRunning = false
	return ns
}

// ApplySaved reconciles a tab after a successful write. The tab is marked
// clean only when its text is still the text that was written.
func ApplySaved(s State, id, written string, reread *core.FileContent) State {
	i := s.index(id)
	if i < 0 || s.Tabs[i].Text != written {
		return s
	}
	ns := s.clone()
	t := &ns.Tabs[i]
	if reread != nil {
		t.Text = reread.Content
		t.IsReadonly = reread.Readonly
	}
	t.IsDirty = false
	return ns
}

// ToSession projects the state onto its persisted record.
func (s State) ToSession() *state.Session {
	out := &state.Session{
		Version:           state.CurrentVersion,
		Tabs:              make([]state.TabRecord, 0, len(s.Tabs)),
		ActiveTabID:       s.ActiveTabID,
		EditorTheme:       s.EditorTheme,
		ActiveBottomPanel: s.ActiveBottomPanel,
		Layout:            s.Layout,
	}
	for i := range s.Tabs {
		out.Tabs = append(out.Tabs, state.RecordFromTab(&s.Tabs[i]))
	}
	if s.EnvironmentID != "" {
		env := s.EnvironmentID
		out.EnvironmentID = &env
	}
	return out
}

// StateFromSession rebuilds a state from a sanitized record.
func StateFromSession(sess *state.Session, maxTabs int) State {
	s := State{
		ActiveTabID:       sess.ActiveTabID,
		EnvironmentID:     sess.Environment(),
		EditorTheme:       sess.EditorTheme,
		ActiveBottomPanel: sess.ActiveBottomPanel,
		Layout:            sess.Layout,
		MaxTabs:           maxTabs,
	}
	for _, rec := range sess.Tabs {
		t := rec.Tab()
		t.Seq = s.NextSeq
		s.NextSeq++
		s.Tabs = append(s.Tabs, *t)
	}
	return s
}
