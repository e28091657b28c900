// Package ledger keeps the bounded result and output logs of a session.
// Both logs live independently of editor tabs: closing a tab keeps its results.
package ledger

import (
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// Default caps.
const (
	DefaultMaxResults = 5
	DefaultMaxOutputs = 200
)

var (
	dashCommentRe  = regexp.MustCompile(`^\s*--\s*(.+)$`)
	blockCommentRe = regexp.MustCompile(`^\s*/\*\s*(.+?)\s*\*/`)
	fromRe         = regexp.MustCompile(`(?i)\bFROM\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)
	joinRe         = regexp.MustCompile(`(?i)\bJOIN\b`)
)

// Config holds the ledger caps and collaborators.
type Config struct {
	MaxResults int
	MaxOutputs int
	Clock      core.Clock
	NewID      func() string
}

// Ledger stores result tabs (oldest first) and output entries (oldest first).
type Ledger struct {
	mu         sync.RWMutex
	results    []core.ResultTab
	outputs    []core.OutputEntry
	pinned     string
	maxResults int
	maxOutputs int
	clock      core.Clock
	newID      func() string
}

// New creates an empty ledger.
func New(cfg Config) *Ledger {
	l := &Ledger{
		maxResults: cfg.MaxResults,
		maxOutputs: cfg.MaxOutputs,
		clock:      cfg.Clock,
		newID:      cfg.NewID,
	}
	if l.maxResults <= 0 {
		l.maxResults = DefaultMaxResults
	}
	if l.maxOutputs <= 0 {
		l.maxOutputs = DefaultMaxOutputs
	}
	if l.clock == nil {
		l.clock = core.SystemClock{}
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l
}

// AddResult appends a result tab, dropping the oldest beyond the cap.
func (l *Ledger) AddResult(sourceTabID, sql string, result core.QueryResult) core.ResultTab {
	l.mu.Lock()
	defer l.mu.Unlock()

	rt := core.ResultTab{
		ID:          l.newID(),
		QueryID:     result.QueryID,
		SourceTabID: sourceTabID,
		Title:       ResultTitle(sql),
		SQL:         sql,
		Result:      result,
		CreatedAt:   l.clock.Now(),
	}
	l.results = append(l.results, rt)
	if over := len(l.results) - l.maxResults; over > 0 {
		for _, dropped := range l.results[:over] {
			if dropped.ID == l.pinned {
				l.pinned = ""
			}
		}
		l.results = append([]core.ResultTab(nil), l.results[over:]...)
	}
	return rt
}

// Results returns the result tabs, oldest first.
func (l *Ledger) Results() []core.ResultTab {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]core.ResultTab(nil), l.results...)
}

// Pin makes id the active result tab until it is closed or evicted.
func (l *Ledger) Pin(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.indexOf(id) < 0 {
		return false
	}
	l.pinned = id
	return true
}

// Unpin restores the newest result as active.
func (l *Ledger) Unpin() {
	l.mu.Lock()
	l.pinned = ""
	l.mu.Unlock()
}

// Active returns the pinned result tab, or the newest one.
func (l *Ledger) Active() (core.ResultTab, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexOf(l.pinned); i >= 0 {
		return l.results[i], true
	}
	if len(l.results) == 0 {
		return core.ResultTab{}, false
	}
	return l.results[len(l.results)-1], true
}

// CloseResult removes a result tab.
func (l *Ledger) CloseResult(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.results = append(l.results[:i:i], l.results[i+1:]...)
	if l.pinned == id {
		l.pinned = ""
	}
	return true
}

func (l *Ledger) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, r := range l.results {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// AppendOutput logs one entry, dropping the oldest beyond the cap.
func (l *Ledger) AppendOutput(level core.OutputLevel, message string) core.OutputEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := core.OutputEntry{
		ID:        l.newID(),
		Level:     level,
		Timestamp: l.clock.Now(),
		Message:   message,
	}
	l.outputs = append(l.outputs, e)
	if over := len(l.outputs) - l.maxOutputs; over > 0 {
		l.outputs = append([]core.OutputEntry(nil), l.outputs[over:]...)
	}
	return e
}

// Outputs returns the output entries, oldest first.
func (l *Ledger) Outputs() []core.OutputEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]core.OutputEntry(nil), l.outputs...)
}

// ClearOutput drops every output entry.
func (l *Ledger) ClearOutput() {
	l.mu.Lock()
	l.outputs = nil
	l.mu.Unlock()
}

// Reset drops results, outputs and the pin.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.results = nil
	l.outputs = nil
	l.pinned = ""
	l.mu.Unlock()
}

// ResultTitle derives a short title from a leading comment, the first FROM
// relation, or the truncated statement.
func ResultTitle(sql string) string {
	lines := strings.SplitN(sql, "\n", 2)
	if m := dashCommentRe.FindStringSubmatch(lines[0]); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if m := blockCommentRe.FindStringSubmatch(sql); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if m := fromRe.FindStringSubmatch(sql); len(m) > 1 {
		if joinRe.MatchString(sql) {
			return m[1] + "(+)"
		}
		return m[1]
	}

	cleaned := strings.Join(strings.Fields(sql), " ")
	if r := []rune(cleaned); len(r) > 20 {
		cleaned = string(r[:17]) + "..."
	}
	if cleaned == "" {
		return "Result"
	}
	return cleaned
}
