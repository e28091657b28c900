// Package output renders command results for a terminal or as JSON.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/workbench/internal/filetree"
	"github.com/leapstack-labs/workbench/internal/history"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// Mode selects how results are written.
type Mode string

// Output modes. ModeAuto styles output only when writing to a terminal.
const (
	ModeAuto Mode = "auto"
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// ParseMode validates an --output value; empty means ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeText, ModeJSON:
		return m, nil
	default:
		return "", fmt.Errorf("unknown output format %q (auto|text|json)", s)
	}
}

// Styles holds the terminal styles.
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Muted   lipgloss.Style
	Active  lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() *Styles {
	return &Styles{
		Title:   lipgloss.NewStyle().Bold(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Active:  lipgloss.NewStyle().Reverse(true).Bold(true),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() *Styles {
	plain := lipgloss.NewStyle()
	return &Styles{Title: plain, Success: plain, Error: plain, Warning: plain, Info: plain, Muted: plain, Active: plain}
}

// Renderer writes results to out and diagnostics to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	styles *Styles
	upper  cases.Caser
}

// NewRenderer creates a renderer. ModeAuto resolves to styled text on a
// terminal and plain text otherwise.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	styles := PlainStyles()
	if mode == ModeAuto && IsTerminal(out) {
		styles = DefaultStyles()
	}
	if mode == "" || mode == ModeAuto {
		mode = ModeText
	}
	return &Renderer{out: out, errOut: errOut, mode: mode, styles: styles, upper: cases.Upper(language.English)}
}

// WithWriters returns a copy of r writing to out and errOut.
func (r *Renderer) WithWriters(out, errOut io.Writer) *Renderer {
	c := *r
	c.out, c.errOut = out, errOut
	return &c
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Writer returns the result writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the diagnostics writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Styles returns the active styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// IsJSON reports whether results are written as JSON.
func (r *Renderer) IsJSON() bool { return r.mode == ModeJSON }

// JSON writes v indented.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Println writes a line of plain text.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Muted writes a dimmed line.
func (r *Renderer) Muted(format string, a ...any) {
	_, _ = fmt.Fprintln(r.out, r.styles.Muted.Render(fmt.Sprintf(format, a...)))
}

// Error writes an error line to the diagnostics writer.
func (r *Renderer) Error(err error) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("Error: "+err.Error()))
}

// Output writes one output-panel entry.
func (r *Renderer) Output(e core.OutputEntry) {
	style := r.levelStyle(e.Level)
	label := style.Render(fmt.Sprintf("%-7s", r.upper.String(string(e.Level))))
	ts := r.styles.Muted.Render(e.Timestamp.Local().Format("15:04:05"))
	_, _ = fmt.Fprintf(r.out, "%s %s %s\n", ts, label, e.Message)
}

func (r *Renderer) levelStyle(level core.OutputLevel) lipgloss.Style {
	switch level {
	case core.OutputSuccess:
		return r.styles.Success
	case core.OutputWarning:
		return r.styles.Warning
	case core.OutputError:
		return r.styles.Error
	default:
		return r.styles.Info
	}
}

// Result writes a query result as a table followed by a summary line.
func (r *Renderer) Result(res *core.QueryResult) error {
	if r.IsJSON() {
		return r.JSON(res)
	}
	if len(res.Columns) == 0 {
		r.Muted("(no columns)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	// Column names are shown as the database reports them.
	t.Style().Format.Header = text.FormatDefault
	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c.Name
	}
	t.AppendHeader(header)
	for _, row := range res.Rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = formatValue(v)
		}
		t.AppendRow(out)
	}
	t.Render()

	summary := fmt.Sprintf("(%d rows, %d ms)", res.RowCount, res.ExecutionTimeMS)
	if res.Truncated {
		summary = fmt.Sprintf("(first %d rows, %d ms, truncated)", res.RowCount, res.ExecutionTimeMS)
	}
	r.Muted("%s", summary)
	for _, line := range res.Profiling {
		r.Muted("  %s", line)
	}
	return nil
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

// Tabs writes the tab strip, one tab per line, marking the active and dirty
// tabs.
func (r *Renderer) Tabs(tabs []core.Tab, activeID string) error {
	if r.IsJSON() {
		return r.JSON(tabs)
	}
	for i, tab := range tabs {
		title := tab.Title
		if tab.IsDirty {
			title += " *"
		}
		if tab.IsReadonly {
			title += " (readonly)"
		}
		line := fmt.Sprintf("%2d  %s", i+1, title)
		if tab.ID == activeID {
			line = r.styles.Active.Render(line)
		}
		detail := string(tab.Mode)
		if tab.SourceFilePath != "" {
			detail = tab.SourceFilePath
		}
		_, _ = fmt.Fprintf(r.out, "%s  %s\n", line, r.styles.Muted.Render(detail))
	}
	return nil
}

// Tree writes flattened tree rows indented by depth.
func (r *Renderer) Tree(rows []filetree.Row) error {
	if r.IsJSON() {
		paths := make([]string, 0, len(rows))
		for _, row := range rows {
			paths = append(paths, row.Node.Path)
		}
		return r.JSON(paths)
	}
	for _, row := range rows {
		name := row.Node.Name
		if row.Node.IsFolder() {
			name = r.styles.Title.Render(name + "/")
		} else if row.Node.Category != "" {
			name += " " + r.styles.Muted.Render("["+row.Node.Category+"]")
		}
		_, _ = fmt.Fprintf(r.out, "%s%s\n", strings.Repeat("  ", row.Depth), name)
	}
	return nil
}

// History writes one page of history.
func (r *Renderer) History(page *core.HistoryPage) error {
	if r.IsJSON() {
		return r.JSON(page)
	}
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Executed", "Env", "Status", "Rows", "ms", "SQL"})
	for _, e := range page.Items {
		status := r.styles.Success.Render(e.Status)
		if e.Status != history.StatusSuccess {
			status = r.styles.Error.Render(e.Status)
		}
		t.AppendRow(table.Row{
			e.ExecutedAt.Local().Format("2006-01-02 15:04:05"),
			e.EnvironmentID,
			status,
			e.RowCount,
			e.ExecutionTimeMS,
			truncateOneLine(e.SQL, 60),
		})
	}
	t.Render()
	r.Muted("(%d of %d entries)", len(page.Items), page.TotalCount)
	return nil
}

func truncateOneLine(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

type rendererKey struct{}

// WithRenderer returns a context carrying r.
func WithRenderer(ctx context.Context, r *Renderer) context.Context {
	return context.WithValue(ctx, rendererKey{}, r)
}

// FromContext returns the renderer stored by WithRenderer, or a plain text
// renderer on the standard streams.
func FromContext(ctx context.Context) *Renderer {
	if r, ok := ctx.Value(rendererKey{}).(*Renderer); ok {
		return r
	}
	return NewRenderer(os.Stdout, os.Stderr, ModeAuto)
}
