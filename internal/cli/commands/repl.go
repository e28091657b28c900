package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/workbench/internal/bus"
	"github.com/leapstack-labs/workbench/internal/cli/output"
	"github.com/leapstack-labs/workbench/internal/completion"
	"github.com/leapstack-labs/workbench/internal/config"
	"github.com/leapstack-labs/workbench/internal/ui/features/common"
	"github.com/leapstack-labs/workbench/internal/workbench"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "repl",
		Aliases: []string{"shell"},
		Short:   "Open the workbench in the terminal",
		Long: `Open an interactive session on the configured workspace. SQL typed at
the prompt goes into the active tab and runs when terminated by a semicolon.
Dot-commands manage tabs, files, environments and history; .help lists them.

The session is the same one the web UI shows for the workspace.`,
		Args: cobra.NoArgs,
		RunE: runREPL,
	}
}

func runREPL(cmd *cobra.Command, _ []string) error {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	st, err := OpenStack(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var rl *readline.Instance
	confirm := func(question string) bool {
		prev := rl.Config.Prompt
		rl.SetPrompt(question + " [y/N] ")
		defer rl.SetPrompt(prev)
		answer, err := rl.Readline()
		if err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}

	s := newREPLSession(st, cfg.Workspace, output.FromContext(cmd.Context()), confirm)

	historyFile := ""
	if dir := filepath.Join(cfg.ProjectDir, ".workbench"); os.MkdirAll(dir, 0o750) == nil {
		historyFile = filepath.Join(dir, "repl_history")
	}
	rl, err = readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     historyFile,
		AutoComplete:    newSessionCompleter(s),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.r = s.r.WithWriters(rl.Stdout(), rl.Stderr())

	ctx, cancel := context.WithCancel(cmd.Context())
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		_ = s.m.RunFlusher(ctx, cfg.Session.FlushInterval)
	}()
	defer func() {
		cancel()
		<-flushed
	}()

	if _, err := s.m.RefreshMetadata(ctx); err != nil {
		logger.Warn("metadata unavailable, completion is limited", "error", err)
	}

	_, _ = fmt.Fprintf(rl.Stdout(), "workbench (workspace %s, environment %s)\n", s.m.WorkspaceID(), s.m.Environment())
	_, _ = fmt.Fprintln(rl.Stdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(rl.Stdout())

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			s.resetPending()
			rl.SetPrompt(s.prompt())
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if s.HandleLine(ctx, line) {
			return nil
		}
		rl.SetPrompt(s.prompt())
	}
}

// replSession runs REPL input against one manager.
type replSession struct {
	m       *workbench.Manager
	r       *output.Renderer
	confirm func(question string) bool
	pending strings.Builder
}

func newREPLSession(st *Stack, workspaceID string, r *output.Renderer, confirm func(string) bool) *replSession {
	s := &replSession{r: r, confirm: confirm}
	s.m = st.newManager(workspaceID, workbench.ConfirmFunc(func(tab core.Tab) bool {
		return s.confirm(fmt.Sprintf("Discard unsaved changes to %s?", tab.Title))
	}))
	s.m.Bus().Subscribe(bus.TopicOutputAppended, func(e bus.Event) {
		if entry, ok := e.Payload.(core.OutputEntry); ok {
			s.r.Output(entry)
		}
	})
	return s
}

func (s *replSession) prompt() string {
	if s.pending.Len() > 0 {
		return "    ...> "
	}
	return fmt.Sprintf("%s[%s]> ", s.m.ActiveTab().Title, s.m.Environment())
}

func (s *replSession) resetPending() { s.pending.Reset() }

// pendingText is the SQL typed on earlier lines of an unfinished statement.
func (s *replSession) pendingText() string { return s.pending.String() }

// HandleLine processes one input line and reports whether the REPL should
// exit.
func (s *replSession) HandleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if s.pending.Len() == 0 && strings.HasPrefix(line, ".") {
		return s.dotCommand(ctx, line)
	}

	// Accumulate multi-line SQL until semicolon
	s.pending.WriteString(line)
	if !strings.HasSuffix(line, ";") {
		s.pending.WriteString("\n")
		return false
	}
	sql := strings.TrimSuffix(s.pending.String(), ";")
	s.pending.Reset()
	s.runSQL(ctx, sql)
	return false
}

func (s *replSession) runSQL(ctx context.Context, sql string) {
	tab := s.m.ActiveTab()
	if tab.Mode != core.TabModeRawSQL || tab.IsReadonly {
		if _, err := s.m.OpenTab(workbench.OpenOptions{Text: &sql, ForceNew: true}); err != nil {
			s.r.Error(err)
			return
		}
	} else if err := s.m.UpdateActiveText(sql); err != nil {
		s.r.Error(err)
		return
	}
	s.execute(ctx)
}

func (s *replSession) execute(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	rt, err := s.m.Execute(ctx, workbench.ExecuteOptions{})
	if err != nil {
		s.r.Error(err)
		return
	}
	if err := s.r.Result(&rt.Result); err != nil {
		s.r.Error(err)
	}
}

func (s *replSession) dotCommand(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch strings.ToLower(name) {
	case ".quit", ".exit":
		return true
	case ".help":
		printREPLHelp(s.r.Writer())
	case ".tabs":
		err = s.r.Tabs(s.m.Tabs(), s.m.ActiveTab().ID)
	case ".new":
		_, err = s.m.OpenTab(workbench.OpenOptions{Title: arg, ForceNew: true})
	case ".open":
		if arg == "" {
			err = errors.New("usage: .open <path>")
			break
		}
		_, err = s.m.LoadFileIntoTab(ctx, arg)
	case ".use":
		var id string
		if id, err = s.tabRef(arg); err == nil {
			err = s.m.SetActiveTab(id)
		}
	case ".close":
		var id string
		if id, err = s.tabRef(arg); err == nil {
			err = s.m.CloseTab(id)
			if errors.Is(err, workbench.ErrCloseRejected) {
				s.r.Muted("kept %s", s.titleOf(id))
				err = nil
			}
		}
	case ".rename":
		err = s.m.RenameTab(s.m.ActiveTab().ID, arg)
	case ".show":
		s.r.Println(s.m.ActiveTab().Text)
	case ".run":
		s.execute(ctx)
	case ".compile":
		var compiled *core.CompiledSQL
		compiled, err = s.m.ResolveCompiled(ctx, s.m.ActiveTab().ID, workbench.ResolveOptions{Force: true})
		if err == nil {
			s.r.Println(compiled.CompiledSQL)
		}
	case ".save":
		_, err = s.m.SaveActiveTab(ctx, workbench.SaveOptions{Message: arg, Authorized: true})
	case ".env":
		err = s.environment(ctx, arg)
	case ".workspace":
		if arg == "" {
			s.r.Println(s.m.WorkspaceID())
			break
		}
		if !common.ValidWorkspaceID(arg) {
			err = fmt.Errorf("invalid workspace id %q", arg)
			break
		}
		s.m.SwitchWorkspace(arg)
		s.r.Muted("switched to workspace %s", arg)
	case ".history":
		var page *core.HistoryPage
		page, err = s.m.History(ctx, core.HistoryFilter{Search: arg, Limit: 20})
		if err == nil {
			err = s.r.History(page)
		}
	case ".tree":
		var view *workbench.FileTreeView
		view, err = s.m.FileTree(ctx, arg, nil)
		if err == nil {
			err = s.r.Tree(view.Rows)
		}
	case ".theme":
		err = s.m.SetTheme(core.EditorTheme(arg))
	case ".panel":
		err = s.m.SetBottomPanel(core.BottomPanel(arg))
	case ".output":
		for _, e := range s.m.Ledger().Outputs() {
			s.r.Output(e)
		}
	case ".results":
		for _, rt := range s.m.Ledger().Results() {
			s.r.Println(fmt.Sprintf("%s  %d rows  %s", rt.Title, rt.Result.RowCount, rt.CreatedAt.Local().Format("15:04:05")))
		}
	case ".clear":
		_, _ = fmt.Fprint(s.r.Writer(), "\033[H\033[2J")
	default:
		err = fmt.Errorf("unknown command: %s (type .help for commands)", name)
	}
	if err != nil {
		s.r.Error(err)
	}
	return false
}

func (s *replSession) environment(ctx context.Context, id string) error {
	if id != "" {
		return s.m.SetEnvironment(ctx, id)
	}
	envs, err := s.m.Environments(ctx)
	if err != nil {
		return err
	}
	current := s.m.Environment()
	for _, e := range envs {
		marker := " "
		if e.ID == current {
			marker = "*"
		}
		s.r.Println(fmt.Sprintf("%s %s  %s", marker, e.ID, e.Name))
	}
	return nil
}

// tabRef resolves a 1-based tab number or a tab id. Empty means the active tab.
func (s *replSession) tabRef(ref string) (string, error) {
	tabs := s.m.Tabs()
	if ref == "" {
		return s.m.ActiveTab().ID, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(tabs) {
			return "", fmt.Errorf("no tab %d", n)
		}
		return tabs[n-1].ID, nil
	}
	for _, t := range tabs {
		if t.ID == ref {
			return t.ID, nil
		}
	}
	return "", workbench.ErrTabNotFound
}

func (s *replSession) titleOf(id string) string {
	for _, t := range s.m.Tabs() {
		if t.ID == id {
			return t.Title
		}
	}
	return id
}

var dotCommands = []string{
	".help", ".tabs", ".new", ".open", ".use", ".close", ".rename", ".show",
	".run", ".compile", ".save", ".env", ".workspace", ".history", ".tree",
	".theme", ".panel", ".output", ".results", ".clear", ".quit", ".exit",
}

func printREPLHelp(w io.Writer) {
	help := `
Tabs:
  .tabs               List open tabs (* marks unsaved changes)
  .new [title]        Open an empty SQL tab
  .open <path>        Open a project file
  .use <n|id>         Switch to a tab
  .close [n|id]       Close a tab, asking before discarding changes
  .rename <title>     Rename the active tab
  .show               Print the active tab's text

Running:
  .run                Execute the active tab (models are compiled first)
  .compile            Print the compiled SQL of the active model tab
  .save [message]     Write the active tab back to its file
  .env [id]           List environments or switch to one

Session:
  .workspace [id]     Show or switch the workspace
  .history [text]     Recent executions, optionally filtered
  .tree [query]       Project files
  .theme <light|dark> Editor theme
  .panel <name>       Bottom panel (results, compiled, history, logs, profiling)
  .output             Output log
  .results            Result tabs
  .clear              Clear the screen
  .quit / .exit       Exit

SQL runs when a line ends with a semicolon. Tab completes models, tables
and columns.
`
	_, _ = fmt.Fprintln(w, help)
}

// sessionCompleter completes dot-commands and, for SQL, the names known to
// the session metadata.
type sessionCompleter struct {
	s    *replSession
	dots *readline.PrefixCompleter
}

func newSessionCompleter(s *replSession) *sessionCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(dotCommands))
	for _, c := range dotCommands {
		items = append(items, readline.PcItem(c))
	}
	return &sessionCompleter{s: s, dots: readline.NewPrefixCompleter(items...)}
}

// Do implements readline.AutoCompleter.
func (c *sessionCompleter) Do(line []rune, pos int) ([][]rune, int) {
	before := string(line[:pos])
	if c.s.pending.Len() == 0 && strings.HasPrefix(strings.TrimSpace(before), ".") {
		return c.dots.Do(line, pos)
	}
	text := c.s.pendingText() + before
	prefix := completion.DetectContext(text).Prefix
	suggestions := completion.Resolve(text, len(text), c.s.m.Metadata())
	return completionCandidates(suggestions, prefix), len([]rune(prefix))
}

// completionCandidates returns what readline appends after prefix for each
// suggestion. Dotted labels may match on their last segment.
func completionCandidates(suggestions []completion.Suggestion, prefix string) [][]rune {
	lower := strings.ToLower(prefix)
	seen := make(map[string]bool, len(suggestions))
	var out [][]rune
	for _, sg := range suggestions {
		label := sg.Label
		if !strings.HasPrefix(strings.ToLower(label), lower) {
			i := strings.LastIndex(label, ".")
			if i < 0 || !strings.HasPrefix(strings.ToLower(label[i+1:]), lower) {
				continue
			}
			label = label[i+1:]
		}
		rest := label[len(prefix):]
		if seen[rest] {
			continue
		}
		seen[rest] = true
		out = append(out, []rune(rest))
	}
	return out
}
