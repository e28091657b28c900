package workbench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/workbench/internal/state"
	"github.com/leapstack-labs/workbench/internal/testutil"
	"github.com/leapstack-labs/workbench/pkg/core"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func idGen(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func strPtr(s string) *string { return &s }

// fakeQuery is a scriptable core.QueryService. When a gate channel is set,
// the matching call blocks until a value is sent on it.
type fakeQuery struct {
	mu sync.Mutex

	compiled    map[string]core.CompiledSQL // key: model|env
	compileErr  error
	compileGate chan struct{}
	compileCall chan struct{}
	compiles    int

	result   core.QueryResult
	execErr  error
	execGate chan struct{}
	execCall chan struct{}
	queries  []core.QueryRequest
	models   []core.ModelRequest

	metadata *core.Metadata
	metaErr  error
	metaGate chan struct{}
	metaCall chan struct{}
	history  *core.HistoryPage
	histErr  error
	deleted  []string
}

func newFakeQuery() *fakeQuery {
	return &fakeQuery{
		compiled: map[string]core.CompiledSQL{},
		result:   core.QueryResult{QueryID: "q", RowCount: 1, Columns: []core.ResultColumn{{Name: "x"}}, Rows: [][]any{{1}}},
		metadata: &core.Metadata{},
		history:  &core.HistoryPage{},
	}
}

func (f *fakeQuery) setCompiled(model, env, sql, source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compiled[model+"|"+env] = core.CompiledSQL{
		CompiledSQL: sql,
		SourceSQL:   source,
		Checksum:    "sum-" + env,
		TargetName:  env,
	}
}

func (f *fakeQuery) GetCompiledSQL(ctx context.Context, modelID, env string) (*core.CompiledSQL, error) {
	f.mu.Lock()
	f.compiles++
	gate, call := f.compileGate, f.compileCall
	f.mu.Unlock()
	if call != nil {
		call <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.compileErr != nil {
		return nil, f.compileErr
	}
	c, ok := f.compiled[modelID+"|"+env]
	if !ok {
		return nil, errors.New("no compiled artifact for " + modelID)
	}
	return &c, nil
}

func (f *fakeQuery) exec(ctx context.Context) (*core.QueryResult, error) {
	f.mu.Lock()
	gate, call := f.execGate, f.execCall
	f.mu.Unlock()
	if call != nil {
		call <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return nil, f.execErr
	}
	r := f.result
	return &r, nil
}

func (f *fakeQuery) ExecuteQuery(ctx context.Context, req core.QueryRequest) (*core.QueryResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req)
	f.mu.Unlock()
	return f.exec(ctx)
}

func (f *fakeQuery) ExecuteModel(ctx context.Context, req core.ModelRequest) (*core.QueryResult, error) {
	f.mu.Lock()
	f.models = append(f.models, req)
	f.mu.Unlock()
	return f.exec(ctx)
}

func (f *fakeQuery) GetHistory(_ context.Context, _ core.HistoryFilter) (*core.HistoryPage, error) {
	return f.history, f.histErr
}

func (f *fakeQuery) DeleteHistoryEntry(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.histErr
}

func (f *fakeQuery) GetMetadata(_ context.Context) (*core.Metadata, error) {
	f.mu.Lock()
	gate, call := f.metaGate, f.metaCall
	f.mu.Unlock()
	if call != nil {
		call <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata, f.metaErr
}

type fakeFiles struct {
	mu       sync.Mutex
	files    map[string]core.FileContent
	readErr  error
	writeErr error
	invalid  []string
	writes   []core.WriteRequest
	// normalize rewrites content on write, like a server-side formatter.
	normalize func(string) string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: map[string]core.FileContent{}}
}

func (f *fakeFiles) Status(context.Context) (*core.VCSStatus, error) {
	return &core.VCSStatus{Configured: true, Branch: "main"}, nil
}

func (f *fakeFiles) ListFiles(context.Context) ([]core.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.FileRecord
	for p := range f.files {
		out = append(out, core.FileRecord{Path: p, Category: "model"})
	}
	return out, nil
}

func (f *fakeFiles) ReadFile(_ context.Context, p string) (*core.FileContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	c, ok := f.files[p]
	if !ok {
		return nil, errors.New("not found: " + p)
	}
	return &c, nil
}

func (f *fakeFiles) WriteFile(_ context.Context, req core.WriteRequest) (*core.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, req)
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if len(f.invalid) > 0 {
		return &core.WriteResult{IsValid: false, Errors: f.invalid}, nil
	}
	content := req.Content
	if f.normalize != nil {
		content = f.normalize(content)
	}
	f.files[req.Path] = core.FileContent{Path: req.Path, Content: content}
	return &core.WriteResult{IsValid: true}, nil
}

type fakeEnvs struct{ envs []core.Environment }

func (f fakeEnvs) ListEnvironments(context.Context) ([]core.Environment, error) {
	return f.envs, nil
}

type testEnv struct {
	m       *Manager
	query   *fakeQuery
	files   *fakeFiles
	storage *state.MemoryStore
	clock   *stepClock
}

func newTestManager(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	te := &testEnv{
		query:   newFakeQuery(),
		files:   newFakeFiles(),
		storage: state.NewMemoryStore(),
		clock:   &stepClock{now: t0, step: time.Second},
	}
	cfg := Config{
		WorkspaceID:        "ws",
		DefaultEnvironment: "dev",
		Query:              te.query,
		Files:              te.files,
		Environments: fakeEnvs{envs: []core.Environment{
			{ID: "dev", Name: "Development", IsDefault: true},
			{ID: "prod", Name: "Production"},
		}},
		Storage: te.storage,
		Clock:   te.clock,
		Logger:  testutil.NewTestLogger(t),
		NewID:   idGen("id-"),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	te.m = New(cfg)
	return te
}
