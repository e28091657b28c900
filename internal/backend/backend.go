// Package backend is the local query service: it compiles project models,
// runs SQL through database/sql drivers and records every execution.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/workbench/internal/compile"
	"github.com/leapstack-labs/workbench/internal/history"
	"github.com/leapstack-labs/workbench/internal/project"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// DefaultTimeout bounds one execution.
const DefaultTimeout = 30 * time.Second

var (
	ErrUnknownEnvironment = errors.New("unknown environment")
	ErrModelNotFound      = errors.New("model not found")
	ErrEmptyQuery         = errors.New("query is empty")
	ErrHistoryDisabled    = errors.New("query history is disabled")
)

// Environment is one configured execution target.
type Environment struct {
	ID       string
	Name     string
	Driver   string
	DSN      string
	Schema   string
	Database string
}

// HistoryStore persists executions. *history.Store implements it.
type HistoryStore interface {
	Record(ctx context.Context, e core.HistoryEntry) error
	List(ctx context.Context, f core.HistoryFilter) (*core.HistoryPage, error)
	Delete(ctx context.Context, id string) error
}

// OpenFunc opens a database for an environment.
type OpenFunc func(ctx context.Context, d Driver, dsn string) (*sql.DB, error)

// Config configures a Backend.
type Config struct {
	Project            *project.Project
	Environments       []Environment
	DefaultEnvironment string
	History            HistoryStore // nil disables history
	MaxRows            int
	Timeout            time.Duration
	Logger             *slog.Logger
	Open               OpenFunc // nil uses sql.Open
}

// Backend implements core.QueryService and core.EnvironmentService.
type Backend struct {
	project    *project.Project
	envs       map[string]Environment
	order      []string
	defaultEnv string
	history    HistoryStore
	maxRows    int
	timeout    time.Duration
	logger     *slog.Logger
	open       OpenFunc

	mu    sync.Mutex
	conns map[string]*sql.DB
}

var (
	_ core.QueryService       = (*Backend)(nil)
	_ core.EnvironmentService = (*Backend)(nil)
	_ HistoryStore            = (*history.Store)(nil)
)

// New validates the environments and creates a Backend. Connections are
// opened on first use.
func New(cfg Config) (*Backend, error) {
	if cfg.Project == nil {
		return nil, errors.New("backend: project is required")
	}
	if len(cfg.Environments) == 0 {
		return nil, errors.New("backend: at least one environment is required")
	}
	b := &Backend{
		project: cfg.Project,
		envs:    make(map[string]Environment, len(cfg.Environments)),
		history: cfg.History,
		maxRows: cfg.MaxRows,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		open:    cfg.Open,
		conns:   make(map[string]*sql.DB),
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	if b.maxRows <= 0 {
		b.maxRows = DefaultMaxRows
	}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	if b.open == nil {
		b.open = openDB
	}

	for _, env := range cfg.Environments {
		if env.ID == "" {
			return nil, errors.New("backend: environment id is required")
		}
		if _, dup := b.envs[env.ID]; dup {
			return nil, fmt.Errorf("backend: duplicate environment %q", env.ID)
		}
		d, err := LookupDriver(env.Driver)
		if err != nil {
			return nil, fmt.Errorf("backend: environment %q: %w", env.ID, err)
		}
		if env.Name == "" {
			env.Name = env.ID
		}
		if env.Schema == "" {
			env.Schema = d.DefaultSchema
		}
		if env.DSN == "" {
			env.DSN = d.DefaultDSN
		}
		b.envs[env.ID] = env
		b.order = append(b.order, env.ID)
	}
	sort.Strings(b.order)

	b.defaultEnv = cfg.DefaultEnvironment
	if b.defaultEnv == "" {
		b.defaultEnv = b.order[0]
	}
	if _, ok := b.envs[b.defaultEnv]; !ok {
		return nil, fmt.Errorf("backend: default environment %q: %w", b.defaultEnv, ErrUnknownEnvironment)
	}
	return b, nil
}

func openDB(ctx context.Context, d Driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.SQLDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.Name, err)
	}
	if d.SingleConn != nil && d.SingleConn(dsn) {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.Name, err)
	}
	return db, nil
}

// Close closes every open connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for id, db := range b.conns {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("environment %s: %w", id, err))
		}
		delete(b.conns, id)
	}
	return errors.Join(errs...)
}

// ListEnvironments returns the environments sorted by id.
func (b *Backend) ListEnvironments(_ context.Context) ([]core.Environment, error) {
	out := make([]core.Environment, 0, len(b.order))
	for _, id := range b.order {
		env := b.envs[id]
		out = append(out, core.Environment{ID: env.ID, Name: env.Name, IsDefault: env.ID == b.defaultEnv})
	}
	return out, nil
}

func (b *Backend) environment(id string) (Environment, error) {
	if id == "" {
		id = b.defaultEnv
	}
	env, ok := b.envs[id]
	if !ok {
		return Environment{}, fmt.Errorf("%w: %s", ErrUnknownEnvironment, id)
	}
	return env, nil
}

func (b *Backend) conn(ctx context.Context, env Environment) (*sql.DB, Driver, error) {
	d, err := LookupDriver(env.Driver)
	if err != nil {
		return nil, Driver{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if db, ok := b.conns[env.ID]; ok {
		return db, d, nil
	}
	db, err := b.open(ctx, d, env.DSN)
	if err != nil {
		return nil, Driver{}, err
	}
	b.conns[env.ID] = db
	b.logger.Debug("opened connection", slog.String("environment_id", env.ID), slog.String("driver", d.Name))
	return db, d, nil
}

// ExecuteQuery runs raw SQL against the requested environment.
func (b *Backend) ExecuteQuery(ctx context.Context, req core.QueryRequest) (*core.QueryResult, error) {
	env, err := b.environment(req.EnvironmentID)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, env, req.SQL, "", req.IncludeProfiling)
}

// ExecuteModel compiles the model for the environment and runs the result.
func (b *Backend) ExecuteModel(ctx context.Context, req core.ModelRequest) (*core.QueryResult, error) {
	env, err := b.environment(req.EnvironmentID)
	if err != nil {
		return nil, err
	}
	compiled, err := b.compile(ctx, req.ModelUniqueID, env)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, env, compiled.CompiledSQL, req.ModelUniqueID, req.IncludeProfiling)
}

func (b *Backend) run(ctx context.Context, env Environment, sqlText, modelID string, profiling bool) (*core.QueryResult, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, ErrEmptyQuery
	}
	db, d, err := b.conn(ctx, env)
	if err != nil {
		return nil, err
	}

	entry := core.HistoryEntry{
		ID:            uuid.NewString(),
		SQL:           sqlText,
		ModelUniqueID: modelID,
		EnvironmentID: env.ID,
		ExecutedAt:    time.Now().UTC(),
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ex := NewExecutor(db, b.maxRows)
	res, err := ex.Query(runCtx, sqlText)
	if err != nil {
		entry.Status = history.StatusError
		entry.Error = err.Error()
		entry.ExecutionTimeMS = time.Since(entry.ExecutedAt).Milliseconds()
		b.record(ctx, entry)
		return nil, err
	}
	if profiling {
		lines, perr := ex.Explain(runCtx, d.ExplainPrefix, sqlText)
		if perr != nil {
			b.logger.Warn("profiling failed", slog.String("environment_id", env.ID), slog.String("error", perr.Error()))
		} else {
			res.Profiling = lines
		}
	}

	res.QueryID = entry.ID
	entry.Status = history.StatusSuccess
	entry.RowCount = res.RowCount
	entry.ExecutionTimeMS = res.ExecutionTimeMS
	b.record(ctx, entry)

	b.logger.Debug("query executed",
		slog.String("environment_id", env.ID),
		slog.Int("row_count", res.RowCount),
		slog.Int64("execution_time_ms", res.ExecutionTimeMS))
	return res, nil
}

// record stores the entry even when ctx was cancelled by the caller.
func (b *Backend) record(ctx context.Context, e core.HistoryEntry) {
	if b.history == nil {
		return
	}
	if err := b.history.Record(context.WithoutCancel(ctx), e); err != nil {
		b.logger.Warn("failed to record history", slog.String("error", err.Error()))
	}
}

// GetCompiledSQL compiles the model for the environment.
func (b *Backend) GetCompiledSQL(ctx context.Context, modelID, environmentID string) (*core.CompiledSQL, error) {
	env, err := b.environment(environmentID)
	if err != nil {
		return nil, err
	}
	return b.compile(ctx, modelID, env)
}

func (b *Backend) compile(ctx context.Context, modelID string, env Environment) (*core.CompiledSQL, error) {
	cat, err := b.project.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := cat.Model(modelID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}
	macros, err := compile.LoadMacros(b.project.MacrosPath())
	if err != nil {
		return nil, err
	}
	res, err := compile.New(cat, macros).Compile(compile.Input{
		Path:    m.Path,
		Content: m.Content,
		Env:     env.ID,
		Target:  compile.Target{Type: env.Driver, Schema: env.Schema, Database: env.Database},
	})
	if err != nil {
		return nil, err
	}
	return &core.CompiledSQL{
		CompiledSQL:      res.SQL,
		SourceSQL:        res.SourceSQL,
		Checksum:         res.Checksum,
		TargetName:       env.ID,
		OriginalFilePath: m.Path,
	}, nil
}

// GetHistory lists recorded executions.
func (b *Backend) GetHistory(ctx context.Context, filter core.HistoryFilter) (*core.HistoryPage, error) {
	if b.history == nil {
		return &core.HistoryPage{Items: []core.HistoryEntry{}}, nil
	}
	return b.history.List(ctx, filter)
}

// DeleteHistoryEntry removes one recorded execution.
func (b *Backend) DeleteHistoryEntry(ctx context.Context, id string) error {
	if b.history == nil {
		return ErrHistoryDisabled
	}
	return b.history.Delete(ctx, id)
}

// GetMetadata returns the catalog qualified with the default environment's schema.
func (b *Backend) GetMetadata(ctx context.Context) (*core.Metadata, error) {
	cat, err := b.project.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return cat.Metadata(b.envs[b.defaultEnv].Schema), nil
}
