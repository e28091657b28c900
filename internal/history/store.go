// Package history records executed queries in SQLite.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/leapstack-labs/workbench/pkg/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Status values of an entry.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Page size bounds of List.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ErrNotFound is returned when deleting an unknown entry.
var ErrNotFound = errors.New("history entry not found")

// Store is the query history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path and migrates it.
// Use ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run history migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts an entry. ID and ExecutedAt must be set.
func (s *Store) Record(ctx context.Context, e core.HistoryEntry) error {
	if e.ID == "" {
		return fmt.Errorf("history entry without id")
	}
	if e.Status != StatusSuccess && e.Status != StatusError {
		return fmt.Errorf("invalid history status %q", e.Status)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history
			(id, sql_text, model_unique_id, environment_id, status, error, row_count, execution_time_ms, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SQL, e.ModelUniqueID, e.EnvironmentID, e.Status, e.Error,
		e.RowCount, e.ExecutionTimeMS, e.ExecutedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}
	return nil
}

// List returns the newest entries matching f and the total match count.
func (s *Store) List(ctx context.Context, f core.HistoryFilter) (*core.HistoryPage, error) {
	where, args := buildWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_history"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	offset := max(f.Offset, 0)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sql_text, model_unique_id, environment_id, status, error, row_count, execution_time_ms, executed_at
		FROM query_history`+where+`
		ORDER BY executed_at DESC, id DESC
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page := &core.HistoryPage{Items: []core.HistoryEntry{}, TotalCount: total}
	for rows.Next() {
		var (
			e  core.HistoryEntry
			at int64
		)
		if err := rows.Scan(&e.ID, &e.SQL, &e.ModelUniqueID, &e.EnvironmentID, &e.Status, &e.Error,
			&e.RowCount, &e.ExecutionTimeMS, &at); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.ExecutedAt = time.UnixMilli(at).UTC()
		page.Items = append(page.Items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return page, nil
}

func buildWhere(f core.HistoryFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q := strings.TrimSpace(f.Search); q != "" {
		conds = append(conds, "(LOWER(sql_text) LIKE ? ESCAPE '\\' OR LOWER(model_unique_id) LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		args = append(args, pattern, pattern)
	}
	if f.EnvironmentID != "" {
		conds = append(conds, "environment_id = ?")
		args = append(args, f.EnvironmentID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// Delete removes one entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM query_history WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Prune keeps the newest keep entries and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM query_history WHERE id NOT IN (
			SELECT id FROM query_history ORDER BY executed_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}
