package core

import (
	"context"
	"time"
)

// QueryService executes SQL and models, compiles models and serves the catalog.
type QueryService interface {
	ExecuteQuery(ctx context.Context, req QueryRequest) (*QueryResult, error)
	ExecuteModel(ctx context.Context, req ModelRequest) (*QueryResult, error)
	GetCompiledSQL(ctx context.Context, modelID, environmentID string) (*CompiledSQL, error)
	GetHistory(ctx context.Context, filter HistoryFilter) (*HistoryPage, error)
	DeleteHistoryEntry(ctx context.Context, id string) error
	GetMetadata(ctx context.Context) (*Metadata, error)
}

// FileService supplies the version-controlled project files.
type FileService interface {
	Status(ctx context.Context) (*VCSStatus, error)
	ListFiles(ctx context.Context) ([]FileRecord, error)
	ReadFile(ctx context.Context, path string) (*FileContent, error)
	WriteFile(ctx context.Context, req WriteRequest) (*WriteResult, error)
}

// EnvironmentService enumerates execution targets.
type EnvironmentService interface {
	ListEnvironments(ctx context.Context) ([]Environment, error)
}

// Storage is a persistent key/value store of serialized blobs.
// Get reports found=false with a nil error for a missing key.
type Storage interface {
	Get(key string) (value []byte, found bool, err error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Clock is the time source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
