package core

import "time"

// QueryRequest asks the query service to execute raw SQL.
type QueryRequest struct {
	SQL              string
	EnvironmentID    string
	IncludeProfiling bool
}

// ModelRequest asks the query service to execute a model's compiled SQL.
type ModelRequest struct {
	ModelUniqueID    string
	EnvironmentID    string
	IncludeProfiling bool
}

// ResultColumn describes one column of a result set.
type ResultColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult is the typed payload of one execution.
type QueryResult struct {
	QueryID         string         `json:"queryId"`
	Columns         []ResultColumn `json:"columns"`
	Rows            [][]any        `json:"rows"`
	RowCount        int            `json:"rowCount"`
	ExecutionTimeMS int64          `json:"executionTimeMs"`
	Truncated       bool           `json:"truncated"`
	Profiling       []string       `json:"profiling,omitempty"`
}

// CompiledSQL is the result of compiling a model for an environment.
type CompiledSQL struct {
	CompiledSQL      string `json:"compiledSql"`
	SourceSQL        string `json:"sourceSql"`
	Checksum         string `json:"checksum"`
	TargetName       string `json:"targetName,omitempty"`
	OriginalFilePath string `json:"originalFilePath,omitempty"`
}

// HistoryFilter narrows a history listing.
type HistoryFilter struct {
	Search        string
	EnvironmentID string
	Status        string // "success", "error" or empty for both
	Limit         int
	Offset        int
}

// HistoryEntry is one recorded execution.
type HistoryEntry struct {
	ID              string    `json:"id"`
	SQL             string    `json:"sql"`
	ModelUniqueID   string    `json:"modelUniqueId,omitempty"`
	EnvironmentID   string    `json:"environmentId,omitempty"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	RowCount        int       `json:"rowCount"`
	ExecutionTimeMS int64     `json:"executionTimeMs"`
	ExecutedAt      time.Time `json:"executedAt"`
}

// HistoryPage is one page of history.
type HistoryPage struct {
	Items      []HistoryEntry `json:"items"`
	TotalCount int            `json:"totalCount"`
}
