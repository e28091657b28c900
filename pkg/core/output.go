package core

import "time"

// OutputLevel is the severity of an output log entry.
type OutputLevel string

// Output levels.
const (
	OutputInfo    OutputLevel = "info"
	OutputSuccess OutputLevel = "success"
	OutputWarning OutputLevel = "warning"
	OutputError   OutputLevel = "error"
)

// OutputEntry is an immutable log line shown in the output panel.
type OutputEntry struct {
	ID        string      `json:"id"`
	Level     OutputLevel `json:"level"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message"`
}

// ResultTab is an immutable record of one execution's result.
type ResultTab struct {
	ID          string      `json:"id"`
	QueryID     string      `json:"queryId"`
	SourceTabID string      `json:"sourceTabId"`
	Title       string      `json:"title"`
	SQL         string      `json:"sql"`
	Result      QueryResult `json:"result"`
	CreatedAt   time.Time   `json:"createdAt"`
}
