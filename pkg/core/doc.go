// Package core defines the shared language of the workbench.
//
// This package contains:
//   - Session entities (Tab, TabMode, Layout)
//   - Catalog entities returned by the query service (Relation, Metadata)
//   - Execution payloads (QueryResult, CompiledSQL, HistoryEntry)
//   - Collaborator interfaces (QueryService, FileService, EnvironmentService, Storage, Clock)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
