package core

// FileRecord is one entry of the version-controlled file listing.
type FileRecord struct {
	Path     string `json:"path"`
	Category string `json:"category,omitempty"`
}

// FileContent is the result of reading one file.
type FileContent struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Readonly bool   `json:"readonly"`
}

// WriteRequest asks the file service to persist content.
type WriteRequest struct {
	Path    string
	Content string
	Message string
}

// WriteResult reports the outcome of a write. Errors is set when IsValid is false.
type WriteResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors,omitempty"`
}

// VCSStatus describes the version-control state of the project.
type VCSStatus struct {
	Configured bool   `json:"configured"`
	Branch     string `json:"branch,omitempty"`
	Root       string `json:"root,omitempty"`
}
