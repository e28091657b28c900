// Package project is the file service of a workbench project directory.
//
// It lists, reads and writes the version-controlled files under a root,
// validates YAML and model frontmatter before writing, and discovers the
// model and source catalog used by the local query backend.
package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Errors returned by Project.
var (
	ErrPathEscape = errors.New("path escapes the project root")
	ErrReadonly   = errors.New("file is read-only")
	ErrNotFound   = errors.New("file not found")
)

// DefaultModelsDir is the models directory relative to the root.
const DefaultModelsDir = "models"

// skipped while listing and watching
var ignoredDirs = map[string]bool{
	".git":         true,
	".workbench":   true,
	"node_modules": true,
}

// readonlyDirs hold generated or VCS-internal files.
var readonlyDirs = []string{"target", ".git"}

// Config configures a Project.
type Config struct {
	Root      string
	ModelsDir string
	MacrosDir string
	Logger    *slog.Logger
}

// Project is a filesystem-backed core.FileService.
type Project struct {
	root      string
	modelsDir string
	macrosDir string
	logger    *slog.Logger

	mu      sync.Mutex
	catalog *Catalog
}

// Open validates cfg.Root and returns a project rooted there.
func Open(cfg Config) (*Project, error) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to access project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", root)
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = DefaultModelsDir
	}
	if cfg.MacrosDir == "" {
		cfg.MacrosDir = "macros"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Project{
		root:      root,
		modelsDir: filepath.ToSlash(filepath.Clean(cfg.ModelsDir)),
		macrosDir: filepath.ToSlash(filepath.Clean(cfg.MacrosDir)),
		logger:    cfg.Logger.With("component", "project"),
	}, nil
}

// Root returns the absolute project root.
func (p *Project) Root() string { return p.root }

// MacrosPath returns the absolute macros directory.
func (p *Project) MacrosPath() string { return filepath.Join(p.root, filepath.FromSlash(p.macrosDir)) }

// resolve maps a project-relative slash path to an absolute path under the
// root and returns the cleaned relative form.
func (p *Project) resolve(rel string) (abs, clean string, err error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", "", fmt.Errorf("%w: empty path", ErrPathEscape)
	}
	native := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(native) || native == ".." || strings.HasPrefix(native, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return filepath.Join(p.root, native), filepath.ToSlash(native), nil
}

func isReadonlyPath(clean string) bool {
	for _, d := range readonlyDirs {
		if clean == d || strings.HasPrefix(clean, d+"/") {
			return true
		}
	}
	return false
}

// invalidate drops the cached catalog.
func (p *Project) invalidate() {
	p.mu.Lock()
	p.catalog = nil
	p.mu.Unlock()
}
