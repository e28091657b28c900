package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/workbench/internal/compile"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// File categories reported by ListFiles.
const (
	CategoryModel  = "model"
	CategorySource = "source"
	CategorySeed   = "seed"
	CategoryMacro  = "macro"
	CategoryConfig = "config"
	CategoryOther  = "other"
)

// Status reports whether the root is a git work tree and its branch.
func (p *Project) Status(_ context.Context) (*core.VCSStatus, error) {
	st := &core.VCSStatus{Root: p.root}
	head, err := os.ReadFile(filepath.Join(p.root, ".git", "HEAD"))
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read git HEAD: %w", err)
	}
	st.Configured = true
	line := strings.TrimSpace(string(head))
	if ref, ok := strings.CutPrefix(line, "ref: "); ok {
		st.Branch = strings.TrimPrefix(ref, "refs/heads/")
	} else if len(line) >= 7 {
		// detached head
		st.Branch = line[:7]
	}
	return st, nil
}

// ListFiles walks the root and categorizes every regular file.
func (p *Project) ListFiles(ctx context.Context) ([]core.FileRecord, error) {
	var out []core.FileRecord
	err := filepath.WalkDir(p.root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if abs != p.root && ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(p.root, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		out = append(out, core.FileRecord{Path: rel, Category: p.category(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (p *Project) category(rel string) string {
	base := path.Base(rel)
	ext := path.Ext(rel)
	switch {
	case isSourcesFile(base):
		return CategorySource
	case ext == ".sql" && underDir(rel, p.modelsDir):
		return CategoryModel
	case ext == ".csv" && underDir(rel, "seeds"):
		return CategorySeed
	case ext == ".star":
		return CategoryMacro
	case ext == ".yml" || ext == ".yaml":
		return CategoryConfig
	default:
		return CategoryOther
	}
}

func isSourcesFile(base string) bool {
	return base == "sources.yml" || base == "sources.yaml"
}

func underDir(rel, dir string) bool {
	return dir == "." || strings.HasPrefix(rel, dir+"/")
}

// ReadFile reads a project file. Files under target/ or .git/, and files
// without owner write permission, are read-only.
func (p *Project) ReadFile(_ context.Context, rel string) (*core.FileContent, error) {
	abs, clean, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", clean, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", clean)
	}
	data, err := os.ReadFile(abs) //nolint:gosec // G304: resolved under the project root
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", clean, err)
	}
	return &core.FileContent{
		Path:     clean,
		Content:  string(data),
		Readonly: isReadonlyPath(clean) || info.Mode().Perm()&0o200 == 0,
	}, nil
}

// WriteFile validates and writes a project file. Validation problems are
// reported in the result with IsValid false and nothing is written.
func (p *Project) WriteFile(_ context.Context, req core.WriteRequest) (*core.WriteResult, error) {
	abs, clean, err := p.resolve(req.Path)
	if err != nil {
		return nil, err
	}
	if isReadonlyPath(clean) {
		return nil, fmt.Errorf("%w: %s", ErrReadonly, clean)
	}
	perm := os.FileMode(0o644)
	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", clean)
		}
		if info.Mode().Perm()&0o200 == 0 {
			return nil, fmt.Errorf("%w: %s", ErrReadonly, clean)
		}
		perm = info.Mode().Perm()
	}

	if problems := Validate(clean, req.Content); len(problems) > 0 {
		p.logger.Debug("rejected write", "path", clean, "errors", len(problems))
		return &core.WriteResult{IsValid: false, Errors: problems}, nil
	}

	if err := writeAtomic(abs, []byte(req.Content), perm); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", clean, err)
	}
	p.invalidate()
	p.logger.Info("wrote file", "path", clean, "message", req.Message)
	return &core.WriteResult{IsValid: true}, nil
}

func writeAtomic(abs string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(abs)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), abs)
}

// Validate returns the problems that would make content unfit for path:
// YAML syntax for .yml/.yaml files and the frontmatter of .sql files.
func Validate(rel, content string) []string {
	if isSourcesFile(path.Base(rel)) {
		if _, err := parseSources([]byte(content)); err != nil {
			return []string{err.Error()}
		}
		return nil
	}
	switch path.Ext(rel) {
	case ".yml", ".yaml":
		dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
		for {
			var doc yaml.Node
			err := dec.Decode(&doc)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return []string{err.Error()}
			}
		}
	case ".sql":
		if _, err := compile.ExtractFrontmatter(content); err != nil {
			return []string{err.Error()}
		}
	}
	return nil
}
