package compile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// LoadMacros executes every *.star file of dir and returns one namespace per
// file, named after it: util.star becomes the global "util". Names starting
// with "_" are private. A missing directory yields no macros.
func LoadMacros(dir string) (starlark.StringDict, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return starlark.StringDict{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to access macros directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("macros path is not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan macros directory: %w", err)
	}

	out := make(starlark.StringDict, len(files))
	for _, file := range files {
		ns := strings.TrimSuffix(filepath.Base(file), ".star")
		if err := validateNamespace(ns); err != nil {
			return nil, &MacroError{File: file, Message: err.Error()}
		}
		src, err := os.ReadFile(file) //nolint:gosec // G304: globbed from the macros directory
		if err != nil {
			return nil, &MacroError{File: file, Message: fmt.Sprintf("failed to read file: %v", err)}
		}

		thread := &starlark.Thread{Name: "load:" + ns, Print: func(*starlark.Thread, string) {}}
		globals, err := starlark.ExecFileOptions(fileOptions, thread, file, src, nil)
		if err != nil {
			return nil, &MacroError{File: file, Message: fmt.Sprintf("starlark execution error: %v", err)}
		}

		exports := make(starlark.StringDict, len(globals))
		for name, v := range globals {
			if !strings.HasPrefix(name, "_") {
				exports[name] = v
			}
		}
		out[ns] = starlarkstruct.FromStringDict(starlark.String(ns), exports)
	}
	return out, nil
}

func validateNamespace(name string) error {
	if reserved[name] {
		return fmt.Errorf("namespace %q conflicts with builtin", name)
	}
	for i, r := range name {
		letter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		digit := r >= '0' && r <= '9'
		if !letter && (i == 0 || !digit) {
			return fmt.Errorf("invalid namespace name: %q", name)
		}
	}
	if name == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	return nil
}

// MacroError reports a macro file that failed to load.
type MacroError struct {
	File    string
	Message string
}

func (e *MacroError) Error() string {
	return fmt.Sprintf("macros/%s: %s", filepath.Base(e.File), e.Message)
}
