//go:build dev

package resources

import (
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
)

// staticFiles reads assets from the source tree so edits show up without
// rebuilding.
func staticFiles() fs.FS {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return os.DirFS(StaticDirectoryPath)
	}
	return os.DirFS(filepath.Join(filepath.Dir(filename), "static"))
}

// Handler serves /static/ from the source tree.
func Handler() http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.FS(staticFiles())))
}
