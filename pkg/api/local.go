package api

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// localTraceServer serves trace files from a directory on the local
// filesystem.
type localTraceServer struct {
	log  logrus.FieldLogger
	root string
}

// newLocalTraceServer creates a new local trace server rooted at dir.
func newLocalTraceServer(log logrus.FieldLogger, dir string) *localTraceServer {
	return &localTraceServer{
		log:  log.WithField("component", "local-trace-server"),
		root: filepath.Clean(dir),
	}
}

// ServeFile serves filePath from the root via http.ServeFile. Returns an
// error when the path is disallowed or not found.
func (l *localTraceServer) ServeFile(
	w http.ResponseWriter,
	r *http.Request,
	filePath string,
) error {
	full, err := l.resolve(filePath)
	if err != nil {
		return err
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return fmt.Errorf("trace %q not found", filePath)
	}

	http.ServeFile(w, r, full)

	return nil
}

// resolve maps a request path to a file path that stays inside root.
func (l *localTraceServer) resolve(filePath string) (string, error) {
	if !isAllowedPath(filePath) {
		return "", fmt.Errorf("path %q is not allowed", filePath)
	}

	full := filepath.Join(l.root, filepath.FromSlash(filePath))

	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == "." || rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is not allowed", filePath)
	}

	return full, nil
}

// List returns the slash separated paths of all .json files under root.
func (l *localTraceServer) List() ([]string, error) {
	names := make([]string, 0, 16)

	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || filepath.Ext(p) != ".json" {
			return nil
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}

		names = append(names, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return names, nil
		}

		return nil, fmt.Errorf("walking %s: %w", l.root, err)
	}

	sort.Strings(names)

	return names, nil
}

// isAllowedPath rejects empty, absolute, unclean, or traversal request paths.
func isAllowedPath(filePath string) bool {
	if filePath == "" {
		return false
	}

	if strings.Contains(filePath, "..") {
		return false
	}

	// Reject paths that start with a slash (absolute paths).
	if strings.HasPrefix(filePath, "/") || filepath.IsAbs(filePath) {
		return false
	}

	// Ensure the path is clean (no double slashes, trailing slashes, etc.).
	return path.Clean(filePath) == filePath
}
