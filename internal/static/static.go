// Package static serves the browser client's files from a directory.
package static

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// contentTypes is the complete set of types the server labels. Other
// extensions are sent as application/octet-stream.
var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".json": "application/json",
	".ico":  "image/x-icon",
}

const defaultContentType = "application/octet-stream"

// ContentType returns the Content-Type for a file name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return defaultContentType
}

// Handler serves files below root. "/" maps to "/index.html".
type Handler struct {
	root   string
	logger zerolog.Logger
}

func NewHandler(root string, logger zerolog.Logger) *Handler {
	return &Handler{
		root:   root,
		logger: logger.With().Str("component", "static").Logger(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name, ok := resolve(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	full := filepath.Join(h.root, filepath.FromSlash(name))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.logger.Warn().Err(err).Str("path", name).Msg("stat failed")
		}
		http.NotFound(w, r)
		return
	}

	data, err := os.ReadFile(full)
	if err != nil {
		h.logger.Error().Err(err).Str("path", name).Msg("failed to read static file")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ContentType(name))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}

// resolve maps a request path to a slash-separated path relative to the root.
// Paths that try to climb out of the root are refused.
func resolve(urlPath string) (string, bool) {
	if urlPath == "" || urlPath == "/" {
		return "index.html", true
	}
	for _, seg := range strings.Split(urlPath, "/") {
		if seg == ".." || strings.Contains(seg, "\\") {
			return "", false
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if cleaned == "" {
		return "index.html", true
	}
	return cleaned, true
}
