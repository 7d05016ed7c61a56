// Package handler contains the HTTP handlers of the storefront backend.
//
// Handlers only translate between HTTP and the service layer: parse the
// request, call one service method, write the response. No business rules
// live here.
package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// StorefrontHandler serves the built storefront (index.html plus its
// assets) from a directory. Unknown paths fall back to index.html so the
// front end's client-side routes survive a page reload.
type StorefrontHandler struct {
	root   string
	files  http.Handler
	logger *slog.Logger
}

// NewStorefrontHandler returns a handler for dir, or nil when dir is empty
// or has no index.html. A nil handler means the storefront is not served.
func NewStorefrontHandler(dir string, logger *slog.Logger) (*StorefrontHandler, error) {
	if dir == "" {
		return nil, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(abs, "index.html")); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("storefront directory has no index.html, static files disabled", slog.String("dir", abs))
			return nil, nil
		}
		return nil, err
	}

	return &StorefrontHandler{
		root:   abs,
		files:  http.FileServer(http.Dir(abs)),
		logger: logger,
	}, nil
}

// ServeHTTP serves an existing file as-is and index.html for everything else.
func (h *StorefrontHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	if strings.HasPrefix(clean, "/api/") || clean == "/api" {
		NotFound(w, r)
		return
	}

	if clean != "/" {
		info, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(clean)))
		if err == nil && !info.IsDir() {
			h.files.ServeHTTP(w, r)
			return
		}
	}

	http.ServeFile(w, r, filepath.Join(h.root, "index.html"))
}
