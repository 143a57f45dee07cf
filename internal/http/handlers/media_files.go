package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chatline/chatline/internal/media"
	"github.com/chatline/chatline/pkg/logging"
)

// MediaFilesHandler serves stored attachments from the public media root.
// Filenames are sanitized on write and again here, so a crafted request
// can never escape the per-tenant directory.
type MediaFilesHandler struct {
	root   string
	logger *logging.Logger
}

// NewMediaFilesHandler creates a handler rooted at dir.
func NewMediaFilesHandler(dir string, logger *logging.Logger) *MediaFilesHandler {
	if dir == "" {
		panic("handlers: media root cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MediaFilesHandler{root: dir, logger: logger}
}

// ServeFile returns a single attachment for a tenant.
func (h *MediaFilesHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || tenantID <= 0 {
		http.Error(w, "invalid tenant id", http.StatusBadRequest)
		return
	}
	name := media.Sanitize(chi.URLParam(r, "filename"))
	if name == "" {
		http.Error(w, "invalid filename", http.StatusBadRequest)
		return
	}

	path := filepath.Join(h.root, fmt.Sprintf("company%d", tenantID), name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to stat media file", "error", err, "path", path)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, path)
}
