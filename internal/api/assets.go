package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/scimark/internal/service"
	"github.com/starford/scimark/internal/storage"
)

const maxUploadBytes = 5 << 20

// AssetHandler serves rendered artifacts and accepts external block bodies.
type AssetHandler struct {
	svc     *service.Service
	sources storage.Provider
}

// NewAssetHandler creates a handler. sources is the directory external
// block bodies are loaded from; nil disables uploads.
func NewAssetHandler(svc *service.Service, sources storage.Provider) *AssetHandler {
	return &AssetHandler{svc: svc, sources: sources}
}

// safeName validates that name is a plain .tex file name.
func safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	if filepath.Ext(cleaned) != ".tex" {
		return "", fmt.Errorf("only .tex block sources are accepted")
	}
	return cleaned, nil
}

// ServeFile handles GET /assets/{filename}.
func (h *AssetHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.Artifact(chi.URLParam(r, "filename"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if filepath.Ext(path) == ".svg" {
		w.Header().Set("Content-Type", "image/svg+xml")
	}
	http.ServeFile(w, r, path)
}

// Upload handles POST /api/sources (multipart/form-data, field "file").
// The stored file serves blocks whose header names it and whose body is empty.
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name, err := safeName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	if err := h.sources.Write(name, data); err != nil {
		writeError(w, "upload source", err)
		return
	}

	stem := strings.TrimSuffix(name, ".tex")
	writeJSON(w, http.StatusCreated, UploadResponse{
		Filename: name,
		Size:     int64(len(data)),
		Header:   fmt.Sprintf("$$latex,%s,%s$$", stem, stem),
	})
}
