package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streamwatch/streamwatch/internal/sprite"
	"github.com/streamwatch/streamwatch/internal/thumbnail"
)

// FileHandler serves thumbnail and sprite images. Files are resolved through
// the in-memory registries rather than from request paths, so only files the
// generators produced are reachable.
type FileHandler struct {
	thumbnails *thumbnail.Generator
	sprites    *sprite.Composer
	cacheTTL   time.Duration
}

// NewFileHandler creates a new file handler.
func NewFileHandler(t *thumbnail.Generator, s *sprite.Composer, cacheTTL time.Duration) *FileHandler {
	return &FileHandler{thumbnails: t, sprites: s, cacheTTL: cacheTTL}
}

// RegisterRoutes registers the file-serving routes on the router.
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/streams/{id}/thumbnail/file", h.ThumbnailFile)
	r.Get("/api/streams/{id}/sprites/{filename}", h.SpriteFile)
}

// ThumbnailFile serves the stream's most recent thumbnail JPEG.
func (h *FileHandler) ThumbnailFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := h.thumbnails.Latest(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if h.cacheTTL > 0 {
		w.Header().Set("Cache-Control",
			"max-age="+strconv.Itoa(int(h.cacheTTL.Seconds())))
	}
	http.ServeFile(w, r, info.ThumbnailPath)
}

// SpriteFile serves a sprite sheet or its JSON map by filename.
func (h *FileHandler) SpriteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	filename := chi.URLParam(r, "filename")

	for _, info := range h.sprites.List(id) {
		switch filename {
		case filepath.Base(info.SpritePath):
			http.ServeFile(w, r, info.SpritePath)
			return
		case filepath.Base(info.SpriteMapPath):
			http.ServeFile(w, r, info.SpriteMapPath)
			return
		}
	}

	http.NotFound(w, r)
}
