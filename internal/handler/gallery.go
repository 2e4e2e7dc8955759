package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/model"
)

// GalleryReader lists published images.
type GalleryReader interface {
	PublishedImages(ctx context.Context) ([]model.PublishedImage, error)
}

// GalleryHandler serves the community gallery.
type GalleryHandler struct {
	svc    GalleryReader
	logger *slog.Logger
}

// NewGalleryHandler creates a new GalleryHandler.
func NewGalleryHandler(svc GalleryReader, logger *slog.Logger) *GalleryHandler {
	return &GalleryHandler{svc: svc, logger: logger}
}

// PublishedImages handles GET /api/auth/published-images.
func (h *GalleryHandler) PublishedImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.svc.PublishedImages(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PublishedImagesResponse{Success: true, Images: images})
}
