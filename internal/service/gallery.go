package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quickgpt/quickgpt/internal/cache"
	"github.com/quickgpt/quickgpt/internal/metrics"
	"github.com/quickgpt/quickgpt/internal/model"
)

const galleryLimit = 100

// GalleryService serves the published image projection.
type GalleryService struct {
	store   GalleryStore
	cache   GalleryCache
	ttl     time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewGalleryService creates a new GalleryService. cache may be nil.
func NewGalleryService(store GalleryStore, c GalleryCache, ttl time.Duration, logger *slog.Logger, recorder metrics.Recorder) *GalleryService {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &GalleryService{store: store, cache: c, ttl: ttl, logger: logger, metrics: recorder}
}

// PublishedImages returns published images, newest first.
func (s *GalleryService) PublishedImages(ctx context.Context) ([]model.PublishedImage, error) {
	if s.cache != nil {
		images, err := s.cache.GetPublishedImages(ctx)
		if err == nil {
			s.metrics.IncGalleryCacheHit()
			return images, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("gallery_cache_read_failed", "error", err)
		}
		s.metrics.IncGalleryCacheMiss()
	}

	images, err := s.store.ListPublishedImages(ctx, galleryLimit)
	if err != nil {
		return nil, fmt.Errorf("list published images: %w", err)
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.SetPublishedImages(ctx, images, s.ttl); err != nil {
			s.logger.Warn("gallery_cache_write_failed", "error", err)
		}
	}
	return images, nil
}
