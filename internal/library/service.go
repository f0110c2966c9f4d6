/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library owns the video assets the engine references by id.
// Playlists never own videos: resolution happens at playback time, so a
// deleted video degrades to a skip instead of invalidating the playlist.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcast/internal/config"
	"github.com/friendsincode/signalcast/internal/events"
	"github.com/friendsincode/signalcast/internal/models"
)

// ErrVideoNotFound is returned when a referenced video id does not exist.
var ErrVideoNotFound = errors.New("video not found")

// Storage interface abstracts file storage operations.
type Storage interface {
	Store(ctx context.Context, videoID, filename string, file io.Reader) (string, error)
	Delete(ctx context.Context, path string) error
	// Locator returns the playable locator for a stored path: an absolute
	// filesystem path or a public URL, depending on backend.
	Locator(path string) string
}

// Resolved is the playback-time projection of a video.
type Resolved struct {
	DisplayName   string
	SourceLocator string
}

// Service manages the video library.
type Service struct {
	db      *gorm.DB
	storage Storage
	bus     *events.Bus
	logger  zerolog.Logger
}

// NewService creates a library service using filesystem or S3 storage based on config.
func NewService(cfg *config.Config, db *gorm.DB, bus *events.Bus, logger zerolog.Logger) (*Service, error) {
	var storage Storage

	if cfg.S3Bucket != "" {
		s3Storage, err := NewS3Storage(context.Background(), S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize S3 storage: %w", err)
		}
		storage = s3Storage
	} else {
		storage = NewFilesystemStorage(cfg.MediaRoot, logger)
	}

	return NewServiceWithStorage(db, storage, bus, logger), nil
}

// NewServiceWithStorage creates a library service over an explicit storage backend.
func NewServiceWithStorage(db *gorm.DB, storage Storage, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		storage: storage,
		bus:     bus,
		logger:  logger.With().Str("component", "library").Logger(),
	}
}

// Upload stores a new video file and records it in the library.
func (s *Service) Upload(ctx context.Context, filename, contentType string, size int64, file io.Reader) (*models.Video, error) {
	id := uuid.NewString()

	path, err := s.storage.Store(ctx, id, filename, file)
	if err != nil {
		return nil, fmt.Errorf("store video: %w", err)
	}

	video := &models.Video{
		ID:          id,
		Name:        displayName(filename),
		Path:        path,
		ContentType: contentType,
		SizeBytes:   size,
	}

	if err := s.db.WithContext(ctx).Create(video).Error; err != nil {
		if delErr := s.storage.Delete(ctx, path); delErr != nil {
			s.logger.Warn().Err(delErr).Str("path", path).Msg("orphaned upload cleanup failed")
		}
		return nil, fmt.Errorf("record video: %w", err)
	}

	s.logger.Info().Str("video_id", id).Str("name", video.Name).Int64("bytes", size).Msg("video uploaded")
	s.bus.Publish(events.EventVideoUploaded, events.Payload{"video_id": id, "name": video.Name})

	return video, nil
}

// List returns all videos, newest first.
func (s *Service) List(ctx context.Context) ([]models.Video, error) {
	var videos []models.Video
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

// Get returns one video by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video
	err := s.db.WithContext(ctx).First(&video, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return &video, nil
}

// Resolve returns the playback projection for a video id. Called at playback
// time, never at playlist construction time.
func (s *Service) Resolve(ctx context.Context, id string) (*Resolved, error) {
	video, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Resolved{
		DisplayName:   video.Name,
		SourceLocator: s.storage.Locator(video.Path),
	}, nil
}

// Delete removes a video and its stored file. Playlists referencing the id
// are left alone; playback skips unresolvable ids.
func (s *Service) Delete(ctx context.Context, id string) error {
	video, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Video{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete video record: %w", err)
	}

	if err := s.storage.Delete(ctx, video.Path); err != nil {
		s.logger.Warn().Err(err).Str("video_id", id).Msg("stored file removal failed")
	}

	s.logger.Info().Str("video_id", id).Msg("video deleted")
	s.bus.Publish(events.EventVideoDeleted, events.Payload{"video_id": id})
	return nil
}

// URL returns the public locator for a video, for listing responses.
func (s *Service) URL(video models.Video) string {
	return s.storage.Locator(video.Path)
}

func displayName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// buildVideoPath constructs a hierarchical storage path for a video file.
// Structure: id[0:2]/id[2:4]/id.ext keeps directories balanced.
func buildVideoPath(videoID, filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".bin"
	}
	if len(videoID) < 4 {
		return videoID + ext
	}
	return filepath.Join(videoID[0:2], videoID[2:4], videoID+ext)
}
