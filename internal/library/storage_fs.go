/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FilesystemStorage implements Storage using local filesystem.
type FilesystemStorage struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFilesystemStorage creates a filesystem-based storage backend.
func NewFilesystemStorage(rootDir string, logger zerolog.Logger) *FilesystemStorage {
	return &FilesystemStorage{rootDir: rootDir, logger: logger}
}

// Store saves a file to the local filesystem and returns its relative path.
func (fs *FilesystemStorage) Store(ctx context.Context, videoID, filename string, file io.Reader) (string, error) {
	relativePath := buildVideoPath(videoID, filename)
	fullPath := filepath.Join(fs.rootDir, relativePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("create directories: %w", err)
	}

	dest, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		os.Remove(fullPath) // Clean up on failure
		return "", fmt.Errorf("write file: %w", err)
	}

	fs.logger.Debug().Str("path", relativePath).Str("video_id", videoID).Msg("file stored")
	return relativePath, nil
}

// Delete removes a file from the filesystem.
func (fs *FilesystemStorage) Delete(ctx context.Context, path string) error {
	fullPath := filepath.Join(fs.rootDir, path)
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// Locator returns the absolute path the player can read directly.
func (fs *FilesystemStorage) Locator(path string) string {
	abs, err := filepath.Abs(filepath.Join(fs.rootDir, path))
	if err != nil {
		return filepath.Join(fs.rootDir, path)
	}
	return abs
}
