/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestBuildVideoPath(t *testing.T) {
	tests := []struct {
		name     string
		videoID  string
		filename string
		want     string
	}{
		{"normal id", "abcdef12", "movie.mp4", filepath.Join("ab", "cd", "abcdef12.mp4")},
		{"no extension", "abcdef12", "movie", filepath.Join("ab", "cd", "abcdef12.bin")},
		{"short id", "ab", "clip.mov", "ab.mov"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildVideoPath(tt.videoID, tt.filename); got != tt.want {
				t.Errorf("buildVideoPath(%q, %q) = %q, want %q", tt.videoID, tt.filename, got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName("path/to/Big Buck Bunny.mp4"); got != "Big Buck Bunny" {
		t.Errorf("displayName() = %q", got)
	}
	if got := displayName("noext"); got != "noext" {
		t.Errorf("displayName() = %q", got)
	}
}

func TestFilesystemStorageRoundTrip(t *testing.T) {
	root := t.TempDir()
	fs := NewFilesystemStorage(root, zerolog.Nop())
	ctx := context.Background()

	path, err := fs.Store(ctx, "abcdef12", "clip.mp4", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, path))
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("stored content = %q", data)
	}

	locator := fs.Locator(path)
	if !filepath.IsAbs(locator) {
		t.Errorf("Locator() = %q, want absolute path", locator)
	}

	if err := fs.Delete(ctx, path); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, path)); !os.IsNotExist(err) {
		t.Error("file still present after Delete()")
	}

	// Deleting a missing file is not an error.
	if err := fs.Delete(ctx, path); err != nil {
		t.Errorf("Delete() on missing file error = %v", err)
	}
}

func TestS3LocatorShapes(t *testing.T) {
	tests := []struct {
		name string
		s    S3Storage
		want string
	}{
		{
			"public base url wins",
			S3Storage{bucket: "vids", endpoint: "http://minio:9000", publicBaseURL: "https://cdn.example.com", usePathStyle: true},
			"https://cdn.example.com/ab/cd/x.mp4",
		},
		{
			"path style endpoint",
			S3Storage{bucket: "vids", endpoint: "http://minio:9000", usePathStyle: true},
			"http://minio:9000/vids/ab/cd/x.mp4",
		},
		{
			"virtual hosted endpoint",
			S3Storage{bucket: "vids", endpoint: "https://vids.nyc3.digitaloceanspaces.com"},
			"https://vids.nyc3.digitaloceanspaces.com/ab/cd/x.mp4",
		},
		{
			"plain aws",
			S3Storage{bucket: "vids"},
			"https://vids.s3.amazonaws.com/ab/cd/x.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Locator("ab/cd/x.mp4"); got != tt.want {
				t.Errorf("Locator() = %q, want %q", got, tt.want)
			}
		})
	}
}
