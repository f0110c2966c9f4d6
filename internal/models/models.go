/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"time"
)

// LoopMode governs whether and how a playlist repeats.
type LoopMode string

const (
	// LoopSingle repeats the current item forever.
	LoopSingle LoopMode = "single"
	// LoopPlaylist repeats the whole sequence forever.
	LoopPlaylist LoopMode = "playlist"
	// LoopCount repeats the whole sequence a fixed number of times.
	LoopCount LoopMode = "n"
	// LoopNone plays the sequence once through.
	LoopNone LoopMode = "none"
)

// ParseLoopMode validates a wire value. Repeats is only meaningful for LoopCount
// and is normalized to 1 for every other mode.
func ParseLoopMode(mode string, repeats int) (LoopMode, int, error) {
	switch LoopMode(mode) {
	case LoopSingle, LoopPlaylist, LoopNone:
		return LoopMode(mode), 1, nil
	case LoopCount:
		if repeats < 1 {
			return "", 0, fmt.Errorf("loop mode %q requires repeats >= 1, got %d", mode, repeats)
		}
		return LoopCount, repeats, nil
	default:
		return "", 0, fmt.Errorf("unknown loop mode %q", mode)
	}
}

// Video is a library asset the engine references by id. The file itself lives
// in filesystem or object storage; Path is the storage-relative locator.
type Video struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Name        string `gorm:"index"`
	Path        string
	ContentType string `gorm:"type:varchar(64)"`
	SizeBytes   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScheduledBroadcast is a persisted broadcast intent, distinct from the runtime
// session it eventually spawns.
type ScheduledBroadcast struct {
	ID        string     `gorm:"type:uuid;primaryKey"`
	StartAt   time.Time  `gorm:"index"`
	EndAt     *time.Time // optional hard stop; enforced over loop mode
	Playlist  []string   `gorm:"type:jsonb;serializer:json"`
	LoopMode  LoopMode   `gorm:"type:varchar(16)"`
	Repeats   int
	StreamKey string
	Title     string
	Activated bool `gorm:"index"`
	Completed bool `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Missed reports whether the schedule is overdue but never activated.
// Derived, never stored.
func (s ScheduledBroadcast) Missed(now time.Time) bool {
	return !s.Activated && !s.Completed && s.StartAt.Before(now)
}

// SessionState enumerates broadcast session lifecycle states.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionStarting SessionState = "starting"
	SessionLive     SessionState = "live"
	SessionStopping SessionState = "stopping"
	SessionStopped  SessionState = "stopped"
	SessionFailed   SessionState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == SessionStopped || s == SessionFailed
}

// APIKey is a hashed credential for the control API.
type APIKey struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	Name       string `gorm:"index"`
	KeyHash    string `gorm:"uniqueIndex"`
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
