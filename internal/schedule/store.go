/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule persists broadcast intents and their lifecycle flags.
// A schedule is never the running session; activation hands it to the
// dispatcher, which owns the session it spawns.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcast/internal/events"
	"github.com/friendsincode/signalcast/internal/models"
)

var (
	// ErrScheduleNotFound means no schedule exists with the given id.
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrInvalidSchedule means the create request failed validation.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrAlreadyActivated means the schedule can no longer be cancelled.
	ErrAlreadyActivated = errors.New("schedule already activated")
)

// Store is the gorm-backed schedule repository.
type Store struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewStore creates a schedule store.
func NewStore(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "schedule_store").Logger(),
	}
}

// CreateInput is one schedule creation request, already parsed from the wire.
type CreateInput struct {
	StartAt   time.Time
	EndAt     *time.Time
	Playlist  []string
	LoopMode  string
	Repeats   int
	StreamKey string
	Title     string
}

// Create validates and persists a new pending schedule.
func (s *Store) Create(ctx context.Context, in CreateInput) (*models.ScheduledBroadcast, error) {
	if in.StartAt.IsZero() {
		return nil, fmt.Errorf("%w: startAt is required", ErrInvalidSchedule)
	}
	if len(in.Playlist) == 0 {
		return nil, fmt.Errorf("%w: playlist is empty", ErrInvalidSchedule)
	}
	if in.StreamKey == "" {
		return nil, fmt.Errorf("%w: stream key is required", ErrInvalidSchedule)
	}
	if in.EndAt != nil && !in.EndAt.After(in.StartAt) {
		return nil, fmt.Errorf("%w: endAt must be after startAt", ErrInvalidSchedule)
	}
	mode, repeats, err := models.ParseLoopMode(in.LoopMode, in.Repeats)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchedule, err)
	}

	sched := &models.ScheduledBroadcast{
		ID:        uuid.NewString(),
		StartAt:   in.StartAt.UTC(),
		EndAt:     in.EndAt,
		Playlist:  in.Playlist,
		LoopMode:  mode,
		Repeats:   repeats,
		StreamKey: in.StreamKey,
		Title:     in.Title,
	}
	if err := s.db.WithContext(ctx).Create(sched).Error; err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	s.logger.Info().Str("schedule_id", sched.ID).Time("start_at", sched.StartAt).Msg("schedule created")
	s.bus.Publish(events.EventScheduleCreated, events.Payload{
		"schedule_id": sched.ID,
		"start_at":    sched.StartAt,
		"title":       sched.Title,
	})
	return sched, nil
}

// List returns all schedules ordered by start time.
func (s *Store) List(ctx context.Context) ([]models.ScheduledBroadcast, error) {
	var schedules []models.ScheduledBroadcast
	if err := s.db.WithContext(ctx).Order("start_at ASC").Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

// Get returns one schedule by id.
func (s *Store) Get(ctx context.Context, id string) (*models.ScheduledBroadcast, error) {
	var sched models.ScheduledBroadcast
	if err := s.db.WithContext(ctx).First(&sched, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return &sched, nil
}

// DuePending returns pending schedules whose start time has passed, oldest
// first. The dispatcher activates them one per free session slot.
func (s *Store) DuePending(ctx context.Context, now time.Time) ([]models.ScheduledBroadcast, error) {
	var schedules []models.ScheduledBroadcast
	err := s.db.WithContext(ctx).
		Where("activated = ? AND completed = ? AND start_at <= ?", false, false, now).
		Order("start_at ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("due schedules: %w", err)
	}
	return schedules, nil
}

// Cancel removes a schedule that has not yet been activated. Activated or
// completed schedules are part of broadcast history and stay put.
func (s *Store) Cancel(ctx context.Context, id string) error {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sched.Activated || sched.Completed {
		return ErrAlreadyActivated
	}
	if err := s.db.WithContext(ctx).Delete(&models.ScheduledBroadcast{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}

	s.logger.Info().Str("schedule_id", id).Msg("schedule cancelled")
	s.bus.Publish(events.EventScheduleCancelled, events.Payload{"schedule_id": id})
	return nil
}

// MarkActivated flags a schedule as handed to a session. Re-marking an
// activated schedule is a no-op so a racing tick cannot double-fire.
func (s *Store) MarkActivated(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&models.ScheduledBroadcast{}).
		Where("id = ? AND activated = ?", id, false).
		Update("activated", true)
	if res.Error != nil {
		return fmt.Errorf("activate schedule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Already activated, or gone.
		return nil
	}

	s.bus.Publish(events.EventScheduleActivated, events.Payload{"schedule_id": id})
	return nil
}

// MarkCompleted flags a schedule as finished, whether or not it ever ran.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&models.ScheduledBroadcast{}).
		Where("id = ? AND completed = ?", id, false).
		Update("completed", true)
	if res.Error != nil {
		return fmt.Errorf("complete schedule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	s.bus.Publish(events.EventScheduleCompleted, events.Payload{"schedule_id": id})
	return nil
}
