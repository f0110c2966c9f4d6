/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine is the single entry point the API surface talks to. It
// composes the session controller, schedule store and dispatcher so handlers
// never reach around one collaborator to poke another.
package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcast/internal/dispatch"
	"github.com/friendsincode/signalcast/internal/models"
	"github.com/friendsincode/signalcast/internal/schedule"
	"github.com/friendsincode/signalcast/internal/session"
)

// Engine is the broadcast engine facade.
type Engine struct {
	controller *session.Controller
	store      *schedule.Store
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
}

// New creates the engine facade.
func New(controller *session.Controller, store *schedule.Store, dispatcher *dispatch.Dispatcher, logger zerolog.Logger) *Engine {
	return &Engine{
		controller: controller,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "engine").Logger(),
	}
}

// Status returns the current session snapshot. Never blocks.
func (e *Engine) Status() session.Status {
	return e.controller.Snapshot()
}

// StartStream starts a manual broadcast session.
func (e *Engine) StartStream(ctx context.Context, cfg session.Config) (string, error) {
	cfg.ScheduleID = "" // manual starts never claim a schedule
	return e.controller.Start(ctx, cfg)
}

// StopStream stops the session with the given id. Stopping a
// schedule-originated session is allowed; the dispatcher observes the
// session end and completes the schedule on its next tick.
func (e *Engine) StopStream(ctx context.Context, sessionID string) error {
	return e.controller.Stop(ctx, sessionID)
}

// UpdateStreamMetadata changes the live broadcast title.
func (e *Engine) UpdateStreamMetadata(ctx context.Context, sessionID, title string) error {
	return e.controller.UpdateTitle(ctx, sessionID, title)
}

// ListSchedules returns all schedules ordered by start time.
func (e *Engine) ListSchedules(ctx context.Context) ([]models.ScheduledBroadcast, error) {
	return e.store.List(ctx)
}

// CreateSchedule persists a new pending schedule.
func (e *Engine) CreateSchedule(ctx context.Context, in schedule.CreateInput) (*models.ScheduledBroadcast, error) {
	return e.store.Create(ctx, in)
}

// CancelSchedule cancels a pending schedule.
func (e *Engine) CancelSchedule(ctx context.Context, id string) error {
	return e.store.Cancel(ctx, id)
}
