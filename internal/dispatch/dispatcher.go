/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dispatch turns due schedules into broadcast sessions. It is the only
// component that calls the session controller on behalf of a schedule; it never
// drives the player directly.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcast/internal/events"
	"github.com/friendsincode/signalcast/internal/models"
	"github.com/friendsincode/signalcast/internal/schedule"
	"github.com/friendsincode/signalcast/internal/session"
)

// SessionManager is the controller surface the dispatcher needs.
type SessionManager interface {
	Start(ctx context.Context, cfg session.Config) (string, error)
	Stop(ctx context.Context, sessionID string) error
	Snapshot() session.Status
}

// Leadership gates ticking in multi-instance deployments. A nil Leadership
// means this instance always dispatches.
type Leadership interface {
	IsLeader() bool
}

// activeSchedule tracks the schedule behind the currently running session.
type activeSchedule struct {
	scheduleID string
	sessionID  string
	endAt      *time.Time
}

// Dispatcher periodically activates due schedules and enforces their end
// times. One tick runs at a time; a slow tick delays the next rather than
// overlapping it.
type Dispatcher struct {
	store    *schedule.Store
	sessions SessionManager
	bus      *events.Bus
	leader   Leadership
	interval time.Duration
	logger   zerolog.Logger

	now    func() time.Time
	active *activeSchedule
}

// NewDispatcher creates a schedule dispatcher.
func NewDispatcher(store *schedule.Store, sessions SessionManager, bus *events.Bus, leader Leadership, interval time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		sessions: sessions,
		bus:      bus,
		leader:   leader,
		interval: interval,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		now:      time.Now,
	}
}

// Run ticks until context cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Dur("interval", d.interval).Msg("schedule dispatcher started")
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("schedule dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := d.tick(ctx); err != nil {
				d.logger.Error().Err(err).Msg("dispatcher tick failed")
			}
		}
	}
}

// ActiveScheduleID returns the schedule behind the running session, if any.
// Only Run's goroutine mutates d.active, so this is a hint for the facade,
// not a synchronization point.
func (d *Dispatcher) ActiveScheduleID() string {
	if d.active == nil {
		return ""
	}
	return d.active.scheduleID
}

func (d *Dispatcher) tick(ctx context.Context) error {
	if d.leader != nil && !d.leader.IsLeader() {
		return nil
	}
	now := d.now()

	d.observeSessionEnd(ctx)
	d.enforceEndAt(ctx, now)

	due, err := d.store.DuePending(ctx, now)
	if err != nil {
		return err
	}

	for _, sched := range due {
		// A schedule whose whole window has passed never gets a session.
		if sched.EndAt != nil && !now.Before(*sched.EndAt) {
			d.logger.Warn().Str("schedule_id", sched.ID).Msg("schedule window elapsed before activation")
			d.bus.Publish(events.EventScheduleMissed, events.Payload{"schedule_id": sched.ID})
			if err := d.store.MarkCompleted(ctx, sched.ID); err != nil {
				d.logger.Error().Err(err).Str("schedule_id", sched.ID).Msg("mark elapsed schedule completed")
			}
			continue
		}

		if snap := d.sessions.Snapshot(); d.active != nil || (snap.State != models.SessionIdle && !snap.State.Terminal()) {
			// Slot is busy. Remaining due schedules stay pending and are
			// reconsidered oldest-first on a later tick.
			break
		}

		if err := d.activate(ctx, sched); errors.Is(err, session.ErrSessionActive) {
			break
		}
		// One activation per tick; the slot is taken either way.
		break
	}
	return nil
}

// activate claims the schedule, then starts its session. Claiming first keeps
// a crashy start from re-firing the same schedule every tick.
func (d *Dispatcher) activate(ctx context.Context, sched models.ScheduledBroadcast) error {
	if err := d.store.MarkActivated(ctx, sched.ID); err != nil {
		return err
	}

	sessionID, err := d.sessions.Start(ctx, session.Config{
		Playlist:   sched.Playlist,
		LoopMode:   sched.LoopMode,
		Repeats:    sched.Repeats,
		StreamKey:  sched.StreamKey,
		Title:      sched.Title,
		ScheduleID: sched.ID,
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			// Manual broadcast grabbed the slot between snapshot and start.
			// The schedule stays activated and is finished off below.
			d.logger.Warn().Str("schedule_id", sched.ID).Msg("session slot taken, schedule skipped")
		} else {
			d.logger.Error().Err(err).Str("schedule_id", sched.ID).Msg("scheduled broadcast failed to start")
		}
		if markErr := d.store.MarkCompleted(ctx, sched.ID); markErr != nil {
			d.logger.Error().Err(markErr).Str("schedule_id", sched.ID).Msg("mark failed schedule completed")
		}
		return err
	}

	d.logger.Info().Str("schedule_id", sched.ID).Str("session_id", sessionID).Msg("schedule activated")
	d.active = &activeSchedule{scheduleID: sched.ID, sessionID: sessionID, endAt: sched.EndAt}
	return nil
}

// observeSessionEnd completes the active schedule once its session is gone,
// no matter how it ended: natural completion, manual stop or failure.
func (d *Dispatcher) observeSessionEnd(ctx context.Context) {
	if d.active == nil {
		return
	}
	snap := d.sessions.Snapshot()
	if snap.SessionID == d.active.sessionID && !snap.State.Terminal() && snap.State != models.SessionIdle {
		return
	}

	if err := d.store.MarkCompleted(ctx, d.active.scheduleID); err != nil {
		d.logger.Error().Err(err).Str("schedule_id", d.active.scheduleID).Msg("mark schedule completed")
		return
	}
	d.logger.Info().Str("schedule_id", d.active.scheduleID).Msg("scheduled broadcast finished")
	d.active = nil
}

// enforceEndAt hard-stops the session when the schedule window closes. The
// end time wins over loop mode.
func (d *Dispatcher) enforceEndAt(ctx context.Context, now time.Time) {
	if d.active == nil || d.active.endAt == nil || now.Before(*d.active.endAt) {
		return
	}

	d.logger.Info().Str("schedule_id", d.active.scheduleID).Time("end_at", *d.active.endAt).Msg("schedule window closed, stopping broadcast")
	if err := d.sessions.Stop(ctx, d.active.sessionID); err != nil {
		d.logger.Error().Err(err).Str("session_id", d.active.sessionID).Msg("end-of-window stop failed")
		return
	}
	if err := d.store.MarkCompleted(ctx, d.active.scheduleID); err != nil {
		d.logger.Error().Err(err).Str("schedule_id", d.active.scheduleID).Msg("mark schedule completed")
	}
	d.active = nil
}
