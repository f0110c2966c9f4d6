/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package session owns the single active broadcast session. All state
// transitions happen under one lock; status reads are lock-free snapshots so
// the panel's polling never stalls behind a slow player call.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcast/internal/events"
	"github.com/friendsincode/signalcast/internal/library"
	"github.com/friendsincode/signalcast/internal/models"
	"github.com/friendsincode/signalcast/internal/player"
	"github.com/friendsincode/signalcast/internal/playlist"
)

// Resolver resolves video ids to playable locators at playback time.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*library.Resolved, error)
}

// Config is one start request.
type Config struct {
	Playlist   []string
	LoopMode   models.LoopMode
	Repeats    int
	StreamKey  string
	Title      string
	ScheduleID string // set when the dispatcher originated the session
}

// Status is the read-only session projection. Uptime is derived by callers
// from StartedAt so snapshots stay immutable.
type Status struct {
	State          models.SessionState
	Streaming      bool
	SessionID      string
	ScheduleID     string
	CurrentVideoID string
	CurrentVideo   string
	Title          string
	StartedAt      time.Time
}

// broadcastSession is the mutable runtime entity for one broadcast attempt.
type broadcastSession struct {
	id        string
	cfg       Config
	cursor    *playlist.Cursor
	state     models.SessionState
	startedAt time.Time
	currentID string
	current   string
	title     string
}

// Controller drives the session state machine:
// idle -> starting -> live -> stopping -> stopped, with starting/live -> failed.
type Controller struct {
	player   player.Player
	resolver Resolver
	bus      *events.Bus
	timeout  time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	current *broadcastSession

	status atomic.Pointer[Status]
}

// NewController creates a session controller. timeout bounds every player call.
func NewController(p player.Player, resolver Resolver, bus *events.Bus, timeout time.Duration, logger zerolog.Logger) *Controller {
	c := &Controller{
		player:   p,
		resolver: resolver,
		bus:      bus,
		timeout:  timeout,
		logger:   logger.With().Str("component", "session").Logger(),
	}
	c.status.Store(&Status{State: models.SessionIdle})
	return c
}

// Run consumes player notifications until context cancellation.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-c.player.Notifications():
			if !ok {
				return nil
			}
			switch n.Kind {
			case player.ItemEnded:
				c.handleItemEnded(ctx)
			case player.PlayerError:
				c.logger.Warn().Err(n.Err).Msg("player reported error, skipping item")
				c.handleItemEnded(ctx)
			}
		}
	}
}

// Snapshot returns the current status without taking the session lock.
func (c *Controller) Snapshot() Status {
	return *c.status.Load()
}

// Start validates config, claims the session slot and brings the player up.
// The player call runs outside the lock with a bounded timeout.
func (c *Controller) Start(ctx context.Context, cfg Config) (string, error) {
	if cfg.StreamKey == "" || len(cfg.Playlist) == 0 {
		return "", ErrInvalidConfig
	}

	cursor, err := playlist.NewCursor(cfg.Playlist, cfg.LoopMode, cfg.Repeats)
	if err != nil {
		return "", errors.Join(ErrInvalidConfig, err)
	}

	// Claim the slot.
	c.mu.Lock()
	if c.current != nil && !c.current.state.Terminal() {
		c.mu.Unlock()
		return "", ErrSessionActive
	}
	sess := &broadcastSession{
		id:     uuid.NewString(),
		cfg:    cfg,
		cursor: cursor,
		state:  models.SessionStarting,
		title:  cfg.Title,
	}
	c.current = sess
	c.publishStatusLocked()
	c.mu.Unlock()

	resolved, videoID, err := c.firstPlayable(ctx, sess)
	if err != nil {
		c.fail(sess.id, err)
		return "", err
	}

	playCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = c.player.Start(playCtx, resolved.SourceLocator, cfg.StreamKey)
	cancel()
	if err != nil {
		err = classify(err, ErrStartFailed)
		c.fail(sess.id, err)
		return "", err
	}

	c.mu.Lock()
	if c.current != sess || sess.state != models.SessionStarting {
		// Stop raced the pending start; the stop path wins.
		c.mu.Unlock()
		stopCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		_ = c.player.Stop(stopCtx)
		cancel()
		return sess.id, nil
	}
	sess.state = models.SessionLive
	sess.startedAt = time.Now().UTC()
	sess.currentID = videoID
	sess.current = resolved.DisplayName
	c.publishStatusLocked()
	c.mu.Unlock()

	c.logger.Info().Str("session_id", sess.id).Str("video", resolved.DisplayName).Msg("broadcast live")
	c.bus.Publish(events.EventSessionStarted, events.Payload{
		"session_id":  sess.id,
		"schedule_id": cfg.ScheduleID,
		"title":       cfg.Title,
		"video_id":    videoID,
	})
	return sess.id, nil
}

// Stop terminates the session. Idempotent: stopping an absent, foreign or
// already terminal session succeeds without side effects. A stop issued while
// the session is still starting aborts the pending start.
func (c *Controller) Stop(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	sess := c.current
	if sess == nil || sess.state.Terminal() || (sessionID != "" && sess.id != sessionID) {
		c.mu.Unlock()
		return nil
	}
	sess.state = models.SessionStopping
	c.publishStatusLocked()
	c.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.player.Stop(stopCtx)
	cancel()
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", sess.id).Msg("player stop failed, forcing terminal state")
	}

	c.finalize(sess.id, models.SessionStopped, "manual")
	return nil
}

// UpdateTitle changes the broadcast title. Permitted only while live;
// idempotent.
func (c *Controller) UpdateTitle(ctx context.Context, sessionID, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.current
	if sess == nil || sess.id != sessionID || sess.state != models.SessionLive {
		return ErrNotLive
	}
	if sess.title == title {
		return nil
	}
	sess.title = title
	c.publishStatusLocked()

	c.bus.Publish(events.EventTitleUpdated, events.Payload{"session_id": sess.id, "title": title})
	return nil
}

// handleItemEnded advances the cursor and switches the player, skipping
// unresolvable or unplayable ids. One full failed pass fails the session.
func (c *Controller) handleItemEnded(ctx context.Context) {
	c.mu.Lock()
	sess := c.current
	if sess == nil || sess.state != models.SessionLive {
		c.mu.Unlock()
		return
	}

	for attempts := 0; attempts < sess.cursor.Len(); attempts++ {
		videoID, ok := sess.cursor.Advance()
		if !ok {
			// Natural completion is not an error.
			sess.state = models.SessionStopping
			c.publishStatusLocked()
			c.mu.Unlock()
			c.logger.Info().Str("session_id", sess.id).Msg("playlist exhausted, stopping broadcast")
			c.stopInternal(sess.id, "completed")
			return
		}

		resolved, err := c.resolver.Resolve(ctx, videoID)
		if err != nil {
			c.logger.Warn().Err(err).Str("video_id", videoID).Msg("video unresolvable, skipping")
			c.bus.Publish(events.EventItemSkipped, events.Payload{"session_id": sess.id, "video_id": videoID})
			continue
		}

		switchCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = c.player.Switch(switchCtx, resolved.SourceLocator)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Str("video_id", videoID).Msg("player switch failed, skipping")
			c.bus.Publish(events.EventItemSkipped, events.Payload{"session_id": sess.id, "video_id": videoID})
			continue
		}

		sess.currentID = videoID
		sess.current = resolved.DisplayName
		c.publishStatusLocked()
		c.mu.Unlock()

		c.bus.Publish(events.EventItemChanged, events.Payload{
			"session_id": sess.id,
			"video_id":   videoID,
			"video":      resolved.DisplayName,
		})
		return
	}

	c.mu.Unlock()
	c.fail(sess.id, ErrNoPlayableContent)
}

// firstPlayable finds the first resolvable item for a starting session.
func (c *Controller) firstPlayable(ctx context.Context, sess *broadcastSession) (*library.Resolved, string, error) {
	for attempts := 0; attempts < sess.cursor.Len(); attempts++ {
		videoID, ok := sess.cursor.Advance()
		if !ok {
			return nil, "", ErrNoPlayableContent
		}
		resolved, err := c.resolver.Resolve(ctx, videoID)
		if err != nil {
			c.logger.Warn().Err(err).Str("video_id", videoID).Msg("video unresolvable at start, skipping")
			continue
		}
		return resolved, videoID, nil
	}
	return nil, "", ErrNoPlayableContent
}

// stopInternal mirrors Stop for controller-originated termination.
func (c *Controller) stopInternal(sessionID, reason string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
	if err := c.player.Stop(stopCtx); err != nil {
		c.logger.Warn().Err(err).Msg("player stop failed")
	}
	cancel()
	c.finalize(sessionID, models.SessionStopped, reason)
}

// fail moves the session to failed and tears the player down.
func (c *Controller) fail(sessionID string, cause error) {
	stopCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
	_ = c.player.Stop(stopCtx)
	cancel()

	c.mu.Lock()
	sess := c.current
	if sess == nil || sess.id != sessionID || sess.state.Terminal() {
		c.mu.Unlock()
		return
	}
	sess.state = models.SessionFailed
	c.publishStatusLocked()
	scheduleID := sess.cfg.ScheduleID
	c.mu.Unlock()

	c.logger.Error().Err(cause).Str("session_id", sessionID).Msg("broadcast session failed")
	c.bus.Publish(events.EventSessionFailed, events.Payload{
		"session_id":  sessionID,
		"schedule_id": scheduleID,
		"error":       cause.Error(),
	})
}

func (c *Controller) finalize(sessionID string, state models.SessionState, reason string) {
	c.mu.Lock()
	sess := c.current
	if sess == nil || sess.id != sessionID || sess.state.Terminal() {
		c.mu.Unlock()
		return
	}
	sess.state = state
	c.publishStatusLocked()
	scheduleID := sess.cfg.ScheduleID
	c.mu.Unlock()

	c.logger.Info().Str("session_id", sessionID).Str("reason", reason).Msg("broadcast stopped")
	c.bus.Publish(events.EventSessionStopped, events.Payload{
		"session_id":  sessionID,
		"schedule_id": scheduleID,
		"reason":      reason,
	})
}

// publishStatusLocked snapshots the session into the atomic status slot.
// Callers hold c.mu.
func (c *Controller) publishStatusLocked() {
	sess := c.current
	if sess == nil || sess.state.Terminal() {
		state := models.SessionIdle
		if sess != nil {
			state = sess.state
		}
		c.status.Store(&Status{State: state})
		return
	}
	c.status.Store(&Status{
		State:          sess.state,
		Streaming:      sess.state == models.SessionLive,
		SessionID:      sess.id,
		ScheduleID:     sess.cfg.ScheduleID,
		CurrentVideoID: sess.currentID,
		CurrentVideo:   sess.current,
		Title:          sess.title,
		StartedAt:      sess.startedAt,
	})
}

func classify(err, fallback error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrPlayerTimeout
	}
	return errors.Join(fallback, err)
}
