/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcast/internal/events"
	"github.com/friendsincode/signalcast/internal/models"
	"github.com/friendsincode/signalcast/internal/schedule"
	"github.com/friendsincode/signalcast/internal/session"
)

type fakeSessions struct {
	mu       sync.Mutex
	status   session.Status
	startErr error
	starts   []session.Config
	stops    []string
	seq      int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{status: session.Status{State: models.SessionIdle}}
}

func (f *fakeSessions) Start(ctx context.Context, cfg session.Config) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.seq++
	id := fmt.Sprintf("sess-%d", f.seq)
	f.starts = append(f.starts, cfg)
	f.status = session.Status{
		State:      models.SessionLive,
		Streaming:  true,
		SessionID:  id,
		ScheduleID: cfg.ScheduleID,
	}
	return id, nil
}

func (f *fakeSessions) Stop(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, sessionID)
	f.status = session.Status{State: models.SessionStopped}
	return nil
}

func (f *fakeSessions) Snapshot() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSessions) endSession() {
	f.mu.Lock()
	f.status = session.Status{State: models.SessionStopped}
	f.mu.Unlock()
}

type fixedLeader bool

func (l fixedLeader) IsLeader() bool { return bool(l) }

func newTestDispatcher(t *testing.T) (*Dispatcher, *schedule.Store, *fakeSessions, *events.Bus) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.ScheduledBroadcast{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	bus := events.NewBus()
	store := schedule.NewStore(db, bus, zerolog.Nop())
	sessions := newFakeSessions()
	d := NewDispatcher(store, sessions, bus, nil, time.Second, zerolog.Nop())
	return d, store, sessions, bus
}

func createSchedule(t *testing.T, store *schedule.Store, startAt time.Time, endAt *time.Time) *models.ScheduledBroadcast {
	t.Helper()
	sched, err := store.Create(context.Background(), schedule.CreateInput{
		StartAt:   startAt,
		EndAt:     endAt,
		Playlist:  []string{"v1"},
		LoopMode:  "playlist",
		StreamKey: "key123",
		Title:     "Scheduled Show",
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return sched
}

func TestTickActivatesOldestDueSchedule(t *testing.T) {
	t.Parallel()
	d, store, sessions, _ := newTestDispatcher(t)
	ctx := context.Background()
	now := time.Now()

	createSchedule(t, store, now.Add(-time.Minute), nil)
	oldest := createSchedule(t, store, now.Add(-time.Hour), nil)
	createSchedule(t, store, now.Add(time.Hour), nil)

	if err := d.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}

	if len(sessions.starts) != 1 {
		t.Fatalf("started %d sessions, want 1", len(sessions.starts))
	}
	if sessions.starts[0].ScheduleID != oldest.ID {
		t.Errorf("activated %s, want oldest %s", sessions.starts[0].ScheduleID, oldest.ID)
	}
	got, _ := store.Get(ctx, oldest.ID)
	if !got.Activated || got.Completed {
		t.Errorf("flags = activated:%v completed:%v", got.Activated, got.Completed)
	}
	if d.ActiveScheduleID() != oldest.ID {
		t.Errorf("ActiveScheduleID() = %q", d.ActiveScheduleID())
	}
}

func TestTickLeavesDueSchedulesWhenSlotBusy(t *testing.T) {
	t.Parallel()
	d, store, sessions, _ := newTestDispatcher(t)
	ctx := context.Background()

	sessions.status = session.Status{State: models.SessionLive, Streaming: true, SessionID: "manual"}
	sched := createSchedule(t, store, time.Now().Add(-time.Minute), nil)

	if err := d.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}
	if len(sessions.starts) != 0 {
		t.Fatalf("started %d sessions, want 0", len(sessions.starts))
	}
	got, _ := store.Get(ctx, sched.ID)
	if got.Activated || got.Completed {
		t.Errorf("schedule touched while slot busy: %+v", got)
	}
}

func TestTickActivatesAfterSessionEnds(t *testing.T) {
	t.Parallel()
	d, store, sessions, _ := newTestDispatcher(t)
	ctx := context.Background()

	first := createSchedule(t, store, time.Now().Add(-2*time.Hour), nil)
	second := createSchedule(t, store, time.Now().Add(-time.Hour), nil)

	if err := d.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}
	sessions.endSession()
	if err := d.tick(ctx); err != nil {
		t.Fatalf("second tick() error = %v", err)
	}

	if len(sessions.starts) != 2 {
		t.Fatalf("started %d sessions, want 2", len(sessions.starts))
	}
	if sessions.starts[1].ScheduleID != second.ID {
		t.Errorf("second activation = %s, want %s", sessions.starts[1].ScheduleID, second.ID)
	}
	got, _ := store.Get(ctx, first.ID)
	if !got.Completed {
		t.Error("finished schedule not marked completed")
	}
}

func TestTickCompletesElapsedWindowWithoutActivation(t *testing.T) {
	t.Parallel()
	d, store, sessions, bus := newTestDispatcher(t)
	ctx := context.Background()

	missed := bus.Subscribe(events.EventScheduleMissed)
	end := time.Now().Add(-time.Hour)
	sched := createSchedule(t, store, end.Add(-time.Hour), &end)

	if err := d.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}

	if len(sessions.starts) != 0 {
		t.Fatalf("elapsed schedule was started")
	}
	got, _ := store.Get(ctx, sched.ID)
	if got.Activated || !got.Completed {
		t.Errorf("flags = activated:%v completed:%v, want false/true", got.Activated, got.Completed)
	}
	select {
	case payload := <-missed:
		if payload["schedule_id"] != sched.ID {
			t.Errorf("missed event for %v", payload["schedule_id"])
		}
	default:
		t.Error("no schedule.missed event published")
	}
}

func TestTickEnforcesEndAt(t *testing.T) {
	t.Parallel()
	d, store, sessions, _ := newTestDispatcher(t)
	ctx := context.Background()

	end := time.Now().Add(30 * time.Minute)
	sched := createSchedule(t, store, time.Now().Add(-time.Minute), &end)

	if err := d.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}
	if len(sessions.starts) != 1 {
		t.Fatalf("schedule not activated")
	}

	// Clock jumps past the window; the loop mode would keep playing forever.
	d.now = func() time.Time { return end.Add(time.Second) }
	if err := d.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}

	if len(sessions.stops) != 1 {
		t.Fatalf("session not stopped at end of window")
	}
	got, _ := store.Get(ctx, sched.ID)
	if !got.Completed {
		t.Error("schedule not completed after end-of-window stop")
	}
	if d.ActiveScheduleID() != "" {
		t.Error("active schedule lingered after end-of-window stop")
	}
}

func TestTickMarksFailedStartCompleted(t *testing.T) {
	t.Parallel()
	d, store, sessions, _ := newTestDispatcher(t)
	ctx := context.Background()

	sessions.startErr = session.ErrNoPlayableContent
	sched := createSchedule(t, store, time.Now().Add(-time.Minute), nil)

	if err := d.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}
	got, _ := store.Get(ctx, sched.ID)
	if !got.Activated || !got.Completed {
		t.Errorf("flags = activated:%v completed:%v, want both true", got.Activated, got.Completed)
	}

	// No retry on later ticks.
	if err := d.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}
	if len(sessions.starts) != 0 {
		t.Errorf("failed schedule retried")
	}
}

func TestNonLeaderDoesNotTick(t *testing.T) {
	t.Parallel()
	d, store, sessions, _ := newTestDispatcher(t)
	d.leader = fixedLeader(false)
	ctx := context.Background()

	createSchedule(t, store, time.Now().Add(-time.Minute), nil)
	if err := d.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}
	if len(sessions.starts) != 0 {
		t.Error("non-leader activated a schedule")
	}

	d.leader = fixedLeader(true)
	if err := d.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}
	if len(sessions.starts) != 1 {
		t.Error("leader did not activate the schedule")
	}
}
