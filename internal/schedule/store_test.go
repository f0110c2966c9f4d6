/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcast/internal/events"
	"github.com/friendsincode/signalcast/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.ScheduledBroadcast{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return NewStore(db, events.NewBus(), zerolog.Nop())
}

func validInput(startAt time.Time) CreateInput {
	return CreateInput{
		StartAt:   startAt,
		Playlist:  []string{"v1", "v2"},
		LoopMode:  "playlist",
		StreamKey: "key123",
		Title:     "Morning Show",
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	startAt := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"zero start", func(in *CreateInput) { in.StartAt = time.Time{} }},
		{"empty playlist", func(in *CreateInput) { in.Playlist = nil }},
		{"empty stream key", func(in *CreateInput) { in.StreamKey = "" }},
		{"endAt before startAt", func(in *CreateInput) {
			end := startAt.Add(-time.Minute)
			in.EndAt = &end
		}},
		{"endAt equals startAt", func(in *CreateInput) { in.EndAt = &startAt }},
		{"unknown loop mode", func(in *CreateInput) { in.LoopMode = "forever" }},
		{"count without repeats", func(in *CreateInput) { in.LoopMode = "n"; in.Repeats = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput(startAt)
			tt.mutate(&in)
			if _, err := store.Create(ctx, in); !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("Create() error = %v, want ErrInvalidSchedule", err)
			}
		})
	}
}

func TestCreateNormalizesRepeats(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	in := validInput(time.Now().Add(time.Hour))
	in.Repeats = 7 // meaningless outside "n" mode
	sched, err := store.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sched.Repeats != 1 {
		t.Errorf("Repeats = %d, want 1 for playlist mode", sched.Repeats)
	}

	in = validInput(time.Now().Add(time.Hour))
	in.LoopMode = "n"
	in.Repeats = 3
	sched, err = store.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sched.LoopMode != models.LoopCount || sched.Repeats != 3 {
		t.Errorf("got mode=%v repeats=%d, want n/3", sched.LoopMode, sched.Repeats)
	}
}

func TestListOrdersByStartTime(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(time.Hour)

	later, _ := store.Create(ctx, validInput(base.Add(2*time.Hour)))
	earlier, _ := store.Create(ctx, validInput(base))

	schedules, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(schedules) != 2 {
		t.Fatalf("List() returned %d schedules", len(schedules))
	}
	if schedules[0].ID != earlier.ID || schedules[1].ID != later.ID {
		t.Errorf("List() not ordered by start_at ASC")
	}
	if len(schedules[0].Playlist) != 2 {
		t.Errorf("playlist did not round-trip: %v", schedules[0].Playlist)
	}
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("Get() error = %v, want ErrScheduleNotFound", err)
	}
}

func TestCancelPendingOnly(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	sched, err := store.Create(ctx, validInput(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Cancel(ctx, sched.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := store.Get(ctx, sched.ID); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("cancelled schedule still present: %v", err)
	}

	// Activated schedules are history and cannot be cancelled.
	sched, _ = store.Create(ctx, validInput(time.Now().Add(time.Hour)))
	if err := store.MarkActivated(ctx, sched.ID); err != nil {
		t.Fatalf("MarkActivated() error = %v", err)
	}
	if err := store.Cancel(ctx, sched.ID); !errors.Is(err, ErrAlreadyActivated) {
		t.Errorf("Cancel() on activated error = %v, want ErrAlreadyActivated", err)
	}

	if err := store.Cancel(ctx, "missing"); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("Cancel() on missing error = %v, want ErrScheduleNotFound", err)
	}
}

func TestDuePendingSkipsHandledSchedules(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	due, _ := store.Create(ctx, validInput(now.Add(-time.Minute)))
	dueOlder, _ := store.Create(ctx, validInput(now.Add(-time.Hour)))
	future, _ := store.Create(ctx, validInput(now.Add(time.Hour)))
	handled, _ := store.Create(ctx, validInput(now.Add(-2*time.Hour)))
	if err := store.MarkActivated(ctx, handled.ID); err != nil {
		t.Fatalf("MarkActivated() error = %v", err)
	}

	pending, err := store.DuePending(ctx, now)
	if err != nil {
		t.Fatalf("DuePending() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("DuePending() returned %d schedules, want 2", len(pending))
	}
	if pending[0].ID != dueOlder.ID || pending[1].ID != due.ID {
		t.Errorf("DuePending() not oldest first")
	}
	for _, p := range pending {
		if p.ID == future.ID {
			t.Error("future schedule reported as due")
		}
	}
}

func TestMarkersAreIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	sched, _ := store.Create(ctx, validInput(time.Now().Add(time.Hour)))

	for i := 0; i < 2; i++ {
		if err := store.MarkActivated(ctx, sched.ID); err != nil {
			t.Fatalf("MarkActivated() #%d error = %v", i, err)
		}
		if err := store.MarkCompleted(ctx, sched.ID); err != nil {
			t.Fatalf("MarkCompleted() #%d error = %v", i, err)
		}
	}

	got, err := store.Get(ctx, sched.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Activated || !got.Completed {
		t.Errorf("flags = activated:%v completed:%v, want both true", got.Activated, got.Completed)
	}
}

func TestMissedIsDerived(t *testing.T) {
	t.Parallel()
	now := time.Now()

	tests := []struct {
		name  string
		sched models.ScheduledBroadcast
		want  bool
	}{
		{"overdue pending", models.ScheduledBroadcast{StartAt: now.Add(-time.Minute)}, true},
		{"future pending", models.ScheduledBroadcast{StartAt: now.Add(time.Minute)}, false},
		{"overdue activated", models.ScheduledBroadcast{StartAt: now.Add(-time.Minute), Activated: true}, false},
		{"overdue completed", models.ScheduledBroadcast{StartAt: now.Add(-time.Minute), Completed: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sched.Missed(now); got != tt.want {
				t.Errorf("Missed() = %v, want %v", got, tt.want)
			}
		})
	}
}
