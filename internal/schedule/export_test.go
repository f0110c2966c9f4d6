package schedule

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcast/internal/events"
	"github.com/friendsincode/signalcast/internal/models"
)

func newTestExportService(t *testing.T) (*ExportService, *Store) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&models.ScheduledBroadcast{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := NewStore(db, events.NewBus(), zerolog.Nop())
	return NewExportService(db, zerolog.Nop()), store
}

func TestExportYAML(t *testing.T) {
	svc, store := newTestExportService(t)
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	for i, title := range []string{"morning show", "evening show"} {
		_, err := store.Create(ctx, CreateInput{
			StartAt:   base.Add(time.Duration(i) * time.Hour),
			Playlist:  []string{"v1", "v2"},
			LoopMode:  "playlist",
			StreamKey: "key",
			Title:     title,
		})
		if err != nil {
			t.Fatalf("create schedule: %v", err)
		}
	}

	res, err := svc.Export(ctx, ExportFormatYAML, base.Add(-time.Hour), base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.ContentType != "application/yaml; charset=utf-8" {
		t.Fatalf("content type = %q", res.ContentType)
	}

	var doc yamlExport
	if err := yaml.Unmarshal(res.Data, &doc); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(doc.Schedules) != 2 {
		t.Fatalf("schedules = %d, want 2", len(doc.Schedules))
	}
	if doc.Schedules[0].Title != "morning show" || doc.Schedules[1].Title != "evening show" {
		t.Fatalf("unexpected order: %q, %q", doc.Schedules[0].Title, doc.Schedules[1].Title)
	}
	if doc.Schedules[0].LoopMode != "playlist" {
		t.Fatalf("loop mode = %q", doc.Schedules[0].LoopMode)
	}
}

func TestExportICal(t *testing.T) {
	svc, store := newTestExportService(t)
	ctx := context.Background()

	start := time.Date(2026, 9, 2, 18, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	if _, err := store.Create(ctx, CreateInput{
		StartAt:   start,
		EndAt:     &end,
		Playlist:  []string{"v1"},
		LoopMode:  "none",
		StreamKey: "key",
		Title:     "gig; live, part 1",
	}); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	res, err := svc.Export(ctx, ExportFormatICal, start.Add(-time.Hour), end)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	body := string(res.Data)
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"DTSTART:20260902T180000Z",
		"DTEND:20260902T200000Z",
		"SUMMARY:gig\\; live\\, part 1",
		"END:VCALENDAR",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("export missing %q:\n%s", want, body)
		}
	}
}

func TestExportUnknownFormat(t *testing.T) {
	svc, _ := newTestExportService(t)
	if _, err := svc.Export(context.Background(), "csv", time.Now(), time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
