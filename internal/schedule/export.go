/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcast/internal/models"
)

// Export formats.
const (
	ExportFormatYAML = "yaml"
	ExportFormatICal = "ical"
)

// ExportService renders the schedule table for operators, either as a
// YAML document for tooling or as an iCal feed for calendar clients.
type ExportService struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewExportService creates a new export service.
func NewExportService(db *gorm.DB, logger zerolog.Logger) *ExportService {
	return &ExportService{
		db:     db,
		logger: logger.With().Str("component", "schedule_export").Logger(),
	}
}

// ExportResult contains the rendered export data.
type ExportResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Export renders all schedules overlapping [start, end) in the given format.
func (s *ExportService) Export(ctx context.Context, format string, start, end time.Time) (*ExportResult, error) {
	var schedules []models.ScheduledBroadcast
	if err := s.db.WithContext(ctx).
		Where("start_at >= ? AND start_at < ?", start, end).
		Order("start_at ASC").
		Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch schedules: %w", err)
	}

	switch format {
	case ExportFormatYAML:
		return s.exportYAML(schedules, start, end)
	case ExportFormatICal:
		return s.exportICal(schedules, start, end)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

type yamlSchedule struct {
	ID        string     `yaml:"id"`
	StartAt   time.Time  `yaml:"start_at"`
	EndAt     *time.Time `yaml:"end_at,omitempty"`
	Playlist  []string   `yaml:"playlist"`
	LoopMode  string     `yaml:"loop_mode"`
	Repeats   int        `yaml:"repeats,omitempty"`
	Title     string     `yaml:"title,omitempty"`
	Activated bool       `yaml:"activated"`
	Completed bool       `yaml:"completed"`
}

type yamlExport struct {
	GeneratedAt time.Time      `yaml:"generated_at"`
	RangeStart  time.Time      `yaml:"range_start"`
	RangeEnd    time.Time      `yaml:"range_end"`
	Schedules   []yamlSchedule `yaml:"schedules"`
}

func (s *ExportService) exportYAML(schedules []models.ScheduledBroadcast, start, end time.Time) (*ExportResult, error) {
	doc := yamlExport{
		GeneratedAt: time.Now().UTC(),
		RangeStart:  start,
		RangeEnd:    end,
		Schedules:   make([]yamlSchedule, 0, len(schedules)),
	}
	for _, sched := range schedules {
		doc.Schedules = append(doc.Schedules, yamlSchedule{
			ID:        sched.ID,
			StartAt:   sched.StartAt,
			EndAt:     sched.EndAt,
			Playlist:  sched.Playlist,
			LoopMode:  string(sched.LoopMode),
			Repeats:   sched.Repeats,
			Title:     sched.Title,
			Activated: sched.Activated,
			Completed: sched.Completed,
		})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schedules: %w", err)
	}

	filename := fmt.Sprintf("schedules-%s-to-%s.yaml",
		start.Format("2006-01-02"),
		end.Format("2006-01-02"))

	s.logger.Info().Int("count", len(schedules)).Str("format", ExportFormatYAML).Msg("schedules exported")

	return &ExportResult{
		Data:        data,
		Filename:    filename,
		ContentType: "application/yaml; charset=utf-8",
	}, nil
}

func (s *ExportService) exportICal(schedules []models.ScheduledBroadcast, start, end time.Time) (*ExportResult, error) {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Signalcast//Schedule Export//EN\r\n")
	buf.WriteString("X-WR-CALNAME:Signalcast Schedule\r\n")
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	now := time.Now()
	for _, sched := range schedules {
		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%s@signalcast\r\n", sched.ID))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICalTime(now)))
		buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(sched.StartAt)))
		if sched.EndAt != nil {
			buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(*sched.EndAt)))
		}

		summary := sched.Title
		if summary == "" {
			summary = fmt.Sprintf("Broadcast (%d items, %s)", len(sched.Playlist), sched.LoopMode)
		}
		buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(summary)))
		buf.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICalText(describeSchedule(sched))))
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")

	filename := fmt.Sprintf("schedules-%s-to-%s.ics",
		start.Format("2006-01-02"),
		end.Format("2006-01-02"))

	s.logger.Info().Int("count", len(schedules)).Str("format", ExportFormatICal).Msg("schedules exported")

	return &ExportResult{
		Data:        buf.Bytes(),
		Filename:    filename,
		ContentType: "text/calendar; charset=utf-8",
	}, nil
}

func describeSchedule(sched models.ScheduledBroadcast) string {
	state := "pending"
	switch {
	case sched.Completed:
		state = "completed"
	case sched.Activated:
		state = "activated"
	}
	desc := fmt.Sprintf("%d items, loop mode %s, %s", len(sched.Playlist), sched.LoopMode, state)
	if sched.LoopMode == models.LoopCount {
		desc = fmt.Sprintf("%s, %d repeats", desc, sched.Repeats)
	}
	return desc
}

// formatICalTime formats a time in iCal UTC format.
func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICalText escapes special characters in iCal text values.
func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
