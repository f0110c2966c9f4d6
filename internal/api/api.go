/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the control surface the broadcast panel talks to.
// Wire shapes are fixed by the panel: schedule lifecycle flags travel as
// "started"/"stopped" and createdAt is epoch milliseconds.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcast/internal/auth"
	"github.com/friendsincode/signalcast/internal/engine"
	"github.com/friendsincode/signalcast/internal/events"
	"github.com/friendsincode/signalcast/internal/library"
	"github.com/friendsincode/signalcast/internal/models"
	"github.com/friendsincode/signalcast/internal/schedule"
	"github.com/friendsincode/signalcast/internal/session"
)

const maxUploadBytes = 512 << 20

// API exposes HTTP handlers.
type API struct {
	engine      *engine.Engine
	library     *library.Service
	db          *gorm.DB
	bus         *events.Bus
	jwtSecret   []byte
	authEnabled bool
	logger      zerolog.Logger
}

// New creates the API router wrapper.
func New(eng *engine.Engine, lib *library.Service, db *gorm.DB, bus *events.Bus, jwtSecret []byte, authEnabled bool, logger zerolog.Logger) *API {
	return &API{
		engine:      eng,
		library:     lib,
		db:          db,
		bus:         bus,
		jwtSecret:   jwtSecret,
		authEnabled: authEnabled,
		logger:      logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on provided router. Reads are public; mutating
// routes sit behind auth when enabled.
func (a *API) Routes(r chi.Router) {
	r.Get("/health", a.handleHealth)
	r.Get("/videos", a.handleVideosList)
	r.Get("/status", a.handleStatus)
	r.Get("/schedules", a.handleSchedulesList)
	r.Get("/events", a.handleEvents)

	r.Group(func(pr chi.Router) {
		if a.authEnabled {
			pr.Use(auth.MiddlewareWithJWT(a.db, a.jwtSecret))
		}
		pr.Post("/upload", a.handleUpload)
		pr.Post("/stream/start", a.handleStreamStart)
		pr.Post("/stream/stop", a.handleStreamStop)
		pr.Patch("/stream/{streamID}", a.handleStreamUpdate)
		pr.Post("/schedule", a.handleScheduleCreate)
		pr.Post("/schedule/{scheduleID}/cancel", a.handleScheduleCancel)
		pr.Delete("/videos/{videoID}", a.handleVideoDelete)
	})
}

// Wire DTOs. Field names and optionality match the panel.

type videoDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type statusDTO struct {
	Streaming    bool   `json:"streaming"`
	StreamID     string `json:"streamId,omitempty"`
	CurrentVideo string `json:"currentVideo,omitempty"`
	Uptime       string `json:"uptime,omitempty"`
	Title        string `json:"title,omitempty"`
}

type scheduleDTO struct {
	ID        string   `json:"id"`
	StartAt   string   `json:"startAt"`
	EndAt     string   `json:"endAt,omitempty"`
	Playlist  []string `json:"playlist"`
	LoopMode  string   `json:"loopMode"`
	Repeats   int      `json:"repeats,omitempty"`
	Title     string   `json:"title,omitempty"`
	StreamKey string   `json:"streamKey,omitempty"`
	Started   bool     `json:"started"`
	Stopped   bool     `json:"stopped"`
	CreatedAt int64    `json:"createdAt"`
}

type startStreamRequest struct {
	Playlist  []string `json:"playlist"`
	LoopMode  string   `json:"loopMode"`
	Repeats   int      `json:"repeats"`
	StreamKey string   `json:"streamKey"`
	Title     string   `json:"title"`
}

type createScheduleRequest struct {
	StartAt   string   `json:"startAt"`
	EndAt     string   `json:"endAt,omitempty"`
	Playlist  []string `json:"playlist"`
	LoopMode  string   `json:"loopMode"`
	Repeats   int      `json:"repeats"`
	StreamKey string   `json:"streamKey"`
	Title     string   `json:"title"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleVideosList(w http.ResponseWriter, r *http.Request) {
	videos, err := a.library.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	out := make([]videoDTO, 0, len(videos))
	for _, v := range videos {
		out = append(out, a.videoToDTO(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	video, err := a.library.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		a.logger.Error().Err(err).Str("filename", header.Filename).Msg("upload failed")
		writeError(w, http.StatusInternalServerError, "upload_failed")
		return
	}
	writeJSON(w, http.StatusCreated, a.videoToDTO(*video))
}

func (a *API) handleVideoDelete(w http.ResponseWriter, r *http.Request) {
	err := a.library.Delete(r.Context(), chi.URLParam(r, "videoID"))
	if errors.Is(err, library.ErrVideoNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := a.engine.Status()
	dto := statusDTO{Streaming: st.Streaming}
	if st.Streaming {
		dto.StreamID = st.SessionID
		dto.CurrentVideo = st.CurrentVideo
		dto.Title = st.Title
		dto.Uptime = formatUptime(time.Since(st.StartedAt))
	}
	writeJSON(w, http.StatusOK, dto)
}

func (a *API) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	var req startStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	mode, repeats, err := models.ParseLoopMode(req.LoopMode, req.Repeats)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_config")
		return
	}

	streamID, err := a.engine.StartStream(r.Context(), session.Config{
		Playlist:  req.Playlist,
		LoopMode:  mode,
		Repeats:   repeats,
		StreamKey: req.StreamKey,
		Title:     req.Title,
	})
	if err != nil {
		a.writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "streamId": streamID})
}

func (a *API) writeStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, "invalid_config")
	case errors.Is(err, session.ErrSessionActive):
		writeError(w, http.StatusConflict, "slot_busy")
	case errors.Is(err, session.ErrNoPlayableContent):
		writeError(w, http.StatusUnprocessableEntity, "no_playable_content")
	case errors.Is(err, session.ErrPlayerTimeout):
		writeError(w, http.StatusGatewayTimeout, "player_timeout")
	default:
		writeError(w, http.StatusBadGateway, "start_failed")
	}
}

func (a *API) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StreamID string `json:"streamId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := a.engine.StopStream(r.Context(), req.StreamID); err != nil {
		writeError(w, http.StatusInternalServerError, "stop_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleStreamUpdate(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	err := a.engine.UpdateStreamMetadata(r.Context(), streamID, req.Title)
	if errors.Is(err, session.ErrNotLive) {
		if a.engine.Status().SessionID == "" {
			writeError(w, http.StatusNotFound, "no_active_session")
		} else {
			writeError(w, http.StatusConflict, "not_live")
		}
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleSchedulesList(w http.ResponseWriter, r *http.Request) {
	schedules, err := a.engine.ListSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	out := make([]scheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, scheduleToDTO(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	in, err := scheduleInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_schedule")
		return
	}
	sched, err := a.engine.CreateSchedule(r.Context(), in)
	if errors.Is(err, schedule.ErrInvalidSchedule) {
		writeError(w, http.StatusBadRequest, "invalid_schedule")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, scheduleToDTO(*sched))
}

func (a *API) handleScheduleCancel(w http.ResponseWriter, r *http.Request) {
	err := a.engine.CancelSchedule(r.Context(), chi.URLParam(r, "scheduleID"))
	switch {
	case errors.Is(err, schedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, schedule.ErrAlreadyActivated):
		writeError(w, http.StatusConflict, "already_activated")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "db_error")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (a *API) videoToDTO(v models.Video) videoDTO {
	return videoDTO{ID: v.ID, Name: v.Name, URL: a.library.URL(v)}
}

func scheduleToDTO(s models.ScheduledBroadcast) scheduleDTO {
	dto := scheduleDTO{
		ID:        s.ID,
		StartAt:   s.StartAt.UTC().Format(time.RFC3339),
		Playlist:  s.Playlist,
		LoopMode:  string(s.LoopMode),
		Title:     s.Title,
		StreamKey: s.StreamKey,
		Started:   s.Activated,
		Stopped:   s.Completed,
		CreatedAt: s.CreatedAt.UnixMilli(),
	}
	if s.EndAt != nil {
		dto.EndAt = s.EndAt.UTC().Format(time.RFC3339)
	}
	if s.LoopMode == models.LoopCount {
		dto.Repeats = s.Repeats
	}
	return dto
}

func scheduleInput(req createScheduleRequest) (schedule.CreateInput, error) {
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		return schedule.CreateInput{}, err
	}
	in := schedule.CreateInput{
		StartAt:   startAt,
		Playlist:  req.Playlist,
		LoopMode:  req.LoopMode,
		Repeats:   req.Repeats,
		StreamKey: req.StreamKey,
		Title:     req.Title,
	}
	if req.EndAt != "" {
		endAt, err := time.Parse(time.RFC3339, req.EndAt)
		if err != nil {
			return schedule.CreateInput{}, err
		}
		in.EndAt = &endAt
	}
	return in, nil
}

// formatUptime renders durations the way the panel displays them.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
