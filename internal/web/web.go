// Package web exposes the scheduling engine over HTTP. It is a thin
// boundary: handlers translate JSON/iCal payloads into engine inputs and map
// the error taxonomy onto status codes.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"meetsched/internal/config"
	"meetsched/internal/ical"
	appLog "meetsched/internal/log"
	"meetsched/internal/model"
	"meetsched/internal/recur"
	"meetsched/internal/schedule"
	"meetsched/internal/session"
)

// maxUploadBytes bounds calendar upload size.
const maxUploadBytes = 2 << 20

// Server provides the HTTP API around the scheduling engine.
type Server struct {
	cfg   *config.Config
	store *session.Store
	sched *schedule.Scheduler
	mux   *http.ServeMux
}

// NewServer constructs a Server. The session store is passed in by the
// caller so its lifecycle (and expiry sweeping) stays outside the handlers.
func NewServer(cfg *config.Config, store *session.Store) *Server {
	proc := schedule.NewProcessor()
	proc.MaxOccurrences = cfg.Scheduling.MaxOccurrences
	sched := schedule.NewScheduler(proc)
	sched.TopN = cfg.Scheduling.TopRecommendations

	s := &Server{
		cfg:   cfg,
		store: store,
		sched: sched,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for this server, with basic auth applied
// when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Serve runs the HTTP server until ctx is canceled.
func Serve(ctx context.Context, cfg *config.Config, store *session.Store) error {
	s := NewServer(cfg, store)
	srv := &http.Server{Addr: cfg.Listen, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/calendars", s.handleUploadCalendar)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	s.mux.HandleFunc("POST /api/schedule", s.handleSchedule)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards every endpoint except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="meetsched", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// uploadResponse summarizes one stored calendar.
type uploadResponse struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	EventCount    int    `json:"event_count"`
}

// handleUploadCalendar accepts raw iCalendar text (optionally with a ?label=
// participant label), validates it structurally, parses it and stores the
// result in the session store.
func (s *Server) handleUploadCalendar(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "could not read request body")
		return
	}
	if len(body) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "calendar exceeds upload limit")
		return
	}

	text := string(body)
	if defects := ical.Validate(text); len(defects) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation_error",
			"message": "calendar has structural defects; fix them and retry",
			"defects": defects,
		})
		return
	}

	cal, err := ical.Parse(text, r.URL.Query().Get("label"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse_error", err.Error())
		return
	}

	id := s.store.Put(*cal)
	writeJSON(w, http.StatusCreated, uploadResponse{
		SessionID:     id,
		ParticipantID: cal.ParticipantID,
		Name:          cal.Name,
		EventCount:    len(cal.Events),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cal, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found", "unknown or expired session id")
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		SessionID:     id,
		ParticipantID: cal.ParticipantID,
		Name:          cal.Name,
		EventCount:    len(cal.Events),
	})
}

// scheduleRequest is the boundary shape of a scheduling request.
// Participants may be supplied inline, by session id, or both.
type scheduleRequest struct {
	Participants []participantDTO `json:"participants"`
	SessionIDs   []string         `json:"session_ids"`
	Preferences  preferencesDTO   `json:"preferences"`
	SearchRange  searchRangeDTO   `json:"search_range"`
}

type participantDTO struct {
	ParticipantID string     `json:"participant_id"`
	Name          string     `json:"name"`
	Timezone      string     `json:"timezone"`
	Source        string     `json:"source"`
	Events        []eventDTO `json:"events"`
}

type eventDTO struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone"`
	Status   string    `json:"status"`

	// RRule is an optional interchange-format recurrence rule
	// ("FREQ=WEEKLY;COUNT=4"); Exclusions are occurrence starts to skip.
	RRule      string      `json:"rrule,omitempty"`
	Exclusions []time.Time `json:"exclusions,omitempty"`
}

type preferencesDTO struct {
	DurationMinutes    int      `json:"duration_minutes"`
	TimeRangeStart     string   `json:"time_range_start"`
	TimeRangeEnd       string   `json:"time_range_end"`
	ExcludeWeekends    *bool    `json:"exclude_weekends"`
	ExcludedDates      []string `json:"excluded_dates"`
	BufferMinutes      int      `json:"buffer_minutes"`
	PreferredTimezones []string `json:"preferred_timezones"`
}

type searchRangeDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type slotDTO struct {
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	Score           int               `json:"score"`
	Conflicts       []string          `json:"conflicts"`
	TimezoneDisplay map[string]string `json:"timezone_display"`
}

type scheduleResponse struct {
	AvailableSlots  []slotDTO           `json:"available_slots"`
	Recommendations []slotDTO           `json:"recommendations"`
	Alternatives    []slotDTO           `json:"alternatives,omitempty"`
	TotalConflicts  int                 `json:"total_conflicts"`
	ByParticipant   map[string]int      `json:"conflicts_by_participant"`
	BySlot          map[string][]string `json:"conflicts_by_slot"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON: "+err.Error())
		return
	}

	participants := make([]model.ParticipantCalendar, 0, len(req.Participants)+len(req.SessionIDs))
	for _, dto := range req.Participants {
		participants = append(participants, dto.toModel())
	}
	for _, id := range req.SessionIDs {
		cal, ok := s.store.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "session_not_found", "unknown or expired session id: "+id)
			return
		}
		participants = append(participants, cal)
	}

	prefs := s.preferences(req.Preferences)
	searchRange := model.SearchRange{Start: req.SearchRange.Start, End: req.SearchRange.End}

	result, err := s.sched.ScheduleOptimalMeeting(participants, prefs, searchRange)
	if err != nil {
		var schedErr *schedule.SchedulingError
		var procErr *schedule.CalendarProcessingError
		switch {
		case errors.As(err, &schedErr):
			writeError(w, http.StatusBadRequest, schedErr.Code, schedErr.Message)
		case errors.As(err, &procErr):
			writeError(w, http.StatusUnprocessableEntity, "processing_error", procErr.Error())
		default:
			appLog.Error("scheduling failed", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "scheduling failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toScheduleResponse(result))
}

// preferences fills unset request fields from the configured defaults.
func (s *Server) preferences(dto preferencesDTO) model.MeetingPreferences {
	def := s.cfg.Scheduling

	prefs := model.MeetingPreferences{
		Duration:           dto.DurationMinutes,
		TimeRangeStart:     dto.TimeRangeStart,
		TimeRangeEnd:       dto.TimeRangeEnd,
		BufferTime:         dto.BufferMinutes,
		PreferredTimezones: dto.PreferredTimezones,
		ExcludeWeekends:    def.ExcludeWeekends,
	}
	if dto.ExcludeWeekends != nil {
		prefs.ExcludeWeekends = *dto.ExcludeWeekends
	}
	if prefs.Duration == 0 {
		prefs.Duration = def.DurationMinutes
	}
	if prefs.TimeRangeStart == "" {
		prefs.TimeRangeStart = def.BusinessHoursStart
	}
	if prefs.TimeRangeEnd == "" {
		prefs.TimeRangeEnd = def.BusinessHoursEnd
	}
	if prefs.BufferTime == 0 {
		prefs.BufferTime = def.BufferMinutes
	}
	for _, d := range dto.ExcludedDates {
		if t, err := time.Parse("2006-01-02", d); err == nil {
			prefs.ExcludedDates = append(prefs.ExcludedDates, t)
		} else {
			appLog.Warn("ignoring malformed excluded date", "value", d)
		}
	}
	return prefs
}

func (dto participantDTO) toModel() model.ParticipantCalendar {
	cal := model.ParticipantCalendar{
		ParticipantID: dto.ParticipantID,
		Name:          dto.Name,
		Timezone:      dto.Timezone,
		Source:        dto.Source,
	}
	if cal.Source == "" {
		cal.Source = "inline"
	}
	for _, e := range dto.Events {
		status := model.EventStatus(strings.ToLower(e.Status))
		switch status {
		case model.StatusConfirmed, model.StatusTentative, model.StatusCancelled:
		default:
			status = model.StatusConfirmed
		}
		ev := model.Event{
			ID:       e.ID,
			Title:    e.Title,
			Start:    e.Start,
			End:      e.End,
			Timezone: e.Timezone,
			Status:   status,
		}
		// Same recovery as the parser: a bad rule keeps the event as a
		// single occurrence.
		if e.RRule != "" {
			rule, err := recur.ParseRule(e.RRule)
			if err != nil {
				appLog.Warn("dropping unparseable recurrence rule",
					"event_id", e.ID, "rrule", e.RRule, "reason", err.Error())
			} else {
				ev.Recurrence = rule
				ev.Exclusions = e.Exclusions
			}
		}
		cal.Events = append(cal.Events, ev)
	}
	return cal
}

func toScheduleResponse(result *model.SchedulingResult) scheduleResponse {
	resp := scheduleResponse{
		AvailableSlots:  toSlotDTOs(result.AvailableSlots),
		Recommendations: toSlotDTOs(result.Recommendations),
		Alternatives:    toSlotDTOs(schedule.FindAlternativeSuggestions(result)),
		TotalConflicts:  result.ConflictAnalysis.TotalConflicts,
		ByParticipant:   result.ConflictAnalysis.ByParticipant,
		BySlot:          result.ConflictAnalysis.BySlot,
	}
	return resp
}

func toSlotDTOs(slots []model.TimeSlot) []slotDTO {
	out := make([]slotDTO, 0, len(slots))
	for _, slot := range slots {
		conflicts := slot.Conflicts
		if conflicts == nil {
			conflicts = []string{}
		}
		out = append(out, slotDTO{
			Start:           slot.Start,
			End:             slot.End,
			Score:           slot.Score,
			Conflicts:       conflicts,
			TimezoneDisplay: slot.TimezoneDisplay,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	type errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	writeJSON(w, status, errResp{Error: code, Message: msg})
}
