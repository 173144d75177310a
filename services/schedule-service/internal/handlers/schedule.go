package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/thatsmartsite/schedule/libs/auth"
	"github.com/thatsmartsite/schedule/libs/dates"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/availability"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/model"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/outbox"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/storage"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/tenant"
)

// ScheduleHandler serves the tenant-scoped scheduling API. Every route runs
// behind bearer auth; the tenant id always comes from the verified token,
// never from the request body.
type ScheduleHandler struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	tenants    tenant.Provider
	jwtSecret  string
	jwks       *auth.JWKSClient
}

func NewScheduleHandler(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, tenants tenant.Provider, jwtSecret string, jwks *auth.JWKSClient) *ScheduleHandler {
	return &ScheduleHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		logger:     logger,
		tenants:    tenants,
		jwtSecret:  jwtSecret,
		jwks:       jwks,
	}
}

// Register wires the API routes onto mux.
func (h *ScheduleHandler) Register(mux *http.ServeMux) {
	const base = "/api/v1/schedule"

	mux.HandleFunc("GET "+base+"/appointments", h.withAuth(h.listAppointments))
	mux.HandleFunc("POST "+base+"/appointments", h.withAuth(h.createAppointment))
	mux.HandleFunc("GET "+base+"/appointments/{id}", h.withAuth(h.getAppointment))
	mux.HandleFunc("PUT "+base+"/appointments/{id}", h.withAuth(h.updateAppointment))
	mux.HandleFunc("PATCH "+base+"/appointments/{id}/status", h.withAuth(h.updateAppointmentStatus))
	mux.HandleFunc("DELETE "+base+"/appointments/{id}", h.withAuth(h.deleteAppointment))

	mux.HandleFunc("GET "+base+"/time-blocks", h.withAuth(h.listTimeBlocks))
	mux.HandleFunc("POST "+base+"/time-blocks", h.withAuth(h.createTimeBlock))
	mux.HandleFunc("PUT "+base+"/time-blocks/{id}", h.withAuth(h.updateTimeBlock))
	mux.HandleFunc("DELETE "+base+"/time-blocks/{id}", h.withAuth(h.deleteTimeBlock))

	mux.HandleFunc("GET "+base+"/blocked-days", h.withAuth(h.listBlockedDays))
	mux.HandleFunc("POST "+base+"/blocked-days/toggle", h.withAuth(h.toggleBlockedDay))
	mux.HandleFunc("POST "+base+"/blocked-days", h.withAuth(h.addBlockedDay))
	mux.HandleFunc("DELETE "+base+"/blocked-days/{date}", h.withAuth(h.removeBlockedDay))

	mux.HandleFunc("GET "+base+"/settings", h.withAuth(h.getSettings))
	mux.HandleFunc("PUT "+base+"/settings", h.withAuth(h.putSettings))
	mux.HandleFunc("POST "+base+"/settings/reset", h.withAuth(h.resetSettings))

	mux.HandleFunc("GET "+base+"/available-slots", h.withAuth(h.availableSlots))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, tenantID string)

func (h *ScheduleHandler) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.verifyToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.TenantID == "" {
			writeError(w, http.StatusForbidden, "token has no tenant")
			return
		}
		next(w, r, claims.TenantID)
	}
}

// verifyToken checks the signature. RS256 tokens are verified against the
// auth service's JWKS when a client is configured; everything else falls back
// to the shared HS256 secret.
func (h *ScheduleHandler) verifyToken(token string) (*auth.Claims, error) {
	if h.jwks != nil {
		header, err := auth.ParseHeader(token)
		if err != nil {
			return nil, err
		}
		if header.Alg == "RS256" && header.Kid != "" {
			pub, err := h.jwks.Get(header.Kid)
			if err != nil {
				return nil, err
			}
			return auth.VerifyRS256(token, pub)
		}
	}
	return auth.ParseAndVerifyHS256(token, h.jwtSecret)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *ScheduleHandler) writeRepoError(w http.ResponseWriter, err error, what string) {
	switch {
	case storage.IsNotFound(err):
		writeError(w, http.StatusNotFound, what+" not found")
	case storage.IsConflict(err):
		writeError(w, http.StatusConflict, what+" conflicts with an existing record")
	default:
		h.logger.Error("repository error", "what", what, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// rangeParams validates the startDate/endDate query pair.
func rangeParams(r *http.Request) (string, string, bool) {
	start := strings.TrimSpace(r.URL.Query().Get("startDate"))
	end := strings.TrimSpace(r.URL.Query().Get("endDate"))
	if !dates.IsValid(start) || !dates.IsValid(end) || start > end {
		return "", "", false
	}
	return start, end, true
}

// parseEventTime accepts RFC3339 or a local wall-clock timestamp.
func parseEventTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.Local); err == nil {
		return t, true
	}
	return time.Time{}, false
}

type appointmentJSON struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	ServiceType     string  `json:"service_type"`
	ServiceDuration int     `json:"service_duration"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	CustomerName    string  `json:"customer_name"`
	CustomerPhone   string  `json:"customer_phone"`
	CustomerEmail   string  `json:"customer_email,omitempty"`
	Price           float64 `json:"price,omitempty"`
	Deposit         float64 `json:"deposit,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	InternalNotes   string  `json:"internal_notes,omitempty"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func toAppointmentJSON(a model.Appointment) appointmentJSON {
	return appointmentJSON{
		ID:              a.ID,
		Title:           a.Title,
		Description:     a.Description,
		ServiceType:     a.ServiceType,
		ServiceDuration: a.ServiceDuration,
		StartTime:       a.StartTime.Format(time.RFC3339),
		EndTime:         a.EndTime.Format(time.RFC3339),
		CustomerName:    a.CustomerName,
		CustomerPhone:   a.CustomerPhone,
		CustomerEmail:   a.CustomerEmail,
		Price:           a.Price,
		Deposit:         a.Deposit,
		Notes:           a.Notes,
		InternalNotes:   a.InternalNotes,
		Status:          a.Status,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.Format(time.RFC3339),
	}
}

type appointmentRequest struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	ServiceType     string  `json:"service_type"`
	ServiceDuration int     `json:"service_duration"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	CustomerName    string  `json:"customer_name"`
	CustomerPhone   string  `json:"customer_phone"`
	CustomerEmail   string  `json:"customer_email"`
	Price           float64 `json:"price"`
	Deposit         float64 `json:"deposit"`
	Notes           string  `json:"notes"`
	InternalNotes   string  `json:"internal_notes"`
}

func (req *appointmentRequest) toModel(tenantID string) (model.Appointment, string) {
	req.Title = strings.TrimSpace(req.Title)
	req.ServiceType = strings.TrimSpace(req.ServiceType)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if req.Title == "" || req.ServiceType == "" || req.CustomerName == "" || req.CustomerPhone == "" {
		return model.Appointment{}, "title, service_type, customer_name, and customer_phone are required"
	}
	start, ok := parseEventTime(req.StartTime)
	if !ok {
		return model.Appointment{}, "invalid start_time"
	}
	end, ok := parseEventTime(req.EndTime)
	if !ok {
		return model.Appointment{}, "invalid end_time"
	}
	if !end.After(start) {
		return model.Appointment{}, "end_time must be after start_time"
	}
	duration := req.ServiceDuration
	if duration <= 0 {
		duration = int(end.Sub(start) / time.Minute)
	}
	return model.Appointment{
		TenantID:        tenantID,
		Title:           req.Title,
		Description:     strings.TrimSpace(req.Description),
		ServiceType:     req.ServiceType,
		ServiceDuration: duration,
		StartTime:       start,
		EndTime:         end,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		Price:           req.Price,
		Deposit:         req.Deposit,
		Notes:           req.Notes,
		InternalNotes:   req.InternalNotes,
		Status:          "scheduled",
	}, ""
}

func (h *ScheduleHandler) listAppointments(w http.ResponseWriter, r *http.Request, tenantID string) {
	start, end, ok := rangeParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "startDate and endDate are required (YYYY-MM-DD)")
		return
	}
	appts, err := h.repo.ListAppointments(r.Context(), tenantID, start, end)
	if err != nil {
		h.writeRepoError(w, err, "appointments")
		return
	}
	out := make([]appointmentJSON, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentJSON(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ScheduleHandler) getAppointment(w http.ResponseWriter, r *http.Request, tenantID string) {
	appt, err := h.repo.GetAppointment(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentJSON(appt))
}

func (h *ScheduleHandler) createAppointment(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	appt, problem := req.toModel(tenantID)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	overlap, err := h.repo.CountOverlapping(ctx, tx, tenantID, appt.StartTime, appt.EndTime, "")
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	if overlap > 0 {
		writeError(w, http.StatusConflict, "time slot conflicts with an existing appointment")
		return
	}

	created, err := h.repo.CreateAppointment(ctx, tx, &appt)
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	if err := h.insertAppointmentEvent(ctx, tx, outbox.EventAppointmentCreated, created); err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentJSON(created))
}

func (h *ScheduleHandler) updateAppointment(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	appt, problem := req.toModel(tenantID)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	appt.ID = r.PathValue("id")

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	overlap, err := h.repo.CountOverlapping(ctx, tx, tenantID, appt.StartTime, appt.EndTime, appt.ID)
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	if overlap > 0 {
		writeError(w, http.StatusConflict, "time slot conflicts with an existing appointment")
		return
	}

	updated, err := h.repo.UpdateAppointment(ctx, tx, &appt)
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	if err := h.insertAppointmentEvent(ctx, tx, outbox.EventAppointmentUpdated, updated); err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentJSON(updated))
}

func (h *ScheduleHandler) updateAppointmentStatus(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !model.ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updated, err := h.repo.UpdateAppointmentStatus(ctx, tx, tenantID, r.PathValue("id"), req.Status)
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	if err := h.insertAppointmentEvent(ctx, tx, outbox.EventAppointmentStatusChanged, updated); err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentJSON(updated))
}

func (h *ScheduleHandler) deleteAppointment(w http.ResponseWriter, r *http.Request, tenantID string) {
	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleted, err := h.repo.DeleteAppointment(ctx, tx, tenantID, r.PathValue("id"))
	if err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	if err := h.insertAppointmentEvent(ctx, tx, outbox.EventAppointmentDeleted, deleted); err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.writeRepoError(w, err, "appointment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type timeBlockJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	BlockType   string `json:"block_type"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	CreatedAt   string `json:"created_at"`
}

func toTimeBlockJSON(b model.TimeBlock) timeBlockJSON {
	return timeBlockJSON{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		BlockType:   b.BlockType,
		StartTime:   b.StartTime.Format(time.RFC3339),
		EndTime:     b.EndTime.Format(time.RFC3339),
		CreatedAt:   b.CreatedAt.Format(time.RFC3339),
	}
}

type timeBlockRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	BlockType   string `json:"block_type"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

func (req *timeBlockRequest) toModel(tenantID string) (model.TimeBlock, string) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return model.TimeBlock{}, "title is required"
	}
	if req.BlockType == "" {
		req.BlockType = "unavailable"
	}
	if !model.ValidBlockType(req.BlockType) {
		return model.TimeBlock{}, "invalid block_type"
	}
	start, ok := parseEventTime(req.StartTime)
	if !ok {
		return model.TimeBlock{}, "invalid start_time"
	}
	end, ok := parseEventTime(req.EndTime)
	if !ok {
		return model.TimeBlock{}, "invalid end_time"
	}
	if !end.After(start) {
		return model.TimeBlock{}, "end_time must be after start_time"
	}
	return model.TimeBlock{
		TenantID:    tenantID,
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		BlockType:   req.BlockType,
		StartTime:   start,
		EndTime:     end,
	}, ""
}

func (h *ScheduleHandler) listTimeBlocks(w http.ResponseWriter, r *http.Request, tenantID string) {
	start, end, ok := rangeParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "startDate and endDate are required (YYYY-MM-DD)")
		return
	}
	blocks, err := h.repo.ListTimeBlocks(r.Context(), tenantID, start, end)
	if err != nil {
		h.writeRepoError(w, err, "time blocks")
		return
	}
	out := make([]timeBlockJSON, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, toTimeBlockJSON(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ScheduleHandler) createTimeBlock(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req timeBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	block, problem := req.toModel(tenantID)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	created, err := h.repo.CreateTimeBlock(r.Context(), &block)
	if err != nil {
		h.writeRepoError(w, err, "time block")
		return
	}
	writeJSON(w, http.StatusCreated, toTimeBlockJSON(created))
}

func (h *ScheduleHandler) updateTimeBlock(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req timeBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	block, problem := req.toModel(tenantID)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	block.ID = r.PathValue("id")
	updated, err := h.repo.UpdateTimeBlock(r.Context(), &block)
	if err != nil {
		h.writeRepoError(w, err, "time block")
		return
	}
	writeJSON(w, http.StatusOK, toTimeBlockJSON(updated))
}

func (h *ScheduleHandler) deleteTimeBlock(w http.ResponseWriter, r *http.Request, tenantID string) {
	if err := h.repo.DeleteTimeBlock(r.Context(), tenantID, r.PathValue("id")); err != nil {
		h.writeRepoError(w, err, "time block")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type blockedDayJSON struct {
	Date   string `json:"blocked_date"`
	Reason string `json:"reason,omitempty"`
}

func (h *ScheduleHandler) listBlockedDays(w http.ResponseWriter, r *http.Request, tenantID string) {
	start, end, ok := rangeParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "startDate and endDate are required (YYYY-MM-DD)")
		return
	}
	days, err := h.repo.ListBlockedDays(r.Context(), tenantID, start, end)
	if err != nil {
		h.writeRepoError(w, err, "blocked days")
		return
	}
	out := make([]blockedDayJSON, 0, len(days))
	for _, d := range days {
		out = append(out, blockedDayJSON{Date: d.BlockedDate, Reason: d.Reason})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ScheduleHandler) toggleBlockedDay(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req struct {
		Date   string `json:"date"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !dates.IsValid(req.Date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		h.writeRepoError(w, err, "blocked day")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	action, err := h.repo.ToggleBlockedDay(ctx, tx, tenantID, req.Date, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeRepoError(w, err, "blocked day")
		return
	}
	err = h.insertEvent(ctx, tx, outbox.EventBlockedDayToggled, "blocked_day", req.Date, map[string]any{
		"tenant_id": tenantID,
		"date":      req.Date,
		"action":    action,
		"reason":    req.Reason,
	})
	if err != nil {
		h.writeRepoError(w, err, "blocked day")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		h.writeRepoError(w, err, "blocked day")
		return
	}
	resp := map[string]string{"action": action, "date": req.Date}
	if action == "added" && req.Reason != "" {
		resp["reason"] = req.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ScheduleHandler) addBlockedDay(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req struct {
		Date   string `json:"date"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !dates.IsValid(req.Date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if err := h.repo.InsertBlockedDay(r.Context(), tenantID, req.Date, strings.TrimSpace(req.Reason)); err != nil {
		h.writeRepoError(w, err, "blocked day")
		return
	}
	writeJSON(w, http.StatusCreated, blockedDayJSON{Date: req.Date, Reason: req.Reason})
}

func (h *ScheduleHandler) removeBlockedDay(w http.ResponseWriter, r *http.Request, tenantID string) {
	date := r.PathValue("date")
	if !dates.IsValid(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if err := h.repo.DeleteBlockedDay(r.Context(), tenantID, date); err != nil {
		h.writeRepoError(w, err, "blocked day")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingsJSON struct {
	TimeSlotInterval   int                       `json:"time_slot_interval"`
	DefaultDuration    int                       `json:"default_duration"`
	BufferTime         int                       `json:"buffer_time"`
	AdvanceBookingDays int                       `json:"advance_booking_days"`
	MinNoticeHours     int                       `json:"min_notice_hours"`
	AutoConfirm        bool                      `json:"auto_confirm"`
	AllowOnlineBooking bool                      `json:"allow_online_booking"`
	BusinessHours      map[string]model.DayHours `json:"business_hours"`
}

func toSettingsJSON(s model.Settings) settingsJSON {
	return settingsJSON{
		TimeSlotInterval:   s.TimeSlotInterval,
		DefaultDuration:    s.DefaultDuration,
		BufferTime:         s.BufferTime,
		AdvanceBookingDays: s.AdvanceBookingDays,
		MinNoticeHours:     s.MinNoticeHours,
		AutoConfirm:        s.AutoConfirm,
		AllowOnlineBooking: s.AllowOnlineBooking,
		BusinessHours:      s.BusinessHours,
	}
}

func (h *ScheduleHandler) getSettings(w http.ResponseWriter, r *http.Request, tenantID string) {
	s, err := h.repo.GetSettings(r.Context(), tenantID)
	if err != nil {
		h.writeRepoError(w, err, "settings")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsJSON(s))
}

func (h *ScheduleHandler) putSettings(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req settingsJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.TimeSlotInterval <= 0 || req.DefaultDuration <= 0 {
		writeError(w, http.StatusBadRequest, "time_slot_interval and default_duration must be positive")
		return
	}
	s := model.Settings{
		TenantID:           tenantID,
		TimeSlotInterval:   req.TimeSlotInterval,
		DefaultDuration:    req.DefaultDuration,
		BufferTime:         req.BufferTime,
		AdvanceBookingDays: req.AdvanceBookingDays,
		MinNoticeHours:     req.MinNoticeHours,
		AutoConfirm:        req.AutoConfirm,
		AllowOnlineBooking: req.AllowOnlineBooking,
		BusinessHours:      req.BusinessHours,
	}
	if s.BusinessHours == nil {
		s.BusinessHours = model.DefaultSettings(tenantID).BusinessHours
	}
	if err := h.repo.UpsertSettings(r.Context(), s); err != nil {
		h.writeRepoError(w, err, "settings")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsJSON(s))
}

func (h *ScheduleHandler) resetSettings(w http.ResponseWriter, r *http.Request, tenantID string) {
	defaults := model.DefaultSettings(tenantID)
	if err := h.repo.UpsertSettings(r.Context(), defaults); err != nil {
		h.writeRepoError(w, err, "settings")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsJSON(defaults))
}

type slotJSON struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

var weekdayKeys = map[time.Weekday]string{
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
	time.Sunday:    "sunday",
}

func (h *ScheduleHandler) availableSlots(w http.ResponseWriter, r *http.Request, tenantID string) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if !dates.IsValid(date) {
		writeError(w, http.StatusBadRequest, "date is required (YYYY-MM-DD)")
		return
	}

	settings, err := h.repo.GetSettings(r.Context(), tenantID)
	if err != nil {
		h.writeRepoError(w, err, "settings")
		return
	}
	duration := settings.DefaultDuration
	if raw := strings.TrimSpace(r.URL.Query().Get("duration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 8*60 {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		duration = n
	}

	// A blocked day has no slots at all.
	blocked, err := h.repo.ListBlockedDays(r.Context(), tenantID, date, date)
	if err != nil {
		h.writeRepoError(w, err, "blocked days")
		return
	}
	if len(blocked) > 0 {
		writeJSON(w, http.StatusOK, []slotJSON{})
		return
	}

	loc := h.tenantLocation(r.Context(), tenantID)
	day, err := time.ParseInLocation(dates.Layout, date, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}
	hours, ok := settings.BusinessHours[weekdayKeys[day.Weekday()]]
	if !ok || hours.Closed {
		writeJSON(w, http.StatusOK, []slotJSON{})
		return
	}
	window, ok := windowFor(day, hours)
	if !ok {
		writeJSON(w, http.StatusOK, []slotJSON{})
		return
	}

	busyRanges, err := h.repo.ListBusyIntervals(r.Context(), tenantID, window.Start, window.End)
	if err != nil {
		h.writeRepoError(w, err, "availability")
		return
	}
	busy := make([]availability.Interval, 0, len(busyRanges))
	for _, b := range busyRanges {
		busy = append(busy, availability.Interval{Start: b[0], End: b[1]})
	}

	step := time.Duration(settings.TimeSlotInterval) * time.Minute
	slots := availability.Slots(window, time.Duration(duration)*time.Minute, step, busy, time.Now())

	out := make([]slotJSON, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotJSON{
			StartTime: s.Start.Format(time.RFC3339),
			EndTime:   s.End.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ScheduleHandler) tenantLocation(ctx context.Context, tenantID string) *time.Location {
	if h.tenants == nil {
		return time.Local
	}
	profile, err := h.tenants.GetProfile(ctx, tenantID)
	if err != nil || profile.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		h.logger.Warn("unknown tenant timezone", "tz", profile.Timezone)
		return time.Local
	}
	return loc
}

func windowFor(day time.Time, hours model.DayHours) (availability.Interval, bool) {
	open, err := time.Parse("15:04", hours.Open)
	if err != nil {
		return availability.Interval{}, false
	}
	closeAt, err := time.Parse("15:04", hours.Close)
	if err != nil {
		return availability.Interval{}, false
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), open.Hour(), open.Minute(), 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), closeAt.Hour(), closeAt.Minute(), 0, 0, day.Location())
	if !end.After(start) {
		return availability.Interval{}, false
	}
	return availability.Interval{Start: start, End: end}, true
}

// insertAppointmentEvent writes the domain event inside the mutation's
// transaction so state change and event commit or roll back together.
func (h *ScheduleHandler) insertAppointmentEvent(ctx context.Context, tx pgx.Tx, eventType string, a model.Appointment) error {
	return h.insertEvent(ctx, tx, eventType, "appointment", a.ID, map[string]any{
		"appointment_id": a.ID,
		"tenant_id":      a.TenantID,
		"service_type":   a.ServiceType,
		"start_time":     a.StartTime.UTC().Format(time.RFC3339),
		"end_time":       a.EndTime.UTC().Format(time.RFC3339),
		"status":         a.Status,
		"customer_name":  a.CustomerName,
		"customer_phone": a.CustomerPhone,
		"customer_email": a.CustomerEmail,
	})
}

func (h *ScheduleHandler) insertEvent(ctx context.Context, tx pgx.Tx, eventType, aggregateType, aggregateID string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	})
}
