package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"github.com/thatsmartsite/schedule/libs/auth"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/outbox"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/storage"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (pgxmock.PgxPoolIface, *httptest.Server) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewScheduleHandler(storage.NewRepository(mock), outbox.NewRepository(nil), logger, nil, testSecret, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return mock, srv
}

func token(t *testing.T, tenantID string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		Sub:      "user-1",
		TenantID: tenantID,
		Role:     "owner",
		Iat:      time.Now().Unix(),
		Exp:      time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	require.NoError(t, err)
	return tok
}

func doRequest(t *testing.T, method, url, bearer, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAuth(t *testing.T) {
	_, srv := newTestServer(t)
	url := srv.URL + "/api/v1/schedule/appointments?startDate=2024-01-15&endDate=2024-01-21"

	resp := doRequest(t, http.MethodGet, url, "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, url, "not-a-jwt", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, url, token(t, ""), "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestListAppointments_RejectsBadRange(t *testing.T) {
	_, srv := newTestServer(t)
	tok := token(t, "site-1")

	for _, q := range []string{
		"",
		"?startDate=2024-01-15",
		"?startDate=garbage&endDate=2024-01-21",
		"?startDate=2024-01-21&endDate=2024-01-15",
	} {
		resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/schedule/appointments"+q, tok, "")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "query %q", q)
	}
}

func TestListAppointments_OK(t *testing.T) {
	mock, srv := newTestServer(t)
	tok := token(t, "site-1")

	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT(.|\s)*FROM schedule_appointments`).
		WithArgs("site-1", "2024-01-15", "2024-01-21").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "title", "description", "service_type", "service_duration",
			"start_time", "end_time", "customer_name", "customer_phone", "customer_email",
			"price", "deposit", "notes", "internal_notes", "status", "created_at", "updated_at",
		}).AddRow(
			"appt-1", "site-1", "Haircut", "", "haircut", 60,
			time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			"Dana Fields", "555-0142", "",
			45.0, 0.0, "", "", "scheduled", now, now,
		))

	resp := doRequest(t, http.MethodGet,
		srv.URL+"/api/v1/schedule/appointments?startDate=2024-01-15&endDate=2024-01-21", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"id":"appt-1"`)
	require.Contains(t, string(body), `"status":"scheduled"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointment_OverlapConflict(t *testing.T) {
	mock, srv := newTestServer(t)
	tok := token(t, "site-1")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\)(.|\s)*FROM schedule_appointments`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	body := `{
		"title": "Haircut",
		"service_type": "haircut",
		"service_duration": 60,
		"start_time": "2024-01-15T09:00:00",
		"end_time": "2024-01-15T10:00:00",
		"customer_name": "Dana Fields",
		"customer_phone": "555-0142"
	}`
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/schedule/appointments", tok, body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointment_RejectsMissingFields(t *testing.T) {
	_, srv := newTestServer(t)
	tok := token(t, "site-1")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/schedule/appointments", tok,
		`{"title": "Haircut"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/schedule/appointments", tok, "not json")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func appointmentRows(status string) *pgxmock.Rows {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "title", "description", "service_type", "service_duration",
		"start_time", "end_time", "customer_name", "customer_phone", "customer_email",
		"price", "deposit", "notes", "internal_notes", "status", "created_at", "updated_at",
	}).AddRow(
		"appt-1", "site-1", "Haircut", "", "haircut", 60,
		time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		"Dana Fields", "555-0142", "",
		45.0, 0.0, "", "", status, now, now,
	)
}

func TestUpdateStatus_WritesEventInSameTx(t *testing.T) {
	mock, srv := newTestServer(t)
	tok := token(t, "site-1")

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE schedule_appointments`).
		WithArgs("appt-1", "site-1", "cancelled").
		WillReturnRows(appointmentRows("cancelled"))
	mock.ExpectExec(`INSERT INTO schedule_outbox_events`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	resp := doRequest(t, http.MethodPatch, srv.URL+"/api/v1/schedule/appointments/appt-1/status", tok,
		`{"status": "cancelled"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"status":"cancelled"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_RollsBackWhenEventInsertFails(t *testing.T) {
	mock, srv := newTestServer(t)
	tok := token(t, "site-1")

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE schedule_appointments`).
		WithArgs("appt-1", "site-1", "cancelled").
		WillReturnRows(appointmentRows("cancelled"))
	mock.ExpectExec(`INSERT INTO schedule_outbox_events`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("outbox insert failed"))
	mock.ExpectRollback()

	resp := doRequest(t, http.MethodPatch, srv.URL+"/api/v1/schedule/appointments/appt-1/status", tok,
		`{"status": "cancelled"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAppointment_WritesEventInSameTx(t *testing.T) {
	mock, srv := newTestServer(t)
	tok := token(t, "site-1")

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM schedule_appointments`).
		WithArgs("appt-1", "site-1").
		WillReturnRows(appointmentRows("scheduled"))
	mock.ExpectExec(`INSERT INTO schedule_outbox_events`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	resp := doRequest(t, http.MethodDelete, srv.URL+"/api/v1/schedule/appointments/appt-1", tok, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	_, srv := newTestServer(t)
	tok := token(t, "site-1")

	resp := doRequest(t, http.MethodPatch, srv.URL+"/api/v1/schedule/appointments/appt-1/status", tok,
		`{"status": "vanished"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToggleBlockedDay_RejectsBadDate(t *testing.T) {
	_, srv := newTestServer(t)
	tok := token(t, "site-1")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/schedule/blocked-days/toggle", tok,
		`{"date": "01/16/2024"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToggleBlockedDay_WritesEventInSameTx(t *testing.T) {
	mock, srv := newTestServer(t)
	tok := token(t, "site-1")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM schedule_blocked_days`).
		WithArgs("site-1", "2024-01-16").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO schedule_outbox_events`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/schedule/blocked-days/toggle", tok,
		`{"date": "2024-01-16"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"action":"removed"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailableSlots_BlockedDayIsEmpty(t *testing.T) {
	mock, srv := newTestServer(t)
	tok := token(t, "site-1")

	mock.ExpectQuery(`SELECT(.|\s)*FROM schedule_settings`).
		WithArgs("site-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT(.|\s)*FROM schedule_blocked_days`).
		WithArgs("site-1", "2030-01-07", "2030-01-07").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "blocked_date", "reason", "created_at"}).
			AddRow("site-1", "2030-01-07", "holiday", time.Now()))

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/schedule/available-slots?date=2030-01-07", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "[]", strings.TrimSpace(string(body)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailableSlots_StepsBySettingsInterval(t *testing.T) {
	mock, srv := newTestServer(t)
	tok := token(t, "site-1")

	// Default settings: Monday 09:00-17:00, 15 minute steps, 60 minute duration.
	mock.ExpectQuery(`SELECT(.|\s)*FROM schedule_settings`).
		WithArgs("site-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT(.|\s)*FROM schedule_blocked_days`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "blocked_date", "reason", "created_at"}))
	mock.ExpectQuery(`SELECT start_time, end_time`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"start_time", "end_time"}))

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/schedule/available-slots?date=2030-01-07", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// 09:00 through 16:00 last start, every 15 minutes: 29 slots.
	require.Equal(t, 29, strings.Count(string(body), `"start_time"`))
	require.NoError(t, mock.ExpectationsWereMet())
}
