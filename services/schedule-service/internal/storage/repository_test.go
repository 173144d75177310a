package storage

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewRepository(mock)
}

func appointmentRows(t *testing.T) *pgxmock.Rows {
	t.Helper()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "title", "description", "service_type", "service_duration",
		"start_time", "end_time", "customer_name", "customer_phone", "customer_email",
		"price", "deposit", "notes", "internal_notes", "status", "created_at", "updated_at",
	}).AddRow(
		"appt-1", "site-1", "Haircut", "", "haircut", 60,
		time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		"Dana Fields", "555-0142", "",
		45.0, 0.0, "", "", "scheduled", now, now,
	)
}

func TestListAppointments(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectQuery(`SELECT(.|\s)*FROM schedule_appointments`).
		WithArgs("site-1", "2024-01-15", "2024-01-21").
		WillReturnRows(appointmentRows(t))

	appts, err := repo.ListAppointments(t.Context(), "site-1", "2024-01-15", "2024-01-21")
	require.NoError(t, err)
	require.Len(t, appts, 1)
	require.Equal(t, "appt-1", appts[0].ID)
	require.Equal(t, "Haircut", appts[0].Title)
	require.Equal(t, "scheduled", appts[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAppointment_NotFound(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectQuery(`SELECT(.|\s)*FROM schedule_appointments`).
		WithArgs("missing", "site-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetAppointment(t.Context(), "site-1", "missing")
	require.Error(t, err)
	require.True(t, IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAppointment_NotFound(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM schedule_appointments`).
		WithArgs("missing", "site-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	tx, err := repo.Begin(t.Context())
	require.NoError(t, err)
	_, err = repo.DeleteAppointment(t.Context(), tx, "site-1", "missing")
	require.True(t, IsNotFound(err))
	require.NoError(t, tx.Rollback(t.Context()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAppointment_ReturnsDeletedRow(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM schedule_appointments`).
		WithArgs("appt-1", "site-1").
		WillReturnRows(appointmentRows(t))
	mock.ExpectCommit()

	tx, err := repo.Begin(t.Context())
	require.NoError(t, err)
	deleted, err := repo.DeleteAppointment(t.Context(), tx, "site-1", "appt-1")
	require.NoError(t, err)
	require.Equal(t, "appt-1", deleted.ID)
	require.Equal(t, "555-0142", deleted.CustomerPhone)
	require.NoError(t, tx.Commit(t.Context()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleBlockedDay_AddsWhenAbsent(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM schedule_blocked_days`).
		WithArgs("site-1", "2024-01-16").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO schedule_blocked_days`).
		WithArgs("site-1", "2024-01-16", "holiday").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := repo.Begin(t.Context())
	require.NoError(t, err)
	action, err := repo.ToggleBlockedDay(t.Context(), tx, "site-1", "2024-01-16", "holiday")
	require.NoError(t, err)
	require.Equal(t, "added", action)
	require.NoError(t, tx.Commit(t.Context()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleBlockedDay_RemovesWhenPresent(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM schedule_blocked_days`).
		WithArgs("site-1", "2024-01-16").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	tx, err := repo.Begin(t.Context())
	require.NoError(t, err)
	action, err := repo.ToggleBlockedDay(t.Context(), tx, "site-1", "2024-01-16", "")
	require.NoError(t, err)
	require.Equal(t, "removed", action)
	require.NoError(t, tx.Commit(t.Context()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSettings_DefaultsWhenMissing(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectQuery(`SELECT(.|\s)*FROM schedule_settings`).
		WithArgs("site-1").
		WillReturnError(pgx.ErrNoRows)

	s, err := repo.GetSettings(t.Context(), "site-1")
	require.NoError(t, err)
	require.Equal(t, 15, s.TimeSlotInterval)
	require.Equal(t, 60, s.DefaultDuration)
	require.True(t, s.BusinessHours["sunday"].Closed)
	require.Equal(t, "09:00", s.BusinessHours["monday"].Open)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountOverlapping(t *testing.T) {
	mock, repo := newMock(t)

	start := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\)(.|\s)*FROM schedule_appointments`).
		WithArgs("site-1", start, end, "").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	tx, err := repo.Begin(t.Context())
	require.NoError(t, err)
	n, err := repo.CountOverlapping(t.Context(), tx, "site-1", start, end, "")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, tx.Rollback(t.Context()))
	require.NoError(t, mock.ExpectationsWereMet())
}
