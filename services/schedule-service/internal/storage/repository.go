package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/model"
)

// DB is the pool surface the repository needs. *db.Pool satisfies it in
// production; pgxmock stands in for tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505")
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

const appointmentColumns = `
	id::text, tenant_id::text, title, COALESCE(description, ''), service_type, service_duration,
	start_time, end_time, customer_name, customer_phone, COALESCE(customer_email, ''),
	COALESCE(price, 0), COALESCE(deposit, 0), COALESCE(notes, ''), COALESCE(internal_notes, ''),
	status, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.Title,
		&a.Description,
		&a.ServiceType,
		&a.ServiceDuration,
		&a.StartTime,
		&a.EndTime,
		&a.CustomerName,
		&a.CustomerPhone,
		&a.CustomerEmail,
		&a.Price,
		&a.Deposit,
		&a.Notes,
		&a.InternalNotes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

// ListAppointments returns the tenant's appointments whose start date falls
// within [startDate, endDate], ordered by start time.
func (r *Repository) ListAppointments(ctx context.Context, tenantID, startDate, endDate string) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM schedule_appointments
		WHERE tenant_id = $1
			AND start_time::date >= $2::date
			AND start_time::date <= $3::date
		ORDER BY start_time ASC
	`, tenantID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (r *Repository) GetAppointment(ctx context.Context, tenantID, id string) (model.Appointment, error) {
	return scanAppointment(r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM schedule_appointments
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
}

// CountOverlapping counts non-cancelled appointments intersecting
// [start, end). excludeID skips the appointment being updated.
func (r *Repository) CountOverlapping(ctx context.Context, tx pgx.Tx, tenantID string, start, end time.Time, excludeID string) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM schedule_appointments
		WHERE tenant_id = $1
			AND status NOT IN ('cancelled', 'no_show')
			AND start_time < $3
			AND end_time > $2
			AND ($4 = '' OR id::text <> $4)
	`, tenantID, start, end, excludeID).Scan(&n)
	return n, err
}

func (r *Repository) CreateAppointment(ctx context.Context, tx pgx.Tx, a *model.Appointment) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO schedule_appointments
			(id, tenant_id, title, description, service_type, service_duration, start_time, end_time,
			customer_name, customer_phone, customer_email, price, deposit, notes, internal_notes, status)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+appointmentColumns+`
	`, uuid.NewString(), a.TenantID, a.Title, a.Description, a.ServiceType, a.ServiceDuration, a.StartTime, a.EndTime,
		a.CustomerName, a.CustomerPhone, a.CustomerEmail, a.Price, a.Deposit, a.Notes, a.InternalNotes, a.Status))
}

func (r *Repository) UpdateAppointment(ctx context.Context, tx pgx.Tx, a *model.Appointment) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		UPDATE schedule_appointments
		SET title = $3,
			description = $4,
			service_type = $5,
			service_duration = $6,
			start_time = $7,
			end_time = $8,
			customer_name = $9,
			customer_phone = $10,
			customer_email = $11,
			price = $12,
			deposit = $13,
			notes = $14,
			internal_notes = $15,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+appointmentColumns+`
	`, a.ID, a.TenantID, a.Title, a.Description, a.ServiceType, a.ServiceDuration, a.StartTime, a.EndTime,
		a.CustomerName, a.CustomerPhone, a.CustomerEmail, a.Price, a.Deposit, a.Notes, a.InternalNotes))
}

func (r *Repository) UpdateAppointmentStatus(ctx context.Context, tx pgx.Tx, tenantID, id, status string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		UPDATE schedule_appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+appointmentColumns+`
	`, id, tenantID, status))
}

// DeleteAppointment removes the row and returns it so the caller can record
// the deletion event in the same transaction.
func (r *Repository) DeleteAppointment(ctx context.Context, tx pgx.Tx, tenantID, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		DELETE FROM schedule_appointments
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+appointmentColumns+`
	`, id, tenantID))
}

const timeBlockColumns = `
	id::text, tenant_id::text, title, COALESCE(description, ''), block_type, start_time, end_time, created_at`

func scanTimeBlock(row pgx.Row) (model.TimeBlock, error) {
	var b model.TimeBlock
	err := row.Scan(
		&b.ID,
		&b.TenantID,
		&b.Title,
		&b.Description,
		&b.BlockType,
		&b.StartTime,
		&b.EndTime,
		&b.CreatedAt,
	)
	return b, err
}

func (r *Repository) ListTimeBlocks(ctx context.Context, tenantID, startDate, endDate string) ([]model.TimeBlock, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+timeBlockColumns+`
		FROM schedule_time_blocks
		WHERE tenant_id = $1
			AND start_time::date >= $2::date
			AND start_time::date <= $3::date
		ORDER BY start_time ASC
	`, tenantID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []model.TimeBlock
	for rows.Next() {
		b, err := scanTimeBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (r *Repository) CreateTimeBlock(ctx context.Context, b *model.TimeBlock) (model.TimeBlock, error) {
	return scanTimeBlock(r.db.QueryRow(ctx, `
		INSERT INTO schedule_time_blocks (id, tenant_id, title, description, block_type, start_time, end_time)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		RETURNING `+timeBlockColumns+`
	`, uuid.NewString(), b.TenantID, b.Title, b.Description, b.BlockType, b.StartTime, b.EndTime))
}

func (r *Repository) UpdateTimeBlock(ctx context.Context, b *model.TimeBlock) (model.TimeBlock, error) {
	return scanTimeBlock(r.db.QueryRow(ctx, `
		UPDATE schedule_time_blocks
		SET title = $3,
			description = $4,
			block_type = $5,
			start_time = $6,
			end_time = $7
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+timeBlockColumns+`
	`, b.ID, b.TenantID, b.Title, b.Description, b.BlockType, b.StartTime, b.EndTime))
}

func (r *Repository) DeleteTimeBlock(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM schedule_time_blocks
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListBlockedDays(ctx context.Context, tenantID, startDate, endDate string) ([]model.BlockedDay, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tenant_id::text, to_char(blocked_date, 'YYYY-MM-DD'), COALESCE(reason, ''), created_at
		FROM schedule_blocked_days
		WHERE tenant_id = $1
			AND blocked_date >= $2::date
			AND blocked_date <= $3::date
		ORDER BY blocked_date ASC
	`, tenantID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []model.BlockedDay
	for rows.Next() {
		var d model.BlockedDay
		if err := rows.Scan(&d.TenantID, &d.BlockedDate, &d.Reason, &d.CreatedAt); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// ToggleBlockedDay removes the day if present, inserts it otherwise, and
// reports which way it went. Runs in the caller's transaction so concurrent
// toggles of the same day settle on one outcome and the toggle event commits
// with the change.
func (r *Repository) ToggleBlockedDay(ctx context.Context, tx pgx.Tx, tenantID, date, reason string) (string, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM schedule_blocked_days
		WHERE tenant_id = $1 AND blocked_date = $2::date
	`, tenantID, date)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() > 0 {
		return "removed", nil
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO schedule_blocked_days (tenant_id, blocked_date, reason)
		VALUES ($1, $2::date, $3)
	`, tenantID, date, reason); err != nil {
		return "", err
	}
	return "added", nil
}

func (r *Repository) InsertBlockedDay(ctx context.Context, tenantID, date, reason string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO schedule_blocked_days (tenant_id, blocked_date, reason)
		VALUES ($1, $2::date, $3)
		ON CONFLICT (tenant_id, blocked_date) DO UPDATE SET reason = EXCLUDED.reason
	`, tenantID, date, reason)
	return err
}

func (r *Repository) DeleteBlockedDay(ctx context.Context, tenantID, date string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM schedule_blocked_days
		WHERE tenant_id = $1 AND blocked_date = $2::date
	`, tenantID, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// GetSettings loads the tenant's schedule settings, falling back to the
// defaults when no row exists yet.
func (r *Repository) GetSettings(ctx context.Context, tenantID string) (model.Settings, error) {
	var (
		s         model.Settings
		hoursJSON []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT tenant_id::text, time_slot_interval, default_duration, buffer_time,
			advance_booking_days, min_notice_hours, auto_confirm, allow_online_booking,
			business_hours, updated_at
		FROM schedule_settings
		WHERE tenant_id = $1
	`, tenantID).Scan(
		&s.TenantID,
		&s.TimeSlotInterval,
		&s.DefaultDuration,
		&s.BufferTime,
		&s.AdvanceBookingDays,
		&s.MinNoticeHours,
		&s.AutoConfirm,
		&s.AllowOnlineBooking,
		&hoursJSON,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultSettings(tenantID), nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &s.BusinessHours); err != nil {
			return model.Settings{}, err
		}
	}
	return s, nil
}

func (r *Repository) UpsertSettings(ctx context.Context, s model.Settings) error {
	hoursJSON, err := json.Marshal(s.BusinessHours)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO schedule_settings
			(tenant_id, time_slot_interval, default_duration, buffer_time,
			advance_booking_days, min_notice_hours, auto_confirm, allow_online_booking, business_hours, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (tenant_id) DO UPDATE SET
			time_slot_interval = EXCLUDED.time_slot_interval,
			default_duration = EXCLUDED.default_duration,
			buffer_time = EXCLUDED.buffer_time,
			advance_booking_days = EXCLUDED.advance_booking_days,
			min_notice_hours = EXCLUDED.min_notice_hours,
			auto_confirm = EXCLUDED.auto_confirm,
			allow_online_booking = EXCLUDED.allow_online_booking,
			business_hours = EXCLUDED.business_hours,
			updated_at = now()
	`, s.TenantID, s.TimeSlotInterval, s.DefaultDuration, s.BufferTime,
		s.AdvanceBookingDays, s.MinNoticeHours, s.AutoConfirm, s.AllowOnlineBooking, hoursJSON)
	return err
}

// ListBusyIntervals returns the day's occupied ranges (active appointments
// plus time blocks) for available-slot computation.
func (r *Repository) ListBusyIntervals(ctx context.Context, tenantID string, dayStart, dayEnd time.Time) ([][2]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT start_time, end_time
		FROM schedule_appointments
		WHERE tenant_id = $1
			AND status NOT IN ('cancelled', 'no_show')
			AND start_time < $3
			AND end_time > $2
		UNION ALL
		SELECT start_time, end_time
		FROM schedule_time_blocks
		WHERE tenant_id = $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY 1
	`, tenantID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy [][2]time.Time
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		busy = append(busy, [2]time.Time{start, end})
	}
	return busy, rows.Err()
}
