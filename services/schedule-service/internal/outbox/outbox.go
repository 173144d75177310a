// Package outbox implements the transactional outbox for schedule domain
// events: handlers insert events in the same transaction as the state change,
// and the publisher drains them to Kafka.
package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/thatsmartsite/schedule/libs/db"
	otelx "github.com/thatsmartsite/schedule/libs/otel"
)

// Event types; the Kafka topic name equals the event type.
const (
	EventAppointmentCreated       = "schedule.appointment.created.v1"
	EventAppointmentUpdated       = "schedule.appointment.updated.v1"
	EventAppointmentStatusChanged = "schedule.appointment.status_changed.v1"
	EventAppointmentDeleted       = "schedule.appointment.deleted.v1"
	EventBlockedDayToggled        = "schedule.blocked_day.toggled.v1"
)

// Event is the envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO schedule_outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM schedule_outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE schedule_outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
