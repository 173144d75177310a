package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record marks the event as seen inside the caller's transaction. Returns
// false for duplicates so redelivered messages are skipped. The marker
// commits or rolls back with the handler's own writes.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO reminder_inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}

	if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
		return false, nil
	}

	return false, err
}
