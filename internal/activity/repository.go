package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultTrailTable = "activity_trail"

// Repository stores the activity trail in Postgres.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository constructs an activity repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db, table: defaultTrailTable}
}

// Name identifies the sink.
func (r *Repository) Name() string { return "postgres" }

// Append writes an event. A redelivered event id is ignored.
func (r *Repository) Append(ctx context.Context, event Event) error {
	if r == nil || r.db == nil {
		return errors.New("activity repo: nil db")
	}
	if event.EventID == "" {
		return errors.New("activity repo: empty event id")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	event_id, tenant_id, event_type, unit_id, lot_id, actor, summary, payload, occurred_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (event_id) DO NOTHING`, r.table)
	_, err := r.db.ExecContext(ctx, query, event.EventID, event.TenantID, event.EventType, event.UnitID, event.LotID,
		event.Actor, event.Summary, []byte(payload), event.OccurredAt)
	return err
}

// List returns stored events, most recent first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("activity repo: nil db")
	}
	var where []string
	var args []any
	if filter.UnitID != "" {
		args = append(args, filter.UnitID)
		where = append(where, fmt.Sprintf("unit_id = $%d", len(args)))
	}
	if filter.LotID != "" {
		args = append(args, filter.LotID)
		where = append(where, fmt.Sprintf("lot_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT event_id, tenant_id, event_type, unit_id, lot_id, actor, summary, payload, occurred_at FROM %s", r.table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, event_id DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var event Event
		var payload []byte
		if err := rows.Scan(&event.EventID, &event.TenantID, &event.EventType, &event.UnitID, &event.LotID,
			&event.Actor, &event.Summary, &payload, &event.OccurredAt); err != nil {
			return nil, err
		}
		event.Payload = payload
		event.Digest = DigestJSON(payload)
		event.OccurredAt = event.OccurredAt.UTC()
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
