package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EventRow is one durable, totally-ordered entry in the event log.
type EventRow struct {
	ID         int64
	Kind       string
	ResidentID string
	Payload    map[string]any
}

type EventRepo struct {
	db *DB
}

func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// Append inserts one event row, letting the events_id_seq sequence assign
// the monotonic, gap-free, insertion-ordered id.
func (r *EventRepo) Append(ctx context.Context, kind, residentID string, payload map[string]any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	var id int64
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO events (kind, resident_id, payload) VALUES ($1, $2, $3) RETURNING id`,
		kind, residentID, body,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return id, nil
}

// Since returns every event with id > afterID, in ascending id order,
// optionally filtered to one resident. Consumers page forward by id.
func (r *EventRepo) Since(ctx context.Context, afterID int64, residentID string, limit int) ([]EventRow, error) {
	var rows pgx.Rows
	var err error
	if residentID == "" {
		rows, err = r.db.Pool.Query(ctx,
			`SELECT id, kind, resident_id, payload FROM events WHERE id > $1 ORDER BY id ASC LIMIT $2`,
			afterID, limit,
		)
	} else {
		rows, err = r.db.Pool.Query(ctx,
			`SELECT id, kind, resident_id, payload FROM events WHERE id > $1 AND resident_id = $2 ORDER BY id ASC LIMIT $3`,
			afterID, residentID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var body []byte
		if err := rows.Scan(&e.ID, &e.Kind, &e.ResidentID, &body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal event payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
