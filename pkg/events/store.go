package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// StoredEvent is one persisted row of the event stream.
type StoredEvent struct {
	ID        int64           `json:"id"`
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventsSince returns persisted events on a channel with id > sinceID,
// oldest first. An empty channel returns events from all channels.
// Used for catchup after a NOTIFY subscriber reconnects and by the read API.
func (p *EventPublisher) EventsSince(ctx context.Context, channel string, sinceID int64, limit int) ([]StoredEvent, error) {
	if p == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	if channel == "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id, channel, payload, created_at FROM event_stream
			WHERE id > $1 ORDER BY id ASC LIMIT $2`,
			sinceID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id, channel, payload, created_at FROM event_stream
			WHERE channel = $1 AND id > $2 ORDER BY id ASC LIMIT $3`,
			channel, sinceID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event stream: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.ID, &ev.Channel, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event rows: %w", err)
	}
	return out, nil
}

// Prune deletes persisted events older than the cutoff and returns the count.
func (p *EventPublisher) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	if p == nil {
		return 0, nil
	}
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM event_stream WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune event stream: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned events: %w", err)
	}
	return int(n), nil
}
