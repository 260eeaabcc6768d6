package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lherron/cartsync/internal/domain"
)

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log. tx may be nil.
func (w *Writer) LogEvent(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	query := `
		INSERT INTO event_log (user_id, resource_type, resource_id, event_type, payload)
		VALUES (?, ?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.ExecContext(ctx, query, event.UserID, event.ResourceType, event.ResourceID, event.EventType, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// Log marshals payload and writes an event. Empty userID and resourceID are
// stored as NULL.
func (w *Writer) Log(ctx context.Context, tx *sql.Tx, userID, resourceType, resourceID, eventType string, payload map[string]interface{}) error {
	event := &domain.Event{
		ResourceType: resourceType,
		EventType:    eventType,
	}
	if userID != "" {
		event.UserID = &userID
	}
	if resourceID != "" {
		event.ResourceID = &resourceID
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		s := string(data)
		event.Payload = &s
	}
	return w.LogEvent(ctx, tx, event)
}

// LogChange records a local cart or wishlist change.
func (w *Writer) LogChange(ctx context.Context, c Change) error {
	payload := map[string]interface{}{}
	switch c.Resource {
	case domain.ResourceCart:
		count, total := domain.ComputeTotals(c.Cart)
		payload["items"] = domain.CartLines(c.Cart)
		payload["total_items"] = count
		payload["total_price"] = total
	case domain.ResourceWishlist:
		payload["product_ids"] = domain.ProductIDs(c.Wishlist)
	}
	return w.Log(ctx, nil, "", string(c.Resource), "", string(c.Resource)+"."+c.Op, payload)
}

// LogTransition records an identity transition handled by the sync engine.
func (w *Writer) LogTransition(ctx context.Context, kind string, from, to domain.Identity, outcome string) error {
	return w.Log(ctx, nil, to.UserID, "session", "", "session."+kind, map[string]interface{}{
		"from":    from.UserID,
		"to":      to.UserID,
		"outcome": outcome,
	})
}

// List returns events for resourceType ("" for all), newest first.
func (w *Writer) List(ctx context.Context, resourceType string, limit int) ([]domain.Event, error) {
	query := `SELECT id, timestamp, user_id, resource_type, resource_id, event_type, payload FROM event_log`
	var args []interface{}
	if resourceType != "" {
		query += ` WHERE resource_type = ?`
		args = append(args, resourceType)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var ts string
		if err := rows.Scan(&ev.ID, &ts, &ev.UserID, &ev.ResourceType, &ev.ResourceID, &ev.EventType, &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.Timestamp = parsed
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// getExecutor returns the appropriate executor (tx or db)
func (w *Writer) getExecutor(tx *sql.Tx) interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}
