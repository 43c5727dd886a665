package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/matchwarden/internal/services/backend/storage"
)

// AppendAuditEvent inserts one audit event.
func (s *Store) AppendAuditEvent(ctx context.Context, evt storage.AuditEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(evt.EventName) == "" {
		return fmt.Errorf("event name is required")
	}
	if strings.TrimSpace(evt.Outcome) == "" {
		return fmt.Errorf("outcome is required")
	}
	if evt.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO audit_events (
	timestamp, event_name, severity, player_id, command_type, access, mode,
	listener, request_id, outcome, error_code, changed_keys, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		toMillis(evt.Timestamp),
		strings.TrimSpace(evt.EventName),
		strings.TrimSpace(evt.Severity),
		strings.TrimSpace(evt.PlayerID),
		strings.TrimSpace(evt.CommandType),
		evt.Access,
		evt.Mode,
		evt.Listener,
		evt.RequestID,
		evt.Outcome,
		evt.ErrorCode,
		strings.Join(evt.ChangedKeys, ","),
		evt.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListAuditEventsByPlayer returns the newest audit events for playerID, newest first.
func (s *Store) ListAuditEventsByPlayer(ctx context.Context, playerID string, limit int) ([]storage.AuditEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, fmt.Errorf("player id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT timestamp, event_name, severity, player_id, command_type, access, mode,
	listener, request_id, outcome, error_code, changed_keys, duration_ms
FROM audit_events
WHERE player_id = ?
ORDER BY id DESC
LIMIT ?
`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []storage.AuditEvent
	for rows.Next() {
		var (
			evt         storage.AuditEvent
			timestamp   int64
			changedKeys string
		)
		if err := rows.Scan(
			&timestamp, &evt.EventName, &evt.Severity, &evt.PlayerID, &evt.CommandType,
			&evt.Access, &evt.Mode, &evt.Listener, &evt.RequestID, &evt.Outcome,
			&evt.ErrorCode, &changedKeys, &evt.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Timestamp = fromMillis(timestamp)
		if changedKeys != "" {
			evt.ChangedKeys = strings.Split(changedKeys, ",")
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
