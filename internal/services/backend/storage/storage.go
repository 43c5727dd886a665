package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/matchwarden/internal/services/backend/domain/playerstate"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// PlayerStateStore reads and writes player state. GetPlayerState returns an empty
// state for players it has never seen.
type PlayerStateStore interface {
	GetPlayerState(ctx context.Context, playerID string) (playerstate.State, error)
	// UpdatePlayerState persists only the keys named by delta, atomically.
	UpdatePlayerState(ctx context.Context, playerID string, delta playerstate.Delta) error
}

// AuditEvent records one command invocation.
type AuditEvent struct {
	Timestamp   time.Time
	EventName   string
	Severity    string
	PlayerID    string
	CommandType string
	Access      string
	Mode        string
	Listener    string
	RequestID   string
	Outcome     string
	ErrorCode   string
	ChangedKeys []string
	DurationMs  int64
}

// AuditEventStore persists append-only audit events.
type AuditEventStore interface {
	AppendAuditEvent(ctx context.Context, evt AuditEvent) error
}

// Store is the full backend persistence surface.
type Store interface {
	PlayerStateStore
	AuditEventStore
	Close() error
}
