package audit

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/services/backend/storage"
)

// Severity describes the audit severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// SeverityFor grades a command outcome. Permission failures and execution
// faults are errors; other rejections are warnings.
func SeverityFor(err error) Severity {
	if err == nil {
		return SeverityInfo
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodePermissionDenied, apperrors.CodePermissionRateLimited, apperrors.CodeCommandFailed:
		return SeverityError
	default:
		return SeverityWarn
	}
}

// Emitter stamps and stores command audit events. A nil Emitter, or one
// without a store, drops events.
type Emitter struct {
	store storage.AuditEventStore
	now   func() time.Time
}

// NewEmitter returns an emitter writing to store with the wall clock.
func NewEmitter(store storage.AuditEventStore) *Emitter {
	return NewEmitterWithClock(store, time.Now)
}

// NewEmitterWithClock is NewEmitter with an injected clock.
func NewEmitterWithClock(store storage.AuditEventStore, now func() time.Time) *Emitter {
	if now == nil {
		now = time.Now
	}
	return &Emitter{store: store, now: now}
}

// Emit fills the event name, timestamp and severity when unset, then appends evt.
func (e *Emitter) Emit(ctx context.Context, evt storage.AuditEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.EventName == "" {
		evt.EventName = EventCommandRun
	}
	if evt.Timestamp.IsZero() {
		now := e.now
		if now == nil {
			now = time.Now
		}
		evt.Timestamp = now().UTC()
	}
	if evt.Severity == "" {
		evt.Severity = string(SeverityInfo)
	}
	return e.store.AppendAuditEvent(ctx, evt)
}
