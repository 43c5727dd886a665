package executor

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/services/backend/domain/command"
	"github.com/louisbranch/matchwarden/internal/services/backend/observability/audit"
	"github.com/louisbranch/matchwarden/internal/services/backend/storage"
)

// OutcomeOK labels successful invocations; failures use their error code.
const OutcomeOK = "ok"

type invocation struct {
	req     Request
	def     command.Definition
	changed []string
}

// finish emits the single metrics increment and audit event for one invocation.
func (e *Executor) finish(ctx context.Context, run invocation, started time.Time, err error) {
	if e == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = string(apperrors.CodeOf(err))
	}
	commandType := string(run.def.Type)
	if commandType == "" {
		commandType = run.req.CommandType
	}

	e.Counter.Inc(ctx, "command", commandType, "outcome", outcome)

	auditCtx := context.WithoutCancel(ctx)
	evt := storage.AuditEvent{
		EventName:   audit.EventCommandRun,
		Severity:    string(audit.SeverityFor(err)),
		PlayerID:    run.req.PlayerID,
		CommandType: commandType,
		Access:      string(run.def.Access),
		Mode:        string(run.def.Mode),
		Listener:    run.req.Listener,
		RequestID:   run.req.RequestID,
		Outcome:     outcome,
		ChangedKeys: run.changed,
		DurationMs:  e.now().Sub(started).Milliseconds(),
	}
	if err != nil {
		evt.ErrorCode = outcome
	}
	if auditErr := e.Audit.Emit(auditCtx, evt); auditErr != nil {
		e.logf("audit emit failed player_id=%s command=%s err=%v", run.req.PlayerID, commandType, auditErr)
	}
}
