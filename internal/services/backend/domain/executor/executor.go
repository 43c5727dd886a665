package executor

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/platform/telemetry/metrics"
	"github.com/louisbranch/matchwarden/internal/platform/timeouts"
	"github.com/louisbranch/matchwarden/internal/services/backend/domain/command"
	"github.com/louisbranch/matchwarden/internal/services/backend/domain/playerstate"
	"github.com/louisbranch/matchwarden/internal/services/backend/lock"
	"github.com/louisbranch/matchwarden/internal/services/backend/observability/audit"
	"github.com/louisbranch/matchwarden/internal/services/backend/storage"
)

var (
	// ErrCommandRegistryRequired indicates a missing command registry.
	ErrCommandRegistryRequired = errors.New("command registry is required")
	// ErrStoreRequired indicates a missing player state store.
	ErrStoreRequired = errors.New("player state store is required")
	// ErrLockerRequired indicates a missing locker.
	ErrLockerRequired = errors.New("locker is required")
)

// Request is one RunLogic call as seen by the executor.
type Request struct {
	PlayerID                  string
	CommandType               string
	Fields                    json.RawMessage
	Timestamp                 int64
	ClientVersion             int64
	ConfigVersionSeenByClient int64
	SharedSecret              string
	IdempotencyKey            string
	// PlayerVerified is set by the transport once a player token for PlayerID
	// has been checked. Simulation-originated commands require it.
	PlayerVerified bool

	// Listener and RequestID only feed the audit trail.
	Listener  string
	RequestID string
}

// Response carries the command's result fields. ConfigVersion is non-zero only when
// the client must pick up a newer configuration.
type Response struct {
	CommandType   string
	ResultFields  json.RawMessage
	ConfigVersion int64
}

// Executor is the PlayerCommandExecutor.
type Executor struct {
	Registry *command.Registry
	Store    storage.PlayerStateStore
	Locker   lock.Locker
	Audit    *audit.Emitter
	Counter  *metrics.Counter

	SharedSecret     string
	MinClientVersion int64
	ConfigVersion    int64
	LockTimeout      time.Duration

	Now  func() time.Time
	Logf func(format string, args ...any)
}

// Validate reports missing collaborators.
func (e *Executor) Validate() error {
	if e == nil || e.Registry == nil {
		return ErrCommandRegistryRequired
	}
	if e.Store == nil {
		return ErrStoreRequired
	}
	if e.Locker == nil {
		return ErrLockerRequired
	}
	return nil
}

// RunCommand executes req for its player. Errors are always *apperrors.Error.
func (e *Executor) RunCommand(ctx context.Context, req Request) (resp Response, err error) {
	started := e.now()
	run := invocation{req: req}
	defer func() {
		e.finish(ctx, run, started, err)
	}()

	if err := e.Validate(); err != nil {
		return Response{}, apperrors.Wrap(apperrors.CodeCommandFailed, "executor is not configured", err)
	}
	req.PlayerID = strings.TrimSpace(req.PlayerID)
	run.req.PlayerID = req.PlayerID
	if req.PlayerID == "" {
		return Response{}, apperrors.New(apperrors.CodeValidationFailed, "player id is required")
	}

	cmd, def, err := e.Registry.Decode(command.Type(req.CommandType), req.Fields)
	if err != nil {
		return Response{}, decodeError(err)
	}
	run.def = def

	if err := e.authorize(req, def); err != nil {
		e.logf("SECURITY permission denied player_id=%s command=%s access=%s mode=%s listener=%s request_id=%s",
			req.PlayerID, def.Type, def.Access, def.Mode, req.Listener, req.RequestID)
		return Response{}, err
	}

	handle, err := e.acquire(ctx, req.PlayerID)
	if err != nil {
		return Response{}, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Shutdown)
		defer cancel()
		if releaseErr := handle.Release(releaseCtx); releaseErr != nil {
			e.logf("release player lock failed player_id=%s err=%v", req.PlayerID, releaseErr)
		}
	}()

	state, err := e.Store.GetPlayerState(ctx, req.PlayerID)
	if err != nil {
		return Response{}, apperrors.Wrap(apperrors.CodeCommandFailed, "load player state", err)
	}

	if def.Mode == command.ModeNormal {
		if err := e.checkOrdering(req, state); err != nil {
			return Response{}, err
		}
	}

	view := playerstate.NewView(state)
	result, err := execute(ctx, cmd, command.ExecContext{
		PlayerID:       req.PlayerID,
		IdempotencyKey: req.IdempotencyKey,
		State:          view,
		Now:            e.now,
	})
	if err != nil {
		return Response{}, err
	}

	delta := view.Delta()
	resp = Response{CommandType: string(def.Type), ResultFields: result}
	// Simulation-originated timestamps come from another clock and never
	// touch the player's ordering state.
	if def.Mode == command.ModeNormal {
		ts := req.Timestamp
		delta.LastCommandTimestamp = &ts
		seen := req.ConfigVersionSeenByClient
		if e.ConfigVersion > seen {
			resp.ConfigVersion = e.ConfigVersion
			seen = e.ConfigVersion
		}
		if seen != state.ConfigVersionSeenByClient {
			delta.ConfigVersionSeenByClient = &seen
		}
	}

	if !delta.Empty() {
		if err := handle.Err(); err != nil {
			e.logf("player lock lost before commit player_id=%s command=%s request_id=%s err=%v", req.PlayerID, def.Type, req.RequestID, err)
			return Response{}, apperrors.Wrap(apperrors.CodeCommandFailed, "player lock lost before commit", err)
		}
		if err := e.Store.UpdatePlayerState(ctx, req.PlayerID, delta); err != nil {
			return Response{}, apperrors.Wrap(apperrors.CodeCommandFailed, "persist player state", err)
		}
	}
	run.changed = delta.Keys()
	return resp, nil
}

// authorize enforces the command's access level. A non-empty secret that does not
// match is always a denial, even on player commands.
func (e *Executor) authorize(req Request, def command.Definition) error {
	secretOK := e.secretMatches(req.SharedSecret)
	if req.SharedSecret != "" && !secretOK {
		return apperrors.New(apperrors.CodePermissionDenied, "shared secret mismatch")
	}
	if def.Access == command.AccessService && !secretOK {
		return apperrors.New(apperrors.CodePermissionDenied, fmt.Sprintf("command %s requires service access", def.Type))
	}
	if def.Mode == command.ModeSimulationOriginated && !req.PlayerVerified {
		return apperrors.New(apperrors.CodePermissionDenied, fmt.Sprintf("command %s requires the player's token", def.Type))
	}
	return nil
}

func (e *Executor) secretMatches(secret string) bool {
	if e.SharedSecret == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(e.SharedSecret), []byte(secret)) == 1
}

func (e *Executor) acquire(ctx context.Context, playerID string) (lock.Handle, error) {
	timeout := e.LockTimeout
	if timeout <= 0 {
		timeout = timeouts.PlayerLock
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handle, err := e.Locker.Acquire(lockCtx, playerID)
	if err == nil {
		return handle, nil
	}
	if errors.Is(err, lock.ErrBusy) && ctx.Err() == nil {
		return nil, apperrors.WithMetadata(apperrors.CodePlayerBusy, "player is busy", map[string]string{
			"lock_timeout": timeout.String(),
		})
	}
	return nil, apperrors.Wrap(apperrors.CodeCommandFailed, "acquire player lock", err)
}

func (e *Executor) checkOrdering(req Request, state playerstate.State) error {
	if req.Timestamp <= state.LastCommandTimestamp {
		return apperrors.WithMetadata(apperrors.CodeOrderingStale, "command timestamp is not newer than the last command", map[string]string{
			"last_command_timestamp": strconv.FormatInt(state.LastCommandTimestamp, 10),
		})
	}
	if req.ClientVersion < e.MinClientVersion {
		return apperrors.WithMetadata(apperrors.CodeOutdatedClient, "client version is below the minimum", map[string]string{
			"min_client_version": strconv.FormatInt(e.MinClientVersion, 10),
		})
	}
	return nil
}

// execute runs cmd, converting panics and foreign errors into COMMAND_FAILED.
func execute(ctx context.Context, cmd command.Command, exec command.ExecContext) (result json.RawMessage, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = apperrors.New(apperrors.CodeCommandFailed, fmt.Sprintf("command panicked: %v", recovered))
		}
	}()
	result, err = cmd.Execute(ctx, exec)
	if err != nil {
		var domainErr *apperrors.Error
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.CodeCommandFailed, "command failed", err)
	}
	if len(result) == 0 {
		result = json.RawMessage("{}")
	}
	return result, nil
}

func decodeError(err error) error {
	var domainErr *apperrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, command.ErrTypeUnknown):
		return apperrors.Wrap(apperrors.CodeUnknownCommand, err.Error(), err)
	default:
		return apperrors.Wrap(apperrors.CodeValidationFailed, err.Error(), err)
	}
}

func (e *Executor) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Executor) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}
