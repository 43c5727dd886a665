// Package dispatch forwards consensus-accepted match results to the backend as
// trusted, player-impersonated record_match_result commands.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/metadata"

	logicv1 "github.com/louisbranch/matchwarden/api/logic/v1"
	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	grpcmeta "github.com/louisbranch/matchwarden/internal/platform/grpc/metadata"
	"github.com/louisbranch/matchwarden/internal/platform/id"
	"github.com/louisbranch/matchwarden/internal/platform/retry"
	"github.com/louisbranch/matchwarden/internal/platform/telemetry/metrics"
	"github.com/louisbranch/matchwarden/internal/platform/timeouts"
)

// CommandType is the backend command every dispatch runs.
const CommandType = "record_match_result"

// Dispatch outcomes recorded in metrics.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// ErrInvalidCommand marks a command missing its match or player.
var ErrInvalidCommand = errors.New("invalid dispatch command")

// Command is one player's share of a canonical match result.
type Command struct {
	MatchID     string          `json:"match_id"`
	ResultHash  string          `json:"result_hash"`
	Result      json.RawMessage `json:"result,omitempty"`
	RewardItems []string        `json:"reward_items,omitempty"`
}

// IdempotencyKey is the per-match, per-player key the backend deduplicates on.
func IdempotencyKey(matchID, playerID string) string {
	return "match:" + matchID + ":" + playerID
}

// Config wires a bridge.
type Config struct {
	Client         logicv1.LogicServiceClient
	SharedSecret   string
	Retry          retry.Policy
	RequestTimeout time.Duration
	Counter        *metrics.Counter
	Logf           func(string, ...any)
}

// Bridge sends trusted commands to the backend's loopback listener.
type Bridge struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge validates cfg and returns a bridge.
func NewBridge(cfg Config) (*Bridge, error) {
	if cfg.Client == nil {
		return nil, errors.New("logic client is required")
	}
	if strings.TrimSpace(cfg.SharedSecret) == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = timeouts.GRPCRequest
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{cfg: cfg, ctx: ctx, cancel: cancel}, nil
}

// Dispatch sends cmd for playerID, retrying only transient failures. Retries
// are safe because the backend records each idempotency key once.
func (b *Bridge) Dispatch(ctx context.Context, playerID, authToken string, cmd Command) error {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" || strings.TrimSpace(cmd.MatchID) == "" {
		return ErrInvalidCommand
	}
	fields, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", CommandType, err)
	}
	requestID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate request id: %w", err)
	}
	req := &logicv1.RunLogicRequest{
		PlayerID:       playerID,
		CommandType:    CommandType,
		Fields:         fields,
		Timestamp:      time.Now().UnixMilli(),
		SharedSecret:   b.cfg.SharedSecret,
		IdempotencyKey: IdempotencyKey(cmd.MatchID, playerID),
	}

	_, err = retry.Do(ctx, b.cfg.Retry, func(ctx context.Context) (*logicv1.RunLogicResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
		defer cancel()
		callCtx = grpcmeta.OutgoingWithRequestID(callCtx, requestID)
		callCtx = metadata.AppendToOutgoingContext(callCtx, logicv1.ImpersonatedPlayerHeader, playerID)
		if token := strings.TrimSpace(authToken); token != "" {
			callCtx = metadata.AppendToOutgoingContext(callCtx, logicv1.PlayerTokenHeader, token)
		}
		resp, err := b.cfg.Client.RunLogic(callCtx, req)
		if err != nil {
			return nil, apperrors.FromGRPCStatus(err)
		}
		return resp, nil
	}, retryable, func(err error, next time.Duration) {
		b.cfg.Logf("dispatch retry match_id=%s player_id=%s request_id=%s next=%s err=%v", cmd.MatchID, playerID, requestID, next, err)
	})
	if err != nil {
		b.cfg.Counter.Inc(ctx, "outcome", OutcomeFailed)
		b.cfg.Logf("dispatch failed match_id=%s player_id=%s request_id=%s code=%s err=%v", cmd.MatchID, playerID, requestID, apperrors.CodeOf(err), err)
		return err
	}
	b.cfg.Counter.Inc(ctx, "outcome", OutcomeOK)
	return nil
}

// DispatchAsync runs Dispatch in the background. Failures are logged and counted.
func (b *Bridge) DispatchAsync(playerID, authToken string, cmd Command) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		_ = b.Dispatch(b.ctx, playerID, authToken, cmd)
	}()
}

// Wait blocks until background dispatches finish.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Close waits for background dispatches up to timeout, then cancels the rest.
func (b *Bridge) Close(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		b.cfg.Logf("dispatch shutdown timed out after %v; canceling in-flight dispatches", timeout)
		b.cancel()
		<-done
	}
	b.cancel()
}

func retryable(err error) bool {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.Code.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}
