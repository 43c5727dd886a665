package logic

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net"
	"strings"

	logicv1 "github.com/louisbranch/matchwarden/api/logic/v1"
	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	grpcmeta "github.com/louisbranch/matchwarden/internal/platform/grpc/metadata"
	"github.com/louisbranch/matchwarden/internal/services/backend/auth"
	"github.com/louisbranch/matchwarden/internal/services/backend/domain/executor"
	"github.com/louisbranch/matchwarden/internal/services/backend/domain/playerstate"
	"github.com/louisbranch/matchwarden/internal/services/backend/storage"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Listener identifies which boundary a Service instance serves.
type Listener string

const (
	// ListenerPublic serves game clients.
	ListenerPublic Listener = "public"
	// ListenerTrusted serves internal callers on a loopback-only address.
	ListenerTrusted Listener = "trusted"
)

// CommandRunner executes player commands.
type CommandRunner interface {
	RunCommand(ctx context.Context, req executor.Request) (executor.Response, error)
}

// Config wires one Service instance.
type Config struct {
	Listener     Listener
	Runner       CommandRunner
	States       storage.PlayerStateStore
	Tokens       auth.PlayerTokenConfig
	SharedSecret string
	Denials      *DenialLimiter
	Logf         func(format string, args ...any)
}

// Service exposes logic.v1 gRPC operations.
type Service struct {
	logicv1.UnimplementedLogicServiceServer
	cfg Config
}

// NewService creates a LogicService bound to one listener.
func NewService(cfg Config) *Service {
	if cfg.Listener == "" {
		cfg.Listener = ListenerPublic
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Service{cfg: cfg}
}

// RunLogic executes one command for one player.
func (s *Service) RunLogic(ctx context.Context, in *logicv1.RunLogicRequest) (*logicv1.RunLogicResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "run logic request is required")
	}
	if s == nil || s.cfg.Runner == nil {
		return nil, status.Error(codes.Internal, "command runner is not configured")
	}
	playerID := strings.TrimSpace(in.GetPlayerId())
	if playerID == "" {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "player id is required").ToGRPCStatus()
	}
	denialKey := s.denialKey(ctx)
	verified, err := s.authenticate(ctx, playerID, in.SharedSecret)
	if err != nil {
		return nil, s.refuse(ctx, denialKey, playerID, in.CommandType, err).ToGRPCStatus()
	}

	resp, err := s.cfg.Runner.RunCommand(ctx, executor.Request{
		PlayerID:                  playerID,
		CommandType:               in.CommandType,
		Fields:                    in.Fields,
		Timestamp:                 in.Timestamp,
		ClientVersion:             in.ClientVersion,
		ConfigVersionSeenByClient: in.ConfigVersionSeenByClient,
		SharedSecret:              in.SharedSecret,
		IdempotencyKey:            in.IdempotencyKey,
		PlayerVerified:            verified,
		Listener:                  string(s.cfg.Listener),
		RequestID:                 grpcmeta.RequestIDFromContext(ctx),
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodePermissionDenied {
			s.cfg.Denials.Record(denialKey)
		}
		return nil, apperrors.ToGRPC(err)
	}
	return &logicv1.RunLogicResponse{
		CommandType:   resp.CommandType,
		ResultFields:  resp.ResultFields,
		ConfigVersion: resp.ConfigVersion,
	}, nil
}

// GetInventory returns a player's canonical inventory. Trusted listener only.
func (s *Service) GetInventory(ctx context.Context, in *logicv1.GetInventoryRequest) (*logicv1.GetInventoryResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "get inventory request is required")
	}
	if s == nil || s.cfg.States == nil {
		return nil, status.Error(codes.Internal, "player state store is not configured")
	}
	playerID := strings.TrimSpace(in.GetPlayerId())
	if playerID == "" {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "player id is required").ToGRPCStatus()
	}
	if s.cfg.Listener != ListenerTrusted {
		err := apperrors.New(apperrors.CodePermissionDenied, "inventory reads are not served on this listener")
		return nil, s.refuse(ctx, s.denialKey(ctx), playerID, "get_inventory", err).ToGRPCStatus()
	}
	if !s.secretMatches(in.SharedSecret) {
		err := apperrors.New(apperrors.CodePermissionDenied, "shared secret mismatch")
		return nil, s.refuse(ctx, s.denialKey(ctx), playerID, "get_inventory", err).ToGRPCStatus()
	}

	state, err := s.cfg.States.GetPlayerState(ctx, playerID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCommandFailed, "load player state", err).ToGRPCStatus()
	}
	inv, err := playerstate.LoadInventory(playerstate.NewView(state))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCommandFailed, "decode inventory", err).ToGRPCStatus()
	}
	owned := inv.OwnedItems
	if owned == nil {
		owned = []string{}
	}
	return &logicv1.GetInventoryResponse{PlayerID: playerID, OwnedItems: owned}, nil
}

// authenticate applies the listener's caller rules before the executor runs.
// It reports whether a player token for playerID was verified.
func (s *Service) authenticate(ctx context.Context, playerID, secret string) (bool, error) {
	token := grpcmeta.IncomingValue(ctx, logicv1.PlayerTokenHeader)
	switch s.cfg.Listener {
	case ListenerTrusted:
		if !s.secretMatches(secret) {
			return false, apperrors.New(apperrors.CodePermissionDenied, "trusted listener requires the shared secret")
		}
		if impersonated := grpcmeta.IncomingValue(ctx, logicv1.ImpersonatedPlayerHeader); impersonated != "" && impersonated != playerID {
			return false, apperrors.New(apperrors.CodePermissionDenied, "impersonated player does not match request")
		}
		if token == "" {
			// Service commands may run on the secret alone; the executor
			// still requires a token for simulation-originated ones.
			return false, nil
		}
	default:
		if secret != "" {
			return false, apperrors.New(apperrors.CodePermissionDenied, "shared secret is not accepted on the public listener")
		}
	}
	if err := s.verifyToken(token, playerID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) verifyToken(token, playerID string) error {
	claims, err := auth.VerifyPlayerToken(s.cfg.Tokens, token)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodePermissionDenied {
			return err
		}
		return apperrors.Wrap(apperrors.CodePermissionDenied, "player token cannot be verified", err)
	}
	if claims.PlayerID != playerID {
		return apperrors.New(apperrors.CodePermissionDenied, "player token does not match request")
	}
	return nil
}

func (s *Service) secretMatches(secret string) bool {
	if s.cfg.SharedSecret == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.cfg.SharedSecret), []byte(secret)) == 1
}

// refuse turns a failed credential check into the caller-visible error. Callers
// that keep failing are throttled; requests with valid credentials never reach here.
func (s *Service) refuse(ctx context.Context, key, playerID, commandType string, err error) *apperrors.Error {
	if s.cfg.Denials.Limited(key) {
		s.cfg.Logf("SECURITY permission throttled listener=%s player_id=%s command=%s peer=%s request_id=%s",
			s.cfg.Listener, playerID, commandType, peerAddr(ctx), grpcmeta.RequestIDFromContext(ctx))
		return apperrors.New(apperrors.CodePermissionRateLimited, "too many permission failures")
	}
	s.cfg.Denials.Record(key)
	s.cfg.Logf("SECURITY permission denied listener=%s player_id=%s command=%s peer=%s request_id=%s reason=%q",
		s.cfg.Listener, playerID, commandType, peerAddr(ctx), grpcmeta.RequestIDFromContext(ctx), err.Error())
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return apperrors.Wrap(apperrors.CodePermissionDenied, err.Error(), err)
}

// denialKey scopes throttling to the listener and the calling host, so
// failures naming a player never lock that player out.
func (s *Service) denialKey(ctx context.Context) string {
	return string(s.cfg.Listener) + ":" + peerHost(ctx)
}

func peerHost(ctx context.Context) string {
	addr := peerAddr(ctx)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
