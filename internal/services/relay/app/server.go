// Package server wires the relay runtime: the backend connection, match
// registry, dispatch bridge and the HTTP/websocket listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"

	logicv1 "github.com/louisbranch/matchwarden/api/logic/v1"
	platformgrpc "github.com/louisbranch/matchwarden/internal/platform/grpc"
	"github.com/louisbranch/matchwarden/internal/platform/retry"
	"github.com/louisbranch/matchwarden/internal/platform/telemetry/metrics"
	"github.com/louisbranch/matchwarden/internal/platform/timeouts"
	"github.com/louisbranch/matchwarden/internal/services/backend/auth"
	"github.com/louisbranch/matchwarden/internal/services/relay/backend"
	"github.com/louisbranch/matchwarden/internal/services/relay/dispatch"
	"github.com/louisbranch/matchwarden/internal/services/relay/loadout"
	"github.com/louisbranch/matchwarden/internal/services/relay/match"
	"github.com/louisbranch/matchwarden/internal/services/relay/transport"
)

// Config holds everything the relay needs to start.
type Config struct {
	Addr              string
	BackendAddr       string
	SharedSecret      string
	// PlayerTokenKey verifies the tokens players join matches with.
	PlayerTokenKey    string
	ConsensusFraction float64
	ConsensusTimeout  time.Duration
	// MatchTimeout retires matches that never finalize.
	MatchTimeout    time.Duration
	MinParticipants int
	AllowTestMode   bool
	LoadoutCutoff   time.Duration
	Retry           retry.Policy
	DialTimeout     time.Duration
}

// Server hosts the relay HTTP listener and its backend connection.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	conn       *grpc.ClientConn
	hub        *transport.Hub
	bridge     *dispatch.Bridge
	closeOnce  sync.Once
}

// New dials the backend trusted listener and binds the relay listener.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.SharedSecret) == "" {
		return nil, errors.New("shared secret is required")
	}
	if strings.TrimSpace(cfg.BackendAddr) == "" {
		return nil, errors.New("backend address is required")
	}
	if err := auth.ValidateKey([]byte(cfg.PlayerTokenKey)); err != nil {
		return nil, err
	}
	tokens := playerTokens{cfg: auth.PlayerTokenConfig{Key: []byte(cfg.PlayerTokenKey)}}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = timeouts.GRPCDial
	}
	srv := &Server{}
	ok := false
	defer func() {
		if !ok {
			srv.Close()
		}
	}()

	conn, err := platformgrpc.DialWithHealth(ctx, cfg.BackendAddr, cfg.DialTimeout, log.Printf, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return nil, fmt.Errorf("dial backend: %w", err)
	}
	srv.conn = conn
	client := logicv1.NewLogicServiceClient(conn)

	inventory, err := backend.NewInventoryClient(client, cfg.SharedSecret, timeouts.GRPCRequest)
	if err != nil {
		return nil, err
	}
	loadouts, err := metrics.NewCounter(metrics.LoadoutsTotal, "Loadout admission decisions by outcome.")
	if err != nil {
		return nil, err
	}
	outcomes, err := metrics.NewCounter(metrics.ConsensusOutcomesTotal, "Match finalizations by consensus outcome.")
	if err != nil {
		return nil, err
	}
	dispatches, err := metrics.NewCounter(metrics.DispatchesTotal, "Reward dispatches by outcome.")
	if err != nil {
		return nil, err
	}
	srv.bridge, err = dispatch.NewBridge(dispatch.Config{
		Client:         client,
		SharedSecret:   cfg.SharedSecret,
		Retry:          cfg.Retry,
		RequestTimeout: timeouts.GRPCRequest,
		Counter:        dispatches,
	})
	if err != nil {
		return nil, err
	}

	registry := match.NewRegistry(match.Deps{
		Fetcher:    inventory,
		Dispatcher: srv.bridge,
		Loadout: loadout.Config{
			Cutoff:  cfg.LoadoutCutoff,
			Retry:   cfg.Retry,
			Counter: loadouts,
		},
		Tokens:           tokens,
		ConsensusTimeout: cfg.ConsensusTimeout,
		MatchTimeout:     cfg.MatchTimeout,
		Outcomes:         outcomes,
	})
	srv.hub, err = transport.NewHub(transport.Config{
		Registry:        registry,
		SharedSecret:    cfg.SharedSecret,
		DefaultFraction: cfg.ConsensusFraction,
		MinParticipants: cfg.MinParticipants,
		AllowTestMode:   cfg.AllowTestMode,
	})
	if err != nil {
		return nil, err
	}

	srv.listener, err = net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	srv.httpServer = &http.Server{
		Handler:           transport.NewHandler(srv.hub),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	ok = true
	return srv, nil
}

// Addr returns the relay listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a relay until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve handles HTTP until ctx ends or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("relay listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.httpServer.Serve(s.listener) }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if shutdownErr := s.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("relay http shutdown: %v", shutdownErr)
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve http: %w", err)
}

// Close releases relay resources. Pending dispatches get the shutdown timeout
// to finish.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.httpServer != nil {
			_ = s.httpServer.Close()
		} else if s.listener != nil {
			_ = s.listener.Close()
		}
		if s.hub != nil {
			s.hub.Close()
		}
		if s.bridge != nil {
			s.bridge.Close(timeouts.Shutdown)
		}
		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				log.Printf("close backend connection: %v", err)
			}
		}
	})
}
