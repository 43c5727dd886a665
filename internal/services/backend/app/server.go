// Package server wires the backend runtime: storage, locking, the command executor,
// and the public and trusted gRPC listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	logicv1 "github.com/louisbranch/matchwarden/api/logic/v1"
	platformgrpc "github.com/louisbranch/matchwarden/internal/platform/grpc"
	grpcmeta "github.com/louisbranch/matchwarden/internal/platform/grpc/metadata"
	"github.com/louisbranch/matchwarden/internal/platform/telemetry/metrics"
	"github.com/louisbranch/matchwarden/internal/platform/timeouts"
	logicservice "github.com/louisbranch/matchwarden/internal/services/backend/api/grpc/logic"
	"github.com/louisbranch/matchwarden/internal/services/backend/auth"
	"github.com/louisbranch/matchwarden/internal/services/backend/domain/command"
	"github.com/louisbranch/matchwarden/internal/services/backend/domain/executor"
	"github.com/louisbranch/matchwarden/internal/services/backend/lock"
	"github.com/louisbranch/matchwarden/internal/services/backend/observability/audit"
	backendsqlite "github.com/louisbranch/matchwarden/internal/services/backend/storage/sqlite"
)

// Lock backends.
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// Config holds everything the backend needs to start.
type Config struct {
	PublicAddr       string
	TrustedAddr      string
	DBPath           string
	SharedSecret     string
	PlayerTokenKey   string
	PlayerTokenTTL   time.Duration
	MinClientVersion int64
	ConfigVersion    int64
	LockTimeout      time.Duration
	LockBackend      string
	RedisAddr        string
	LockTTL          time.Duration
}

// Server hosts the backend gRPC listeners and storage lifecycle.
type Server struct {
	publicListener  net.Listener
	trustedListener net.Listener
	publicServer    *grpc.Server
	trustedServer   *grpc.Server
	health          *health.Server
	store           *backendsqlite.Store
	redis           *redis.Client
	closeOnce       sync.Once
}

// New opens storage, builds the executor, and binds both listeners.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.SharedSecret) == "" {
		return nil, errors.New("shared secret is required")
	}
	srv := &Server{}
	ok := false
	defer func() {
		if !ok {
			srv.Close()
		}
	}()

	store, err := backendsqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open backend sqlite store: %w", err)
	}
	srv.store = store

	locker, err := srv.openLocker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := command.NewRegistry()
	if err := command.RegisterBuiltins(registry); err != nil {
		return nil, err
	}
	counter, err := metrics.NewCounter(metrics.CommandsTotal, "Backend command invocations by command and outcome.")
	if err != nil {
		return nil, err
	}
	exec := &executor.Executor{
		Registry:         registry,
		Store:            store,
		Locker:           locker,
		Audit:            audit.NewEmitter(store),
		Counter:          counter,
		SharedSecret:     cfg.SharedSecret,
		MinClientVersion: cfg.MinClientVersion,
		ConfigVersion:    cfg.ConfigVersion,
		LockTimeout:      cfg.LockTimeout,
	}
	if err := exec.Validate(); err != nil {
		return nil, err
	}

	tokens := auth.PlayerTokenConfig{Key: []byte(cfg.PlayerTokenKey), TTL: cfg.PlayerTokenTTL}
	denials := logicservice.NewDenialLimiter(0, 0)

	srv.publicListener, err = net.Listen("tcp", cfg.PublicAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.PublicAddr, err)
	}
	srv.trustedListener, err = platformgrpc.ListenLoopback(cfg.TrustedAddr)
	if err != nil {
		return nil, err
	}

	srv.health = health.NewServer()
	srv.publicServer = newGRPCServer()
	srv.trustedServer = newGRPCServer()
	logicv1.RegisterLogicServiceServer(srv.publicServer, logicservice.NewService(logicservice.Config{
		Listener: logicservice.ListenerPublic,
		Runner:   exec,
		States:   store,
		Tokens:   tokens,
		Denials:  denials,
	}))
	logicv1.RegisterLogicServiceServer(srv.trustedServer, logicservice.NewService(logicservice.Config{
		Listener:     logicservice.ListenerTrusted,
		Runner:       exec,
		States:       store,
		Tokens:       tokens,
		SharedSecret: cfg.SharedSecret,
		Denials:      denials,
	}))
	grpc_health_v1.RegisterHealthServer(srv.publicServer, srv.health)
	grpc_health_v1.RegisterHealthServer(srv.trustedServer, srv.health)
	srv.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	srv.health.SetServingStatus(logicv1.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	ok = true
	return srv, nil
}

func newGRPCServer() *grpc.Server {
	return grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcmeta.UnaryServerInterceptor(nil)),
	)
}

func (s *Server) openLocker(ctx context.Context, cfg Config) (lock.Locker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LockBackend)) {
	case "", LockBackendMemory:
		return lock.NewMemoryLocker(), nil
	case LockBackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, errors.New("redis address is required for the redis lock backend")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s.redis = client
		pingCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCDial)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		ttl := cfg.LockTTL
		if ttl <= 0 {
			ttl = timeouts.PlayerLockTTL
		}
		return lock.NewRedisLocker(client, ttl)
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

// PublicAddr returns the public listener address.
func (s *Server) PublicAddr() string {
	if s == nil || s.publicListener == nil {
		return ""
	}
	return s.publicListener.Addr().String()
}

// TrustedAddr returns the trusted listener address.
func (s *Server) TrustedAddr() string {
	if s == nil || s.trustedListener == nil {
		return ""
	}
	return s.trustedListener.Addr().String()
}

// Run creates and serves a backend server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs both gRPC servers until ctx ends or either server fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("backend public listener at %v", s.publicListener.Addr())
	log.Printf("backend trusted listener at %v", s.trustedListener.Addr())
	serveErr := make(chan error, 2)
	go func() { serveErr <- s.publicServer.Serve(s.publicListener) }()
	go func() { serveErr <- s.trustedServer.Serve(s.trustedListener) }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	s.health.Shutdown()
	s.gracefulStop()
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return fmt.Errorf("serve gRPC: %w", err)
}

func (s *Server) gracefulStop() {
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, server := range []*grpc.Server{s.publicServer, s.trustedServer} {
			wg.Add(1)
			go func(server *grpc.Server) {
				defer wg.Done()
				server.GracefulStop()
			}(server)
		}
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeouts.Shutdown):
		log.Printf("graceful stop timed out after %v; forcing stop", timeouts.Shutdown)
		s.publicServer.Stop()
		s.trustedServer.Stop()
	}
}

// Close releases backend server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		for _, server := range []*grpc.Server{s.publicServer, s.trustedServer} {
			if server != nil {
				server.Stop()
			}
		}
		for _, listener := range []net.Listener{s.publicListener, s.trustedListener} {
			if listener != nil {
				_ = listener.Close()
			}
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				log.Printf("close backend store: %v", err)
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Printf("close redis client: %v", err)
			}
		}
	})
}
