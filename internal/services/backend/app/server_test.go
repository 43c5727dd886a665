package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	logicv1 "github.com/louisbranch/matchwarden/api/logic/v1"
	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	platformgrpc "github.com/louisbranch/matchwarden/internal/platform/grpc"
	grpcmeta "github.com/louisbranch/matchwarden/internal/platform/grpc/metadata"
	"github.com/louisbranch/matchwarden/internal/services/backend/auth"
)

const (
	testSecret   = "s3cret"
	testTokenKey = "0123456789abcdef0123456789abcdef"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		PublicAddr:     "127.0.0.1:0",
		TrustedAddr:    "127.0.0.1:0",
		DBPath:         filepath.Join(t.TempDir(), "backend.db"),
		SharedSecret:   testSecret,
		PlayerTokenKey: testTokenKey,
		PlayerTokenTTL: time.Hour,
		LockTimeout:    time.Second,
	}
}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	srv, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv
}

func dialLogic(t *testing.T, addr string) logicv1.LogicServiceClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := platformgrpc.DialWithHealth(ctx, addr, 5*time.Second, t.Logf, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return logicv1.NewLogicServiceClient(conn)
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{name: "missing secret", mut: func(cfg *Config) { cfg.SharedSecret = " " }},
		{name: "public trusted addr", mut: func(cfg *Config) { cfg.TrustedAddr = "0.0.0.0:0" }},
		{name: "unknown lock backend", mut: func(cfg *Config) { cfg.LockBackend = "etcd" }},
		{name: "redis without addr", mut: func(cfg *Config) { cfg.LockBackend = LockBackendRedis }},
		{name: "missing db path", mut: func(cfg *Config) { cfg.DBPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mut(&cfg)
			if _, err := New(context.Background(), cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestServerEndToEnd(t *testing.T) {
	srv := startServer(t, testConfig(t))
	public := dialLogic(t, srv.PublicAddr())
	trusted := dialLogic(t, srv.TrustedAddr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := trusted.RunLogic(ctx, &logicv1.RunLogicRequest{
		PlayerID:     "p-1",
		CommandType:  "grant_items",
		Fields:       json.RawMessage(`{"items":["sword","bow"]}`),
		Timestamp:    1,
		SharedSecret: testSecret,
	}); err != nil {
		t.Fatalf("grant items: %v", err)
	}

	token, err := auth.IssuePlayerToken(auth.PlayerTokenConfig{Key: []byte(testTokenKey), TTL: time.Hour}, "p-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	playerCtx := metadata.AppendToOutgoingContext(ctx, logicv1.PlayerTokenHeader, token)

	var header metadata.MD
	resp, err := public.RunLogic(playerCtx, &logicv1.RunLogicRequest{
		PlayerID:    "p-1",
		CommandType: "equip_loadout",
		Fields:      json.RawMessage(`{"items":["sword"]}`),
		Timestamp:   2,
	}, grpc.Header(&header))
	if err != nil {
		t.Fatalf("equip loadout: %v", err)
	}
	if string(resp.ResultFields) != `{"items":["sword"]}` {
		t.Fatalf("result fields = %s", resp.ResultFields)
	}
	if grpcmeta.FirstMetadataValue(header, grpcmeta.RequestIDHeader) == "" {
		t.Fatal("expected request id response header")
	}

	_, err = public.RunLogic(playerCtx, &logicv1.RunLogicRequest{
		PlayerID:    "p-1",
		CommandType: "equip_loadout",
		Fields:      json.RawMessage(`{"items":["sword"]}`),
		Timestamp:   2,
	})
	if code := errorCode(err); code != apperrors.CodeOrderingStale {
		t.Fatalf("expected ORDERING_STALE, got %s", code)
	}

	_, err = public.RunLogic(playerCtx, &logicv1.RunLogicRequest{
		PlayerID:     "p-1",
		CommandType:  "record_match_result",
		Fields:       json.RawMessage(`{"match_id":"m-1"}`),
		SharedSecret: testSecret,
	})
	if code := errorCode(err); code != apperrors.CodePermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED on public listener, got %s", code)
	}

	record := &logicv1.RunLogicRequest{
		PlayerID:       "p-1",
		CommandType:    "record_match_result",
		Fields:         json.RawMessage(`{"match_id":"m-1","reward_items":["gem"]}`),
		SharedSecret:   testSecret,
		IdempotencyKey: "match:m-1:p-1",
	}
	if _, err := trusted.RunLogic(ctx, record); errorCode(err) != apperrors.CodePermissionDenied {
		t.Fatalf("expected record without player token to be denied, got %s", errorCode(err))
	}
	if _, err := trusted.RunLogic(playerCtx, record); err != nil {
		t.Fatalf("record match result: %v", err)
	}

	inv, err := trusted.GetInventory(ctx, &logicv1.GetInventoryRequest{PlayerID: "p-1", SharedSecret: testSecret})
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	want := []string{"bow", "gem", "sword"}
	if len(inv.OwnedItems) != len(want) {
		t.Fatalf("owned = %v, want %v", inv.OwnedItems, want)
	}
	for i := range want {
		if inv.OwnedItems[i] != want[i] {
			t.Fatalf("owned = %v, want %v", inv.OwnedItems, want)
		}
	}

	if _, err := public.GetInventory(playerCtx, &logicv1.GetInventoryRequest{PlayerID: "p-1"}); errorCode(err) != apperrors.CodePermissionDenied {
		t.Fatalf("expected public inventory read to be denied")
	}
}

func errorCode(err error) apperrors.Code {
	if err == nil {
		return ""
	}
	return apperrors.FromGRPCStatus(err).Code
}
