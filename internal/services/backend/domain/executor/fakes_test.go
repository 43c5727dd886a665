package executor

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/matchwarden/internal/platform/telemetry/metrics"
	"github.com/louisbranch/matchwarden/internal/services/backend/domain/command"
	"github.com/louisbranch/matchwarden/internal/services/backend/domain/playerstate"
	"github.com/louisbranch/matchwarden/internal/services/backend/lock"
	"github.com/louisbranch/matchwarden/internal/services/backend/observability/audit"
	"github.com/louisbranch/matchwarden/internal/services/backend/storage"
)

const testSecret = "s3cret"

type fakeStateStore struct {
	mu      sync.Mutex
	states  map[string]playerstate.State
	deltas  []playerstate.Delta
	failPut error
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: map[string]playerstate.State{}}
}

func (s *fakeStateStore) GetPlayerState(_ context.Context, playerID string) (playerstate.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[playerID]
	if !ok {
		return playerstate.New(playerID), nil
	}
	return state.Clone(), nil
}

func (s *fakeStateStore) UpdatePlayerState(_ context.Context, playerID string, delta playerstate.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		return s.failPut
	}
	state, ok := s.states[playerID]
	if !ok {
		state = playerstate.New(playerID)
	}
	s.states[playerID] = state.Apply(delta)
	s.deltas = append(s.deltas, delta)
	return nil
}

func (s *fakeStateStore) put(state playerstate.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.PlayerID] = state.Clone()
}

func (s *fakeStateStore) get(playerID string) playerstate.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[playerID].Clone()
}

func (s *fakeStateStore) deltaCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deltas)
}

type fakeAuditStore struct {
	mu     sync.Mutex
	events []storage.AuditEvent
}

func (s *fakeAuditStore) AppendAuditEvent(_ context.Context, evt storage.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *fakeAuditStore) all() []storage.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.AuditEvent(nil), s.events...)
}

// appendValue appends Value to the "trace" key, optionally blocking first.
type appendValue struct {
	Value string `json:"value"`
	gate  chan struct{}
	entry chan struct{}
}

func (c *appendValue) Execute(_ context.Context, exec command.ExecContext) (json.RawMessage, error) {
	if c.entry != nil {
		close(c.entry)
	}
	if c.gate != nil {
		<-c.gate
	}
	var trace []string
	if raw, ok := exec.State.Get("trace"); ok {
		_ = json.Unmarshal(raw, &trace)
	}
	trace = append(trace, c.Value)
	raw, _ := json.Marshal(trace)
	exec.State.Set("trace", raw)
	return json.RawMessage(`{}`), nil
}

// countInFlight increments a counter key while tracking concurrent executions.
type countInFlight struct {
	active *int32
	peak   *int32
}

func (c *countInFlight) Execute(_ context.Context, exec command.ExecContext) (json.RawMessage, error) {
	now := atomic.AddInt32(c.active, 1)
	defer atomic.AddInt32(c.active, -1)
	for {
		seen := atomic.LoadInt32(c.peak)
		if now <= seen || atomic.CompareAndSwapInt32(c.peak, seen, now) {
			break
		}
	}
	count := 0
	if raw, ok := exec.State.Get("count"); ok {
		count, _ = strconv.Atoi(string(raw))
	}
	time.Sleep(100 * time.Microsecond)
	exec.State.Set("count", []byte(strconv.Itoa(count+1)))
	return nil, nil
}

type panicCommand struct{}

func (panicCommand) Execute(_ context.Context, exec command.ExecContext) (json.RawMessage, error) {
	exec.State.Set("half", []byte("written"))
	panic("boom")
}

type testHarness struct {
	executor *Executor
	store    *fakeStateStore
	audit    *fakeAuditStore
	counter  *metrics.Counter
	registry *command.Registry
}

// expiringLocker hands out locks whose lease is already gone.
type expiringLocker struct {
	released atomic.Int32
}

func (l *expiringLocker) Acquire(context.Context, string) (lock.Handle, error) {
	return expiredHandle{locker: l}, nil
}

type expiredHandle struct {
	locker *expiringLocker
}

func (h expiredHandle) Release(context.Context) error {
	h.locker.released.Add(1)
	return nil
}

func (expiredHandle) Err() error {
	return lock.ErrLeaseLost
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	registry := command.NewRegistry()
	if err := command.RegisterBuiltins(registry); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	counter, err := metrics.NewCounter(metrics.CommandsTotal, "test")
	if err != nil {
		t.Fatalf("new counter: %v", err)
	}
	store := newFakeStateStore()
	auditStore := &fakeAuditStore{}
	return &testHarness{
		executor: &Executor{
			Registry:         registry,
			Store:            store,
			Locker:           lock.NewMemoryLocker(),
			Audit:            audit.NewEmitter(auditStore),
			Counter:          counter,
			SharedSecret:     testSecret,
			MinClientVersion: 3,
			ConfigVersion:    7,
			LockTimeout:      time.Second,
			Logf:             t.Logf,
		},
		store:    store,
		audit:    auditStore,
		counter:  counter,
		registry: registry,
	}
}

func (h *testHarness) register(t *testing.T, def command.Definition) {
	t.Helper()
	if err := h.registry.Register(def); err != nil {
		t.Fatalf("register %s: %v", def.Type, err)
	}
}

func withInventory(playerID string, items ...string) playerstate.State {
	state := playerstate.New(playerID)
	raw, _ := json.Marshal(playerstate.Inventory{OwnedItems: items})
	state.Entries[playerstate.KeyInventory] = raw
	return state
}
