package loadout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/platform/retry"
	"github.com/louisbranch/matchwarden/internal/platform/telemetry/metrics"
)

type fakeFetcher struct {
	mu       sync.Mutex
	owned    map[string][]string
	failures int
	err      error
	gate     chan struct{}
	calls    atomic.Int32
}

func (f *fakeFetcher) FetchInventory(ctx context.Context, playerID string) ([]string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, apperrors.New(apperrors.CodeTransportFailed, "backend unavailable")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.owned[playerID], nil
}

type decision struct {
	slot     int
	playerID string
	items    []string
	reason   error
}

type fakeAdmitter struct {
	mu       sync.Mutex
	admitted []decision
	rejected []decision
}

func (a *fakeAdmitter) Admit(slot int, playerID string, items []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.admitted = append(a.admitted, decision{slot: slot, playerID: playerID, items: items})
}

func (a *fakeAdmitter) Reject(slot int, playerID string, reason error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = append(a.rejected, decision{slot: slot, playerID: playerID, reason: reason})
}

func newTestValidator(t *testing.T, fetcher Fetcher, admitter Admitter, cfg Config) *Validator {
	t.Helper()
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.Policy{MaxAttempts: 3, Backoff: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	}
	if cfg.Logf == nil {
		cfg.Logf = t.Logf
	}
	v := NewValidator(fetcher, admitter, cfg)
	t.Cleanup(v.Close)
	return v
}

func newCounter(t *testing.T) *metrics.Counter {
	t.Helper()
	counter, err := metrics.NewCounter(metrics.LoadoutsTotal, "test")
	if err != nil {
		t.Fatalf("new counter: %v", err)
	}
	return counter
}

func TestSubmitLoadoutAdmitsOwnedItems(t *testing.T) {
	fetcher := &fakeFetcher{owned: map[string][]string{"p-1": {"bow", "sword", "shield"}}}
	admitter := &fakeAdmitter{}
	counter := newCounter(t)
	v := newTestValidator(t, fetcher, admitter, Config{Counter: counter})

	started, err := v.SubmitLoadout(0, "p-1", []string{"sword", "bow", "sword"})
	if err != nil || !started {
		t.Fatalf("submit: started=%v err=%v", started, err)
	}
	v.Wait()

	if len(admitter.admitted) != 1 || len(admitter.rejected) != 0 {
		t.Fatalf("unexpected decisions: %+v / %+v", admitter.admitted, admitter.rejected)
	}
	got := admitter.admitted[0]
	if got.slot != 0 || got.playerID != "p-1" || len(got.items) != 2 || got.items[0] != "bow" || got.items[1] != "sword" {
		t.Fatalf("unexpected admission: %+v", got)
	}
	if items := v.Admitted()[0]; len(items) != 2 {
		t.Fatalf("expected admitted simulation input, got %v", items)
	}
	if counter.Value("outcome", OutcomeAdmitted) != 1 {
		t.Fatalf("expected admitted metric, got %v", counter.Snapshot())
	}
}

func TestSubmitLoadoutRejectsUnownedItem(t *testing.T) {
	fetcher := &fakeFetcher{owned: map[string][]string{"p-1": {"bow"}}}
	admitter := &fakeAdmitter{}
	v := newTestValidator(t, fetcher, admitter, Config{})

	if _, err := v.SubmitLoadout(3, "p-1", []string{"X", "bow"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v.Wait()

	if len(admitter.admitted) != 0 {
		t.Fatalf("unowned item must never be admitted: %+v", admitter.admitted)
	}
	if len(admitter.rejected) != 1 {
		t.Fatalf("expected one rejection, got %+v", admitter.rejected)
	}
	var domainErr *apperrors.Error
	if !errors.As(admitter.rejected[0].reason, &domainErr) || domainErr.Metadata["unowned_items"] != "X" {
		t.Fatalf("expected unowned_items=X, got %v", admitter.rejected[0].reason)
	}
	if _, ok := v.Admitted()[3]; ok {
		t.Fatal("rejected slot must not have simulation input")
	}
	pending, _ := v.Loadout(3)
	if pending.Status != StatusRejected {
		t.Fatalf("expected rejected status, got %s", pending.Status)
	}
}

func TestSubmitLoadoutIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{owned: map[string][]string{"p-1": {"bow", "sword"}}}
	admitter := &fakeAdmitter{}
	v := newTestValidator(t, fetcher, admitter, Config{})

	if _, err := v.SubmitLoadout(0, "p-1", []string{"bow"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v.Wait()
	started, err := v.SubmitLoadout(0, "p-1", []string{"sword"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if started {
		t.Fatal("second submission must be a no-op")
	}
	v.Wait()

	pending, _ := v.Loadout(0)
	if len(pending.Items) != 1 || pending.Items[0] != "bow" {
		t.Fatalf("admitted loadout changed: %v", pending.Items)
	}
	if fetcher.calls.Load() != 1 || len(admitter.admitted) != 1 {
		t.Fatalf("expected one fetch and one admission, got %d / %d", fetcher.calls.Load(), len(admitter.admitted))
	}
}

func TestSubmitLoadoutNoOpWhilePending(t *testing.T) {
	fetcher := &fakeFetcher{owned: map[string][]string{"p-1": {"bow"}}, gate: make(chan struct{})}
	v := newTestValidator(t, fetcher, &fakeAdmitter{}, Config{})

	if _, err := v.SubmitLoadout(0, "p-1", []string{"bow"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if started, _ := v.SubmitLoadout(0, "p-1", []string{"bow"}); started {
		t.Fatal("pending slot must not start a second fetch")
	}
	pending, _ := v.Loadout(0)
	if pending.Status != StatusPending {
		t.Fatalf("expected pending before fetch resolves, got %s", pending.Status)
	}
	close(fetcher.gate)
	v.Wait()
}

func TestSubmitLoadoutRetriesTransientFailures(t *testing.T) {
	fetcher := &fakeFetcher{owned: map[string][]string{"p-1": {"bow"}}, failures: 2}
	admitter := &fakeAdmitter{}
	v := newTestValidator(t, fetcher, admitter, Config{})

	if _, err := v.SubmitLoadout(0, "p-1", []string{"bow"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v.Wait()
	if fetcher.calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fetcher.calls.Load())
	}
	if len(admitter.admitted) != 1 {
		t.Fatalf("expected admission after retries, got %+v", admitter.rejected)
	}
}

func TestSubmitLoadoutPersistentFailureRejectsOnlyThatPlayer(t *testing.T) {
	fetcher := &fakeFetcher{err: apperrors.New(apperrors.CodeTransportFailed, "down")}
	admitter := &fakeAdmitter{}
	counter := newCounter(t)
	v := newTestValidator(t, fetcher, admitter, Config{Counter: counter})

	if _, err := v.SubmitLoadout(0, "p-1", []string{"bow"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v.Wait()
	if len(admitter.rejected) != 1 || !errors.Is(admitter.rejected[0].reason, ErrInventoryUnavailable) {
		t.Fatalf("expected inventory unavailable rejection, got %+v", admitter.rejected)
	}
	if fetcher.calls.Load() != 3 {
		t.Fatalf("expected bounded retries, got %d", fetcher.calls.Load())
	}
	if counter.Value("outcome", OutcomeRejected) != 1 {
		t.Fatalf("expected rejected metric, got %v", counter.Snapshot())
	}
}

func TestSubmitLoadoutDoesNotRetryPermissionFailures(t *testing.T) {
	fetcher := &fakeFetcher{err: apperrors.New(apperrors.CodePermissionDenied, "bad secret")}
	v := newTestValidator(t, fetcher, &fakeAdmitter{}, Config{})
	if _, err := v.SubmitLoadout(0, "p-1", []string{"bow"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v.Wait()
	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", fetcher.calls.Load())
	}
}

func TestLateAdmissionPastCutoffIsDiscarded(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	fetcher := &fakeFetcher{owned: map[string][]string{"p-1": {"bow"}, "p-2": {"bow"}}, gate: make(chan struct{})}
	admitter := &fakeAdmitter{}
	counter := newCounter(t)
	v := newTestValidator(t, fetcher, admitter, Config{Cutoff: 30 * time.Second, Now: clock, Counter: counter})

	if _, err := v.SubmitLoadout(0, "p-1", []string{"bow"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	mu.Lock()
	now = now.Add(31 * time.Second)
	mu.Unlock()
	close(fetcher.gate)
	v.Wait()

	if len(admitter.admitted) != 0 || len(admitter.rejected) != 1 || !errors.Is(admitter.rejected[0].reason, ErrPastCutoff) {
		t.Fatalf("expected discard past cutoff, got %+v / %+v", admitter.admitted, admitter.rejected)
	}
	pending, _ := v.Loadout(0)
	if pending.Status != StatusDiscarded {
		t.Fatalf("expected discarded status, got %s", pending.Status)
	}
	if counter.Value("outcome", OutcomeDiscarded) != 1 {
		t.Fatalf("expected discarded metric, got %v", counter.Snapshot())
	}
}

func TestOnInventoryFetchedIgnoresUnknownAndResolved(t *testing.T) {
	fetcher := &fakeFetcher{owned: map[string][]string{"p-1": {"bow"}}}
	admitter := &fakeAdmitter{}
	v := newTestValidator(t, fetcher, admitter, Config{})

	v.OnInventoryFetched("ghost", InventoryResult{Owned: []string{"bow"}})
	if _, err := v.SubmitLoadout(0, "p-1", []string{"bow"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v.Wait()
	v.OnInventoryFetched("p-1", InventoryResult{Err: errors.New("late failure")})

	if len(admitter.admitted) != 1 || len(admitter.rejected) != 0 {
		t.Fatalf("resolved loadout must not change: %+v / %+v", admitter.admitted, admitter.rejected)
	}
}

func TestSubmitLoadoutValidatesInput(t *testing.T) {
	v := newTestValidator(t, &fakeFetcher{}, &fakeAdmitter{}, Config{})
	if _, err := v.SubmitLoadout(0, " ", []string{"bow"}); !errors.Is(err, ErrInvalidLoadout) {
		t.Fatalf("expected invalid loadout for missing player, got %v", err)
	}
	if _, err := v.SubmitLoadout(0, "p-1", []string{""}); !errors.Is(err, ErrInvalidLoadout) {
		t.Fatalf("expected invalid loadout for empty item, got %v", err)
	}
	if _, err := v.SubmitLoadout(0, "p-1", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := v.SubmitLoadout(1, "p-1", nil); !errors.Is(err, ErrInvalidLoadout) {
		t.Fatalf("expected one slot per player, got %v", err)
	}
}

func TestSubmitLoadoutAfterCloseIsRefused(t *testing.T) {
	fetcher := &fakeFetcher{owned: map[string][]string{"p-1": {"bow"}}}
	v := newTestValidator(t, fetcher, &fakeAdmitter{}, Config{})
	v.Close()

	if _, err := v.SubmitLoadout(0, "p-1", []string{"bow"}); !errors.Is(err, ErrValidatorClosed) {
		t.Fatalf("expected ErrValidatorClosed, got %v", err)
	}
	if fetcher.calls.Load() != 0 {
		t.Fatal("closed validator must not fetch inventory")
	}
	if _, ok := v.Loadout(0); ok {
		t.Fatal("closed validator must not record declarations")
	}
}

func TestSubmitLoadoutConcurrentWithClose(t *testing.T) {
	fetcher := &fakeFetcher{owned: map[string][]string{}}
	v := newTestValidator(t, fetcher, &fakeAdmitter{}, Config{})

	var wg sync.WaitGroup
	for slot := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.SubmitLoadout(slot, "p-"+string(rune('a'+slot)), nil)
			if err != nil && !errors.Is(err, ErrValidatorClosed) {
				t.Errorf("slot %d: %v", slot, err)
			}
		}()
	}
	v.Close()
	wg.Wait()
	v.Wait()
}
