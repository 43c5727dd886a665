package metrics

import (
	"context"
	"testing"
)

func TestCounterTracksSeriesIndependentOfPairOrder(t *testing.T) {
	counter, err := NewCounter("matchwarden.test", "test counter")
	if err != nil {
		t.Fatalf("new counter: %v", err)
	}
	ctx := context.Background()
	counter.Inc(ctx, "command", "equip_loadout", "outcome", "ok")
	counter.Inc(ctx, "outcome", "ok", "command", "equip_loadout")
	counter.Inc(ctx, "command", "equip_loadout", "outcome", "ORDERING_STALE")

	if got := counter.Value("command", "equip_loadout", "outcome", "ok"); got != 2 {
		t.Fatalf("ok total = %d, want 2", got)
	}
	if got := counter.Value("outcome", "ORDERING_STALE", "command", "equip_loadout"); got != 1 {
		t.Fatalf("stale total = %d, want 1", got)
	}
	if got := len(counter.Snapshot()); got != 2 {
		t.Fatalf("series = %d, want 2", got)
	}
	if counter.Name() != "matchwarden.test" {
		t.Fatalf("name = %q", counter.Name())
	}
}

func TestCounterNilIsNoop(t *testing.T) {
	var counter *Counter
	counter.Inc(context.Background(), "outcome", "ok")
	if counter.Value("outcome", "ok") != 0 || counter.Snapshot() != nil || counter.Name() != "" {
		t.Fatal("expected nil counter to report nothing")
	}
}

func TestNewCounterRequiresName(t *testing.T) {
	if _, err := NewCounter(" ", ""); err == nil {
		t.Fatal("expected error")
	}
}
