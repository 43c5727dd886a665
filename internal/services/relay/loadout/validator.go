package loadout

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/platform/retry"
	"github.com/louisbranch/matchwarden/internal/platform/telemetry/metrics"
)

// Decision outcomes recorded in metrics.
const (
	OutcomeAdmitted  = "admitted"
	OutcomeRejected  = "rejected"
	OutcomeDiscarded = "discarded"
)

var (
	// ErrInventoryUnavailable means the player could not join with equipped items.
	ErrInventoryUnavailable = apperrors.New(apperrors.CodeTransportFailed, "could not join with equipped items")
	// ErrPastCutoff marks an admission that resolved too late in the match.
	ErrPastCutoff = errors.New("loadout resolved after the admission cutoff")
	// ErrInvalidLoadout marks a malformed declaration.
	ErrInvalidLoadout = errors.New("invalid loadout declaration")
	// ErrValidatorClosed is returned for declarations after Close.
	ErrValidatorClosed = errors.New("loadout validator is closed")
)

// Status is the lifecycle of a pending loadout.
type Status int

const (
	StatusPending Status = iota
	StatusAdmitted
	StatusRejected
	StatusDiscarded
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAdmitted:
		return OutcomeAdmitted
	case StatusRejected:
		return OutcomeRejected
	case StatusDiscarded:
		return OutcomeDiscarded
	default:
		return "unknown"
	}
}

// Pending is a declared loadout awaiting or holding its admission decision.
// Items are never changed after the first submission.
type Pending struct {
	Slot     int
	PlayerID string
	Items    []string
	Status   Status
	Reason   error
}

// Fetcher reads a player's canonical inventory from the backend.
type Fetcher interface {
	FetchInventory(ctx context.Context, playerID string) ([]string, error)
}

// Admitter receives admission decisions. Admit writes items into the slot's
// simulation input; Reject tells the participant why its loadout was refused.
type Admitter interface {
	Admit(slot int, playerID string, items []string)
	Reject(slot int, playerID string, reason error)
}

// InventoryResult is the outcome of one inventory fetch.
type InventoryResult struct {
	Owned []string
	Err   error
}

// Config tunes a validator.
type Config struct {
	// Cutoff bounds how long after match start an admission may still apply.
	// Zero disables the cutoff.
	Cutoff  time.Duration
	Retry   retry.Policy
	Counter *metrics.Counter
	Now     func() time.Time
	Logf    func(string, ...any)
}

// Validator tracks loadouts for one match.
type Validator struct {
	fetcher  Fetcher
	admitter Admitter
	cfg      Config

	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	bySlot   map[int]*Pending
	byPlayer map[string]int
}

// NewValidator creates a validator whose cutoff clock starts now.
func NewValidator(fetcher Fetcher, admitter Admitter, cfg Config) *Validator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Validator{
		fetcher:   fetcher,
		admitter:  admitter,
		cfg:       cfg,
		startedAt: cfg.Now(),
		ctx:       ctx,
		cancel:    cancel,
		bySlot:    map[int]*Pending{},
		byPlayer:  map[string]int{},
	}
}

// SubmitLoadout records a declaration and starts the inventory fetch. It returns
// false without doing anything when the slot already has a pending or resolved
// loadout.
func (v *Validator) SubmitLoadout(slot int, playerID string, items []string) (bool, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return false, errors.Join(ErrInvalidLoadout, errors.New("player id is required"))
	}
	declared, err := normalize(items)
	if err != nil {
		return false, err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false, ErrValidatorClosed
	}
	if _, ok := v.bySlot[slot]; ok {
		v.mu.Unlock()
		return false, nil
	}
	if other, ok := v.byPlayer[playerID]; ok && other != slot {
		v.mu.Unlock()
		return false, errors.Join(ErrInvalidLoadout, errors.New("player already declared a loadout for another slot"))
	}
	v.bySlot[slot] = &Pending{Slot: slot, PlayerID: playerID, Items: declared}
	v.byPlayer[playerID] = slot
	// Added under mu so Close never waits while a new fetch is being registered.
	v.wg.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.wg.Done()
		v.OnInventoryFetched(playerID, v.fetch(playerID))
	}()
	return true, nil
}

func (v *Validator) fetch(playerID string) InventoryResult {
	if v.fetcher == nil {
		return InventoryResult{Err: errors.New("inventory fetcher is not configured")}
	}
	owned, err := retry.Do(v.ctx, v.cfg.Retry, func(ctx context.Context) ([]string, error) {
		return v.fetcher.FetchInventory(ctx, playerID)
	}, retryableFetch, func(err error, next time.Duration) {
		v.cfg.Logf("inventory fetch retry player_id=%s next=%s err=%v", playerID, next, err)
	})
	return InventoryResult{Owned: owned, Err: err}
}

func retryableFetch(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.Code.Retryable()
	}
	return true
}

// OnInventoryFetched resolves the pending loadout for playerID. Results for
// unknown players or already-resolved loadouts are ignored.
func (v *Validator) OnInventoryFetched(playerID string, result InventoryResult) {
	v.mu.Lock()
	slot, ok := v.byPlayer[playerID]
	if !ok {
		v.mu.Unlock()
		return
	}
	pending := v.bySlot[slot]
	if pending.Status != StatusPending {
		v.mu.Unlock()
		return
	}

	switch {
	case result.Err != nil:
		pending.Status = StatusRejected
		pending.Reason = ErrInventoryUnavailable
		v.cfg.Logf("loadout rejected slot=%d player_id=%s reason=inventory_unavailable err=%v", slot, playerID, result.Err)
	default:
		unowned := difference(pending.Items, result.Owned)
		switch {
		case len(unowned) > 0:
			pending.Status = StatusRejected
			pending.Reason = apperrors.WithMetadata(apperrors.CodeValidationFailed, "loadout contains unowned items", map[string]string{
				"unowned_items": strings.Join(unowned, ","),
			})
			v.cfg.Logf("loadout rejected slot=%d player_id=%s unowned_items=%s", slot, playerID, strings.Join(unowned, ","))
		case v.cfg.Cutoff > 0 && v.cfg.Now().Sub(v.startedAt) > v.cfg.Cutoff:
			pending.Status = StatusDiscarded
			pending.Reason = ErrPastCutoff
			v.cfg.Logf("WARNING loadout discarded slot=%d player_id=%s elapsed=%s cutoff=%s", slot, playerID, v.cfg.Now().Sub(v.startedAt), v.cfg.Cutoff)
		default:
			pending.Status = StatusAdmitted
		}
	}
	decision := *pending
	decision.Items = append([]string(nil), pending.Items...)
	v.mu.Unlock()

	v.cfg.Counter.Inc(context.Background(), "outcome", decision.Status.String())
	if v.admitter == nil {
		return
	}
	if decision.Status == StatusAdmitted {
		v.admitter.Admit(decision.Slot, decision.PlayerID, decision.Items)
		return
	}
	v.admitter.Reject(decision.Slot, decision.PlayerID, decision.Reason)
}

// Loadout returns a copy of the slot's loadout.
func (v *Validator) Loadout(slot int) (Pending, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pending, ok := v.bySlot[slot]
	if !ok {
		return Pending{}, false
	}
	out := *pending
	out.Items = append([]string(nil), pending.Items...)
	return out, true
}

// Admitted returns the admitted items per slot.
func (v *Validator) Admitted() map[int][]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := map[int][]string{}
	for slot, pending := range v.bySlot {
		if pending.Status == StatusAdmitted {
			out[slot] = append([]string(nil), pending.Items...)
		}
	}
	return out
}

// Wait blocks until every in-flight inventory fetch has resolved.
func (v *Validator) Wait() {
	v.wg.Wait()
}

// Close cancels in-flight fetches and waits for them to finish. Loadouts still
// pending are rejected as unavailable, and later declarations are refused.
func (v *Validator) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.cancel()
	v.wg.Wait()
}

func normalize(items []string) ([]string, error) {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, errors.Join(ErrInvalidLoadout, errors.New("item id is required"))
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out, nil
}

// difference returns declared items missing from owned.
func difference(declared, owned []string) []string {
	have := make(map[string]struct{}, len(owned))
	for _, item := range owned {
		have[item] = struct{}{}
	}
	var missing []string
	for _, item := range declared {
		if _, ok := have[item]; !ok {
			missing = append(missing, item)
		}
	}
	return missing
}
