package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/matchwarden/internal/platform/telemetry/metrics"
	"github.com/louisbranch/matchwarden/internal/services/relay/consensus"
	"github.com/louisbranch/matchwarden/internal/services/relay/dispatch"
	"github.com/louisbranch/matchwarden/internal/services/relay/loadout"
)

// Consensus outcomes recorded in metrics.
const (
	OutcomeResolved = "resolved"
	OutcomeNone     = "none"
)

var (
	// ErrSlotOutOfRange is returned for slots outside the policy's participants.
	ErrSlotOutOfRange = errors.New("actor slot out of range")
	// ErrSlotTaken is returned when another player already holds the slot.
	ErrSlotTaken = errors.New("actor slot already taken")
	// ErrAlreadyJoined is returned when a player tries to hold two slots.
	ErrAlreadyJoined = errors.New("player already joined another slot")
	// ErrNotJoined is returned for actions on a slot nobody joined.
	ErrNotJoined = errors.New("actor slot has not joined")
	// ErrUnauthorized is returned when a join carries no valid token for the player.
	ErrUnauthorized = errors.New("player token rejected")
)

// TokenVerifier checks that token was issued to playerID.
type TokenVerifier interface {
	VerifyPlayerToken(token, playerID string) error
}

// Participant binds an actor slot to a backend player.
type Participant struct {
	Slot     int    `json:"slot"`
	PlayerID string `json:"player_id"`
	// AuthToken is forwarded on reward dispatch; it is never echoed to clients.
	AuthToken string `json:"-"`
}

// Events observes session decisions.
type Events interface {
	loadout.Admitter
	Finalized(outcome Outcome)
}

// Dispatcher sends reward commands without blocking the session.
type Dispatcher interface {
	DispatchAsync(playerID, authToken string, cmd dispatch.Command)
}

// Outcome is the finalized consensus result for a match.
type Outcome struct {
	MatchID       string   `json:"match_id"`
	Resolved      bool     `json:"resolved"`
	Hash          string   `json:"hash,omitempty"`
	AgreeingSlots []int    `json:"agreeing_slots,omitempty"`
	Dispatched    []string `json:"-"`
	Submissions   int      `json:"submissions"`
	Minimum       int      `json:"minimum_agreeing"`
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Fetcher    loadout.Fetcher
	Dispatcher Dispatcher
	Loadout    loadout.Config
	// Tokens authenticates joins. Without it every join is refused.
	Tokens TokenVerifier
	// ConsensusTimeout bounds the wait after the first result submission.
	ConsensusTimeout time.Duration
	// MatchTimeout bounds a session's whole life from creation. Zero disables it.
	MatchTimeout time.Duration
	Outcomes         *metrics.Counter
	Logf             func(string, ...any)
}

// Session is one running match.
type Session struct {
	ID     string
	Policy Policy

	deps     Deps
	events   Events
	loadouts *loadout.Validator
	results  *consensus.Resolver

	mu           sync.Mutex
	participants map[int]Participant
	players      map[string]int
	timer        *time.Timer
	lifetime     *time.Timer

	finalizeOnce sync.Once
	outcome      Outcome
	done         chan struct{}
}

func newSession(id string, policy Policy, deps Deps, events Events) *Session {
	if events == nil {
		events = noopEvents{}
	}
	if deps.Logf == nil {
		deps.Logf = log.Printf
	}
	if deps.Loadout.Logf == nil {
		deps.Loadout.Logf = deps.Logf
	}
	s := &Session{
		ID:           id,
		Policy:       policy,
		deps:         deps,
		events:       events,
		results:      consensus.NewResolver(),
		participants: map[int]Participant{},
		players:      map[string]int{},
		done:         make(chan struct{}),
	}
	s.loadouts = loadout.NewValidator(deps.Fetcher, events, deps.Loadout)
	if deps.MatchTimeout > 0 {
		s.mu.Lock()
		s.lifetime = time.AfterFunc(deps.MatchTimeout, func() {
			s.deps.Logf("match expired match_id=%s submissions=%d", s.ID, s.results.Count())
			s.Finalize(context.Background())
		})
		s.mu.Unlock()
	}
	return s
}

// Join binds slot to playerID once authToken proves the caller is that
// player. Rejoining the same slot refreshes the token.
func (s *Session) Join(slot int, playerID, authToken string) (Participant, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return Participant{}, errors.New("player id is required")
	}
	authToken = strings.TrimSpace(authToken)
	if authToken == "" {
		return Participant{}, fmt.Errorf("%w: token is required", ErrUnauthorized)
	}
	if s.deps.Tokens == nil {
		return Participant{}, fmt.Errorf("%w: no token verifier configured", ErrUnauthorized)
	}
	if err := s.deps.Tokens.VerifyPlayerToken(authToken, playerID); err != nil {
		return Participant{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if slot < 0 || slot >= s.Policy.Participants {
		return Participant{}, fmt.Errorf("%w: %d", ErrSlotOutOfRange, slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.participants[slot]; ok && current.PlayerID != playerID {
		return Participant{}, fmt.Errorf("%w: %d", ErrSlotTaken, slot)
	}
	if other, ok := s.players[playerID]; ok && other != slot {
		return Participant{}, fmt.Errorf("%w: slot %d", ErrAlreadyJoined, other)
	}
	p := Participant{Slot: slot, PlayerID: playerID, AuthToken: authToken}
	s.participants[slot] = p
	s.players[playerID] = slot
	return p, nil
}

// Participant returns the player bound to slot.
func (s *Session) Participant(slot int) (Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[slot]
	return p, ok
}

// Participants lists joined participants by slot.
func (s *Session) Participants() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// SubmitLoadout starts admission for the slot's declared items. It reports
// false when the slot already had a declaration.
func (s *Session) SubmitLoadout(slot int, items []string) (bool, error) {
	p, ok := s.Participant(slot)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrNotJoined, slot)
	}
	return s.loadouts.SubmitLoadout(slot, p.PlayerID, items)
}

// Loadout returns the slot's declaration and decision.
func (s *Session) Loadout(slot int) (loadout.Pending, bool) {
	return s.loadouts.Loadout(slot)
}

// SimulationInput returns admitted loadouts by slot.
func (s *Session) SimulationInput() map[int][]string {
	return s.loadouts.Admitted()
}

// WaitLoadouts blocks until in-flight inventory checks finish.
func (s *Session) WaitLoadouts() {
	s.loadouts.Wait()
}

// SubmitResult records the slot's end-of-match submission. The first
// submission starts the consensus timer; the last expected one finalizes.
func (s *Session) SubmitResult(slot int, records []consensus.PlayerResult, metadata json.RawMessage) (string, error) {
	if _, ok := s.Participant(slot); !ok {
		return "", fmt.Errorf("%w: %d", ErrNotJoined, slot)
	}
	hash, err := s.results.Submit(consensus.Submission{Slot: slot, Records: records, Metadata: metadata})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.timer == nil && s.deps.ConsensusTimeout > 0 {
		s.timer = time.AfterFunc(s.deps.ConsensusTimeout, func() {
			s.deps.Logf("consensus timeout match_id=%s submissions=%d", s.ID, s.results.Count())
			s.Finalize(context.Background())
		})
	}
	s.mu.Unlock()

	if s.results.Count() >= s.Policy.Participants {
		s.Finalize(context.Background())
	}
	return hash, nil
}

// Finalize resolves consensus once and dispatches one reward command per
// agreeing player. Later calls return the first outcome.
func (s *Session) Finalize(ctx context.Context) Outcome {
	s.finalizeOnce.Do(func() {
		s.stopTimers()

		minimum := s.Policy.MinimumAgreeing()
		outcome := Outcome{MatchID: s.ID, Submissions: s.results.Count(), Minimum: minimum}
		resolved, err := s.results.Finalize(minimum)
		if err != nil {
			s.deps.Outcomes.Inc(ctx, "outcome", OutcomeNone)
			s.deps.Logf("no consensus match_id=%s submissions=%d minimum_agreeing=%d err=%v", s.ID, outcome.Submissions, minimum, err)
		} else {
			s.deps.Outcomes.Inc(ctx, "outcome", OutcomeResolved)
			outcome.Resolved = true
			outcome.Hash = resolved.Hash
			outcome.AgreeingSlots = resolved.AgreeingSlots
			outcome.Dispatched = s.dispatch(resolved)
			s.deps.Logf("consensus resolved match_id=%s hash=%s agreeing=%d minimum_agreeing=%d", s.ID, resolved.Hash, len(resolved.AgreeingSlots), minimum)
		}

		s.mu.Lock()
		s.outcome = outcome
		s.mu.Unlock()
		close(s.done)
		s.events.Finalized(outcome)
	})
	out, _ := s.Outcome()
	return out
}

func (s *Session) dispatch(resolved consensus.Outcome) []string {
	var dispatched []string
	for _, slot := range resolved.AgreeingSlots {
		p, ok := s.Participant(slot)
		if !ok {
			continue
		}
		record, ok := resolved.Canonical.Record(p.PlayerID)
		if !ok {
			s.deps.Logf("canonical result has no record match_id=%s slot=%d player_id=%s", s.ID, slot, p.PlayerID)
			continue
		}
		if s.deps.Dispatcher != nil {
			s.deps.Dispatcher.DispatchAsync(p.PlayerID, p.AuthToken, dispatch.Command{
				MatchID:     s.ID,
				ResultHash:  resolved.Hash,
				Result:      record.Result,
				RewardItems: record.RewardItems,
			})
		}
		dispatched = append(dispatched, p.PlayerID)
	}
	return dispatched
}

// Outcome returns the finalized outcome.
func (s *Session) Outcome() (Outcome, bool) {
	select {
	case <-s.done:
	default:
		return Outcome{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, true
}

// Done is closed once the session has finalized.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the session timers and cancels pending inventory checks.
func (s *Session) Close() {
	s.stopTimers()
	s.loadouts.Close()
}

func (s *Session) stopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.lifetime != nil {
		s.lifetime.Stop()
	}
}

type noopEvents struct{}

func (noopEvents) Admit(int, string, []string) {}
func (noopEvents) Reject(int, string, error)   {}
func (noopEvents) Finalized(Outcome)           {}
