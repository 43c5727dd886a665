package consensus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
)

var (
	// ErrAlreadySubmitted is returned for a second submission from the same slot.
	ErrAlreadySubmitted = errors.New("slot already submitted a result")
	// ErrFinalized is returned for submissions after Finalize.
	ErrFinalized = errors.New("match result already finalized")
	// ErrNoConsensus reports that no hash group reached the agreement threshold.
	ErrNoConsensus = apperrors.New(apperrors.CodeNoConsensus, "no qualifying majority of agreeing results")
)

// Outcome is the resolved canonical result and the slots that agreed with it.
type Outcome struct {
	Hash          string
	AgreeingSlots []int
	Canonical     Submission
}

// Agrees reports whether slot is in the agreeing set.
func (o Outcome) Agrees(slot int) bool {
	i := sort.SearchInts(o.AgreeingSlots, slot)
	return i < len(o.AgreeingSlots) && o.AgreeingSlots[i] == slot
}

type received struct {
	submission Submission
	hash       string
}

// Resolver buffers submissions for one match. It moves from collecting to
// resolved exactly once, on the first Finalize call.
type Resolver struct {
	mu        sync.Mutex
	received  []received
	slots     map[int]struct{}
	finalized bool
	outcome   Outcome
	err       error
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{slots: map[int]struct{}{}}
}

// Submit records a slot's submission and returns its hash.
func (r *Resolver) Submit(submission Submission) (string, error) {
	hash, err := submission.Hash()
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return "", ErrFinalized
	}
	if _, ok := r.slots[submission.Slot]; ok {
		return "", ErrAlreadySubmitted
	}
	r.slots[submission.Slot] = struct{}{}
	r.received = append(r.received, received{submission: cloneSubmission(submission), hash: hash})
	return hash, nil
}

// Count returns how many slots have submitted.
func (r *Resolver) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

// Finalized reports whether Finalize has run.
func (r *Resolver) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// Finalize resolves the canonical result. Later calls return the first answer.
func (r *Resolver) Finalize(minimumAgreeing int) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return r.outcome, r.err
	}
	r.finalized = true
	r.outcome, r.err = resolve(r.received, minimumAgreeing)
	return r.outcome, r.err
}

func resolve(all []received, minimumAgreeing int) (Outcome, error) {
	if minimumAgreeing < 1 {
		return Outcome{}, fmt.Errorf("minimum agreeing must be positive, got %d", minimumAgreeing)
	}
	if len(all) < minimumAgreeing {
		return Outcome{}, ErrNoConsensus
	}

	groups := map[string][]int{}
	anchors := map[string]Submission{}
	for _, entry := range all {
		if _, ok := anchors[entry.hash]; !ok {
			anchors[entry.hash] = entry.submission
		}
		groups[entry.hash] = append(groups[entry.hash], entry.submission.Slot)
	}

	best := ""
	for hash, slots := range groups {
		if len(slots) < minimumAgreeing {
			continue
		}
		if best == "" || len(slots) > len(groups[best]) || (len(slots) == len(groups[best]) && hash < best) {
			best = hash
		}
	}
	if best == "" {
		return Outcome{}, ErrNoConsensus
	}
	agreeing := append([]int(nil), groups[best]...)
	sort.Ints(agreeing)
	return Outcome{Hash: best, AgreeingSlots: agreeing, Canonical: anchors[best]}, nil
}

func cloneSubmission(s Submission) Submission {
	out := Submission{Slot: s.Slot, Metadata: append([]byte(nil), s.Metadata...)}
	out.Records = make([]PlayerResult, len(s.Records))
	for i, record := range s.Records {
		out.Records[i] = PlayerResult{
			PlayerID:    record.PlayerID,
			Result:      append([]byte(nil), record.Result...),
			RewardItems: append([]string(nil), record.RewardItems...),
		}
	}
	return out
}
