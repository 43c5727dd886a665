package consensus

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
)

func result(score string, players ...string) []PlayerResult {
	records := make([]PlayerResult, 0, len(players))
	for _, player := range players {
		records = append(records, PlayerResult{
			PlayerID:    player,
			Result:      json.RawMessage(`{"score":` + score + `}`),
			RewardItems: []string{"coin"},
		})
	}
	return records
}

func submitAll(t *testing.T, r *Resolver, subs []Submission) {
	t.Helper()
	for _, sub := range subs {
		if _, err := r.Submit(sub); err != nil {
			t.Fatalf("submit slot %d: %v", sub.Slot, err)
		}
	}
}

func TestFinalizeNineOfTenAgree(t *testing.T) {
	players := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"}
	var subs []Submission
	for slot := range 10 {
		score := "10"
		if slot == 4 {
			score = "99"
		}
		subs = append(subs, Submission{Slot: slot, Records: result(score, players...)})
	}
	r := NewResolver()
	submitAll(t, r, subs)

	outcome, err := r.Finalize(8)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(outcome.AgreeingSlots) != 9 {
		t.Fatalf("expected 9 agreeing slots, got %v", outcome.AgreeingSlots)
	}
	if outcome.Agrees(4) {
		t.Fatal("dissenting slot must not agree")
	}
	wantHash, _ := subs[0].Hash()
	if outcome.Hash != wantHash {
		t.Fatalf("expected anchor on majority hash")
	}
}

func TestFinalizeFixedMinimumTwo(t *testing.T) {
	r := NewResolver()
	submitAll(t, r, []Submission{
		{Slot: 0, Records: result("1", "a", "b")},
		{Slot: 1, Records: result("1", "a", "b")},
	})
	outcome, err := r.Finalize(2)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(outcome.AgreeingSlots) != 2 || !outcome.Agrees(0) || !outcome.Agrees(1) {
		t.Fatalf("expected both slots, got %v", outcome.AgreeingSlots)
	}
}

func TestFinalizeWithoutQualifyingMajority(t *testing.T) {
	tests := []struct {
		name    string
		subs    []Submission
		minimum int
	}{
		{
			name:    "too few submissions",
			subs:    []Submission{{Slot: 0, Records: result("1", "a")}},
			minimum: 2,
		},
		{
			name: "split vote",
			subs: []Submission{
				{Slot: 0, Records: result("1", "a")},
				{Slot: 1, Records: result("2", "a")},
				{Slot: 2, Records: result("3", "a")},
			},
			minimum: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver()
			submitAll(t, r, tt.subs)
			_, err := r.Finalize(tt.minimum)
			if !errors.Is(err, ErrNoConsensus) {
				t.Fatalf("expected no consensus, got %v", err)
			}
			if apperrors.CodeOf(err) != apperrors.CodeNoConsensus {
				t.Fatalf("expected NO_CONSENSUS code, got %s", apperrors.CodeOf(err))
			}
		})
	}
}

func TestFinalizeIsOrderIndependent(t *testing.T) {
	var subs []Submission
	for slot := range 7 {
		score := "5"
		if slot%3 == 0 {
			score = "6"
		}
		subs = append(subs, Submission{Slot: slot, Records: result(score, "a", "b", "c")})
	}
	baseline := NewResolver()
	submitAll(t, baseline, subs)
	want, err := baseline.Finalize(4)
	if err != nil {
		t.Fatalf("finalize baseline: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	for i := range 50 {
		shuffled := append([]Submission(nil), subs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		r := NewResolver()
		submitAll(t, r, shuffled)
		got, err := r.Finalize(4)
		if err != nil {
			t.Fatalf("permutation %d: %v", i, err)
		}
		if got.Hash != want.Hash || len(got.AgreeingSlots) != len(want.AgreeingSlots) {
			t.Fatalf("permutation %d resolved differently", i)
		}
	}
}

func TestFinalizeTieBreakPrefersSmallestHash(t *testing.T) {
	left := Submission{Slot: 0, Records: result("1", "a")}
	right := Submission{Slot: 2, Records: result("2", "a")}
	leftHash, _ := left.Hash()
	rightHash, _ := right.Hash()
	want := leftHash
	if rightHash < leftHash {
		want = rightHash
	}

	for _, order := range [][]Submission{
		{left, {Slot: 1, Records: left.Records}, right, {Slot: 3, Records: right.Records}},
		{right, {Slot: 3, Records: right.Records}, left, {Slot: 1, Records: left.Records}},
	} {
		r := NewResolver()
		submitAll(t, r, order)
		outcome, err := r.Finalize(2)
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if outcome.Hash != want {
			t.Fatalf("expected smallest hash %s, got %s", want, outcome.Hash)
		}
	}
}

func TestFinalizeLargestGroupWins(t *testing.T) {
	r := NewResolver()
	submitAll(t, r, []Submission{
		{Slot: 0, Records: result("1", "a")},
		{Slot: 1, Records: result("1", "a")},
		{Slot: 2, Records: result("2", "a")},
		{Slot: 3, Records: result("2", "a")},
		{Slot: 4, Records: result("2", "a")},
	})
	outcome, err := r.Finalize(2)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(outcome.AgreeingSlots) != 3 || !outcome.Agrees(2) {
		t.Fatalf("expected the three-slot group, got %v", outcome.AgreeingSlots)
	}
}

func TestFinalizeRunsOnce(t *testing.T) {
	r := NewResolver()
	submitAll(t, r, []Submission{{Slot: 0, Records: result("1", "a")}})
	first, err := r.Finalize(1)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := r.Submit(Submission{Slot: 1, Records: result("1", "a")}); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
	second, err := r.Finalize(5)
	if err != nil || second.Hash != first.Hash {
		t.Fatalf("expected cached outcome, got %v %v", second, err)
	}
	if !r.Finalized() {
		t.Fatal("expected finalized")
	}
}

func TestSubmitRejectsDuplicateSlot(t *testing.T) {
	r := NewResolver()
	if _, err := r.Submit(Submission{Slot: 0, Records: result("1", "a")}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := r.Submit(Submission{Slot: 0, Records: result("2", "a")}); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected one submission, got %d", r.Count())
	}
}

func TestSubmitRejectsInvalidSubmissions(t *testing.T) {
	r := NewResolver()
	for _, sub := range []Submission{
		{Slot: 0},
		{Slot: 1, Records: []PlayerResult{{PlayerID: " "}}},
		{Slot: 2, Records: []PlayerResult{{PlayerID: "a", Result: json.RawMessage(`{`)}}},
	} {
		if _, err := r.Submit(sub); !errors.Is(err, ErrInvalidSubmission) {
			t.Fatalf("slot %d: expected ErrInvalidSubmission, got %v", sub.Slot, err)
		}
	}
}

func TestHashIgnoresWhitespaceButNotOrder(t *testing.T) {
	compact := Submission{Records: []PlayerResult{{PlayerID: "a", Result: json.RawMessage(`{"score":1}`)}, {PlayerID: "b"}}}
	spaced := Submission{Records: []PlayerResult{{PlayerID: "a", Result: json.RawMessage("{ \"score\": 1 }")}, {PlayerID: "b"}}}
	reordered := Submission{Records: []PlayerResult{compact.Records[1], compact.Records[0]}}

	h1, _ := compact.Hash()
	h2, _ := spaced.Hash()
	h3, _ := reordered.Hash()
	if h1 != h2 {
		t.Fatal("expected whitespace-insensitive hash")
	}
	if h1 == h3 {
		t.Fatal("expected record order to change the hash")
	}
}
