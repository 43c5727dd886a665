package consensus

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// ErrInvalidSubmission marks a submission that cannot be hashed.
var ErrInvalidSubmission = errors.New("invalid match result submission")

// PlayerResult is one player's outcome as computed by a client simulation.
type PlayerResult struct {
	PlayerID    string          `json:"player_id"`
	Result      json.RawMessage `json:"result,omitempty"`
	RewardItems []string        `json:"reward_items,omitempty"`
}

// Submission is one actor slot's end-of-match report. It is immutable once submitted.
type Submission struct {
	Slot     int             `json:"slot"`
	Records  []PlayerResult  `json:"records"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Record returns the record for playerID.
func (s Submission) Record(playerID string) (PlayerResult, bool) {
	for _, record := range s.Records {
		if record.PlayerID == playerID {
			return record, true
		}
	}
	return PlayerResult{}, false
}

// RecordHash hashes one record. Result JSON is compacted first so whitespace
// differences between clients do not break agreement.
func RecordHash(record PlayerResult) ([]byte, error) {
	playerID := strings.TrimSpace(record.PlayerID)
	if playerID == "" {
		return nil, fmt.Errorf("%w: player id is required", ErrInvalidSubmission)
	}
	var result bytes.Buffer
	if len(record.Result) > 0 {
		if err := json.Compact(&result, record.Result); err != nil {
			return nil, fmt.Errorf("%w: player %s result: %v", ErrInvalidSubmission, playerID, err)
		}
	}
	h := blake3.New(32, nil)
	writeField(h, []byte(playerID))
	writeField(h, result.Bytes())
	for _, item := range record.RewardItems {
		writeField(h, []byte(item))
	}
	return h.Sum(nil), nil
}

// Hash chains every record hash in order into one hex digest.
func (s Submission) Hash() (string, error) {
	if len(s.Records) == 0 {
		return "", fmt.Errorf("%w: no result records", ErrInvalidSubmission)
	}
	chain := make([]byte, 32)
	for _, record := range s.Records {
		recordHash, err := RecordHash(record)
		if err != nil {
			return "", err
		}
		h := blake3.New(32, nil)
		_, _ = h.Write(chain)
		_, _ = h.Write(recordHash)
		chain = h.Sum(chain[:0])
	}
	return hex.EncodeToString(chain), nil
}

type byteWriter interface {
	Write([]byte) (int, error)
}

// writeField length-prefixes value so adjacent fields cannot collide.
func writeField(w byteWriter, value []byte) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(value)))
	_, _ = w.Write(size[:])
	_, _ = w.Write(value)
}
