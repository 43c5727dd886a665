package transport

import (
	"encoding/json"

	"github.com/louisbranch/matchwarden/internal/services/relay/consensus"
	"github.com/louisbranch/matchwarden/internal/services/relay/match"
)

// Client message types.
const (
	MessageJoin    = "join"
	MessageLoadout = "loadout"
	MessageResult  = "result"
)

// Server message types.
const (
	MessageJoined    = "joined"
	MessageAdmitted  = "admitted"
	MessageRejected  = "rejected"
	MessageSubmitted = "submitted"
	MessageFinalized = "finalized"
	MessageError     = "error"
)

// ClientMessage is a frame sent by a match participant.
type ClientMessage struct {
	Type      string                   `json:"type"`
	Slot      int                      `json:"slot"`
	PlayerID  string                   `json:"player_id,omitempty"`
	AuthToken string                   `json:"auth_token,omitempty"`
	Items     []string                 `json:"items,omitempty"`
	Records   []consensus.PlayerResult `json:"records,omitempty"`
	Metadata  json.RawMessage          `json:"metadata,omitempty"`
}

// ServerMessage is a frame pushed to participants.
type ServerMessage struct {
	Type            string         `json:"type"`
	MatchID         string         `json:"match_id,omitempty"`
	Slot            *int           `json:"slot,omitempty"`
	PlayerID        string         `json:"player_id,omitempty"`
	Items           []string       `json:"items,omitempty"`
	UnownedItems    []string       `json:"unowned_items,omitempty"`
	Hash            string         `json:"hash,omitempty"`
	MinimumAgreeing int            `json:"minimum_agreeing,omitempty"`
	Outcome         *match.Outcome `json:"outcome,omitempty"`
	Code            string         `json:"code,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func slotRef(slot int) *int {
	return &slot
}
