// Package logicv1 defines the logic.v1.LogicService contract shared by the backend and
// the relay. Messages travel as JSON through the codec registered by internal/platform/grpc.
package logicv1

import (
	"encoding/json"
)

// Metadata headers understood by LogicService.
const (
	// PlayerTokenHeader carries the caller's player token on the public listener, and the
	// impersonated player's token on the trusted listener.
	PlayerTokenHeader = "x-matchwarden-player-token"
	// ImpersonatedPlayerHeader names the player a trusted caller acts for.
	ImpersonatedPlayerHeader = "x-matchwarden-impersonated-player"
)

// RunLogicRequest asks the backend to execute one command for one player.
type RunLogicRequest struct {
	PlayerID                  string          `json:"player_id"`
	CommandType               string          `json:"command_type"`
	Fields                    json.RawMessage `json:"fields,omitempty"`
	Timestamp                 int64           `json:"timestamp"`
	ClientVersion             int64           `json:"client_version"`
	ConfigVersionSeenByClient int64           `json:"config_version_seen_by_client"`
	SharedSecret              string          `json:"shared_secret,omitempty"`
	IdempotencyKey            string          `json:"idempotency_key,omitempty"`
}

// GetPlayerId returns the target player id.
func (r *RunLogicRequest) GetPlayerId() string {
	if r == nil {
		return ""
	}
	return r.PlayerID
}

// RunLogicResponse carries command output. ConfigVersion is set only when the server
// config is newer than the version the client reported.
type RunLogicResponse struct {
	CommandType   string          `json:"command_type"`
	ResultFields  json.RawMessage `json:"result_fields,omitempty"`
	ConfigVersion int64           `json:"config_version,omitempty"`
}

// GetInventoryRequest reads a player's canonical inventory.
type GetInventoryRequest struct {
	PlayerID     string `json:"player_id"`
	SharedSecret string `json:"shared_secret,omitempty"`
}

// GetPlayerId returns the target player id.
func (r *GetInventoryRequest) GetPlayerId() string {
	if r == nil {
		return ""
	}
	return r.PlayerID
}

// GetInventoryResponse lists the equipment hashes a player owns.
type GetInventoryResponse struct {
	PlayerID   string   `json:"player_id"`
	OwnedItems []string `json:"owned_items"`
}
