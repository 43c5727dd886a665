package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/services/backend/domain/playerstate"
)

// Built-in command types.
const (
	TypeEquipLoadout      Type = "equip_loadout"
	TypeGrantItems        Type = "grant_items"
	TypeRecordMatchResult Type = "record_match_result"
)

// RegisterBuiltins registers the commands every backend serves.
func RegisterBuiltins(r *Registry) error {
	defs := []Definition{
		{Type: TypeEquipLoadout, Access: AccessPlayer, Mode: ModeNormal, Decode: DecodeJSON[EquipLoadout]()},
		{Type: TypeGrantItems, Access: AccessService, Mode: ModeNormal, Decode: DecodeJSON[GrantItems]()},
		{Type: TypeRecordMatchResult, Access: AccessService, Mode: ModeSimulationOriginated, Decode: DecodeJSON[RecordMatchResult]()},
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return fmt.Errorf("register %s: %w", def.Type, err)
		}
	}
	return nil
}

// EquipLoadout replaces the player's loadout. Every item must already be owned.
type EquipLoadout struct {
	Items []string `json:"items"`
}

// Validate checks item ids are present and unique.
func (c *EquipLoadout) Validate() error {
	items, err := normalizeItems(c.Items)
	if err != nil {
		return err
	}
	c.Items = items
	return nil
}

// Execute stores the loadout when the inventory covers it.
func (c *EquipLoadout) Execute(_ context.Context, exec ExecContext) (json.RawMessage, error) {
	inv, err := playerstate.LoadInventory(exec.State)
	if err != nil {
		return nil, err
	}
	var unowned []string
	for _, item := range c.Items {
		if !inv.Owns(item) {
			unowned = append(unowned, item)
		}
	}
	if len(unowned) > 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeValidationFailed, "loadout contains unowned items", map[string]string{
			"unowned_items": strings.Join(unowned, ","),
		})
	}
	if err := playerstate.StoreLoadout(exec.State, playerstate.Loadout{Items: c.Items}); err != nil {
		return nil, err
	}
	return json.Marshal(playerstate.Loadout{Items: c.Items})
}

// GrantItems adds items to the player's inventory.
type GrantItems struct {
	Items []string `json:"items"`
}

// Validate checks at least one item is granted.
func (c *GrantItems) Validate() error {
	items, err := normalizeItems(c.Items)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return apperrors.New(apperrors.CodeValidationFailed, "grant requires at least one item")
	}
	c.Items = items
	return nil
}

// Execute merges the granted items into the inventory.
func (c *GrantItems) Execute(_ context.Context, exec ExecContext) (json.RawMessage, error) {
	inv, err := playerstate.LoadInventory(exec.State)
	if err != nil {
		return nil, err
	}
	inv.Add(c.Items...)
	if err := playerstate.StoreInventory(exec.State, inv); err != nil {
		return nil, err
	}
	return json.Marshal(inv)
}

// RecordMatchResult stores a consensus-accepted match outcome and grants its rewards.
// Recording the same match twice is a no-op, so dispatch retries cannot double-grant.
type RecordMatchResult struct {
	MatchID     string          `json:"match_id"`
	ResultHash  string          `json:"result_hash,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	RewardItems []string        `json:"reward_items,omitempty"`
}

// Validate checks the match id and reward ids. A reward named twice is granted once.
func (c *RecordMatchResult) Validate() error {
	c.MatchID = strings.TrimSpace(c.MatchID)
	if c.MatchID == "" {
		return apperrors.New(apperrors.CodeValidationFailed, "match id is required")
	}
	items, err := dedupeItems(c.RewardItems)
	if err != nil {
		return err
	}
	c.RewardItems = items
	return nil
}

type recordMatchResultResponse struct {
	MatchID         string `json:"match_id"`
	AlreadyRecorded bool   `json:"already_recorded"`
}

// Execute records the match once.
func (c *RecordMatchResult) Execute(_ context.Context, exec ExecContext) (json.RawMessage, error) {
	history, err := playerstate.LoadMatchHistory(exec.State)
	if err != nil {
		return nil, err
	}
	if _, ok := history.Matches[c.MatchID]; ok {
		return json.Marshal(recordMatchResultResponse{MatchID: c.MatchID, AlreadyRecorded: true})
	}
	var recordedAt int64
	if exec.Now != nil {
		recordedAt = exec.Now().UTC().UnixMilli()
	}
	history.Matches[c.MatchID] = playerstate.MatchRecord{
		ResultHash:  c.ResultHash,
		Result:      c.Result,
		RewardItems: c.RewardItems,
		RecordedAt:  recordedAt,
	}
	if err := playerstate.StoreMatchHistory(exec.State, history); err != nil {
		return nil, err
	}
	if len(c.RewardItems) > 0 {
		inv, err := playerstate.LoadInventory(exec.State)
		if err != nil {
			return nil, err
		}
		inv.Add(c.RewardItems...)
		if err := playerstate.StoreInventory(exec.State, inv); err != nil {
			return nil, err
		}
	}
	return json.Marshal(recordMatchResultResponse{MatchID: c.MatchID})
}

// dedupeItems trims ids and drops repeats, keeping first-seen order.
func dedupeItems(items []string) ([]string, error) {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, apperrors.New(apperrors.CodeValidationFailed, "item id must not be empty")
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}

func normalizeItems(items []string) ([]string, error) {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, apperrors.New(apperrors.CodeValidationFailed, "item id must not be empty")
		}
		if _, ok := seen[item]; ok {
			return nil, apperrors.New(apperrors.CodeValidationFailed, fmt.Sprintf("duplicate item id %q", item))
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}
