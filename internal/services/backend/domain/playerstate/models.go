package playerstate

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Inventory is the canonical record of owned equipment hashes.
type Inventory struct {
	OwnedItems []string `json:"owned_items"`
}

// Owns reports whether item is in the inventory.
func (i Inventory) Owns(item string) bool {
	for _, owned := range i.OwnedItems {
		if owned == item {
			return true
		}
	}
	return false
}

// Add merges items into the inventory, keeping it sorted and unique.
func (i *Inventory) Add(items ...string) {
	seen := make(map[string]struct{}, len(i.OwnedItems)+len(items))
	merged := make([]string, 0, len(i.OwnedItems)+len(items))
	for _, item := range append(append([]string{}, i.OwnedItems...), items...) {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		merged = append(merged, item)
	}
	sort.Strings(merged)
	i.OwnedItems = merged
}

// Loadout is the equipment a player last equipped.
type Loadout struct {
	Items []string `json:"items"`
}

// MatchRecord stores one accepted match outcome.
type MatchRecord struct {
	ResultHash  string          `json:"result_hash,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	RewardItems []string        `json:"reward_items,omitempty"`
	RecordedAt  int64           `json:"recorded_at"`
}

// MatchHistory maps match ids to recorded outcomes.
type MatchHistory struct {
	Matches map[string]MatchRecord `json:"matches"`
}

// LoadInventory decodes the inventory key, returning an empty inventory when unset.
func LoadInventory(v *View) (Inventory, error) {
	var inv Inventory
	if err := load(v, KeyInventory, &inv); err != nil {
		return Inventory{}, err
	}
	return inv, nil
}

// StoreInventory encodes inv into the inventory key.
func StoreInventory(v *View, inv Inventory) error {
	return store(v, KeyInventory, inv)
}

// LoadLoadout decodes the loadout key.
func LoadLoadout(v *View) (Loadout, error) {
	var loadout Loadout
	if err := load(v, KeyLoadout, &loadout); err != nil {
		return Loadout{}, err
	}
	return loadout, nil
}

// StoreLoadout encodes loadout into the loadout key.
func StoreLoadout(v *View, loadout Loadout) error {
	return store(v, KeyLoadout, loadout)
}

// LoadMatchHistory decodes the match history key.
func LoadMatchHistory(v *View) (MatchHistory, error) {
	var history MatchHistory
	if err := load(v, KeyMatchHistory, &history); err != nil {
		return MatchHistory{}, err
	}
	if history.Matches == nil {
		history.Matches = map[string]MatchRecord{}
	}
	return history, nil
}

// StoreMatchHistory encodes history into the match history key.
func StoreMatchHistory(v *View, history MatchHistory) error {
	return store(v, KeyMatchHistory, history)
}

func load(v *View, key string, target any) error {
	raw, ok := v.Get(key)
	if !ok || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func store(v *View, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	v.Set(key, raw)
	return nil
}
