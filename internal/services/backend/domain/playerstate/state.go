package playerstate

import (
	"bytes"
	"sort"
	"strings"
)

// Model keys persisted for every player.
const (
	KeyInventory    = "inventory"
	KeyLoadout      = "loadout"
	KeyMatchHistory = "match_history"
)

// State is the persisted record for one player.
type State struct {
	PlayerID                  string
	Entries                   map[string][]byte
	LastCommandTimestamp      int64
	ConfigVersionSeenByClient int64
}

// New returns an empty state for playerID.
func New(playerID string) State {
	return State{PlayerID: playerID, Entries: map[string][]byte{}}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		PlayerID:                  s.PlayerID,
		Entries:                   make(map[string][]byte, len(s.Entries)),
		LastCommandTimestamp:      s.LastCommandTimestamp,
		ConfigVersionSeenByClient: s.ConfigVersionSeenByClient,
	}
	for key, value := range s.Entries {
		out.Entries[key] = bytes.Clone(value)
	}
	return out
}

// Apply folds delta into a copy of s. Keys absent from the delta are untouched.
func (s State) Apply(delta Delta) State {
	out := s.Clone()
	for key, value := range delta.Changed {
		out.Entries[key] = bytes.Clone(value)
	}
	for _, key := range delta.Deleted {
		delete(out.Entries, key)
	}
	if delta.LastCommandTimestamp != nil {
		out.LastCommandTimestamp = *delta.LastCommandTimestamp
	}
	if delta.ConfigVersionSeenByClient != nil {
		out.ConfigVersionSeenByClient = *delta.ConfigVersionSeenByClient
	}
	return out
}

// Delta carries only what a command changed. Nil metadata pointers mean "unchanged".
type Delta struct {
	Changed                   map[string][]byte
	Deleted                   []string
	LastCommandTimestamp      *int64
	ConfigVersionSeenByClient *int64
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return len(d.Changed) == 0 && len(d.Deleted) == 0 &&
		d.LastCommandTimestamp == nil && d.ConfigVersionSeenByClient == nil
}

// Keys returns the sorted set of model keys the delta touches.
func (d Delta) Keys() []string {
	keys := make([]string, 0, len(d.Changed)+len(d.Deleted))
	for key := range d.Changed {
		keys = append(keys, key)
	}
	keys = append(keys, d.Deleted...)
	sort.Strings(keys)
	return keys
}

// View is a mutable, materialized copy of a State that tracks changed keys.
type View struct {
	base    State
	current map[string][]byte
	touched map[string]struct{}
}

// NewView materializes state for a command.
func NewView(state State) *View {
	base := state.Clone()
	current := make(map[string][]byte, len(base.Entries))
	for key, value := range base.Entries {
		current[key] = bytes.Clone(value)
	}
	return &View{base: base, current: current, touched: map[string]struct{}{}}
}

// PlayerID returns the owner of the view.
func (v *View) PlayerID() string {
	return v.base.PlayerID
}

// Get returns a copy of the value stored at key.
func (v *View) Get(key string) ([]byte, bool) {
	value, ok := v.current[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(value), true
}

// Set stores value at key.
func (v *View) Set(key string, value []byte) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	v.current[key] = bytes.Clone(value)
	v.touched[key] = struct{}{}
}

// Delete removes key.
func (v *View) Delete(key string) {
	delete(v.current, key)
	v.touched[key] = struct{}{}
}

// Keys returns the sorted keys currently present.
func (v *View) Keys() []string {
	keys := make([]string, 0, len(v.current))
	for key := range v.current {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Delta returns the keys whose values differ from the materialized state.
func (v *View) Delta() Delta {
	delta := Delta{}
	for key := range v.touched {
		value, present := v.current[key]
		original, existed := v.base.Entries[key]
		switch {
		case present && (!existed || !bytes.Equal(value, original)):
			if delta.Changed == nil {
				delta.Changed = map[string][]byte{}
			}
			delta.Changed[key] = bytes.Clone(value)
		case !present && existed:
			delta.Deleted = append(delta.Deleted, key)
		}
	}
	sort.Strings(delta.Deleted)
	return delta
}
