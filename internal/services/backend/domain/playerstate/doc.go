// Package playerstate models the backend-owned, versioned bag of serialized model
// values for one player.
//
// Commands never touch State directly. They operate on a View, a materialized copy
// that records which top-level keys changed; only that Delta is persisted. A key set
// to a value byte-identical to its stored value is not a change.
package playerstate
