// Package match owns per-match relay state.
//
// A Session is the explicit context object for one running match: participant
// identities, the loadout validator, the result resolver and the consensus
// policy. Sessions live in a Registry keyed by match id so many matches can
// share one relay process without global state.
package match
