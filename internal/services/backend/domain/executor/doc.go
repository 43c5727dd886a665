// Package executor runs player commands authoritatively.
//
// RunCommand serializes execution per player through a Locker, checks caller
// privilege, rejects stale or outdated normal-mode requests, executes against a
// materialized view of player state, and persists only the keys that changed.
// Every invocation, including rejected ones, produces exactly one metrics increment
// and one audit event.
package executor
