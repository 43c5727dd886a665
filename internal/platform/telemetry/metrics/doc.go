// Package metrics provides the operational counters shared by matchwarden binaries.
//
// Counters are exported through the global OpenTelemetry meter provider and also
// keep in-process totals per attribute set, so tests and health endpoints can read
// them without an exporter.
package metrics

// Counter names.
const (
	// CommandsTotal counts RunCommand invocations by command and outcome.
	CommandsTotal = "matchwarden.commands"
	// ConsensusOutcomesTotal counts match finalizations by outcome (resolved|none).
	ConsensusOutcomesTotal = "matchwarden.consensus.outcomes"
	// LoadoutsTotal counts loadout admission decisions (admitted|rejected|discarded).
	LoadoutsTotal = "matchwarden.loadouts"
	// DispatchesTotal counts reward dispatches by outcome (ok|failed).
	DispatchesTotal = "matchwarden.dispatches"
)
