// Package consensus resolves one canonical match result from independently
// computed client submissions.
//
// Each client runs the same deterministic simulation and reports per-player
// result records. Two submissions agree when the chained hash of their records
// matches exactly. Finalize accepts a result only when at least minimumAgreeing
// submissions share one hash. When several hash groups qualify, the largest
// wins and equal sizes fall back to the lexicographically smallest hash, so the
// outcome never depends on arrival order.
package consensus
