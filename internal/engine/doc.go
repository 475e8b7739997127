// Package engine orchestrates reconciliation runs and owns all writes to
// persistent state.
//
// A run moves through fixed phases: load the scoped collections (sources
// concurrently, with per-source failure isolation), build the target index
// once, execute the strategy cascade passes (narrow, optionally widened,
// then terminal classification), aggregate coverage statistics, and either
// write accepted matches back or stop at the report (dry-run).
//
// The matching phases are sequential over source records: strategies for a
// single record run in strict priority order, and the shared taken-target
// set makes record-level parallelism a determinism hazard, so the loop
// trades parallel speed for reproducible output. Write-back, where records
// are independent, runs with bounded concurrency and per-item isolation.
//
// Partial progress is never rolled back; write-back is idempotent and
// incremental, so a failed run re-converges on the next invocation.
package engine
