// Package harness provides scenario-based conformance testing for the
// reconciliation engine.
//
// Scenarios are YAML fixtures pairing a record population with the match
// outcome it must produce:
//
//	name: basic_cascade
//	description: "external id and email matches"
//	run_token: run-basic
//	records:
//	  - id: L-1
//	    source: ledger
//	    name: Acme Widgets
//	    amount: "120.00"
//	    date: 2026-03-10
//	  - id: B-1
//	    source: bank
//	    external_id: L-1
//	    amount: "-120.00"
//	    date: 2026-03-11
//	expect:
//	  - id: B-1
//	    target: L-1
//	    method: external_id
//
// Each scenario runs against a fresh SQLite database in apply mode with a
// fixed run token and clock, so the report and the final record state are
// identical across runs. RunWithGolden snapshots both and compares them
// against testdata/golden via goldie.
package harness
