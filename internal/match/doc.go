// Package match implements the multi-index candidate retrieval and the
// ordered strategy cascade that links source transaction records to target
// records.
//
// A Cascade runs strategies in fixed priority order per source record;
// the first strategy to accept wins (an explicit speed/simplicity tradeoff
// over globally optimal assignment). Within a strategy, ties resolve to the
// candidate with the smallest combined amount and date distance, then the
// smallest target id, so runs are deterministic.
//
// INVARIANTS:
//   - strategy order NEVER changes after construction
//   - a target record accepted for one source record is never handed to
//     another source record in the same run
//   - strategies read the shared Index but mutate nothing outside the Pass
package match
