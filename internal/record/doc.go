// Package record provides the canonical transaction record types for the
// reconciliation engine.
//
// This package contains type definitions and small helpers only. All other
// internal packages import record; record imports nothing internal. This
// keeps the data model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Money is always decimal.Decimal, never float64 (rounding breaks
//     tolerance comparisons)
//   - Dates are calendar dates normalized to UTC midnight; settlement drift
//     of several days is expected, not an error
//   - Attrs is an open bag that must survive updates via shallow merge,
//     never replacement
//   - All JSON tags use snake_case
package record
