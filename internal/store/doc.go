// Package store provides durable storage for transaction records and run
// history. Uses SQLite with WAL mode for concurrent read access.
//
// The engine touches the store through exactly two operations: ranged,
// paginated reads by source tag, and merge-style partial updates by record
// id. Any backend supporting those two (plus equality/range lookups on the
// indexed fields) could replace this package; nothing outside it speaks SQL.
package store
