// Package scope defines the bounded snapshot a reconciliation run operates
// on: an optional date range, an optional source subset, and the dry-run vs
// apply mode. The store compiles a validated Scope into SQL; nothing else
// interprets it.
package scope

import (
	"fmt"
	"time"

	"github.com/tallyforge/reconcile/internal/record"
)

// Mode selects whether accepted matches are persisted.
//
// Dry-run is a first-class mode, not an omitted write call: the engine
// computes and reports identical results in both modes and only the
// write-back phase differs.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeApply  Mode = "apply"
)

// Valid reports whether the mode is one of the allowed values.
func (m Mode) Valid() bool {
	return m == ModeDryRun || m == ModeApply
}

// Scope bounds one run.
type Scope struct {
	// From/To bound record dates, inclusive. Zero values mean unbounded.
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`

	// Sources restricts the run to a subset of source feeds. Empty means
	// all non-ledger sources.
	Sources []record.SourceTag `json:"sources,omitempty"`

	Mode Mode `json:"mode"`
}

// Validate checks internal consistency. A Scope must be validated before
// it reaches the store.
func (s Scope) Validate() error {
	if !s.Mode.Valid() {
		return fmt.Errorf("invalid mode %q: must be %q or %q", s.Mode, ModeDryRun, ModeApply)
	}
	if !s.From.IsZero() && !s.To.IsZero() && s.To.Before(s.From) {
		return fmt.Errorf("invalid date range: to (%s) before from (%s)",
			s.To.Format("2006-01-02"), s.From.Format("2006-01-02"))
	}
	for _, tag := range s.Sources {
		if tag == "" {
			return fmt.Errorf("invalid source filter: empty source tag")
		}
	}
	return nil
}

// Includes reports whether a record's date falls inside the scope's range.
// Records without a date are always in scope; date filtering is best-effort.
func (s Scope) Includes(date time.Time) bool {
	if date.IsZero() {
		return true
	}
	d := record.Day(date)
	if !s.From.IsZero() && d.Before(record.Day(s.From)) {
		return false
	}
	if !s.To.IsZero() && d.After(record.Day(s.To)) {
		return false
	}
	return true
}
