package match

import (
	"github.com/shopspring/decimal"

	"github.com/tallyforge/reconcile/internal/record"
)

// Strategy tags recorded in match state. Ordered here by cascade priority.
const (
	StrategyExternalID    = "external_id"
	StrategyEmailAmount   = "email_amount"
	StrategyEmailDate     = "email_date"
	StrategyNameAmount    = "name_amount"
	StrategyNameDate      = "name_date"
	StrategyAmountSum     = "amount_sum_window"
	StrategyExtractedName = "extracted_name"
	StrategyFallback      = "source_fallback"
	StrategyCatchAll      = "catch_all"
)

// Candidate is an ephemeral pairing of a source record with a target,
// produced by one strategy. Only the accepted winner is ever converted to
// persistent match state.
type Candidate struct {
	Source *record.Record
	Target *record.Record

	// Classification replaces Target for the fallback and catch-all
	// strategies, which assign a label rather than a target record.
	Classification string

	Strategy   string
	Confidence float64

	AmountDiff   decimal.Decimal
	DateDiffDays int

	// Group holds additional source records consumed by the same
	// acceptance (payout aggregation: several transactions settling as
	// one deposit all attribute to the same target).
	Group []*record.Record
}

// TargetID returns the persisted link value: the matched target's id, or
// the assigned classification for record-less strategies.
func (c *Candidate) TargetID() string {
	if c.Target != nil {
		return c.Target.ID
	}
	return c.Classification
}

// tieScore combines amount and date distance; smaller is a closer match.
func (c *Candidate) tieScore() float64 {
	return c.AmountDiff.InexactFloat64() + float64(c.DateDiffDays)
}

// better reports whether c beats other under the deterministic tie-break:
// smallest combined distance, then smallest target id.
func (c *Candidate) better(other *Candidate) bool {
	if other == nil {
		return true
	}
	a, b := c.tieScore(), other.tieScore()
	if a != b {
		return a < b
	}
	return c.TargetID() < other.TargetID()
}
