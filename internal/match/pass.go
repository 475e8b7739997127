package match

import (
	"github.com/shopspring/decimal"

	"github.com/tallyforge/reconcile/internal/identity"
	"github.com/tallyforge/reconcile/internal/record"
	"github.com/tallyforge/reconcile/internal/rules"
)

// Pass carries the shared, single-pass state of one cascade execution over
// one source population. The index and configuration are read-only; only
// the taken/matched sets mutate, and only from the cascade loop.
type Pass struct {
	// Index over the target collection, built once per run and shared
	// across passes.
	Index *Index

	// Sources is the population being matched, in stable input order.
	Sources []*record.Record

	Norm   *identity.Normalizer
	Tables *rules.Tables
	Tol    rules.Tolerances

	// Canonical maps raw counterparty names to their cluster canonical
	// name. Optional; missing entries fall through to the raw name.
	Canonical map[string]string

	// History maps a source tag to its majority historical classification
	// for the source-dominant fallback. Optional.
	History map[record.SourceTag]string

	// TakenTargets holds target ids consumed this run, including targets
	// referenced by previously persisted matches. Shared across passes so
	// a widened pass cannot re-claim a target.
	TakenTargets map[string]bool

	matchedSources map[string]bool
}

func (p *Pass) init() {
	if p.TakenTargets == nil {
		p.TakenTargets = make(map[string]bool)
	}
	if p.matchedSources == nil {
		p.matchedSources = make(map[string]bool)
	}
}

// SourceDone reports whether a source record is already spoken for, either
// by persisted match state or by an acceptance earlier in this run.
func (p *Pass) SourceDone(src *record.Record) bool {
	return src.Matched() || p.matchedSources[src.ID]
}

// taken reports whether a target has been consumed.
func (p *Pass) taken(t *record.Record) bool {
	return p.TakenTargets[t.ID]
}

// nameKey resolves a raw name to its comparison key, routing through the
// canonical cluster mapping when one exists.
func (p *Pass) nameKey(raw string) string {
	if canonical, ok := p.Canonical[raw]; ok {
		raw = canonical
	}
	return p.Norm.CompareKey(raw)
}

// amountTolerance is max(fixed floor, percent of the target amount).
func (p *Pass) amountTolerance(target decimal.Decimal) decimal.Decimal {
	pct := target.Abs().Mul(decimal.NewFromFloat(p.Tol.AmountPercent))
	if pct.GreaterThan(p.Tol.AmountFloor) {
		return pct
	}
	return p.Tol.AmountFloor
}

// unmatchedSiblings returns the source records from the same feed, not yet
// matched, dated within ±days of src. Includes src itself. Order follows
// Sources order for determinism.
func (p *Pass) unmatchedSiblings(src *record.Record, days int) []*record.Record {
	var out []*record.Record
	for _, s := range p.Sources {
		if s.Source != src.Source || s.Date.IsZero() {
			continue
		}
		if s.ID != src.ID && p.SourceDone(s) {
			continue
		}
		if record.DaysBetween(src.Date, s.Date) > days {
			continue
		}
		out = append(out, s)
	}
	return out
}

// amountDiff is the magnitude difference of two amounts. Sign conventions
// differ per feed (bank outflows are negative), so comparison happens on
// magnitudes.
func amountDiff(a, b decimal.Decimal) decimal.Decimal {
	return a.Abs().Sub(b.Abs()).Abs()
}

// dateDiffDays is the tie-break date distance; zero when either side has
// no usable date.
func dateDiffDays(a, b *record.Record) int {
	if a.Date.IsZero() || b.Date.IsZero() {
		return 0
	}
	return record.DaysBetween(a.Date, b.Date)
}
