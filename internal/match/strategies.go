package match

import (
	"github.com/shopspring/decimal"

	"github.com/tallyforge/reconcile/internal/record"
)

// Intrinsic confidence policy per strategy. Email-keyed strategies score
// above name-keyed ones because names collide more often; date-proximity
// confidences decay toward half their base as distance approaches the
// window edge.
const (
	confExternalID      = 1.0
	confEmailAmount     = 0.90
	confEmailAmountWide = 0.87
	confEmailDate       = 0.75
	confNameAmount      = 0.80
	confNameAmountWide  = 0.77
	confNameDate        = 0.65
	confAmountSum       = 0.70
	confExtractAmount   = 0.60
	confExtractDate     = 0.50
	confFallback        = 0.30
	confCatchAll        = 0.10
)

// Strategy attempts to produce at most one candidate for a source record.
// Implementations must not mutate the pass; the cascade loop owns the
// taken/matched bookkeeping.
type Strategy interface {
	Name() string
	Attempt(p *Pass, src *record.Record) *Candidate
}

// CoreStrategies returns the transaction-level strategies in priority
// order. These require actual evidence linking source and target.
func CoreStrategies() []Strategy {
	return []Strategy{
		externalIDStrategy{},
		emailAmountStrategy{},
		emailDateStrategy{},
		nameAmountStrategy{},
		nameDateStrategy{},
		amountSumStrategy{},
		extractedNameStrategy{},
	}
}

// TerminalStrategies returns the classification fallbacks that guarantee
// coverage once transaction-level evidence is exhausted. Their output is
// explicitly low-confidence and flagged for review.
func TerminalStrategies() []Strategy {
	return []Strategy{
		sourceFallbackStrategy{},
		catchAllStrategy{},
	}
}

// externalIDStrategy: the source record names a target id outright.
type externalIDStrategy struct{}

func (externalIDStrategy) Name() string { return StrategyExternalID }

func (externalIDStrategy) Attempt(p *Pass, src *record.Record) *Candidate {
	if !src.HasExternalID() {
		return nil
	}
	t, ok := p.Index.ByID(src.ExternalID)
	if !ok || p.taken(t) {
		return nil
	}
	return &Candidate{
		Source:       src,
		Target:       t,
		Strategy:     StrategyExternalID,
		Confidence:   confExternalID,
		AmountDiff:   amountDiff(src.Amount, t.Amount),
		DateDiffDays: dateDiffDays(src, t),
	}
}

// emailAmountStrategy: same email, closest amount within tolerance.
type emailAmountStrategy struct{}

func (emailAmountStrategy) Name() string { return StrategyEmailAmount }

func (emailAmountStrategy) Attempt(p *Pass, src *record.Record) *Candidate {
	if !src.HasEmail() {
		return nil
	}
	return closestAmount(p, src, p.Index.ByEmail(src.Email), StrategyEmailAmount,
		confEmailAmount, confEmailAmountWide)
}

// emailDateStrategy: same email, nearest date within the maximum window,
// no amount constraint.
type emailDateStrategy struct{}

func (emailDateStrategy) Name() string { return StrategyEmailDate }

func (emailDateStrategy) Attempt(p *Pass, src *record.Record) *Candidate {
	if !src.HasEmail() {
		return nil
	}
	return nearestDate(p, src, p.Index.ByEmail(src.Email), StrategyEmailDate, confEmailDate)
}

// nameAmountStrategy: same normalized name, closest amount within
// tolerance.
type nameAmountStrategy struct{}

func (nameAmountStrategy) Name() string { return StrategyNameAmount }

func (nameAmountStrategy) Attempt(p *Pass, src *record.Record) *Candidate {
	if !src.HasName() {
		return nil
	}
	key := p.nameKey(src.Name)
	if key == "" {
		return nil
	}
	return closestAmount(p, src, p.Index.ByNameKey(key), StrategyNameAmount,
		confNameAmount, confNameAmountWide)
}

// nameDateStrategy: same normalized name, nearest date.
type nameDateStrategy struct{}

func (nameDateStrategy) Name() string { return StrategyNameDate }

func (nameDateStrategy) Attempt(p *Pass, src *record.Record) *Candidate {
	if !src.HasName() {
		return nil
	}
	key := p.nameKey(src.Name)
	if key == "" {
		return nil
	}
	return nearestDate(p, src, p.Index.ByNameKey(key), StrategyNameDate, confNameDate)
}

// amountSumStrategy: payout aggregation. Several transactions from one
// feed inside a date window settle as one lump target; all of them
// attribute to that target when their sum matches its amount.
type amountSumStrategy struct{}

func (amountSumStrategy) Name() string { return StrategyAmountSum }

func (amountSumStrategy) Attempt(p *Pass, src *record.Record) *Candidate {
	if src.Date.IsZero() {
		return nil
	}
	siblings := p.unmatchedSiblings(src, p.Tol.SumWindowDays)
	if len(siblings) < 2 {
		return nil
	}

	total := decimal.Zero
	for _, s := range siblings {
		total = total.Add(s.Amount.Abs())
	}

	var best *Candidate
	for _, t := range p.Index.ByAmountNear(record.AmountBucket(total)) {
		if p.taken(t) {
			continue
		}
		if !t.Date.IsZero() && record.DaysBetween(src.Date, t.Date) > p.Tol.SumWindowDays {
			continue
		}
		diff := total.Sub(t.Amount.Abs()).Abs()
		if diff.GreaterThan(p.amountTolerance(t.Amount)) {
			continue
		}
		cand := &Candidate{
			Source:       src,
			Target:       t,
			Strategy:     StrategyAmountSum,
			Confidence:   confAmountSum,
			AmountDiff:   diff,
			DateDiffDays: dateDiffDays(src, t),
		}
		if cand.better(best) {
			best = cand
		}
	}
	if best == nil {
		return nil
	}
	for _, s := range siblings {
		if s.ID != src.ID {
			best.Group = append(best.Group, s)
		}
	}
	return best
}

// extractedNameStrategy: pull a probable counterparty name out of free
// text, then re-enter the name-keyed strategies with it at reduced
// confidence.
type extractedNameStrategy struct{}

func (extractedNameStrategy) Name() string { return StrategyExtractedName }

func (extractedNameStrategy) Attempt(p *Pass, src *record.Record) *Candidate {
	if !src.HasDescription() {
		return nil
	}
	for i := range p.Tables.ExtractPatterns {
		name := p.Tables.ExtractPatterns[i].Match(src.Description)
		if name == "" {
			continue
		}
		key := p.nameKey(p.Norm.Normalize(name))
		if key == "" {
			continue
		}
		targets := p.Index.ByNameKey(key)
		if cand := closestAmount(p, src, targets, StrategyExtractedName,
			confExtractAmount, confExtractAmount); cand != nil {
			return cand
		}
		if cand := nearestDate(p, src, targets, StrategyExtractedName, confExtractDate); cand != nil {
			return cand
		}
	}
	return nil
}

// sourceFallbackStrategy: majority-vote classification for records from a
// known feed with no transaction-level match.
type sourceFallbackStrategy struct{}

func (sourceFallbackStrategy) Name() string { return StrategyFallback }

func (sourceFallbackStrategy) Attempt(p *Pass, src *record.Record) *Candidate {
	cls, ok := p.History[src.Source]
	if !ok || cls == "" {
		return nil
	}
	return &Candidate{
		Source:         src,
		Classification: cls,
		Strategy:       StrategyFallback,
		Confidence:     confFallback,
	}
}

// catchAllStrategy: terminal. Everything still unmatched gets the default
// classification so a run always converges to full coverage.
type catchAllStrategy struct{}

func (catchAllStrategy) Name() string { return StrategyCatchAll }

func (catchAllStrategy) Attempt(p *Pass, src *record.Record) *Candidate {
	return &Candidate{
		Source:         src,
		Classification: p.Tol.DefaultClassification,
		Strategy:       StrategyCatchAll,
		Confidence:     confCatchAll,
	}
}

// closestAmount picks the not-taken target with the smallest amount
// difference within tolerance. Targets dated outside DateWindowDays are
// excluded when both records carry a date. Confidence drops to wideConf
// when the match needed more room than the fixed floor.
func closestAmount(p *Pass, src *record.Record, targets []*record.Record, strategy string, conf, wideConf float64) *Candidate {
	window := p.Tol.DateWindowDays
	var best *Candidate
	for _, t := range targets {
		if p.taken(t) {
			continue
		}
		if window > 0 && !src.Date.IsZero() && !t.Date.IsZero() &&
			record.DaysBetween(src.Date, t.Date) > window {
			continue
		}
		diff := amountDiff(src.Amount, t.Amount)
		if diff.GreaterThan(p.amountTolerance(t.Amount)) {
			continue
		}
		c := conf
		if diff.GreaterThan(p.Tol.AmountFloor) {
			c = wideConf
		}
		cand := &Candidate{
			Source:       src,
			Target:       t,
			Strategy:     strategy,
			Confidence:   c,
			AmountDiff:   diff,
			DateDiffDays: dateDiffDays(src, t),
		}
		if cand.better(best) {
			best = cand
		}
	}
	return best
}

// nearestDate picks the not-taken target with the nearest date inside the
// maximum window. Confidence decays linearly toward half the base at the
// window edge.
func nearestDate(p *Pass, src *record.Record, targets []*record.Record, strategy string, baseConf float64) *Candidate {
	if src.Date.IsZero() {
		return nil
	}
	window := p.Tol.MaxDateWindowDays
	if window <= 0 {
		return nil
	}
	var best *Candidate
	for _, t := range targets {
		if p.taken(t) || t.Date.IsZero() {
			continue
		}
		days := record.DaysBetween(src.Date, t.Date)
		if days > window {
			continue
		}
		cand := &Candidate{
			Source:       src,
			Target:       t,
			Strategy:     strategy,
			Confidence:   baseConf * (1 - 0.5*float64(days)/float64(window)),
			AmountDiff:   amountDiff(src.Amount, t.Amount),
			DateDiffDays: days,
		}
		if cand.better(best) {
			best = cand
		}
	}
	return best
}
