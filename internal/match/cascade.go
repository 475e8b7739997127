package match

import (
	"log/slog"
)

// Cascade runs an ordered set of strategies over a source population.
// First-match-wins across strategies: a source record leaves consideration
// as soon as any strategy accepts a candidate for it.
type Cascade struct {
	strategies []Strategy
}

// NewCascade creates a cascade over the given strategies. The slice is
// copied; order never changes after construction.
func NewCascade(strategies []Strategy) *Cascade {
	s := make([]Strategy, len(strategies))
	copy(s, strategies)
	return &Cascade{strategies: s}
}

// Run executes the cascade for every source record in the pass and returns
// the accepted candidates in source order.
//
// Bookkeeping invariants enforced here, not in strategies:
//   - already-matched sources (persisted or earlier in this run) are skipped
//   - an accepted target is marked taken before the next source record runs
//   - grouped co-sources of a payout acceptance are marked matched
func (c *Cascade) Run(p *Pass) []*Candidate {
	p.init()

	var accepted []*Candidate
	for _, src := range p.Sources {
		if p.SourceDone(src) {
			continue
		}
		for _, s := range c.strategies {
			cand := s.Attempt(p, src)
			if cand == nil {
				continue
			}
			accepted = append(accepted, cand)
			p.matchedSources[src.ID] = true
			if cand.Target != nil {
				p.TakenTargets[cand.Target.ID] = true
			}
			for _, g := range cand.Group {
				p.matchedSources[g.ID] = true
			}
			slog.Debug("candidate accepted",
				"source", src.ID,
				"strategy", cand.Strategy,
				"target", cand.TargetID(),
				"confidence", cand.Confidence,
			)
			break
		}
	}
	return accepted
}
