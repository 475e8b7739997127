package engine

import (
	"fmt"
	"io"
	"sort"

	"github.com/tallyforge/reconcile/internal/match"
	"github.com/tallyforge/reconcile/internal/record"
	"github.com/tallyforge/reconcile/internal/scope"
)

// reviewThreshold splits the report's triage buckets: matches at or above
// it count as automatic, below it as needs-review. The terminal
// classification strategies land below by construction.
const reviewThreshold = 0.5

// SourceStats summarizes one source feed's outcome.
type SourceStats struct {
	Source     record.SourceTag `json:"source"`
	Total      int              `json:"total"`
	PreMatched int              `json:"pre_matched"`
	Matched    int              `json:"matched"`
}

// Report is the sole user-visible output of a run.
type Report struct {
	Token string     `json:"token"`
	Mode  scope.Mode `json:"mode"`

	Sources    []SourceStats  `json:"sources"`
	Strategies map[string]int `json:"strategies"`

	// Triage buckets: matched automatically with high confidence vs
	// matched via fallback/catch-all or wide tolerances (needs review).
	HighConfidence int `json:"high_confidence"`
	NeedsReview    int `json:"needs_review"`

	// Coverage is the fraction of in-scope source records carrying any
	// match state at the end of the run.
	Coverage float64 `json:"coverage"`

	WritesAttempted int `json:"writes_attempted"`
	WritesOK        int `json:"writes_ok"`
	WritesFailed    int `json:"writes_failed"`

	// FailedSources lists feeds whose fetch failed and were skipped.
	FailedSources []string `json:"failed_sources,omitempty"`
}

// addAccepted folds an accepted candidate into the aggregate counts.
func (r *Report) addAccepted(c *match.Candidate) {
	if r.Strategies == nil {
		r.Strategies = make(map[string]int)
	}
	n := 1 + len(c.Group)
	r.Strategies[c.Strategy] += n
	if c.Confidence >= reviewThreshold {
		r.HighConfidence += n
	} else {
		r.NeedsReview += n
	}
}

// finalize computes coverage from the per-source stats.
func (r *Report) finalize() {
	total, covered := 0, 0
	for _, s := range r.Sources {
		total += s.Total
		covered += s.PreMatched + s.Matched
	}
	if total > 0 {
		r.Coverage = float64(covered) / float64(total)
	}
	sort.Slice(r.Sources, func(i, j int) bool { return r.Sources[i].Source < r.Sources[j].Source })
}

// Render writes the human-readable report.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "Run %s (%s)\n", r.Token, r.Mode)
	fmt.Fprintf(w, "Coverage: %.1f%%\n\n", r.Coverage*100)

	fmt.Fprintln(w, "Sources:")
	for _, s := range r.Sources {
		fmt.Fprintf(w, "  %-16s total=%-5d pre-matched=%-5d matched=%d\n",
			s.Source, s.Total, s.PreMatched, s.Matched)
	}
	if len(r.FailedSources) > 0 {
		fmt.Fprintf(w, "  skipped (fetch failed): %v\n", r.FailedSources)
	}

	fmt.Fprintln(w, "\nStrategies:")
	for _, name := range strategyOrder {
		if n, ok := r.Strategies[name]; ok {
			fmt.Fprintf(w, "  %-20s %d\n", name, n)
		}
	}

	fmt.Fprintf(w, "\nHigh confidence: %d\n", r.HighConfidence)
	fmt.Fprintf(w, "Needs review:    %d\n", r.NeedsReview)

	if r.Mode == scope.ModeApply {
		fmt.Fprintf(w, "Writes: %d attempted, %d ok, %d failed\n",
			r.WritesAttempted, r.WritesOK, r.WritesFailed)
	} else {
		fmt.Fprintln(w, "Dry run: no matches persisted.")
	}
}

// strategyOrder fixes the rendering order to cascade priority.
var strategyOrder = []string{
	match.StrategyExternalID,
	match.StrategyEmailAmount,
	match.StrategyEmailDate,
	match.StrategyNameAmount,
	match.StrategyNameDate,
	match.StrategyAmountSum,
	match.StrategyExtractedName,
	match.StrategyFallback,
	match.StrategyCatchAll,
}
