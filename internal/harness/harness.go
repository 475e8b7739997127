package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tallyforge/reconcile/internal/engine"
	"github.com/tallyforge/reconcile/internal/record"
	"github.com/tallyforge/reconcile/internal/rules"
	"github.com/tallyforge/reconcile/internal/scope"
	"github.com/tallyforge/reconcile/internal/store"
	"github.com/tallyforge/reconcile/internal/testutil"
)

// harnessEpoch pins the engine clock for every scenario run.
var harnessEpoch = time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)

// MatchLine is the final match state of one source record, in snapshot
// form. Timestamps are omitted; the fixed clock makes them constant
// anyway.
type MatchLine struct {
	Source        string  `json:"source"`
	ID            string  `json:"id"`
	Target        string  `json:"target"`
	Method        string  `json:"method"`
	Confidence    float64 `json:"confidence"`
	CanonicalName string  `json:"canonical_name,omitempty"`
}

// Result holds a scenario execution's outcome.
type Result struct {
	Scenario *Scenario
	Report   *engine.Report

	// Matches lists the final state of every non-ledger record, sorted
	// by (source, id).
	Matches []MatchLine
}

// Run executes a scenario against a fresh database and returns the
// report and final record state. The run is fully deterministic: fixed
// token, fixed clock, apply mode.
func Run(ctx context.Context, sc *Scenario) (*Result, error) {
	rs, err := loadScenarioRules(sc)
	if err != nil {
		return nil, err
	}

	recs, err := sc.BuildRecords()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	runScope, err := sc.BuildScope()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	dir, err := os.MkdirTemp("", "harness-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	defer st.Close()

	if err := st.InsertRecords(ctx, recs); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	clock := testutil.NewFixedClock(harnessEpoch)
	eng := engine.New(st, rs,
		engine.WithTokenGenerator(engine.NewFixedGenerator(sc.RunToken)),
		engine.WithClock(clock.Now),
	)

	rpt, err := eng.Run(ctx, runScope, sc.Widen)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: run: %w", sc.Name, err)
	}

	matches, err := collectMatches(ctx, st, recs)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	return &Result{Scenario: sc, Report: rpt, Matches: matches}, nil
}

// Verify checks the scenario's expectations against the final state.
// Returns one error per unmet expectation.
func (r *Result) Verify() []error {
	byID := make(map[string]MatchLine, len(r.Matches))
	for _, m := range r.Matches {
		byID[m.ID] = m
	}

	var errs []error
	for _, exp := range r.Scenario.Expect {
		m, ok := byID[exp.ID]
		if !ok {
			errs = append(errs, fmt.Errorf("expectation %s: record not found", exp.ID))
			continue
		}
		if exp.Source != "" && m.Source != exp.Source {
			errs = append(errs, fmt.Errorf("expectation %s: source %q, want %q", exp.ID, m.Source, exp.Source))
		}
		if m.Target != exp.Target {
			errs = append(errs, fmt.Errorf("expectation %s: matched %q, want %q", exp.ID, m.Target, exp.Target))
		}
		if exp.Method != "" && m.Method != exp.Method {
			errs = append(errs, fmt.Errorf("expectation %s: via %q, want %q", exp.ID, m.Method, exp.Method))
		}
	}
	return errs
}

func loadScenarioRules(sc *Scenario) (*rules.RuleSet, error) {
	if path := sc.RulesPath(); path != "" {
		return rules.Load(path)
	}
	return rules.Default()
}

// collectMatches fetches the final non-ledger record state sorted by
// (source, id).
func collectMatches(ctx context.Context, st *store.Store, recs []*record.Record) ([]MatchLine, error) {
	tags := make(map[record.SourceTag]bool)
	for _, r := range recs {
		if r.Source != record.SourceLedger {
			tags[r.Source] = true
		}
	}
	sorted := make([]record.SourceTag, 0, len(tags))
	for t := range tags {
		sorted = append(sorted, t)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var out []MatchLine
	for _, tag := range sorted {
		fetched, err := st.Fetch(ctx, tag, scope.Scope{Mode: scope.ModeDryRun})
		if err != nil {
			return nil, err
		}
		for _, r := range fetched {
			line := MatchLine{Source: string(r.Source), ID: r.ID}
			if r.Match != nil {
				line.Target = r.Match.TargetID
				line.Method = r.Match.Method
				line.Confidence = r.Match.Confidence
			}
			if can, ok := r.Attrs["canonical_name"].(string); ok {
				line.CanonicalName = can
			}
			out = append(out, line)
		}
	}
	return out, nil
}
