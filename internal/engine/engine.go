package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tallyforge/reconcile/internal/identity"
	"github.com/tallyforge/reconcile/internal/match"
	"github.com/tallyforge/reconcile/internal/record"
	"github.com/tallyforge/reconcile/internal/rules"
	"github.com/tallyforge/reconcile/internal/scope"
	"github.com/tallyforge/reconcile/internal/store"
)

// Store is the persistence surface the engine needs. *store.Store
// satisfies it; tests substitute in-memory fakes.
type Store interface {
	Fetch(ctx context.Context, tag record.SourceTag, sc scope.Scope) ([]*record.Record, error)
	Sources(ctx context.Context) ([]record.SourceTag, error)
	MethodCounts(ctx context.Context, sc scope.Scope) (map[record.SourceTag]map[string]int, error)
	UpdateRecord(ctx context.Context, tag record.SourceTag, id string, upd record.Update) error
	WriteRun(ctx context.Context, run store.RunRow) error
}

// Engine orchestrates a full reconciliation run: load, index, cluster,
// cascade, aggregate, write back.
type Engine struct {
	store  Store
	rules  *rules.RuleSet
	norm   *identity.Normalizer
	tokens TokenGenerator
	clock  func() time.Time

	writeBatch int
	retries    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenGenerator replaces the run-token generator. Tests pass a
// FixedGenerator for deterministic output.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithClock replaces the time source used for run and match timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithWriteBatchSize sets the bounded-concurrency window for write-back.
func WithWriteBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.writeBatch = n
		}
	}
}

// WithRetries sets the per-record write retry count.
func WithRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.retries = n
		}
	}
}

// New creates an engine over a store and a compiled rule set.
func New(st Store, rs *rules.RuleSet, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		rules:      rs,
		norm:       identity.New(&rs.Tables),
		tokens:     UUIDv7Generator{},
		clock:      time.Now,
		writeBatch: defaultWriteBatch,
		retries:    defaultWriteRetries,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes one reconciliation run over the given scope. widen enables
// the second cascade pass with widened tolerances after the core pass.
//
// Matching is deterministic: sources are processed in (tag, id) order and
// the strategy cascade is sequential. Only write-back is concurrent.
//
// Run returns the report together with any error; on a non-nil report the
// caller may still render it (a failed audit write does not discard the
// run's results).
func (e *Engine) Run(ctx context.Context, sc scope.Scope, widen bool) (*Report, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	token := e.tokens.Generate()
	startedAt := e.clock()
	log := slog.With("run", token, "mode", string(sc.Mode))
	log.Info("run started", "from", sc.From, "to", sc.To)

	rpt := &Report{Token: token, Mode: sc.Mode, Strategies: make(map[string]int)}

	targets, err := e.store.Fetch(ctx, record.SourceLedger, sc)
	if err != nil {
		return nil, &RunError{Code: ErrCodeTargetFetch, Message: "load target collection", Err: err}
	}

	tags, err := e.sourceTags(ctx, sc)
	if err != nil {
		return nil, err
	}
	sources := e.fetchSources(ctx, sc, tags, rpt, log)

	history, err := e.history(ctx, sc)
	if err != nil {
		return nil, err
	}

	idx := match.NewIndex(e.norm, targets)
	canonical := e.clusterNames(sources, targets)

	pass := match.Pass{
		Index:        idx,
		Sources:      sources,
		Norm:         e.norm,
		Tables:       &e.rules.Tables,
		Tol:          e.rules.Tolerances,
		Canonical:    canonical,
		History:      history,
		TakenTargets: takenTargets(sources),
	}

	accepted := match.NewCascade(match.CoreStrategies()).Run(&pass)
	if widen {
		// Struct copy shares the taken/matched bookkeeping, so the
		// widened pass only sees records the core pass left behind.
		wide := pass
		wide.Tol = e.rules.Tolerances.Widened()
		accepted = append(accepted, match.NewCascade(match.CoreStrategies()).Run(&wide)...)
	}
	terminal := pass
	accepted = append(accepted, match.NewCascade(match.TerminalStrategies()).Run(&terminal)...)

	for _, c := range accepted {
		rpt.addAccepted(c)
	}
	e.sourceStats(rpt, sources, accepted)
	rpt.finalize()

	if sc.Mode == scope.ModeApply {
		e.writeBack(ctx, accepted, canonical, rpt, log)
	}

	log.Info("run finished",
		"matched", len(accepted),
		"coverage", rpt.Coverage,
		"writes_failed", rpt.WritesFailed,
	)

	if sc.Mode == scope.ModeApply {
		if err := e.logRun(ctx, sc, startedAt, rpt, len(accepted)); err != nil {
			return rpt, err
		}
	}
	return rpt, nil
}

// sourceTags resolves the feeds in play: the scope's explicit subset, or
// every non-ledger tag known to the store.
func (e *Engine) sourceTags(ctx context.Context, sc scope.Scope) ([]record.SourceTag, error) {
	if len(sc.Sources) > 0 {
		tags := make([]record.SourceTag, 0, len(sc.Sources))
		for _, t := range sc.Sources {
			if t != record.SourceLedger {
				tags = append(tags, t)
			}
		}
		return tags, nil
	}
	all, err := e.store.Sources(ctx)
	if err != nil {
		return nil, &RunError{Code: ErrCodeTargetFetch, Message: "list sources", Err: err}
	}
	var tags []record.SourceTag
	for _, t := range all {
		if t != record.SourceLedger {
			tags = append(tags, t)
		}
	}
	return tags, nil
}

// fetchSources loads every source feed concurrently. A failed feed is
// dropped from the run and reported; it never aborts the others.
func (e *Engine) fetchSources(ctx context.Context, sc scope.Scope, tags []record.SourceTag, rpt *Report, log *slog.Logger) []*record.Record {
	type result struct {
		tag  record.SourceTag
		recs []*record.Record
		err  error
	}
	results := make([]result, len(tags))

	var wg sync.WaitGroup
	for i, tag := range tags {
		wg.Add(1)
		go func(i int, tag record.SourceTag) {
			defer wg.Done()
			recs, err := e.store.Fetch(ctx, tag, sc)
			results[i] = result{tag: tag, recs: recs, err: err}
		}(i, tag)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].tag < results[j].tag })

	var sources []*record.Record
	for _, r := range results {
		if r.err != nil {
			ferr := &RunError{Code: ErrCodeSourceFetch, Message: "fetch source feed", Source: r.tag, Err: r.err}
			log.Warn("skipping feed", "error", ferr)
			rpt.FailedSources = append(rpt.FailedSources, string(r.tag))
			continue
		}
		sources = append(sources, r.recs...)
	}
	return sources
}

// history derives the majority historical classification per feed for the
// source-dominant fallback. Ties break on the lexicographically smallest
// label.
func (e *Engine) history(ctx context.Context, sc scope.Scope) (map[record.SourceTag]string, error) {
	counts, err := e.store.MethodCounts(ctx, scope.Scope{Sources: sc.Sources, Mode: sc.Mode})
	if err != nil {
		return nil, &RunError{Code: ErrCodeHistory, Message: "read classification history", Err: err}
	}
	out := make(map[record.SourceTag]string, len(counts))
	for tag, byLabel := range counts {
		best, bestN := "", 0
		labels := make([]string, 0, len(byLabel))
		for l := range byLabel {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			if byLabel[l] > bestN {
				best, bestN = l, byLabel[l]
			}
		}
		if best != "" {
			out[tag] = best
		}
	}
	return out, nil
}

// clusterNames deduplicates counterparty names across sources and targets
// into canonical forms. The returned map is keyed by raw record names; it
// feeds both name-keyed matching and the canonical_name attribute written
// back on apply.
func (e *Engine) clusterNames(sources, targets []*record.Record) map[string]string {
	normOf := make(map[string]string)
	var normalized []string
	add := func(recs []*record.Record) {
		for _, r := range recs {
			if !r.HasName() {
				continue
			}
			if _, done := normOf[r.Name]; done {
				continue
			}
			n := e.norm.Normalize(r.Name)
			normOf[r.Name] = n
			normalized = append(normalized, n)
		}
	}
	add(targets)
	add(sources)

	resolver := identity.NewResolver(e.norm, e.rules.Tolerances.MinNameLength)
	byNorm, clusters := resolver.Deduplicate(normalized, e.rules.Tolerances.NameThreshold)
	slog.Debug("name clustering complete", "names", len(normalized), "clusters", len(clusters))

	canonical := make(map[string]string, len(normOf))
	for raw, n := range normOf {
		if can, ok := byNorm[n]; ok {
			canonical[raw] = can
		} else {
			canonical[raw] = n
		}
	}
	return canonical
}

// takenTargets seeds the consumed-target set from matches persisted by
// earlier runs, so a re-run never double-books a target.
func takenTargets(sources []*record.Record) map[string]bool {
	taken := make(map[string]bool)
	for _, s := range sources {
		if s.Matched() && s.Match.TargetID != "" {
			taken[s.Match.TargetID] = true
		}
	}
	return taken
}

// sourceStats fills the per-feed totals.
func (e *Engine) sourceStats(rpt *Report, sources []*record.Record, accepted []*match.Candidate) {
	matchedNow := make(map[string]bool)
	for _, c := range accepted {
		matchedNow[c.Source.ID] = true
		for _, g := range c.Group {
			matchedNow[g.ID] = true
		}
	}

	byTag := make(map[record.SourceTag]*SourceStats)
	order := []record.SourceTag{}
	for _, s := range sources {
		st := byTag[s.Source]
		if st == nil {
			st = &SourceStats{Source: s.Source}
			byTag[s.Source] = st
			order = append(order, s.Source)
		}
		st.Total++
		switch {
		case s.Matched():
			st.PreMatched++
		case matchedNow[s.ID]:
			st.Matched++
		}
	}
	for _, tag := range order {
		rpt.Sources = append(rpt.Sources, *byTag[tag])
	}
}

// logRun appends the audit row for an applied run. Dry runs leave no
// trace. The run's matches are already persisted by this point, so a
// failure here is reported but does not undo anything.
func (e *Engine) logRun(ctx context.Context, sc scope.Scope, startedAt time.Time, rpt *Report, matched int) error {
	from, to, srcs := store.ScopeDescription(sc)
	row := store.RunRow{
		Token:      rpt.Token,
		StartedAt:  startedAt,
		Mode:       string(sc.Mode),
		ScopeFrom:  from,
		ScopeTo:    to,
		Sources:    srcs,
		Matched:    matched,
		WritesOK:   rpt.WritesOK,
		WritesFail: rpt.WritesFailed,
	}
	if err := e.store.WriteRun(ctx, row); err != nil {
		return &RunError{Code: ErrCodeRunLog, Message: "write run audit row", Err: err}
	}
	return nil
}
