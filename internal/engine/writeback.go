package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tallyforge/reconcile/internal/match"
	"github.com/tallyforge/reconcile/internal/record"
)

const (
	defaultWriteBatch   = 25
	defaultWriteRetries = 3

	writeRetryBackoff = 50 * time.Millisecond
)

// pendingWrite is one record update queued for write-back. Group members
// of a payout acceptance fan out into their own writes against the same
// target.
type pendingWrite struct {
	tag record.SourceTag
	id  string
	upd record.Update
}

// writeBack persists accepted matches in bounded-concurrency batches.
// Each write is retried; a write that still fails after retries is
// counted and logged, never fatal. Writes are idempotent, so a partially
// failed batch is repaired by re-running the same scope.
func (e *Engine) writeBack(ctx context.Context, accepted []*match.Candidate, canonical map[string]string, rpt *Report, log *slog.Logger) {
	pending := e.buildWrites(accepted, canonical)
	rpt.WritesAttempted = len(pending)

	var ok, failed atomic.Int64
	for start := 0; start < len(pending); start += e.writeBatch {
		end := start + e.writeBatch
		if end > len(pending) {
			end = len(pending)
		}

		var wg sync.WaitGroup
		for _, pw := range pending[start:end] {
			wg.Add(1)
			go func(pw pendingWrite) {
				defer wg.Done()
				if err := e.writeOne(ctx, pw); err != nil {
					failed.Add(1)
					log.Error("record update failed",
						"source", pw.tag, "id", pw.id, "error", err)
					return
				}
				ok.Add(1)
			}(pw)
		}
		wg.Wait()
	}

	rpt.WritesOK = int(ok.Load())
	rpt.WritesFailed = int(failed.Load())
}

// buildWrites expands candidates into per-record updates. A candidate's
// group members share its target, method, and confidence.
func (e *Engine) buildWrites(accepted []*match.Candidate, canonical map[string]string) []pendingWrite {
	now := e.clock()
	var out []pendingWrite
	for _, c := range accepted {
		state := record.MatchState{
			TargetID:   c.TargetID(),
			Method:     c.Strategy,
			Confidence: c.Confidence,
			MatchedAt:  now,
		}
		for _, r := range append([]*record.Record{c.Source}, c.Group...) {
			upd := record.Update{Match: &state}
			if r.HasName() {
				if can, found := canonical[r.Name]; found && can != r.Name {
					upd.Attrs = record.Attrs{"canonical_name": can}
				}
			}
			out = append(out, pendingWrite{tag: r.Source, id: r.ID, upd: upd})
		}
	}
	return out
}

// writeOne updates a single record with retries.
func (e *Engine) writeOne(ctx context.Context, pw pendingWrite) error {
	var err error
	for attempt := 0; attempt <= e.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(writeRetryBackoff * time.Duration(attempt)):
			}
		}
		if err = e.store.UpdateRecord(ctx, pw.tag, pw.id, pw.upd); err == nil {
			return nil
		}
		slog.Debug("record update retry", "id", pw.id, "attempt", attempt+1, "error", err)
	}
	return err
}
