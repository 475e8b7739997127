package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tallyforge/reconcile/internal/record"
	"github.com/tallyforge/reconcile/internal/scope"
)

// InsertRecords seeds a collection. Uses ON CONFLICT DO NOTHING for
// idempotency - re-importing the same fixture is silently ignored.
// Intended for ingestion pipelines and test fixtures; the engine itself
// never inserts.
func (s *Store) InsertRecords(ctx context.Context, recs []*record.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records
		(source, id, amount, date, description, name, email, external_id,
		 subscription_id, attrs, match_target_id, match_method,
		 match_confidence, matched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		attrsJSON, err := record.MarshalAttrs(r.Attrs)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
		dateStr := ""
		if !r.Date.IsZero() {
			dateStr = record.Day(r.Date).Format(dateLayout)
		}
		var targetID, method, matchedAt string
		var confidence float64
		if r.Match != nil {
			targetID = r.Match.TargetID
			method = r.Match.Method
			confidence = r.Match.Confidence
			if !r.Match.MatchedAt.IsZero() {
				matchedAt = r.Match.MatchedAt.UTC().Format(time.RFC3339)
			}
		}
		if _, err := stmt.ExecContext(ctx,
			string(r.Source), r.ID, r.Amount.String(), dateStr, r.Description,
			r.Name, r.Email, r.ExternalID, r.SubscriptionID, attrsJSON,
			targetID, method, confidence, matchedAt,
		); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// UpdateRecord applies a merge-style partial update to one record.
//
// The stored attrs bag is read, the update's attrs merged on top (new keys
// overwrite, unrelated keys survive), and the merged bag written back.
// Match state is only written when the update carries one; a nil Match
// never clears a previously set state. Applying the same update twice
// yields the same final state as applying it once.
func (s *Store) UpdateRecord(ctx context.Context, tag record.SourceTag, id string, upd record.Update) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	defer tx.Rollback()

	var attrsJSON string
	err = tx.QueryRowContext(ctx,
		"SELECT attrs FROM records WHERE source = ? AND id = ?",
		string(tag), id,
	).Scan(&attrsJSON)
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}

	current, err := record.UnmarshalAttrs(attrsJSON)
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	mergedJSON, err := record.MarshalAttrs(current.Merge(upd.Attrs))
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}

	if upd.Match != nil {
		matchedAt := ""
		if !upd.Match.MatchedAt.IsZero() {
			matchedAt = upd.Match.MatchedAt.UTC().Format(time.RFC3339)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE records
			SET attrs = ?, match_target_id = ?, match_method = ?,
			    match_confidence = ?, matched_at = ?
			WHERE source = ? AND id = ?`,
			mergedJSON, upd.Match.TargetID, upd.Match.Method,
			upd.Match.Confidence, matchedAt, string(tag), id)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE records SET attrs = ? WHERE source = ? AND id = ?",
			mergedJSON, string(tag), id)
	}
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	return tx.Commit()
}

// RunRow is one persisted reconciliation run for the audit trail.
type RunRow struct {
	Token      string    `json:"token"`
	StartedAt  time.Time `json:"started_at"`
	Mode       string    `json:"mode"`
	ScopeFrom  string    `json:"scope_from,omitempty"`
	ScopeTo    string    `json:"scope_to,omitempty"`
	Sources    string    `json:"sources,omitempty"`
	Matched    int       `json:"matched"`
	WritesOK   int       `json:"writes_ok"`
	WritesFail int       `json:"writes_fail"`
}

// WriteRun records a completed run. Duplicate tokens are silently ignored
// so a retried write stays idempotent.
func (s *Store) WriteRun(ctx context.Context, run RunRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(token, started_at, mode, scope_from, scope_to, sources, matched, writes_ok, writes_fail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING`,
		run.Token, run.StartedAt.UTC().Format(time.RFC3339), run.Mode,
		run.ScopeFrom, run.ScopeTo, run.Sources,
		run.Matched, run.WritesOK, run.WritesFail)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.Token, err)
	}
	return nil
}

// LastRun returns the most recent persisted run, or ok=false when none
// exist.
func (s *Store) LastRun(ctx context.Context) (RunRow, bool, error) {
	var run RunRow
	var startedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT token, started_at, mode, scope_from, scope_to, sources, matched, writes_ok, writes_fail
		FROM runs
		ORDER BY started_at DESC, token DESC
		LIMIT 1`).Scan(&run.Token, &startedAt, &run.Mode, &run.ScopeFrom,
		&run.ScopeTo, &run.Sources, &run.Matched, &run.WritesOK, &run.WritesFail)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRow{}, false, nil
	}
	if err != nil {
		return RunRow{}, false, fmt.Errorf("read last run: %w", err)
	}
	at, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return RunRow{}, false, fmt.Errorf("read last run: bad started_at %q: %w", startedAt, err)
	}
	run.StartedAt = at
	return run, true, nil
}

// ScopeDescription renders a scope for the runs table columns.
func ScopeDescription(sc scope.Scope) (from, to, sources string) {
	if !sc.From.IsZero() {
		from = record.Day(sc.From).Format(dateLayout)
	}
	if !sc.To.IsZero() {
		to = record.Day(sc.To).Format(dateLayout)
	}
	tags := make([]string, len(sc.Sources))
	for i, t := range sc.Sources {
		tags[i] = string(t)
	}
	return from, to, strings.Join(tags, ",")
}
