package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyforge/reconcile/internal/record"
	"github.com/tallyforge/reconcile/internal/scope"
)

const dateLayout = "2006-01-02"

// DefaultPageSize bounds one paged fetch. Collections of any size load via
// repeated pages, never one unbounded query.
const DefaultPageSize = 500

// FetchPage returns up to limit records for a source tag within the
// scope's date range, ordered by id, starting strictly after afterID.
// Keyset pagination keeps ordering deterministic and memory bounded.
func (s *Store) FetchPage(ctx context.Context, tag record.SourceTag, sc scope.Scope, afterID string, limit int) ([]*record.Record, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	where, args := compileScope(tag, sc)
	where = append(where, "id > ?")
	args = append(args, afterID)

	q := fmt.Sprintf(`
		SELECT source, id, amount, date, description, name, email,
		       external_id, subscription_id, attrs,
		       match_target_id, match_method, match_confidence, matched_at
		FROM records
		WHERE %s
		ORDER BY id ASC
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records %q: %w", tag, err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records %q: %w", tag, err)
	}
	return out, nil
}

// Fetch loads the complete collection for a source tag within scope by
// paging until exhaustion.
func (s *Store) Fetch(ctx context.Context, tag record.SourceTag, sc scope.Scope) ([]*record.Record, error) {
	var all []*record.Record
	afterID := ""
	for {
		page, err := s.FetchPage(ctx, tag, sc, afterID, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < DefaultPageSize {
			return all, nil
		}
		afterID = page[len(page)-1].ID
	}
}

// Sources returns the distinct source tags present in the store, sorted.
func (s *Store) Sources(ctx context.Context) ([]record.SourceTag, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT source FROM records ORDER BY source ASC")
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var tags []record.SourceTag
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		tags = append(tags, record.SourceTag(tag))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return tags, nil
}

// MethodCounts returns matched-record counts per (source, method) within
// scope, for reporting and for the source-dominant fallback's majority
// vote over historical classifications.
func (s *Store) MethodCounts(ctx context.Context, sc scope.Scope) (map[record.SourceTag]map[string]int, error) {
	where, args := compileScope("", sc)
	where = append(where, "match_target_id != ''")

	q := fmt.Sprintf(`
		SELECT source, match_target_id, COUNT(*)
		FROM records
		WHERE %s
		GROUP BY source, match_target_id
		ORDER BY source ASC, match_target_id ASC`, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query method counts: %w", err)
	}
	defer rows.Close()

	out := make(map[record.SourceTag]map[string]int)
	for rows.Next() {
		var source, target string
		var n int
		if err := rows.Scan(&source, &target, &n); err != nil {
			return nil, fmt.Errorf("scan method count: %w", err)
		}
		tag := record.SourceTag(source)
		if out[tag] == nil {
			out[tag] = make(map[string]int)
		}
		out[tag][target] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate method counts: %w", err)
	}
	return out, nil
}

// compileScope translates a validated scope into WHERE fragments. All
// values are parameterized, never interpolated. An empty tag compiles to
// no source constraint beyond the scope's own source subset.
func compileScope(tag record.SourceTag, sc scope.Scope) ([]string, []any) {
	where := []string{"1=1"}
	var args []any

	if tag != "" {
		where = append(where, "source = ?")
		args = append(args, string(tag))
	} else if len(sc.Sources) > 0 {
		placeholders := make([]string, len(sc.Sources))
		for i, t := range sc.Sources {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, fmt.Sprintf("source IN (%s)", strings.Join(placeholders, ", ")))
	}

	// Dateless records ('' sorts below any ISO date) always stay in
	// scope; filtering them out would silently drop data-quality cases.
	if !sc.From.IsZero() {
		where = append(where, "(date = '' OR date >= ?)")
		args = append(args, record.Day(sc.From).Format(dateLayout))
	}
	if !sc.To.IsZero() {
		where = append(where, "(date = '' OR date <= ?)")
		args = append(args, record.Day(sc.To).Format(dateLayout))
	}
	return where, args
}

func scanRecord(rows *sql.Rows) (*record.Record, error) {
	var (
		r          record.Record
		source     string
		amountStr  string
		dateStr    string
		attrsJSON  string
		targetID   string
		method     string
		confidence float64
		matchedAt  string
	)
	if err := rows.Scan(&source, &r.ID, &amountStr, &dateStr, &r.Description,
		&r.Name, &r.Email, &r.ExternalID, &r.SubscriptionID, &attrsJSON,
		&targetID, &method, &confidence, &matchedAt); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	r.Source = record.SourceTag(source)

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("record %s: bad stored amount %q: %w", r.ID, amountStr, err)
	}
	r.Amount = amount

	if dateStr != "" {
		d, err := time.ParseInLocation(dateLayout, dateStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("record %s: bad stored date %q: %w", r.ID, dateStr, err)
		}
		r.Date = d
	}

	attrs, err := record.UnmarshalAttrs(attrsJSON)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", r.ID, err)
	}
	r.Attrs = attrs

	if targetID != "" {
		ms := &record.MatchState{TargetID: targetID, Method: method, Confidence: confidence}
		if matchedAt != "" {
			at, err := time.Parse(time.RFC3339, matchedAt)
			if err != nil {
				return nil, fmt.Errorf("record %s: bad matched_at %q: %w", r.ID, matchedAt, err)
			}
			ms.MatchedAt = at
		}
		r.Match = ms
	}
	return &r, nil
}
