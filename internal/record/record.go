package record

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceTag identifies the feed a record came from: a payment gateway,
// a bank account, or the internal invoice ledger.
type SourceTag string

// Known source kinds. Concrete deployments register their own tags; these
// constants exist so strategies can special-case the ledger side.
const (
	SourceLedger SourceTag = "ledger"
)

// Record is one observed financial event from one source feed.
//
// Records are created by upstream ingestion and are read-only to the engine
// except for Match and Attrs, which the write-back merger may update.
type Record struct {
	ID          string          `json:"id"`
	Source      SourceTag       `json:"source"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description,omitempty"`

	// Optional identity fields. Empty string means "absent".
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	ExternalID     string `json:"external_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`

	// Attrs is the open, source-specific attribute bag (settlement date,
	// merchant account id, payment method, ...). Preserved across updates.
	Attrs Attrs `json:"attrs,omitempty"`

	// Match is the persisted match state. Nil means unreconciled.
	Match *MatchState `json:"match,omitempty"`
}

// MatchState links a record to a target record with the strategy that
// produced the link and its confidence.
type MatchState struct {
	TargetID   string    `json:"target_id"`
	Method     string    `json:"method"`
	Confidence float64   `json:"confidence"`
	MatchedAt  time.Time `json:"matched_at"`
}

// Matched reports whether the record already carries a match state.
func (r *Record) Matched() bool {
	return r.Match != nil && r.Match.TargetID != ""
}

// Capability checks let strategies test applicability without probing
// fields at runtime.

// HasEmail reports whether the record carries a usable email identity.
func (r *Record) HasEmail() bool { return strings.TrimSpace(r.Email) != "" }

// HasName reports whether the record carries a counterparty name.
func (r *Record) HasName() bool { return strings.TrimSpace(r.Name) != "" }

// HasExternalID reports whether the record carries an external
// order/invoice identifier.
func (r *Record) HasExternalID() bool { return strings.TrimSpace(r.ExternalID) != "" }

// HasDescription reports whether the record carries free text worth
// running identity extraction over.
func (r *Record) HasDescription() bool { return strings.TrimSpace(r.Description) != "" }

// Update is a merge-style partial update for one record. Attrs are merged
// into the existing bag (shallow; new keys overwrite, unrelated keys
// survive). Match, when non-nil, replaces the match state; a nil Match
// never clears a previously set one.
type Update struct {
	Attrs Attrs       `json:"attrs,omitempty"`
	Match *MatchState `json:"match,omitempty"`
}

// Day normalizes a timestamp to a calendar date (UTC midnight).
// All date arithmetic in the engine happens on Day-normalized values so
// that feeds reporting wall-clock times and feeds reporting bare dates
// compare equal.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute distance between two calendar dates
// in whole days.
func DaysBetween(a, b time.Time) int {
	da, db := Day(a), Day(b)
	d := int(db.Sub(da).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

// AmountBucket rounds an amount to the nearest integer for index keying.
// Neighbouring buckets (±1) are probed during lookup to absorb rounding
// noise at bucket boundaries.
func AmountBucket(amount decimal.Decimal) int64 {
	return amount.Abs().Round(0).IntPart()
}
