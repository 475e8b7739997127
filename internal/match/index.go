package match

import (
	"strings"
	"time"

	"github.com/tallyforge/reconcile/internal/identity"
	"github.com/tallyforge/reconcile/internal/record"
)

const dateKeyLayout = "2006-01-02"

// Index provides sub-quadratic candidate retrieval over a target
// collection. Four multi-valued indices: exact lower-cased email, exact
// name comparison key, rounded-integer amount bucket, and calendar date.
//
// Construction is O(n). An Index is read-only after construction and safe
// for concurrent lookups.
type Index struct {
	byID     map[string]*record.Record
	byEmail  map[string][]*record.Record
	byName   map[string][]*record.Record
	byAmount map[int64][]*record.Record
	byDate   map[string][]*record.Record

	all []*record.Record
}

// NewIndex builds an Index over targets. Name keys use the normalizer's
// comparison key so source and target name lookups agree on punctuation,
// casing, and diacritics.
func NewIndex(norm *identity.Normalizer, targets []*record.Record) *Index {
	idx := &Index{
		byID:     make(map[string]*record.Record, len(targets)),
		byEmail:  make(map[string][]*record.Record),
		byName:   make(map[string][]*record.Record),
		byAmount: make(map[int64][]*record.Record),
		byDate:   make(map[string][]*record.Record),
		all:      targets,
	}
	for _, t := range targets {
		idx.byID[idKey(t.ID)] = t

		if t.HasEmail() {
			k := strings.ToLower(strings.TrimSpace(t.Email))
			idx.byEmail[k] = append(idx.byEmail[k], t)
		}
		if t.HasName() {
			k := norm.CompareKey(t.Name)
			if k != "" {
				idx.byName[k] = append(idx.byName[k], t)
			}
		}
		idx.byAmount[record.AmountBucket(t.Amount)] = append(idx.byAmount[record.AmountBucket(t.Amount)], t)

		if !t.Date.IsZero() {
			k := record.Day(t.Date).Format(dateKeyLayout)
			idx.byDate[k] = append(idx.byDate[k], t)
		}
	}
	return idx
}

// Len returns the number of indexed targets.
func (idx *Index) Len() int { return len(idx.all) }

// All returns the indexed targets in input order.
func (idx *Index) All() []*record.Record { return idx.all }

// ByID returns the target whose id equals the given external identifier,
// case-insensitively and ignoring surrounding whitespace.
func (idx *Index) ByID(id string) (*record.Record, bool) {
	t, ok := idx.byID[idKey(id)]
	return t, ok
}

// ByEmail returns targets sharing the exact (case-folded) email.
func (idx *Index) ByEmail(email string) []*record.Record {
	return idx.byEmail[strings.ToLower(strings.TrimSpace(email))]
}

// ByNameKey returns targets sharing the exact name comparison key.
func (idx *Index) ByNameKey(key string) []*record.Record {
	return idx.byName[key]
}

// ByAmountNear returns targets in the amount bucket and its two
// neighbours, absorbing rounding noise at bucket boundaries.
func (idx *Index) ByAmountNear(bucket int64) []*record.Record {
	var out []*record.Record
	for _, b := range [3]int64{bucket - 1, bucket, bucket + 1} {
		out = append(out, idx.byAmount[b]...)
	}
	return out
}

// ByDateWindow returns targets dated within ±days of date.
func (idx *Index) ByDateWindow(date time.Time, days int) []*record.Record {
	day := record.Day(date)
	var out []*record.Record
	for off := -days; off <= days; off++ {
		k := day.AddDate(0, 0, off).Format(dateKeyLayout)
		out = append(out, idx.byDate[k]...)
	}
	return out
}

func idKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
