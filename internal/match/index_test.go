package match

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyforge/reconcile/internal/identity"
	"github.com/tallyforge/reconcile/internal/record"
	"github.com/tallyforge/reconcile/internal/rules"
)

func testNormalizer(t *testing.T) *identity.Normalizer {
	t.Helper()
	rs, err := rules.Default()
	require.NoError(t, err)
	return identity.New(&rs.Tables)
}

func amt(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIndexLookups(t *testing.T) {
	targets := []*record.Record{
		{ID: "INV-1", Source: record.SourceLedger, Amount: amt(t, "1499.00"), Date: day(2024, 3, 11), Email: "A@X.com", Name: "Acme Widgets LLC"},
		{ID: "INV-2", Source: record.SourceLedger, Amount: amt(t, "250.00"), Date: day(2024, 3, 14), Email: "b@y.com", Name: "Blue Bottle Coffee"},
		{ID: "INV-3", Source: record.SourceLedger, Amount: amt(t, "1500.00"), Date: day(2024, 3, 20)},
	}
	idx := NewIndex(testNormalizer(t), targets)

	assert.Equal(t, 3, idx.Len())

	got, ok := idx.ByID("  inv-1 ")
	require.True(t, ok, "id lookup is trimmed and case-insensitive")
	assert.Equal(t, "INV-1", got.ID)

	assert.Len(t, idx.ByEmail("a@x.COM"), 1, "email lookup is case-folded")
	assert.Empty(t, idx.ByEmail("missing@x.com"))

	key := testNormalizer(t).CompareKey("ACME WIDGETS")
	require.NotEmpty(t, key)
	assert.Len(t, idx.ByNameKey(key), 1, "legal suffix does not split name keys")

	// 1499 sits next to the 1500 bucket; ±1 expansion finds both.
	near := idx.ByAmountNear(1499)
	assert.Len(t, near, 2)

	window := idx.ByDateWindow(day(2024, 3, 12), 2)
	require.Len(t, window, 2)
	assert.Equal(t, "INV-1", window[0].ID)
	assert.Equal(t, "INV-2", window[1].ID)
}

func TestIndexSkipsUnusableKeys(t *testing.T) {
	targets := []*record.Record{
		{ID: "T-1", Amount: amt(t, "10.00")}, // no email, name, or date
	}
	idx := NewIndex(testNormalizer(t), targets)

	assert.Empty(t, idx.ByEmail(""))
	assert.Empty(t, idx.ByNameKey(""))
	assert.Empty(t, idx.ByDateWindow(day(2024, 1, 1), 30))
	assert.Len(t, idx.ByAmountNear(10), 1, "amount is always indexed")
}
