package record

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatched(t *testing.T) {
	r := &Record{ID: "t1"}
	assert.False(t, r.Matched())

	r.Match = &MatchState{}
	assert.False(t, r.Matched(), "empty target id is not a match")

	r.Match = &MatchState{TargetID: "inv-1", Method: "email_amount", Confidence: 0.9}
	assert.True(t, r.Matched())
}

func TestCapabilities(t *testing.T) {
	r := &Record{
		Email:       "  ",
		Name:        "Acme Corp",
		Description: "TRANSFER FROM ACME",
	}
	assert.False(t, r.HasEmail(), "whitespace-only email is absent")
	assert.True(t, r.HasName())
	assert.False(t, r.HasExternalID())
	assert.True(t, r.HasDescription())
}

func TestDayNormalization(t *testing.T) {
	// A wall-clock timestamp and a bare date on the same calendar day
	// must normalize to the same day.
	loc, err := time.LoadLocation("UTC")
	require.NoError(t, err)

	ts := time.Date(2024, 3, 10, 23, 15, 4, 0, loc)
	bare := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, Day(bare), Day(ts))
	assert.Equal(t, 0, DaysBetween(ts, bare))
	assert.Equal(t, 1, DaysBetween(ts, bare.AddDate(0, 0, 1)))
	assert.Equal(t, 1, DaysBetween(bare.AddDate(0, 0, 1), ts), "distance is symmetric")
}

func TestAmountBucket(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"1499.00", 1499},
		{"1499.49", 1499},
		{"1499.50", 1500},
		{"-42.10", 42}, // sign conventions differ per source; bucket on magnitude
		{"0.00", 0},
	}
	for _, tt := range tests {
		amt, err := decimal.NewFromString(tt.amount)
		require.NoError(t, err)
		assert.Equal(t, tt.want, AmountBucket(amt), "bucket(%s)", tt.amount)
	}
}

func TestAttrsMerge(t *testing.T) {
	base := Attrs{"settlement_date": "2024-03-12", "method": "card"}
	updates := Attrs{"method": "ach", "merchant_account": "ma_1"}

	merged := base.Merge(updates)

	assert.Equal(t, "ach", merged["method"], "new keys overwrite")
	assert.Equal(t, "2024-03-12", merged["settlement_date"], "unrelated keys preserved")
	assert.Equal(t, "ma_1", merged["merchant_account"])

	// Inputs untouched.
	assert.Equal(t, "card", base["method"])

	// Idempotent: applying the same updates twice changes nothing.
	again := merged.Merge(updates)
	assert.Equal(t, merged, again)
}

func TestAttrsClone(t *testing.T) {
	base := Attrs{"method": "card"}

	c := base.Clone()
	c["method"] = "ach"
	assert.Equal(t, "card", base["method"], "clone is independent of the original")

	assert.Nil(t, Attrs(nil).Clone())
}

func TestAttrsRoundTrip(t *testing.T) {
	a := Attrs{"payment_method": "card", "fee": 0.3}

	s, err := MarshalAttrs(a)
	require.NoError(t, err)

	back, err := UnmarshalAttrs(s)
	require.NoError(t, err)
	assert.Equal(t, "card", back["payment_method"])

	empty, err := MarshalAttrs(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)

	b, err := UnmarshalAttrs("")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Empty(t, b)
}
