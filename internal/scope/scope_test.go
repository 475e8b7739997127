package scope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tallyforge/reconcile/internal/record"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		wantErr string
	}{
		{"dry-run default", Scope{Mode: ModeDryRun}, ""},
		{"apply with range", Scope{Mode: ModeApply, From: date(2024, 1, 1), To: date(2024, 12, 31)}, ""},
		{"missing mode", Scope{}, "invalid mode"},
		{"inverted range", Scope{Mode: ModeApply, From: date(2024, 6, 1), To: date(2024, 1, 1)}, "invalid date range"},
		{"empty source tag", Scope{Mode: ModeDryRun, Sources: []record.SourceTag{"stripe", ""}}, "empty source tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestIncludes(t *testing.T) {
	s := Scope{Mode: ModeDryRun, From: date(2024, 3, 1), To: date(2024, 3, 31)}

	assert.True(t, s.Includes(date(2024, 3, 1)), "inclusive lower bound")
	assert.True(t, s.Includes(date(2024, 3, 31)), "inclusive upper bound")
	assert.True(t, s.Includes(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)), "same calendar day")
	assert.False(t, s.Includes(date(2024, 4, 1)))
	assert.True(t, s.Includes(time.Time{}), "dateless records stay in scope")

	unbounded := Scope{Mode: ModeDryRun}
	assert.True(t, unbounded.Includes(date(1999, 1, 1)))
}
