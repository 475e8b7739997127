package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCompiles(t *testing.T) {
	rs, err := Default()
	require.NoError(t, err)

	assert.NotEmpty(t, rs.Tables.ProcessorPrefixes)
	assert.NotEmpty(t, rs.Tables.LegalSuffixes)
	assert.Equal(t, "unclassified", rs.Tolerances.DefaultClassification)
	assert.Equal(t, 0.85, rs.Tolerances.NameThreshold)
	assert.Equal(t, "1", rs.Tolerances.AmountFloor.String())
}

func TestLookupKnownNamePrefersLongestPrefix(t *testing.T) {
	rs := &RuleSet{
		Tables: Tables{
			KnownNames: map[string]string{
				"UBER":      "Uber",
				"UBER EATS": "Uber Eats",
			},
		},
		Tolerances: minimalTolerances(),
	}
	require.NoError(t, rs.Build())

	got, ok := rs.Tables.LookupKnownName("UBER EATS PENDING")
	require.True(t, ok)
	assert.Equal(t, "Uber Eats", got, "longest key must win on prefix match")

	got, ok = rs.Tables.LookupKnownName("UBER TRIP")
	require.True(t, ok)
	assert.Equal(t, "Uber", got)

	_, ok = rs.Tables.LookupKnownName("LYFT RIDE")
	assert.False(t, ok)
}

func TestSuffixAndFunctionWordLookups(t *testing.T) {
	rs := &RuleSet{
		Tables: Tables{
			LegalSuffixes: []string{"LLC", "GmbH"},
			FunctionWords: []string{"of", "De"},
		},
		Tolerances: minimalTolerances(),
	}
	require.NoError(t, rs.Build())

	assert.True(t, rs.Tables.IsLegalSuffix("llc"))
	assert.True(t, rs.Tables.IsLegalSuffix("GMBH"))
	assert.False(t, rs.Tables.IsLegalSuffix("corp"))
	assert.True(t, rs.Tables.IsFunctionWord("OF"))
	assert.True(t, rs.Tables.IsFunctionWord("de"))
}

func TestExtractPatterns(t *testing.T) {
	rs, err := Default()
	require.NoError(t, err)

	var transfer *ExtractPattern
	for i := range rs.Tables.ExtractPatterns {
		if rs.Tables.ExtractPatterns[i].Name == "transfer_prefix" {
			transfer = &rs.Tables.ExtractPatterns[i]
		}
	}
	require.NotNil(t, transfer)

	assert.Equal(t, "Jane Smith", transfer.Match("Online transfer from Jane Smith"))
	assert.Equal(t, "", transfer.Match("POS PURCHASE 1234"))
}

func TestBuildRejectsBadPattern(t *testing.T) {
	rs := &RuleSet{
		Tables: Tables{
			ExtractPatterns: []ExtractPattern{{Name: "bad", Pattern: "("}},
		},
		Tolerances: minimalTolerances(),
	}
	err := rs.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `extract pattern "bad"`)
}

func TestBuildRejectsMultipleCaptureGroups(t *testing.T) {
	rs := &RuleSet{
		Tables: Tables{
			ExtractPatterns: []ExtractPattern{{Name: "two", Pattern: "(a)(b)"}},
		},
		Tolerances: minimalTolerances(),
	}
	err := rs.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one capture group")
}

func TestWidenedPromotesTolerances(t *testing.T) {
	rs, err := Default()
	require.NoError(t, err)

	w := rs.Tolerances.Widened()
	assert.Equal(t, rs.Tolerances.WideAmountPercent, w.AmountPercent)
	assert.Equal(t, rs.Tolerances.WideDateWindowDays, w.DateWindowDays)
	// Non-widened fields carry over.
	assert.Equal(t, rs.Tolerances.NameThreshold, w.NameThreshold)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
rules: {
	tables: {
		processor_prefixes: ["XX *"]
		known_names: {"ACME": "Acme"}
		legal_suffixes: ["LLC"]
		function_words: ["of"]
		extract_patterns: []
	}
	tolerances: {
		amount_floor:           "0.50"
		amount_percent:         0.01
		date_window_days:       3
		max_date_window_days:   90
		sum_window_days:        5
		wide_amount_percent:    0.03
		wide_date_window_days:  10
		name_threshold:         0.9
		min_name_length:        3
		default_classification: "other"
	}
}
`), 0o644))

	rs, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"XX *"}, rs.Tables.ProcessorPrefixes)
	assert.Equal(t, "other", rs.Tolerances.DefaultClassification)
	assert.Equal(t, "0.5", rs.Tolerances.AmountFloor.String())
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
rules: tolerances: name_threshold: 2.5
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	var ce *CompileError
	assert.ErrorAs(t, err, &ce)
}

func minimalTolerances() Tolerances {
	rs, err := Default()
	if err != nil {
		panic(err)
	}
	return rs.Tolerances
}
