package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Tables holds the lookup data used by the normalizer and entity resolver.
// All matching against Tables is case-insensitive; keys are stored upper-cased.
type Tables struct {
	// ProcessorPrefixes are card-network / aggregator tokens stripped from
	// the front of descriptors ("SQ *", "TST* ", "PAYPAL *"). First match
	// wins, applied at most once.
	ProcessorPrefixes []string

	// KnownNames maps a cleaned, upper-cased dirty name to its canonical
	// display form ("UBER" -> "Uber"). Exact match or prefix match; a hit
	// bypasses the casing rules entirely.
	KnownNames map[string]string

	// LegalSuffixes are corporate-form abbreviations stripped when they
	// appear as the final token ("LLC", "INC", "GMBH", "SARL").
	LegalSuffixes []string

	// FunctionWords stay lower-case in title casing except as first word
	// ("of", "and", "de", "la").
	FunctionWords []string

	// ExtractPatterns pull a probable counterparty name out of free-text
	// descriptions (wire originator fields, transfer prefixes).
	ExtractPatterns []ExtractPattern

	knownNameKeys []string            // sorted longest-first for prefix matching
	legalSuffixes map[string]struct{} // upper-cased set
	functionWords map[string]struct{} // lower-cased set
}

// ExtractPattern is a compiled free-text identity extraction rule.
// Pattern must contain exactly one capture group: the extracted name.
type ExtractPattern struct {
	Name    string
	Pattern string

	re *regexp.Regexp
}

// Match applies the pattern to a description and returns the captured
// name, or "" when the pattern does not apply.
func (p *ExtractPattern) Match(description string) string {
	m := p.re.FindStringSubmatch(description)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Tolerances holds the numeric knobs of the strategy cascade. The widened
// variants apply only during a --widen second pass.
type Tolerances struct {
	// AmountFloor is the absolute floor of the amount tolerance; the
	// effective tolerance is max(AmountFloor, AmountPercent of amount).
	AmountFloor   decimal.Decimal
	AmountPercent float64

	// DateWindowDays bounds the amount-keyed strategies: a target dated
	// further away is not an amount match, however close the figures.
	// MaxDateWindowDays bounds the nearest-date strategies.
	DateWindowDays    int
	MaxDateWindowDays int

	// SumWindowDays bounds the payout aggregation window.
	SumWindowDays int

	// Widened-pass variants.
	WideAmountPercent  float64
	WideDateWindowDays int

	// NameThreshold is the similarity cutoff for entity clustering and
	// name-keyed strategies. MinNameLength excludes short names from
	// clustering.
	NameThreshold float64
	MinNameLength int

	// DefaultClassification is the label the catch-all strategy assigns.
	DefaultClassification string
}

// Widened returns a copy with the second-pass tolerances promoted.
func (t Tolerances) Widened() Tolerances {
	w := t
	if t.WideAmountPercent > t.AmountPercent {
		w.AmountPercent = t.WideAmountPercent
	}
	if t.WideDateWindowDays > t.DateWindowDays {
		w.DateWindowDays = t.WideDateWindowDays
	}
	return w
}

// RuleSet is a compiled, immutable rule configuration.
type RuleSet struct {
	Tables     Tables
	Tolerances Tolerances
}

// Build validates the rule set and precomputes derived lookup structures.
// Must be called once after decoding and before use.
func (rs *RuleSet) Build() error {
	t := &rs.Tables

	t.legalSuffixes = make(map[string]struct{}, len(t.LegalSuffixes))
	for _, s := range t.LegalSuffixes {
		t.legalSuffixes[strings.ToUpper(s)] = struct{}{}
	}

	t.functionWords = make(map[string]struct{}, len(t.FunctionWords))
	for _, w := range t.FunctionWords {
		t.functionWords[strings.ToLower(w)] = struct{}{}
	}

	// Upper-case known-name keys, longest first so the most specific
	// prefix wins.
	upper := make(map[string]string, len(t.KnownNames))
	t.knownNameKeys = t.knownNameKeys[:0]
	for k, v := range t.KnownNames {
		uk := strings.ToUpper(strings.TrimSpace(k))
		upper[uk] = v
		t.knownNameKeys = append(t.knownNameKeys, uk)
	}
	t.KnownNames = upper
	sortByLengthDesc(t.knownNameKeys)

	for i := range t.ExtractPatterns {
		p := &t.ExtractPatterns[i]
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return fmt.Errorf("extract pattern %q: %w", p.Name, err)
		}
		if re.NumSubexp() != 1 {
			return fmt.Errorf("extract pattern %q: expected exactly one capture group, got %d", p.Name, re.NumSubexp())
		}
		p.re = re
	}

	v := &rs.Tolerances
	if v.AmountPercent < 0 || v.AmountPercent > 1 {
		return fmt.Errorf("amount_percent %v: must be in [0,1]", v.AmountPercent)
	}
	if v.NameThreshold <= 0 || v.NameThreshold > 1 {
		return fmt.Errorf("name_threshold %v: must be in (0,1]", v.NameThreshold)
	}
	if v.DateWindowDays < 0 || v.MaxDateWindowDays < v.DateWindowDays {
		return fmt.Errorf("date windows: max_date_window_days (%d) must be >= date_window_days (%d)",
			v.MaxDateWindowDays, v.DateWindowDays)
	}
	if v.DefaultClassification == "" {
		return fmt.Errorf("default_classification must not be empty")
	}
	return nil
}

// IsLegalSuffix reports whether token (any casing) is a legal-entity suffix.
func (t *Tables) IsLegalSuffix(token string) bool {
	_, ok := t.legalSuffixes[strings.ToUpper(token)]
	return ok
}

// IsFunctionWord reports whether word (any casing) stays lower-case in
// title casing.
func (t *Tables) IsFunctionWord(word string) bool {
	_, ok := t.functionWords[strings.ToLower(word)]
	return ok
}

// LookupKnownName resolves a cleaned, upper-cased string against the known
// dirty→canonical mapping. Exact match first, then prefix match with the
// longest key winning.
func (t *Tables) LookupKnownName(upper string) (string, bool) {
	if v, ok := t.KnownNames[upper]; ok {
		return v, true
	}
	for _, k := range t.knownNameKeys {
		if strings.HasPrefix(upper, k) {
			return t.KnownNames[k], true
		}
	}
	return "", false
}

func sortByLengthDesc(keys []string) {
	// Stable insertion sort; key lists are small and order ties by
	// original position for determinism.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && len(keys[j]) > len(keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}
