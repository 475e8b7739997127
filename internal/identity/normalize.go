// Package identity canonicalizes free-text identity fields and clusters
// near-duplicate name variants into durable canonical names.
package identity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tallyforge/reconcile/internal/rules"
)

// Normalizer canonicalizes merchant/provider/customer names. All lookup
// tables are injected at construction; a Normalizer is immutable and safe
// for concurrent use.
type Normalizer struct {
	tables *rules.Tables
}

// New creates a Normalizer over the given rule tables.
func New(tables *rules.Tables) *Normalizer {
	return &Normalizer{tables: tables}
}

var (
	// Trailing reference suffixes: ":12345678", "/123456", ".987654",
	// plus short numeric codes after a slash or colon ("/123", ":0042").
	longRefSuffix  = regexp.MustCompile(`[:/.]\s*\d{6,}\s*$`)
	shortRefSuffix = regexp.MustCompile(`[/:]\s*\d{3,}\s*$`)
)

// Normalize canonicalizes a raw descriptor into a display name.
//
// Pipeline: trim quotes/whitespace, strip one processor prefix, collapse
// separators, strip trailing transaction-id and reference suffixes, consult
// the known-name mapping (a hit short-circuits), title-case shouty input,
// strip a trailing legal-entity suffix.
//
// Never returns "" for non-empty input: if cleaning consumes everything,
// the original trimmed input comes back instead.
func (n *Normalizer) Normalize(raw string) string {
	original := strings.TrimSpace(raw)
	s := strings.TrimSpace(strings.Trim(original, `"'`))

	s = n.stripProcessorPrefix(s)

	// Asterisks and pipes are separator noise from card networks.
	s = strings.Map(func(r rune) rune {
		if r == '*' || r == '|' {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")

	s = stripTransactionIDSuffix(s)
	s = strings.TrimSpace(longRefSuffix.ReplaceAllString(s, ""))
	s = strings.TrimSpace(shortRefSuffix.ReplaceAllString(s, ""))
	// A digits-only reference stripped as an id token can leave its
	// introducing punctuation behind.
	s = strings.TrimRight(s, " :/.,-")

	if mapped, ok := n.tables.LookupKnownName(strings.ToUpper(s)); ok {
		return mapped
	}

	if isShouty(s) && len(s) > 3 {
		s = n.titleCase(s)
	}

	s = n.stripLegalSuffix(s)

	if s == "" {
		return original
	}
	return s
}

// stripProcessorPrefix removes one known payment-processor prefix,
// case-insensitively, first match wins.
func (n *Normalizer) stripProcessorPrefix(s string) string {
	for _, prefix := range n.tables.ProcessorPrefixes {
		if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}

// stripTransactionIDSuffix drops a trailing alphanumeric token of length
// >=8 containing at least one digit. The digit requirement guards genuine
// long surnames; the whitespace requirement keeps single-token input whole.
func stripTransactionIDSuffix(s string) string {
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		return s
	}
	token := s[i+1:]
	if len(token) < 8 {
		return s
	}
	hasDigit := false
	for _, r := range token {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return s
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	if !hasDigit {
		return s
	}
	return strings.TrimSpace(s[:i])
}

// titleCase converts a shouty string to title case, keeping configured
// function words lower-case except in first position.
func (n *Normalizer) titleCase(s string) string {
	caser := cases.Title(language.English)
	words := strings.Fields(s)
	for i, w := range words {
		lower := strings.ToLower(w)
		if i > 0 && n.tables.IsFunctionWord(lower) {
			words[i] = lower
			continue
		}
		words[i] = caser.String(lower)
	}
	return strings.Join(words, " ")
}

// stripLegalSuffix removes a trailing corporate-form token ("LLC", "GmbH").
func (n *Normalizer) stripLegalSuffix(s string) string {
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		return s
	}
	last := strings.Trim(s[i+1:], ".,")
	if n.tables.IsLegalSuffix(last) {
		return strings.TrimRight(strings.TrimSpace(s[:i]), ",")
	}
	return s
}

// isShouty reports whether s is entirely upper-case (contains at least one
// letter and no lower-case letters).
func isShouty(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CompareKey produces the stricter form used only for similarity scoring:
// lower-case, diacritics stripped, punctuation removed, legal-suffix tokens
// dropped as whole words, whitespace collapsed.
func (n *Normalizer) CompareKey(raw string) string {
	s, _, err := transform.String(stripMarks, raw)
	if err != nil {
		// Transform failures on malformed UTF-8 degrade to the raw
		// string; a worse similarity score beats a dropped candidate.
		s = raw
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if n.tables.IsLegalSuffix(w) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
