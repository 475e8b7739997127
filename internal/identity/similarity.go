package identity

import (
	"github.com/agnivade/levenshtein"
)

// Similarity scores how alike two raw names are, in [0,1].
//
// Both inputs are reduced to comparison keys first, so punctuation, casing,
// diacritics, and legal suffixes never affect the score. Equal keys
// (including both empty) score 1.0; one empty key scores 0. Otherwise the
// score is 1 - editDistance/maxLen, which keeps the threshold comparison
// length-invariant.
//
// Cost is O(len(a)*len(b)) per pair. Callers pre-filter candidates with
// exact and bucketed index lookups before paying for this.
func (n *Normalizer) Similarity(a, b string) float64 {
	ka := n.CompareKey(a)
	kb := n.CompareKey(b)
	return KeySimilarity(ka, kb)
}

// KeySimilarity scores two precomputed comparison keys. Exposed so the
// resolver can cache keys across the O(n^2)-ish clustering scan.
func KeySimilarity(ka, kb string) float64 {
	if ka == kb {
		return 1.0
	}
	if ka == "" || kb == "" {
		return 0
	}

	dist := levenshtein.ComputeDistance(ka, kb)
	la, lb := len([]rune(ka)), len([]rune(kb))
	max := la
	if lb > max {
		max = lb
	}
	return 1.0 - float64(dist)/float64(max)
}
