package identity

import (
	"sort"
	"strings"
)

// Resolver clusters near-duplicate canonical names into a single durable
// identity with a deterministic representative label.
type Resolver struct {
	norm *Normalizer

	// minLength excludes short common words from clustering; they map to
	// themselves.
	minLength int
}

// NewResolver creates a Resolver. minLength names (and shorter) are left
// unclustered.
func NewResolver(norm *Normalizer, minLength int) *Resolver {
	return &Resolver{norm: norm, minLength: minLength}
}

// Cluster is one group of name variants with its chosen canonical label.
type Cluster struct {
	Canonical string   `json:"canonical"`
	Members   []string `json:"members"`
}

// Deduplicate greedily clusters names whose similarity to a cluster seed
// meets threshold. Returns a complete name→canonical mapping (every input
// name appears, short names map to themselves) and the clusters formed.
//
// Names are visited longest first, ties broken by input order, so the
// longest (assumed most descriptive) variant becomes the canonical label
// and repeated runs over the same input produce identical output.
//
// This is a single greedy pass against cluster seeds, not transitive
// clustering: two similar names can land in different clusters when the
// name bridging them was already consumed. That false-negative rate is
// accepted over the cost of full pairwise clustering.
func (r *Resolver) Deduplicate(names []string, threshold float64) (map[string]string, []Cluster) {
	mapping := make(map[string]string, len(names))

	// Work on unique names; duplicates share one mapping entry.
	seen := make(map[string]struct{}, len(names))
	ordered := make([]string, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		ordered = append(ordered, name)
	}

	var candidates []string
	for _, name := range ordered {
		if len(name) < r.minLength {
			mapping[name] = name
			continue
		}
		candidates = append(candidates, name)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})

	keys := make([]string, len(candidates))
	for i, name := range candidates {
		keys[i] = r.norm.CompareKey(name)
	}

	var clusters []Cluster
	assigned := make([]bool, len(candidates))
	for i, seed := range candidates {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		cluster := Cluster{Canonical: seed, Members: []string{seed}}
		mapping[seed] = seed

		for j := i + 1; j < len(candidates); j++ {
			if assigned[j] {
				continue
			}
			if clusterScore(keys[i], keys[j]) >= threshold {
				assigned[j] = true
				mapping[candidates[j]] = seed
				cluster.Members = append(cluster.Members, candidates[j])
			}
		}
		clusters = append(clusters, cluster)
	}

	return mapping, clusters
}

// clusterScore scores two comparison keys for clustering purposes.
//
// Edit-distance similarity alone under-scores descriptor extensions:
// gateways commonly emit a base brand plus a venue or product suffix
// ("amazon" vs "amazon marketplace"), which are the same entity but far
// apart in raw edit distance. When one key's token sequence is a whole-token
// prefix of the other's, the pair scores 1.0; otherwise the plain
// length-normalized edit-distance score applies.
func clusterScore(a, b string) float64 {
	if a != "" && b != "" {
		short, long := a, b
		if len(short) > len(long) {
			short, long = long, short
		}
		if short == long || strings.HasPrefix(long, short+" ") {
			return 1.0
		}
	}
	return KeySimilarity(a, b)
}
