package workflow

import (
	"math/rand"
	"time"
)

// Pair is an ordered two-step workflow of tool names.
type Pair [2]string

// Pairwise returns the ordered pairs (a, b) for a in as and b in bs in nested
// iteration order, stopping once limit pairs have been produced. A limit of
// zero or less means no limit. When excludeSelf is set, pairs with a == b are
// skipped and do not count against the limit.
func Pairwise(as, bs []string, limit int, excludeSelf bool) []Pair {
	var pairs []Pair
	for _, a := range as {
		for _, b := range bs {
			if excludeSelf && a == b {
				continue
			}
			pairs = append(pairs, Pair{a, b})
			if limit > 0 && len(pairs) >= limit {
				return pairs
			}
		}
	}
	return pairs
}

// Pools builds one workflow list per pattern of the recipe from the given
// tool names. Each list is shuffled independently with rng when rng is non-nil.
func Pools(r *Recipe, names []string, rng *rand.Rand) map[string][]Pair {
	groups := NewClassifier(r.Rules).ClassifyAll(r.Usable(names))
	pools := make(map[string][]Pair, len(r.Patterns))
	for _, p := range r.Patterns {
		pairs := Pairwise(groups[p.From], groups[p.To], r.capFor(p), r.excludeSelf(p))
		if rng != nil {
			Shuffle(pairs, rng)
		}
		pools[p.Label()] = pairs
	}
	return pools
}

// Build concatenates the pattern pair lists in recipe order and shuffles the
// combined list once with rng. It is the flat form of Pools; generation runs
// schedule from Pools, discover previews from Build.
func Build(r *Recipe, names []string, rng *rand.Rand) []Pair {
	pools := Pools(r, names, nil)
	var all []Pair
	for _, p := range r.Patterns {
		all = append(all, pools[p.Label()]...)
	}
	if rng != nil {
		Shuffle(all, rng)
	}
	return all
}

// Shuffle permutes pairs in place.
func Shuffle(pairs []Pair, rng *rand.Rand) {
	rng.Shuffle(len(pairs), func(i, j int) {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	})
}

// NewRand returns a random source for workflow shuffling. A zero seed
// yields a time-seeded, non-reproducible source.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
