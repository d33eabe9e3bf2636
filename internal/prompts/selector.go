package prompts

import (
	"math/rand/v2"
	"sort"
)

// Choice is the outcome of a selection.
type Choice struct {
	Name     string
	Template string
	// Explored is true when the prompt was sampled uniformly instead of
	// picked by score.
	Explored bool
	// Fallback is true when no prompt was eligible and the built-in default
	// was returned under SentinelFallback.
	Fallback bool
}

// Selector implements an epsilon-greedy policy over a catalog. It keeps no
// learning state of its own; scores live in the Store.
type Selector struct {
	threshold float64
	rng       *rand.Rand
}

// NewSelector creates a selector that ignores prompts scoring below threshold.
// A nil rng uses a randomly seeded generator.
func NewSelector(threshold float64, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{threshold: threshold, rng: rng}
}

// NewSeededSelector creates a selector with a deterministic random source.
func NewSeededSelector(threshold float64, seed uint64) *Selector {
	return NewSelector(threshold, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Select picks a prompt from catalog. With probability explorationRate a
// uniformly random eligible prompt is returned, otherwise the highest scoring
// one, ties broken by name.
func (s *Selector) Select(catalog Catalog, explorationRate float64) Choice {
	eligible := s.Eligible(catalog)
	if len(eligible) == 0 {
		return Choice{Name: SentinelFallback, Template: FallbackTemplate, Fallback: true}
	}

	if explorationRate > 0 && s.rng.Float64() < explorationRate {
		name := eligible[s.rng.IntN(len(eligible))]
		return Choice{Name: name, Template: catalog[name].Template, Explored: true}
	}

	best := eligible[0]
	for _, name := range eligible[1:] {
		if catalog[name].Score > catalog[best].Score {
			best = name
		}
	}
	return Choice{Name: best, Template: catalog[best].Template}
}

// Eligible returns the names that may currently be selected, sorted.
// Eligibility is purely score based, so an excluded prompt becomes eligible
// again once its score recovers.
func (s *Selector) Eligible(catalog Catalog) []string {
	names := make([]string, 0, len(catalog))
	for name, rec := range catalog {
		if IsSentinel(name) || rec.Score < s.threshold {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
