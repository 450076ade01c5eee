// Package mutation implements the five deterministic, seeded mutation
// operators the supervisor applies to a worker's genome at each generation
// transition.
package mutation

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// Operator names, as recorded in lineage entries and mutation records.
const (
	OpParameterTuning       = "ParameterTuning"
	OpNewGoalInjection      = "NewGoalInjection"
	OpStrategyVariation     = "StrategyVariation"
	OpRandomInnovation      = "RandomInnovation"
	OpCapabilityCombination = "CapabilityCombination"
)

// minExplorationRate, maxExplorationRate, and defaultExplorationRate bound
// StrategyVariation's numeric exploration_rate genome field.
const (
	minExplorationRate     = 0.05
	maxExplorationRate     = 0.50
	defaultExplorationRate = 0.10
)

// candidateGoals and candidateCapabilities seed new, previously-unseen
// material into a genome. A real deployment would draw these from a
// configured pool; a small fixed pool keeps the engine self-contained and
// deterministic given a seed.
var candidateGoals = []string{
	"improve response accuracy",
	"reduce latency",
	"increase robustness to malformed input",
	"broaden tool usage",
	"improve self-correction",
}

var candidateCapabilities = []string{
	"web_search",
	"code_execution",
	"memory_recall",
	"multi_step_planning",
	"self_critique",
}

// ParameterTuning nudges one existing capability's fitness value additively
// by a random delta in [-0.1, +0.1], clamped to [0,1]. If there are no
// capabilities to tune, it falls back to RandomInnovation.
func ParameterTuning(cfg Config, rng *rand.Rand) Config {
	out := cfg.Clone()
	if len(out.Capabilities) == 0 {
		return RandomInnovation(cfg, rng)
	}
	i := rng.IntN(len(out.Capabilities))
	delta := -0.1 + rng.Float64()*0.2
	fitness := out.Capabilities[i].Fitness + delta
	out.Capabilities[i].Fitness = clamp01(fitness)
	return out
}

// NewGoalInjection appends one structured goal from the candidate pool that
// the genome does not already carry, with a randomly assigned priority. If
// every candidate goal is already present, it falls back to RandomInnovation.
func NewGoalInjection(cfg Config, rng *rand.Rand) Config {
	out := cfg.Clone()
	have := make(map[string]bool, len(out.Goals))
	for _, g := range out.Goals {
		have[g.ID] = true
	}
	var remaining []string
	for _, g := range candidateGoals {
		if !have[g] {
			remaining = append(remaining, g)
		}
	}
	if len(remaining) == 0 {
		return RandomInnovation(cfg, rng)
	}
	out.Goals = append(out.Goals, Goal{
		ID:       remaining[rng.IntN(len(remaining))],
		Priority: 1 + rng.IntN(5),
	})
	return out
}

// StrategyVariation nudges the genome's numeric exploration_rate by a random
// delta in [-0.05, +0.05], clamped to [0.05, 0.50]. A genome with no prior
// exploration_rate set starts from the default of 0.10.
func StrategyVariation(cfg Config, rng *rand.Rand) Config {
	out := cfg.Clone()
	base := out.ExplorationRate
	if base == 0 {
		base = defaultExplorationRate
	}
	delta := -0.05 + rng.Float64()*0.1
	out.ExplorationRate = clamp(base+delta, minExplorationRate, maxExplorationRate)
	return out
}

// RandomInnovation appends a structured innovation record for a brand-new
// capability not already present in the genome, with a random potential
// score. It is also the universal fallback for every other operator when its
// own precondition cannot be met, so it must itself always make progress: if
// the genome already has every candidate capability as an innovation, it
// instead sets a parameter named innovation_weight_<n> (n is one more than
// the number of parameters) to a random value.
func RandomInnovation(cfg Config, rng *rand.Rand) Config {
	out := cfg.Clone()
	have := make(map[string]bool, len(out.Innovations))
	for _, in := range out.Innovations {
		have[in.ID] = true
	}
	var remaining []string
	for _, c := range candidateCapabilities {
		if !have[c] {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) > 0 {
		out.Innovations = append(out.Innovations, Innovation{
			ID:             remaining[rng.IntN(len(remaining))],
			PotentialScore: rng.Float64(),
		})
		return out
	}
	if out.Parameters == nil {
		out.Parameters = make(map[string]float64)
	}
	key := fmt.Sprintf("innovation_weight_%d", len(out.Parameters)+1)
	out.Parameters[key] = rng.Float64()
	return out
}

// CapabilityCombination pairs two existing capabilities into a structured
// combination record with a synergy multiplier of 1.2. Requires at least two
// existing capabilities; otherwise falls back to RandomInnovation.
func CapabilityCombination(cfg Config, rng *rand.Rand) Config {
	out := cfg.Clone()
	if len(out.Capabilities) < 2 {
		return RandomInnovation(cfg, rng)
	}
	ids := make([]string, len(out.Capabilities))
	for i, c := range out.Capabilities {
		ids[i] = c.ID
	}
	sort.Strings(ids)
	i := rng.IntN(len(ids))
	j := rng.IntN(len(ids) - 1)
	if j >= i {
		j++
	}
	pair := [2]string{ids[i], ids[j]}
	for _, c := range out.Combinations {
		if c.Pair == pair || c.Pair == [2]string{pair[1], pair[0]} {
			return RandomInnovation(cfg, rng)
		}
	}
	out.Combinations = append(out.Combinations, Combination{Pair: pair, Synergy: 1.2})
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
