package mutation

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"
)

// OperatorFunc is the shape every mutation operator satisfies.
type OperatorFunc func(Config, *rand.Rand) Config

// Engine selects and applies mutation operators using a weighted random
// draw, gated by an overall mutation rate. Weights need not sum to 1 on
// input; Select renormalizes them.
type Engine struct {
	operators map[string]OperatorFunc
	weights   map[string]float64
	order     []string // stable iteration order for deterministic selection given a seed
	rate      float64  // probability that Apply runs any operator at all
}

// DefaultWeights mirrors the original daemon's operator preference: favor
// incremental tuning over wholesale reinvention.
var DefaultWeights = map[string]float64{
	OpParameterTuning:       0.40,
	OpNewGoalInjection:      0.30,
	OpStrategyVariation:     0.20,
	OpRandomInnovation:      0.10,
	OpCapabilityCombination: 0.10,
}

// DefaultRate is used when no mutation rate is configured: every transition
// applies a mutation.
const DefaultRate = 1.0

// NewEngine builds an Engine with the given operator weights (renormalized
// to sum to 1; see Select) and mutation rate. A nil or empty weights map
// uses DefaultWeights. A negative rate uses DefaultRate; a rate of 0 never
// applies a mutation.
func NewEngine(weights map[string]float64, rate float64) *Engine {
	if len(weights) == 0 {
		weights = DefaultWeights
	}
	if rate < 0 {
		rate = DefaultRate
	}
	e := &Engine{
		operators: map[string]OperatorFunc{
			OpParameterTuning:       ParameterTuning,
			OpNewGoalInjection:      NewGoalInjection,
			OpStrategyVariation:     StrategyVariation,
			OpRandomInnovation:      RandomInnovation,
			OpCapabilityCombination: CapabilityCombination,
		},
		weights: make(map[string]float64, len(weights)),
		rate:    rate,
	}
	for name := range e.operators {
		if w, ok := weights[name]; ok {
			e.weights[name] = w
		}
	}
	e.order = sortedOperatorNames(e.weights)
	return e
}

// Record is the auditable outcome of one mutation application, appended to
// the lineage entry that results from it. Operator is empty when the
// mutation-rate gate suppressed any mutation this generation.
type Record struct {
	Operator  string    `json:"operator,omitempty"`
	Seed      uint64    `json:"seed"`
	Before    Config    `json:"before"`
	After     Config    `json:"after"`
	AppliedAt time.Time `json:"applied_at"`
}

// Select deterministically picks an operator name given rng: weights are
// renormalized to sum to 1, then a single rng.Float64() draw walks the
// cumulative distribution in a fixed (sorted) operator order so the same
// rng stream always yields the same choice.
func (e *Engine) Select(rng *rand.Rand) (string, error) {
	total := 0.0
	for _, w := range e.weights {
		total += w
	}
	if total <= 0 {
		return "", fmt.Errorf("mutation: operator weights sum to %v, must be positive", total)
	}

	draw := rng.Float64() * total
	cum := 0.0
	for _, name := range e.order {
		cum += e.weights[name]
		if draw < cum {
			return name, nil
		}
	}
	return e.order[len(e.order)-1], nil
}

// Apply draws the mutation-rate gate first: if that draw falls at or above
// e.rate, no operator runs and cfg passes through unchanged (Record.Operator
// is empty). Otherwise it selects and runs one operator, returning a full
// Record. seed is the generation transition's seed (see supervisor), so
// replaying the same seed against the same genome config always reproduces
// the same outcome, gated or not.
func (e *Engine) Apply(cfg Config, seed uint64) (Config, Record, error) {
	rng := rand.New(rand.NewPCG(seed, seed>>32|1))

	if rng.Float64() >= e.rate {
		return cfg.Clone(), Record{
			Seed:      seed,
			Before:    cfg.Clone(),
			After:     cfg.Clone(),
			AppliedAt: time.Now().UTC(),
		}, nil
	}

	name, err := e.Select(rng)
	if err != nil {
		return Config{}, Record{}, err
	}
	op, ok := e.operators[name]
	if !ok {
		return Config{}, Record{}, fmt.Errorf("mutation: unknown operator %q", name)
	}

	after := op(cfg, rng)
	return after, Record{
		Operator:  name,
		Seed:      seed,
		Before:    cfg.Clone(),
		After:     after.Clone(),
		AppliedAt: time.Now().UTC(),
	}, nil
}

func sortedOperatorNames(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
