package mutation

import (
	"math/rand/v2"
	"reflect"
	"testing"
)

func deterministicRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func sampleConfig() Config {
	return Config{
		Parameters: map[string]float64{"temperature": 0.7, "top_p": 0.9},
		Capabilities: []Capability{
			{ID: "web_search", Fitness: 0.6},
			{ID: "memory_recall", Fitness: 0.4},
		},
		Goals:           []Goal{{ID: "improve latency", Priority: 1}},
		ExplorationRate: 0.1,
	}
}

func TestApplyIsDeterministicGivenSeed(t *testing.T) {
	e := NewEngine(nil, 1.0)
	cfg := sampleConfig()

	after1, rec1, err := e.Apply(cfg, 42)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	after2, rec2, err := e.Apply(cfg, 42)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if rec1.Operator != rec2.Operator {
		t.Fatalf("same seed selected different operators: %s vs %s", rec1.Operator, rec2.Operator)
	}
	if !reflect.DeepEqual(after1, after2) {
		t.Fatalf("same seed produced different resulting configs: %+v vs %+v", after1, after2)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	e := NewEngine(nil, 1.0)
	cfg := sampleConfig()
	original := cfg.Clone()

	if _, _, err := e.Apply(cfg, 7); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !reflect.DeepEqual(cfg, original) {
		t.Fatalf("Apply mutated its input: before=%+v after=%+v", original, cfg)
	}
}

func TestZeroRateProducesNoMutation(t *testing.T) {
	e := NewEngine(nil, 0)
	cfg := sampleConfig()

	for seed := uint64(0); seed < 50; seed++ {
		after, rec, err := e.Apply(cfg, seed)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if rec.Operator != "" {
			t.Fatalf("expected a zero mutation rate to never select an operator, got %s", rec.Operator)
		}
		if !reflect.DeepEqual(after, cfg) {
			t.Fatalf("gated-off mutation still changed the config: %+v vs %+v", after, cfg)
		}
	}
}

func TestWeightsRenormalizeWhenNotSummingToOne(t *testing.T) {
	e := NewEngine(map[string]float64{
		OpParameterTuning:  10,
		OpRandomInnovation: 30,
	}, 1.0)
	rng := deterministicRand(1)
	name, err := e.Select(rng)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if name != OpParameterTuning && name != OpRandomInnovation {
		t.Fatalf("expected selection restricted to configured operators, got %s", name)
	}
}

func TestOperatorsAlwaysProduceAChange(t *testing.T) {
	cfg := Config{} // empty genome: every operator must still make progress via fallback
	rng := deterministicRand(99)

	for _, op := range []OperatorFunc{ParameterTuning, NewGoalInjection, StrategyVariation, RandomInnovation, CapabilityCombination} {
		result := op(cfg, rng)
		if reflect.DeepEqual(result, cfg) {
			t.Fatalf("operator produced no change on an empty genome")
		}
	}
}

func TestParameterTuningClampsFitnessToUnitInterval(t *testing.T) {
	cfg := Config{Capabilities: []Capability{{ID: "web_search", Fitness: 0.98}}}
	for seed := uint64(0); seed < 200; seed++ {
		rng := deterministicRand(seed)
		result := ParameterTuning(cfg, rng)
		f := result.Capabilities[0].Fitness
		if f < 0 || f > 1 {
			t.Fatalf("fitness escaped [0,1]: %v", f)
		}
	}
}

func TestStrategyVariationClampsExplorationRate(t *testing.T) {
	cfg := Config{ExplorationRate: 0.49}
	for seed := uint64(0); seed < 200; seed++ {
		rng := deterministicRand(seed)
		result := StrategyVariation(cfg, rng)
		if result.ExplorationRate < minExplorationRate || result.ExplorationRate > maxExplorationRate {
			t.Fatalf("exploration rate escaped [%v,%v]: %v", minExplorationRate, maxExplorationRate, result.ExplorationRate)
		}
	}
}

func TestCapabilityCombinationRequiresTwoCapabilities(t *testing.T) {
	cfg := Config{Capabilities: []Capability{{ID: "web_search", Fitness: 0.5}}}
	rng := deterministicRand(3)
	result := CapabilityCombination(cfg, rng)
	// falls back to RandomInnovation, which must add something
	if len(result.Innovations) == 0 && len(result.Parameters) == 0 {
		t.Fatal("expected fallback to add an innovation or parameter")
	}
}

func TestCapabilityCombinationAppendsAStructuredRecord(t *testing.T) {
	cfg := Config{Capabilities: []Capability{
		{ID: "web_search", Fitness: 0.5},
		{ID: "memory_recall", Fitness: 0.5},
	}}
	rng := deterministicRand(3)
	result := CapabilityCombination(cfg, rng)
	if len(result.Combinations) != 1 {
		t.Fatalf("expected exactly one combination record, got %+v", result.Combinations)
	}
	if result.Combinations[0].Synergy != 1.2 {
		t.Fatalf("expected synergy 1.2, got %v", result.Combinations[0].Synergy)
	}
}
