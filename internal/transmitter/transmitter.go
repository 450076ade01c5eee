// Package transmitter implements the Genetic Transmitter: the pure
// selection function that decides which capabilities survive a generation
// transition, given whatever fitness samples were collected for them.
package transmitter

// Sample is one capability's observed fitness for the generation about to
// end. A capability with no Sample is kept unconditionally: an evolvd
// deployment that never wires up fitness tracking should behave as a
// pass-through, not a capability-destroying no-op.
type Sample struct {
	SuccessRate float64
	SampleSize  int
}

// Baseline summarizes the fitness samples considered during one selection
// pass, for display in `status`/`history`.
type Baseline struct {
	Mean         float64
	HasMean      bool // false when no capability had a sample; Mean is meaningless then
	KeptCount    int
	DroppedCount int
}

// Result is the outcome of one selection pass.
type Result struct {
	Kept     []string
	Dropped  []string
	Baseline Baseline
}

// Select decides which of capabilities survive into the next generation.
// A capability is kept iff it has no fitness sample, or its sample's
// success rate is >= threshold (ties are kept, never dropped).
func Select(capabilities []string, samples map[string]Sample, threshold float64) Result {
	var result Result
	var sum float64
	var sampledCount int

	for _, cap := range capabilities {
		sample, hasSample := samples[cap]
		if !hasSample {
			result.Kept = append(result.Kept, cap)
			continue
		}
		sum += sample.SuccessRate
		sampledCount++

		if sample.SuccessRate >= threshold {
			result.Kept = append(result.Kept, cap)
		} else {
			result.Dropped = append(result.Dropped, cap)
		}
	}

	result.Baseline.KeptCount = len(result.Kept)
	result.Baseline.DroppedCount = len(result.Dropped)
	if sampledCount > 0 {
		result.Baseline.Mean = sum / float64(sampledCount)
		result.Baseline.HasMean = true
	}
	return result
}
