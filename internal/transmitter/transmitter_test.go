package transmitter

import "testing"

func containsStr(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

func TestSelectKeepsUnsampledCapabilities(t *testing.T) {
	result := Select([]string{"web_search"}, map[string]Sample{}, 0.5)
	if !containsStr(result.Kept, "web_search") {
		t.Fatalf("expected unsampled capability to be kept, got %+v", result)
	}
	if result.Baseline.HasMean {
		t.Fatal("expected no baseline mean when nothing was sampled")
	}
}

func TestSelectDropsBelowThreshold(t *testing.T) {
	samples := map[string]Sample{
		"weak":   {SuccessRate: 0.2, SampleSize: 10},
		"strong": {SuccessRate: 0.9, SampleSize: 10},
	}
	result := Select([]string{"weak", "strong"}, samples, 0.5)
	if !containsStr(result.Dropped, "weak") {
		t.Fatalf("expected weak to be dropped, got %+v", result)
	}
	if !containsStr(result.Kept, "strong") {
		t.Fatalf("expected strong to be kept, got %+v", result)
	}
	if !result.Baseline.HasMean || result.Baseline.Mean != 0.55 {
		t.Fatalf("expected baseline mean 0.55, got %+v", result.Baseline)
	}
}

func TestSelectKeepsExactTieAtThreshold(t *testing.T) {
	samples := map[string]Sample{"at_threshold": {SuccessRate: 0.5, SampleSize: 4}}
	result := Select([]string{"at_threshold"}, samples, 0.5)
	if !containsStr(result.Kept, "at_threshold") {
		t.Fatalf("expected capability exactly at threshold to be kept, got %+v", result)
	}
	if len(result.Dropped) != 0 {
		t.Fatalf("expected nothing dropped, got %+v", result.Dropped)
	}
}
