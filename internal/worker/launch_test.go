package worker

import "testing"

func TestBuildLaunchSpecSubstitutesGenomePlaceholder(t *testing.T) {
	spec := BuildLaunchSpec([]string{"python3", "${GENOME}/run.py", "--genome-dir", "${GENOME}"}, "/var/lib/evolvd/genomes/abc123", nil)
	if spec.Command != "python3" {
		t.Fatalf("expected command python3, got %s", spec.Command)
	}
	want := []string{"/var/lib/evolvd/genomes/abc123/run.py", "--genome-dir", "/var/lib/evolvd/genomes/abc123"}
	if len(spec.Args) != len(want) {
		t.Fatalf("expected %d args, got %d: %v", len(want), len(spec.Args), spec.Args)
	}
	for i := range want {
		if spec.Args[i] != want[i] {
			t.Fatalf("arg %d: expected %q, got %q", i, want[i], spec.Args[i])
		}
	}
	if spec.WorkDir != "/var/lib/evolvd/genomes/abc123" {
		t.Fatalf("unexpected work dir: %s", spec.WorkDir)
	}
}

func TestBuildLaunchSpecEmptyTemplate(t *testing.T) {
	spec := BuildLaunchSpec(nil, "/genome", nil)
	if spec.Command != "" {
		t.Fatalf("expected empty command for empty template, got %q", spec.Command)
	}
}
