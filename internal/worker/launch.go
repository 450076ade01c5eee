package worker

import "strings"

// genomePlaceholder is substituted with the materialized genome directory
// in a worker's command template, letting config point at a fixed command
// shape ("python", "${GENOME}/run.py") while the directory itself changes
// every generation.
const genomePlaceholder = "${GENOME}"

// LaunchSpec is the resolved command line and environment for one worker
// invocation.
type LaunchSpec struct {
	Command string
	Args    []string
	Env     []string
	WorkDir string
}

// BuildLaunchSpec substitutes genomePlaceholder into the configured command
// template with genomeDir, producing the concrete argv for this generation.
func BuildLaunchSpec(commandTemplate []string, genomeDir string, env []string) LaunchSpec {
	if len(commandTemplate) == 0 {
		return LaunchSpec{WorkDir: genomeDir, Env: env}
	}
	resolved := make([]string, len(commandTemplate))
	for i, arg := range commandTemplate {
		resolved[i] = strings.ReplaceAll(arg, genomePlaceholder, genomeDir)
	}
	return LaunchSpec{
		Command: resolved[0],
		Args:    resolved[1:],
		Env:     env,
		WorkDir: genomeDir,
	}
}
