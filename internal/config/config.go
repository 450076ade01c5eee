// Package config loads evolvd's JSON configuration file. Following the
// teacher's own convention (internal/config/global.go), configuration is a
// single JSON document read once at startup with no environment-variable
// or flag-layering framework involved.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FitnessSource names where the genetic transmitter reads fitness samples
// from. It is a single value, event_payload by default; any other value than
// the two below fails validation. Only event_payload samples are collected:
// with registry_file, no samples are read from fitness_registry_path.
type FitnessSource string

const (
	FitnessSourceRegistryFile FitnessSource = "registry_file"
	FitnessSourceEventPayload FitnessSource = "event_payload"
)

// AgentConfig configures how the worker (the evolving agent process) is
// launched.
type AgentConfig struct {
	Command    []string `json:"command"`
	WorkingDir string   `json:"working_dir,omitempty"`
	Env        []string `json:"env,omitempty"`
	PTY        bool     `json:"pty,omitempty"`
}

// CommunicationConfig configures the heartbeat the supervisor expects from
// the worker over the event stream.
type CommunicationConfig struct {
	HeartbeatIntervalSeconds int `json:"heartbeat_interval_seconds,omitempty"`
	HeartbeatTimeoutSeconds  int `json:"heartbeat_timeout_seconds,omitempty"`
}

// RecoveryConfig configures what happens when the worker process crashes or
// stops responding.
type RecoveryConfig struct {
	AutoRestartOnCrash       bool `json:"auto_restart_on_crash"`
	MaxRestartAttempts       int  `json:"max_restart_attempts"`
	RestartBackoffSeconds    int  `json:"restart_backoff_seconds,omitempty"`
	MaxRestartBackoffSeconds int  `json:"max_restart_backoff_seconds,omitempty"`
	GracefulStopSeconds      int  `json:"graceful_stop_seconds,omitempty"`
}

// RestartTriggerConfig configures what makes the supervisor advance to the
// next generation: the count of EVOLUTION_SUCCESS events observed on the
// current generation's worker.
type RestartTriggerConfig struct {
	EvolutionCountThreshold int `json:"evolution_count_threshold"`
}

// GenerationManagementConfig holds the generation retention settings. They
// are parsed but nothing reads them: no generation is ever pruned, archived
// or deleted from disk.
type GenerationManagementConfig struct {
	MaxGenerations int  `json:"max_generations,omitempty"`
	Delete         bool `json:"delete,omitempty"`
}

// MutationConfig configures the mutation engine's overall application rate
// and its five operators' relative selection weights.
type MutationConfig struct {
	Rate                      float64 `json:"rate"`
	ParameterTuningRate       float64 `json:"parameter_tuning_rate,omitempty"`
	NewGoalInjectionRate      float64 `json:"new_goal_injection_rate,omitempty"`
	StrategyVariationRate     float64 `json:"strategy_variation_rate,omitempty"`
	RandomInnovationRate      float64 `json:"random_innovation_rate,omitempty"`
	CapabilityCombinationRate float64 `json:"capability_combination_rate,omitempty"`
}

// Weights returns the configured per-operator weights as the map mutation.NewEngine
// expects, keyed by mutation operator name. Returns nil (meaning "use
// mutation.DefaultWeights") when every rate is unset.
func (m MutationConfig) Weights() map[string]float64 {
	weights := map[string]float64{
		"ParameterTuning":       m.ParameterTuningRate,
		"NewGoalInjection":      m.NewGoalInjectionRate,
		"StrategyVariation":     m.StrategyVariationRate,
		"RandomInnovation":      m.RandomInnovationRate,
		"CapabilityCombination": m.CapabilityCombinationRate,
	}
	for _, w := range weights {
		if w > 0 {
			return weights
		}
	}
	return nil
}

// GeneticTransmissionConfig configures the transmitter that decides which
// capabilities survive a generation transition.
type GeneticTransmissionConfig struct {
	FitnessSource       FitnessSource `json:"fitness_source"`
	FitnessRegistryPath string        `json:"fitness_registry_path,omitempty"`
	SelectionThreshold  float64       `json:"selection_threshold"`
}

// ControlConfig configures the control plane: where its socket and status
// file live, which optional discovery/transport features are enabled, and
// the event bus's buffered capacity — an evolvd-internal plumbing knob with
// no spec-documented key of its own, so it lives alongside the other
// process-wiring settings rather than under a domain section.
type ControlConfig struct {
	SocketPath       string `json:"socket_path,omitempty"`
	StatusPath       string `json:"status_path,omitempty"`
	PIDPath          string `json:"pid_path,omitempty"`
	AdvertiseMDNS    bool   `json:"advertise_mdns,omitempty"`
	EventBusCapacity int    `json:"event_bus_capacity,omitempty"`
}

// LoggingConfig configures where and how verbosely evolvd logs.
type LoggingConfig struct {
	LogFile  string `json:"log_file,omitempty"`
	LogLevel string `json:"log_level,omitempty"`
}

// Config is the full evolvd configuration document.
type Config struct {
	Root                 string                     `json:"root"` // base directory for genomes/ and lineage/
	Agent                AgentConfig                `json:"agent"`
	Communication        CommunicationConfig        `json:"communication"`
	Recovery             RecoveryConfig             `json:"recovery"`
	RestartTrigger       RestartTriggerConfig       `json:"restart_trigger"`
	GenerationManagement GenerationManagementConfig `json:"generation_management,omitempty"`
	Mutation             MutationConfig             `json:"mutation"`
	GeneticTransmission  GeneticTransmissionConfig  `json:"genetic_transmission"`
	Control              ControlConfig              `json:"control"`
	Logging              LoggingConfig              `json:"logging,omitempty"`
}

// Default returns a Config with every zero-value field set to its
// production default, used when a config file is missing a section.
func Default() Config {
	return Config{
		Communication: CommunicationConfig{
			HeartbeatIntervalSeconds: 30,
			HeartbeatTimeoutSeconds:  120,
		},
		Recovery: RecoveryConfig{
			AutoRestartOnCrash:       true,
			MaxRestartAttempts:       5,
			RestartBackoffSeconds:    2,
			MaxRestartBackoffSeconds: 120,
			GracefulStopSeconds:      5,
		},
		RestartTrigger: RestartTriggerConfig{
			EvolutionCountThreshold: 10,
		},
		Mutation: MutationConfig{
			Rate: 1.0,
		},
		GeneticTransmission: GeneticTransmissionConfig{
			FitnessSource:      FitnessSourceEventPayload,
			SelectionThreshold: 0.5,
		},
		Control: ControlConfig{
			EventBusCapacity: 128,
		},
	}
}

// Load reads and validates the config document at path.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ValidationError reports a single invalid or missing configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks that cfg describes a launchable daemon.
func (cfg Config) Validate() error {
	if cfg.Root == "" {
		return &ValidationError{Field: "root", Reason: "must not be empty"}
	}
	if len(cfg.Agent.Command) == 0 {
		return &ValidationError{Field: "agent.command", Reason: "must not be empty"}
	}
	switch cfg.GeneticTransmission.FitnessSource {
	case FitnessSourceRegistryFile:
		if cfg.GeneticTransmission.FitnessRegistryPath == "" {
			return &ValidationError{Field: "genetic_transmission.fitness_registry_path", Reason: "required when fitness_source is registry_file"}
		}
	case FitnessSourceEventPayload:
		// no extra field required
	default:
		return &ValidationError{Field: "genetic_transmission.fitness_source", Reason: `must be "registry_file" or "event_payload"`}
	}
	if cfg.GeneticTransmission.SelectionThreshold < 0 || cfg.GeneticTransmission.SelectionThreshold > 1 {
		return &ValidationError{Field: "genetic_transmission.selection_threshold", Reason: "must be between 0 and 1"}
	}
	if cfg.Mutation.Rate < 0 || cfg.Mutation.Rate > 1 {
		return &ValidationError{Field: "mutation.rate", Reason: "must be between 0 and 1"}
	}
	if cfg.Recovery.MaxRestartAttempts < 0 {
		return &ValidationError{Field: "recovery.max_restart_attempts", Reason: "must not be negative"}
	}
	if cfg.RestartTrigger.EvolutionCountThreshold <= 0 {
		return &ValidationError{Field: "restart_trigger.evolution_count_threshold", Reason: "must be positive"}
	}
	return nil
}

// GenomesDir is the directory the genome store materializes into.
func (cfg Config) GenomesDir() string { return filepath.Join(cfg.Root, "genomes") }

// LineageDir is the directory the lineage store persists to.
func (cfg Config) LineageDir() string { return filepath.Join(cfg.Root, "lineage") }
