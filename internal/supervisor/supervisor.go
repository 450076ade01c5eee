package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/evolvd/evolvd/internal/clock"
	"github.com/evolvd/evolvd/internal/config"
	"github.com/evolvd/evolvd/internal/eventbus"
	"github.com/evolvd/evolvd/internal/genome"
	"github.com/evolvd/evolvd/internal/lineage"
	"github.com/evolvd/evolvd/internal/mutation"
	"github.com/evolvd/evolvd/internal/protocol"
	"github.com/evolvd/evolvd/internal/transmitter"
	"github.com/evolvd/evolvd/internal/worker"
)

// Counter tracks the running totals spec's generation-management contract
// exposes through `status`: how many EVOLUTION_SUCCESS events the current
// generation's worker has produced, when the worker last emitted anything at
// all, and how many transitions this daemon has ever completed.
type Counter struct {
	EvolutionsInGeneration int       `json:"evolutions_in_generation"`
	LastHeartbeat          time.Time `json:"last_heartbeat"`
	TransitionsTotal       int       `json:"transitions_total"`
}

// Status is a point-in-time snapshot of the supervisor's state, written to
// the control plane's status file and returned by `evolvd status`.
type Status struct {
	State                  State     `json:"state"`
	Branch                 string    `json:"branch"`
	Generation             uint32    `json:"generation"`
	GenomeHash             string    `json:"genome_hash"`
	LineageEntryID         int       `json:"lineage_entry_id"`
	RestartCount           int       `json:"restart_count"`
	EvolutionsInGeneration int       `json:"evolutions_in_generation"`
	TransitionsTotal       int       `json:"transitions_total"`
	WorkerPID              int       `json:"worker_pid,omitempty"`
	LastError              string    `json:"last_error,omitempty"`
	StartedAt              time.Time `json:"started_at"`
	LastHeartbeat          time.Time `json:"last_heartbeat,omitempty"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Supervisor runs the generation-evolution state machine for a single
// worker lineage.
type Supervisor struct {
	cfg           config.Config
	genomeStore   *genome.Store
	lineageStore  *lineage.Store
	bus           *eventbus.Bus
	engine        *mutation.Engine
	restartPolicy RestartPolicy

	seedDir string // scratch directory containing the initial, unmutated genome

	mu             sync.Mutex
	state          State
	branch         string
	generation     uint32
	genomeHash     string
	parentHash     string
	lineageHead    int
	restartCount   int
	counter        Counter
	startedAt      time.Time
	worker         *worker.Handle
	lastErr        error
	fitnessSamples map[string]transmitter.Sample // accumulated from EVOLUTION_SUCCESS events this generation

	onStatus func(Status)                 // optional hook the control plane registers to persist status on every change
	onEvent  func(protocol.AgentEvent)     // optional hook that observes every event this supervisor consumes off the bus
}

// New constructs a Supervisor. seedDir is the initial genome's source
// directory (containing genome.json and any other worker files) before any
// mutation has been applied.
func New(cfg config.Config, genomeStore *genome.Store, lineageStore *lineage.Store, bus *eventbus.Bus, seedDir string) *Supervisor {
	return &Supervisor{
		cfg:          cfg,
		genomeStore:  genomeStore,
		lineageStore: lineageStore,
		bus:          bus,
		engine:       mutation.NewEngine(cfg.Mutation.Weights(), cfg.Mutation.Rate),
		restartPolicy: RestartPolicy{
			MaxRestarts: cfg.Recovery.MaxRestartAttempts,
			BaseDelay:   time.Duration(cfg.Recovery.RestartBackoffSeconds) * time.Second,
			MaxDelay:    time.Duration(cfg.Recovery.MaxRestartBackoffSeconds) * time.Second,
		},
		seedDir:        seedDir,
		state:          StateIdle,
		fitnessSamples: make(map[string]transmitter.Sample),
	}
}

// OnStatus registers a callback invoked with a fresh Status snapshot
// whenever the supervisor's state changes. Used by the control plane to
// keep the on-disk status file current.
func (s *Supervisor) OnStatus(fn func(Status)) { s.onStatus = fn }

// OnEvent registers a callback invoked with every event the supervisor
// consumes off the bus, in addition to its own handling of it. Used by the
// control plane to persist events to the on-disk event log — the bus has
// exactly one consumer (the Supervisor's run loop), so anything else that
// needs to observe events rides along on this hook rather than opening its
// own, competing, Events() drain.
func (s *Supervisor) OnEvent(fn func(protocol.AgentEvent)) { s.onEvent = fn }

func (s *Supervisor) setState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.canTransitionTo(next) {
		return fmt.Errorf("supervisor: invalid transition %s -> %s", s.state, next)
	}
	s.state = next
	s.publishStatusLocked()
	return nil
}

func (s *Supervisor) statusLocked() Status {
	pid := 0
	if s.worker != nil {
		pid = s.worker.PID()
	}
	lastErr := ""
	if s.lastErr != nil {
		lastErr = s.lastErr.Error()
	}
	return Status{
		State:                  s.state,
		Branch:                 s.branch,
		Generation:             s.generation,
		GenomeHash:             s.genomeHash,
		LineageEntryID:         s.lineageHead,
		RestartCount:           s.restartCount,
		EvolutionsInGeneration: s.counter.EvolutionsInGeneration,
		TransitionsTotal:       s.counter.TransitionsTotal,
		WorkerPID:              pid,
		LastError:              lastErr,
		StartedAt:              s.startedAt,
		LastHeartbeat:          s.counter.LastHeartbeat,
		UpdatedAt:              clock.System.Now(),
	}
}

func (s *Supervisor) publishStatusLocked() {
	if s.onStatus == nil {
		return
	}
	s.onStatus(s.statusLocked())
}

// Snapshot returns the current status without requiring a callback.
func (s *Supervisor) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statusLocked()
	if s.onStatus != nil {
		s.onStatus(st)
	}
	return st
}

// Run starts generation 0 on the main branch and blocks, consuming the event
// bus and running the supervisor loop until ctx is cancelled or an
// unrecoverable error occurs. Run is the event bus's sole consumer.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.branch = "main"
	s.generation = 0
	s.startedAt = clock.System.Now()
	s.mu.Unlock()

	manifest, err := s.genomeStore.Materialize(s.seedDir, s.branch, s.generation, "")
	if err != nil {
		return Wrap(ErrorKindGenomeCorrupt, err)
	}
	s.mu.Lock()
	s.genomeHash = manifest.Hash
	s.mu.Unlock()

	entry, err := s.lineageStore.Append(lineage.Entry{
		Branch:      s.branch,
		GenomeHash:  s.genomeHash,
		Description: "initial genome",
	})
	if err != nil {
		return Wrap(ErrorKindLineageWriteFail, err)
	}
	s.mu.Lock()
	s.generation = entry.Generation
	s.lineageHead = entry.ID
	s.mu.Unlock()

	if err := s.setState(StateRunning); err != nil {
		return err
	}

	if err := s.launchWorker(ctx); err != nil {
		return err
	}

	for {
		s.mu.Lock()
		w := s.worker
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			if w != nil {
				w.Stop()
			}
			s.setState(StateStopped)
			return ctx.Err()

		case evt, ok := <-s.bus.Events():
			if !ok {
				continue
			}
			reached := s.observeEvent(evt)
			if s.onEvent != nil {
				s.onEvent(evt)
			}
			if reached {
				if w != nil {
					w.Stop()
				}
				if err := s.transition(ctx); err != nil {
					return err
				}
			}

		case <-w.Done():
			exitCode := w.ExitCode()
			if exitCode == 0 {
				// the worker exited cleanly on its own, short of the
				// evolution threshold; keep running this generation.
				s.mu.Lock()
				s.restartCount = 0
				s.mu.Unlock()
				if err := s.launchWorker(ctx); err != nil {
					return err
				}
				continue
			}

			s.mu.Lock()
			s.restartCount++
			attempt := s.restartCount
			s.lastErr = fmt.Errorf("worker exited with code %d", exitCode)
			s.mu.Unlock()

			if s.restartPolicy.Exhausted(attempt) {
				s.setState(StateFailed)
				return Wrap(ErrorKindRestartsExhausted, s.lastErr)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.System.After(s.restartPolicy.Delay(attempt)):
			}
			if err := s.launchWorker(ctx); err != nil {
				return err
			}
		}
	}
}

// observeEvent folds one event from the bus into the supervisor's counters
// and fitness-sample accumulator, and reports whether it pushed the current
// generation's EVOLUTION_SUCCESS count to the configured transition
// threshold. Only EVOLUTION_SUCCESS events count toward the threshold —
// worker process exits never do.
func (s *Supervisor) observeEvent(evt protocol.AgentEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch evt.Kind {
	case protocol.KindEvolutionSuccess:
		s.counter.EvolutionsInGeneration++
		if evt.Fitness != nil && s.cfg.GeneticTransmission.FitnessSource == config.FitnessSourceEventPayload {
			if capability, _ := evt.Payload["capability"].(string); capability != "" {
				s.fitnessSamples[capability] = transmitter.Sample{
					SuccessRate: evt.Fitness.SuccessRate,
					SampleSize:  evt.Fitness.SampleSize,
				}
			}
		}
	case protocol.KindHeartbeat:
		s.counter.LastHeartbeat = clock.System.Now()
	}
	s.publishStatusLocked()

	return evt.Kind == protocol.KindEvolutionSuccess &&
		s.counter.EvolutionsInGeneration >= s.cfg.RestartTrigger.EvolutionCountThreshold
}

func (s *Supervisor) launchWorker(ctx context.Context) error {
	s.mu.Lock()
	branch, gen := s.branch, s.generation
	s.mu.Unlock()

	h, err := worker.Spawn(ctx, worker.Config{
		Command:           s.cfg.Agent.Command,
		GenomeDir:         s.genomeStore.Dir(branch, gen),
		Env:               s.cfg.Agent.Env,
		PTY:               s.cfg.Agent.PTY,
		Bus:               s.bus,
		HeartbeatTimeout:  time.Duration(s.cfg.Communication.HeartbeatTimeoutSeconds) * time.Second,
		GracefulStopDelay: time.Duration(s.cfg.Recovery.GracefulStopSeconds) * time.Second,
	})
	if err != nil {
		return Wrap(ErrorKindWorkerCrash, err)
	}
	s.mu.Lock()
	s.worker = h
	s.mu.Unlock()
	return nil
}

// transition runs one full generation transition: snapshot -> mutate ->
// append lineage -> relaunch. The caller (Run) has already stopped the live
// worker before invoking this.
func (s *Supervisor) transition(ctx context.Context) error {
	if err := s.setState(StateTransitionPending); err != nil {
		return err
	}
	if err := s.setState(StateSnapshotting); err != nil {
		return err
	}

	s.mu.Lock()
	branch := s.branch
	generation := s.generation
	genomeDir := s.genomeStore.Dir(branch, generation)
	parentHash := s.genomeHash
	parentHead := s.lineageHead
	samples := make(map[string]transmitter.Sample, len(s.fitnessSamples))
	for k, v := range s.fitnessSamples {
		samples[k] = v
	}
	s.mu.Unlock()

	cfg, err := loadGenomeConfig(genomeDir)
	if err != nil {
		return Wrap(ErrorKindGenomeCorrupt, err)
	}

	if err := s.setState(StateMutating); err != nil {
		return err
	}

	capabilityIDs := make([]string, len(cfg.Capabilities))
	for i, c := range cfg.Capabilities {
		capabilityIDs[i] = c.ID
	}
	selection := transmitter.Select(capabilityIDs, samples, s.cfg.GeneticTransmission.SelectionThreshold)
	cfg.Capabilities = keepCapabilities(cfg.Capabilities, selection.Kept)

	seed := deterministicSeed(parentHash, branch, generation)
	newCfg, record, err := s.engine.Apply(cfg, seed)
	if err != nil {
		return Wrap(ErrorKindMutationFailure, err)
	}

	newGeneration := s.lineageStore.NextGeneration(branch)
	scratchDir, err := os.MkdirTemp("", "evolvd-genome-*")
	if err != nil {
		return Wrap(ErrorKindGenomeCorrupt, err)
	}
	defer os.RemoveAll(scratchDir)

	if err := copyGenomeDirExceptConfig(genomeDir, scratchDir); err != nil {
		return Wrap(ErrorKindGenomeCorrupt, err)
	}
	if err := writeGenomeConfig(scratchDir, newCfg); err != nil {
		return Wrap(ErrorKindGenomeCorrupt, err)
	}

	manifest, err := s.genomeStore.Materialize(scratchDir, branch, newGeneration, parentHash)
	if err != nil {
		return Wrap(ErrorKindGenomeCorrupt, err)
	}

	if err := s.setState(StateLineageAppending); err != nil {
		return err
	}
	entry, err := s.lineageStore.Append(lineage.Entry{
		ParentID:    parentHead,
		Branch:      branch,
		GenomeHash:  manifest.Hash,
		Operator:    record.Operator,
		FitnessNote: fitnessSummary(selection),
	})
	if err != nil {
		return Wrap(ErrorKindLineageWriteFail, err)
	}

	if err := s.setState(StateRelaunching); err != nil {
		return err
	}

	s.mu.Lock()
	s.generation = entry.Generation
	s.genomeHash = manifest.Hash
	s.parentHash = parentHash
	s.lineageHead = entry.ID
	s.counter.EvolutionsInGeneration = 0
	s.counter.TransitionsTotal++
	s.fitnessSamples = make(map[string]transmitter.Sample)
	s.mu.Unlock()

	if err := s.launchWorker(ctx); err != nil {
		return err
	}
	return s.setState(StateRunning)
}

// keepCapabilities filters cfg's structured capabilities down to the IDs
// transmitter.Select kept, preserving each survivor's evolved fitness value
// (transmitter.Select only ever sees bare IDs; it has no notion of fitness).
func keepCapabilities(capabilities []mutation.Capability, kept []string) []mutation.Capability {
	keep := make(map[string]bool, len(kept))
	for _, id := range kept {
		keep[id] = true
	}
	out := make([]mutation.Capability, 0, len(capabilities))
	for _, c := range capabilities {
		if keep[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func fitnessSummary(r transmitter.Result) string {
	if !r.Baseline.HasMean {
		return fmt.Sprintf("kept=%d dropped=%d (no fitness samples)", r.Baseline.KeptCount, r.Baseline.DroppedCount)
	}
	return fmt.Sprintf("kept=%d dropped=%d mean=%.3f", r.Baseline.KeptCount, r.Baseline.DroppedCount, r.Baseline.Mean)
}

// deterministicSeed derives a stable transition seed from the parent genome
// hash and the (branch, generation) it transitions from, so replaying the
// same lineage always selects and applies the same mutation (spec's
// determinism property).
func deterministicSeed(parentHash, branch string, generation uint32) uint64 {
	h := fnv64a(parentHash + "\x00" + branch + "\x00" + strconv.FormatUint(uint64(generation), 10))
	return h
}

func fnv64a(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	hash := uint64(offset64)
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

const genomeConfigFile = "genome.json"

func loadGenomeConfig(dir string) (mutation.Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, genomeConfigFile))
	if err != nil {
		return mutation.Config{}, fmt.Errorf("supervisor: read %s: %w", genomeConfigFile, err)
	}
	var cfg mutation.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return mutation.Config{}, fmt.Errorf("supervisor: parse %s: %w", genomeConfigFile, err)
	}
	return cfg, nil
}

func writeGenomeConfig(dir string, cfg mutation.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("supervisor: marshal genome config: %w", err)
	}
	return clock.WriteFileAtomic(filepath.Join(dir, genomeConfigFile), data, 0o644)
}

func copyGenomeDirExceptConfig(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == genomeConfigFile || e.Name() == "manifest.json" {
			continue
		}
		if e.IsDir() {
			if err := os.CopyFS(filepath.Join(dst, e.Name()), os.DirFS(filepath.Join(src, e.Name()))); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
