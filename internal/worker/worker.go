// Package worker implements the Worker Handle: spawning the external agent
// process for one generation, streaming its stdout as AgentEvents onto the
// event bus, and stopping it gracefully (or forcefully) on demand.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/evolvd/evolvd/internal/clock"
	"github.com/evolvd/evolvd/internal/debug"
	"github.com/evolvd/evolvd/internal/eventbus"
	"github.com/evolvd/evolvd/internal/protocol"
)

// DefaultHeartbeatTimeout is a typical value for Config.HeartbeatTimeout:
// how long a worker may go without emitting any output line before it is
// treated as hung, killed, and restarted by the supervisor as a crash. A
// Config.HeartbeatTimeout of zero disables the check.
const DefaultHeartbeatTimeout = 2 * time.Minute

// Config describes how to launch and supervise one worker process.
type Config struct {
	Command          []string // argv template, may contain ${GENOME}
	GenomeDir         string
	Env               []string
	PTY               bool // run the worker attached to a pseudo-terminal instead of plain pipes
	Bus               *eventbus.Bus
	HeartbeatTimeout  time.Duration
	GracefulStopDelay time.Duration // time to wait after SIGTERM before SIGKILL
}

// Handle is a running (or exited) worker process.
type Handle struct {
	cfg  Config
	cmd  *exec.Cmd
	ptmx *os.File // set when cfg.PTY is true; nil otherwise

	mu         sync.Mutex
	startedAt  time.Time
	lastOutput time.Time
	exited     bool
	exitCode   int
	exitErr    error

	done chan struct{}
}

// Spawn starts a worker process and begins streaming its output onto
// cfg.Bus. It returns once the process has started; exit is observed
// asynchronously via Done or IsAlive. When cfg.PTY is set the worker is
// attached to a pseudo-terminal instead of plain pipes, for workers whose
// runtime only behaves correctly when it believes it owns a terminal.
func Spawn(ctx context.Context, cfg Config) (*Handle, error) {
	spec := BuildLaunchSpec(cfg.Command, cfg.GenomeDir, cfg.Env)
	if spec.Command == "" {
		return nil, fmt.Errorf("worker: empty command template")
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = debug.PropagatedEnv(spec.Env, fmt.Sprintf("worker:%s", spec.Command))

	h := &Handle{
		cfg:  cfg,
		cmd:  cmd,
		done: make(chan struct{}),
	}

	if cfg.PTY {
		attrs := &syscall.SysProcAttr{Setpgid: true}
		cmd.SysProcAttr = attrs
		ptmx, err := pty.StartWithAttrs(cmd, nil, attrs)
		if err != nil {
			return nil, fmt.Errorf("worker: start %s under pty: %w", spec.Command, err)
		}
		h.ptmx = ptmx
		h.startedAt = clock.System.Now()
		h.lastOutput = clock.System.Now()
		go h.pumpStdout(ptmx)
		go h.waitForExit()
	} else {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("worker: stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("worker: stderr pipe: %w", err)
		}

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("worker: start %s: %w", spec.Command, err)
		}

		h.startedAt = clock.System.Now()
		h.lastOutput = clock.System.Now()
		go h.pumpStdout(stdout)
		go h.pumpStderr(stderr)
		go h.waitForExit()
	}

	if cfg.HeartbeatTimeout > 0 {
		go h.watchHeartbeat(ctx, cfg.HeartbeatTimeout)
	}

	return h, nil
}

func (h *Handle) pumpStdout(r io.Reader) {
	for raw := range protocol.Parse(r) {
		h.mu.Lock()
		h.lastOutput = clock.System.Now()
		h.mu.Unlock()
		if h.cfg.Bus != nil {
			h.cfg.Bus.Publish(raw.Event)
		}
	}
}

func (h *Handle) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		h.mu.Lock()
		h.lastOutput = clock.System.Now()
		h.mu.Unlock()
		if h.cfg.Bus != nil {
			h.cfg.Bus.Publish(protocol.AgentEvent{
				Kind:      protocol.KindWarning,
				Timestamp: clock.System.Now(),
				Message:   scanner.Text(),
				Payload:   map[string]any{"stream": "stderr"},
			})
		}
	}
}

func (h *Handle) waitForExit() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exited = true
	h.exitErr = err
	if err == nil {
		h.exitCode = 0
	} else {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.exitCode = exitErr.ExitCode()
		} else {
			h.exitCode = -1
		}
	}
	h.mu.Unlock()
	close(h.done)
}

// watchHeartbeat emits a WARNING event and kills the worker's process group
// if the worker goes silent for longer than timeout, so Done fires with a
// non-zero exit code and the supervisor's restart policy handles the hang as
// a crash.
func (h *Handle) watchHeartbeat(ctx context.Context, timeout time.Duration) {
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.mu.Lock()
			silence := clock.System.Now().Sub(h.lastOutput)
			h.mu.Unlock()
			if silence > timeout {
				if h.cfg.Bus != nil {
					h.cfg.Bus.Publish(protocol.AgentEvent{
						Kind:      protocol.KindWarning,
						Timestamp: clock.System.Now(),
						Message:   "worker heartbeat timeout",
						Payload:   map[string]any{"silence_seconds": silence.Seconds()},
					})
				}
				_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
				return
			}
		}
	}
}

// IsAlive reports whether the worker process is still running.
func (h *Handle) IsAlive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.exited
}

// Done returns a channel closed once the worker process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitCode returns the worker's exit code. It is only meaningful after
// Done() has fired.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// PID returns the worker process's PID.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Stop sends SIGTERM to the worker's process group and waits up to
// cfg.GracefulStopDelay for it to exit before escalating to SIGKILL.
func (h *Handle) Stop() error {
	if !h.IsAlive() {
		return nil
	}
	pid := h.PID()
	if pid == 0 {
		return nil
	}

	delay := h.cfg.GracefulStopDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	_ = unix.Kill(-pid, unix.SIGTERM)
	select {
	case <-h.done:
		return nil
	case <-clock.System.After(delay):
	}

	if !h.IsAlive() {
		return nil
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("worker: sigkill pid %d: %w", pid, err)
	}
	<-h.done
	return nil
}

// Close releases the worker's pseudo-terminal, if one was allocated. Safe to
// call on a non-PTY worker or after the worker has already exited.
func (h *Handle) Close() error {
	if h.ptmx == nil {
		return nil
	}
	return h.ptmx.Close()
}
