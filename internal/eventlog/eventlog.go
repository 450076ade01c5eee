// Package eventlog persists the event bus to an append-only JSONL file so
// `evolvd logs` and the optional web status server can observe worker
// activity after the fact, not just while attached live.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/evolvd/evolvd/internal/protocol"
)

// Writer appends events handed to it as one JSON line per call. It does not
// read the event bus itself: the bus has exactly one consumer (the
// supervisor's run loop), so a Writer is driven via Supervisor.OnEvent
// instead of competing with the supervisor to drain Events() directly.
type Writer struct {
	f *os.File
}

// OpenWriter opens (creating if necessary) the append-only event log at path.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Write appends evt as one JSON line. A marshal failure is dropped rather
// than propagated, matching the bus's own never-block posture: logging one
// event must never be allowed to stall the supervisor's event consumption.
func (w *Writer) Write(evt protocol.AgentEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	w.f.Write(append(data, '\n'))
}

// Close closes the underlying file.
func (w *Writer) Close() error { return w.f.Close() }

// Tail reads every event currently in path, and if follow is true keeps
// polling for new lines appended after EOF (a worker process may still be
// running and writing), invoking onEvent for each.
func Tail(ctx context.Context, path string, follow bool, onEvent func(protocol.AgentEvent)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			var evt protocol.AgentEvent
			if json.Unmarshal([]byte(line), &evt) == nil {
				onEvent(evt)
			}
		}
		if err != nil {
			if !follow {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(300 * time.Millisecond):
			}
		}
	}
}
