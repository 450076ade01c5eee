package protocol

import (
	"bufio"
	"encoding/json"
	"io"
	"time"
)

// maxLineSize bounds a single stdout line, matching the teacher's stream
// parser: a worker emitting pathologically long lines should warn, not OOM
// the supervisor.
const maxLineSize = 1 << 20

// Parse reads r line-by-line and emits one RawEvent per line on the
// returned channel until r is exhausted or ctx-like cancellation happens
// upstream (callers close r to stop the scan). The channel is closed when
// the scan ends.
func Parse(r io.Reader) <-chan RawEvent {
	out := make(chan RawEvent)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			raw := append([]byte(nil), line...)
			out <- parseLine(raw)
		}
	}()
	return out
}

func parseLine(raw []byte) RawEvent {
	var evt AgentEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return RawEvent{
			Raw: raw,
			Event: AgentEvent{
				Kind:      KindWarning,
				Timestamp: time.Now().UTC(),
				Message:   "unparsable worker output line",
			},
			Err: err,
		}
	}
	switch evt.Kind {
	case KindEvolutionSuccess, KindHeartbeat, KindWarning, KindError, KindCustom:
	case "":
		evt.Kind = KindCustom
	default:
		if evt.Payload == nil {
			evt.Payload = map[string]any{}
		}
		evt.Payload["kind"] = evt.Kind
		evt.Kind = KindCustom
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return RawEvent{Raw: raw, Event: evt}
}
