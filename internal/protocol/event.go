// Package protocol defines the AgentEvent wire format workers emit on
// stdout as newline-delimited JSON, and the scanner that turns a worker's
// stdout stream into a channel of parsed events.
package protocol

import "time"

// Event kinds a worker may emit. Malformed lines are surfaced as KindWarning
// and lines with a missing or unrecognized kind as KindCustom (an
// unrecognized kind is kept under the payload's "kind" key) rather than
// dropped, so a misbehaving worker never silently loses output.
const (
	KindEvolutionSuccess = "EVOLUTION_SUCCESS"
	KindHeartbeat        = "HEARTBEAT"
	KindWarning          = "WARNING"
	KindError             = "ERROR"
	KindCustom            = "CUSTOM"
)

// AgentEvent is the parsed form of one NDJSON line from a worker's stdout.
type AgentEvent struct {
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Message   string          `json:"message,omitempty"`
	Fitness   *FitnessPayload `json:"fitness,omitempty"`
	Payload   map[string]any  `json:"payload,omitempty"`
}

// FitnessPayload is the optional structured fitness sample a worker can
// attach to an EVOLUTION_SUCCESS event, consumed by the genetic transmitter
// when genetic_transmission.fitness_source is "event_payload".
type FitnessPayload struct {
	SuccessRate float64 `json:"success_rate"`
	SampleSize  int     `json:"sample_size,omitempty"`
}

// RawEvent is what the line scanner emits for each line of worker stdout:
// the original bytes, the parsed event (if parsing succeeded), and the
// parse error (if it did not).
type RawEvent struct {
	Raw    []byte
	Event  AgentEvent
	Err    error
}
