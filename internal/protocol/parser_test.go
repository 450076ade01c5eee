package protocol

import (
	"strings"
	"testing"
)

func TestParseValidLines(t *testing.T) {
	input := `{"kind":"HEARTBEAT","timestamp":"2026-01-01T00:00:00Z"}
{"kind":"EVOLUTION_SUCCESS","timestamp":"2026-01-01T00:00:01Z","fitness":{"success_rate":0.82,"sample_size":40}}
`
	var events []AgentEvent
	for raw := range Parse(strings.NewReader(input)) {
		if raw.Err != nil {
			t.Fatalf("unexpected parse error: %v", raw.Err)
		}
		events = append(events, raw.Event)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindHeartbeat {
		t.Fatalf("expected HEARTBEAT, got %s", events[0].Kind)
	}
	if events[1].Fitness == nil || events[1].Fitness.SuccessRate != 0.82 {
		t.Fatalf("expected fitness payload, got %+v", events[1].Fitness)
	}
}

func TestParseMalformedLineBecomesWarning(t *testing.T) {
	input := "{not json}\n"
	var events []AgentEvent
	var sawErr bool
	for raw := range Parse(strings.NewReader(input)) {
		if raw.Err != nil {
			sawErr = true
		}
		events = append(events, raw.Event)
	}
	if !sawErr {
		t.Fatal("expected a parse error to be recorded")
	}
	if len(events) != 1 || events[0].Kind != KindWarning {
		t.Fatalf("expected a single WARNING event, got %+v", events)
	}
}

func TestParseDefaultsMissingKindToCustom(t *testing.T) {
	input := `{"message":"no kind field"}` + "\n"
	var got AgentEvent
	for raw := range Parse(strings.NewReader(input)) {
		got = raw.Event
	}
	if got.Kind != KindCustom {
		t.Fatalf("expected CUSTOM, got %s", got.Kind)
	}
}
