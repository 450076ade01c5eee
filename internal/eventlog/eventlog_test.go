package eventlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/evolvd/evolvd/internal/protocol"
)

func TestWriterPersistsEventsAndTailReadsThemBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	w, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	w.Write(protocol.AgentEvent{Kind: protocol.KindHeartbeat, Message: "alive"})
	w.Write(protocol.AgentEvent{Kind: protocol.KindEvolutionSuccess, Message: "gen complete"})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []protocol.AgentEvent
	if err := Tail(context.Background(), path, false, func(e protocol.AgentEvent) {
		got = append(got, e)
	}); err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events read back, got %d", len(got))
	}
	if got[0].Kind != protocol.KindHeartbeat || got[1].Kind != protocol.KindEvolutionSuccess {
		t.Fatalf("unexpected event order/kinds: %+v", got)
	}
}
