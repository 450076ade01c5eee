package worker

import (
	"context"
	"testing"
	"time"

	"github.com/evolvd/evolvd/internal/eventbus"
	"github.com/evolvd/evolvd/internal/protocol"
)

func TestSpawnStreamsEventsAndExits(t *testing.T) {
	bus := eventbus.New(16)
	cfg := Config{
		Command: []string{"/bin/sh", "-c", `echo '{"kind":"HEARTBEAT"}'; echo '{"kind":"EVOLUTION_SUCCESS","fitness":{"success_rate":0.9}}'`},
		GenomeDir: t.TempDir(),
		Bus:       bus,
	}

	h, err := Spawn(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit in time")
	}

	if h.ExitCode() != 0 {
		t.Fatalf("expected exit code 0, got %d", h.ExitCode())
	}
	if h.IsAlive() {
		t.Fatal("expected worker to report not alive after exit")
	}

	var kinds []string
	for i := 0; i < 2; i++ {
		select {
		case evt := <-bus.Events():
			kinds = append(kinds, evt.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for published event")
		}
	}
	if len(kinds) != 2 || kinds[0] != protocol.KindHeartbeat || kinds[1] != protocol.KindEvolutionSuccess {
		t.Fatalf("unexpected event kinds: %v", kinds)
	}
}

func TestStopTerminatesLongRunningWorker(t *testing.T) {
	bus := eventbus.New(16)
	cfg := Config{
		Command:           []string{"/bin/sh", "-c", "sleep 30"},
		GenomeDir:         t.TempDir(),
		Bus:               bus,
		GracefulStopDelay: 200 * time.Millisecond,
	}

	h, err := Spawn(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if !h.IsAlive() {
		t.Fatal("expected worker to be alive immediately after spawn")
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after Stop")
	}
	if h.IsAlive() {
		t.Fatal("expected worker to report not alive after Stop")
	}
}
