package eventbus

import (
	"testing"

	"github.com/evolvd/evolvd/internal/protocol"
)

func heartbeat(msg string) protocol.AgentEvent {
	return protocol.AgentEvent{Kind: protocol.KindHeartbeat, Message: msg}
}

func TestPublishDeliversWithinCapacity(t *testing.T) {
	b := New(4)
	for i := 0; i < 4; i++ {
		b.Publish(heartbeat("a"))
	}
	if b.Dropped() != 0 {
		t.Fatalf("expected no drops within capacity, got %d", b.Dropped())
	}
	if len(b.Events()) != 4 {
		t.Fatalf("expected 4 buffered events, got %d", len(b.Events()))
	}
}

func drainAll(b *Bus) []protocol.AgentEvent {
	var out []protocol.AgentEvent
	for {
		select {
		case evt := <-b.Events():
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestPublishEvictsOldestOnOverflow(t *testing.T) {
	b := New(2)
	b.Publish(heartbeat("first"))
	b.Publish(heartbeat("second"))
	b.Publish(heartbeat("third"))

	if b.Dropped() == 0 {
		t.Fatal("expected at least one dropped event to be recorded")
	}

	events := drainAll(b)
	for _, e := range events {
		if e.Message == "first" {
			t.Fatal("expected the oldest event to have been evicted")
		}
	}
	var sawThird bool
	for _, e := range events {
		if e.Message == "third" {
			sawThird = true
		}
	}
	if !sawThird {
		t.Fatal("expected the newest event to survive overflow handling")
	}
}

func TestDroppedStartsAtZero(t *testing.T) {
	b := New(8)
	if b.Dropped() != 0 {
		t.Fatalf("expected 0 drops on a fresh bus, got %d", b.Dropped())
	}
}
