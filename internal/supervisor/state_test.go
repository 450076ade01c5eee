package supervisor

import "testing"

func TestCanTransitionToAllowsDocumentedPath(t *testing.T) {
	path := []State{
		StateIdle, StateRunning, StateTransitionPending, StateSnapshotting,
		StateMutating, StateLineageAppending, StateRelaunching, StateRunning,
	}
	for i := 0; i < len(path)-1; i++ {
		if !path[i].canTransitionTo(path[i+1]) {
			t.Fatalf("expected %s -> %s to be a valid transition", path[i], path[i+1])
		}
	}
}

func TestCanTransitionToRejectsSkippingStates(t *testing.T) {
	if StateRunning.canTransitionTo(StateMutating) {
		t.Fatal("expected Running -> Mutating (skipping TransitionPending/Snapshotting) to be rejected")
	}
	if StateIdle.canTransitionTo(StateMutating) {
		t.Fatal("expected Idle -> Mutating to be rejected")
	}
}

func TestStoppedIsTerminal(t *testing.T) {
	if len(validTransitions[StateStopped]) != 0 {
		t.Fatal("expected Stopped to have no outgoing transitions")
	}
}
