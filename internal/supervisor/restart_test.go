package supervisor

import (
	"testing"
	"time"
)

func TestDelayDoublesPerAttemptAndCaps(t *testing.T) {
	p := RestartPolicy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{10, 10 * time.Second},
	}
	for _, c := range cases {
		if got := p.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestExhaustedRespectsMaxRestarts(t *testing.T) {
	p := RestartPolicy{MaxRestarts: 3}
	if p.Exhausted(3) {
		t.Fatal("3 restarts with max 3 should not yet be exhausted")
	}
	if !p.Exhausted(4) {
		t.Fatal("4 restarts with max 3 should be exhausted")
	}
}

func TestExhaustedUnlimitedWhenNegative(t *testing.T) {
	p := RestartPolicy{MaxRestarts: -1}
	if p.Exhausted(1000) {
		t.Fatal("negative MaxRestarts should mean unlimited restarts")
	}
}
