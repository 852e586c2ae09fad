package session

import "testing"

func TestSectionTimerFiresExactlyOnce(t *testing.T) {
	timer := NewSectionTimer(1)
	if got := timer.Remaining(); got != 60 {
		t.Fatalf("remaining = %d, want 60", got)
	}

	fired := 0
	for i := 0; i < 60; i++ {
		var timeout bool
		timer, timeout = timer.Tick()
		if timeout {
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("timeouts after 60 ticks = %d, want 1", fired)
	}

	for i := 0; i < 10; i++ {
		var timeout bool
		timer, timeout = timer.Tick()
		if timeout {
			t.Fatalf("timer fired again on extra tick %d", i)
		}
	}
	if timer.Remaining() != 0 || !timer.Expired() {
		t.Fatalf("remaining = %d expired = %v, want 0 true", timer.Remaining(), timer.Expired())
	}
}

func TestSectionTimerTickDoesNotMutateReceiver(t *testing.T) {
	timer := NewSectionTimer(2)
	next, _ := timer.Tick()
	if timer.RemainingSeconds != 120 {
		t.Fatalf("receiver changed to %d", timer.RemainingSeconds)
	}
	if next.RemainingSeconds != 119 {
		t.Fatalf("next = %d, want 119", next.RemainingSeconds)
	}
}

func TestSectionTimerAdvance(t *testing.T) {
	tests := []struct {
		name      string
		minutes   int
		seconds   int
		remaining int
		fired     bool
	}{
		{"partial", 1, 30, 30, false},
		{"exact", 1, 60, 0, true},
		{"overshoot clamps", 1, 90, 0, true},
		{"zero duration fires on first tick", 0, 1, 0, true},
		{"negative duration treated as zero", -3, 1, 0, true},
		{"no time", 1, 0, 60, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, fired := NewSectionTimer(tt.minutes).Advance(tt.seconds)
			if fired != tt.fired {
				t.Errorf("fired = %v, want %v", fired, tt.fired)
			}
			if next.Remaining() != tt.remaining {
				t.Errorf("remaining = %d, want %d", next.Remaining(), tt.remaining)
			}
		})
	}
}
