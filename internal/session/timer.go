package session

// SectionTimer counts down the time left in the active section. It is a value
// type: Tick returns the next timer instead of mutating the receiver.
type SectionTimer struct {
	RemainingSeconds int  `json:"remaining_seconds"`
	Fired            bool `json:"fired"`
}

// NewSectionTimer starts a countdown of durationMinutes.
func NewSectionTimer(durationMinutes int) SectionTimer {
	if durationMinutes < 0 {
		durationMinutes = 0
	}
	return SectionTimer{RemainingSeconds: durationMinutes * 60}
}

// Remaining returns the seconds left, never negative.
func (t SectionTimer) Remaining() int {
	if t.RemainingSeconds < 0 {
		return 0
	}
	return t.RemainingSeconds
}

// Expired reports whether the countdown has reached zero.
func (t SectionTimer) Expired() bool {
	return t.Remaining() == 0
}

// Tick consumes one second. timeout is true only on the tick that takes the
// timer to zero; once fired the timer never reports a timeout again.
func (t SectionTimer) Tick() (next SectionTimer, timeout bool) {
	if t.Fired {
		return t, false
	}
	if t.RemainingSeconds > 0 {
		t.RemainingSeconds--
	}
	if t.RemainingSeconds <= 0 {
		t.RemainingSeconds = 0
		t.Fired = true
		return t, true
	}
	return t, false
}

// Advance ticks the timer seconds times and reports whether a timeout fired.
func (t SectionTimer) Advance(seconds int) (SectionTimer, bool) {
	fired := false
	for i := 0; i < seconds; i++ {
		var timeout bool
		t, timeout = t.Tick()
		if timeout {
			fired = true
			break
		}
	}
	return t, fired
}
