package danfoss

import "time"

// DefaultDebounceWindow is how long inbound mode updates are suppressed
// after a mode write.
const DefaultDebounceWindow = 6 * time.Second

// DebounceGuard suppresses inbound mode echoes for a window after a mode
// write, so the unit's stale report cannot overwrite the user's choice.
//
// A guard belongs to one event loop: every method must be called on it, and
// expiry is delivered through post onto the same loop. Re-arming replaces
// the pending window.
type DebounceGuard struct {
	window time.Duration
	post   func(func()) bool
	logger Logger

	timer  *time.Timer
	seq    uint64
	active bool
}

// NewDebounceGuard creates a guard. post schedules a function on the owning loop.
func NewDebounceGuard(window time.Duration, post func(func()) bool, logger Logger) *DebounceGuard {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &DebounceGuard{window: window, post: post, logger: logger}
}

// Arm cancels any pending window and starts a new one.
func (g *DebounceGuard) Arm() {
	g.stopTimer()
	g.seq++
	seq := g.seq
	g.active = true
	g.timer = time.AfterFunc(g.window, func() {
		g.post(func() { g.expire(seq) })
	})
}

// IsActive reports whether a window is pending.
func (g *DebounceGuard) IsActive() bool {
	return g.active
}

// Stop cancels the pending window, if any.
func (g *DebounceGuard) Stop() {
	g.stopTimer()
	g.seq++
	g.active = false
}

func (g *DebounceGuard) expire(seq uint64) {
	if seq != g.seq {
		return
	}
	g.timer = nil
	g.active = false
	g.logger.Debug("mode switch window cleared")
}

func (g *DebounceGuard) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
