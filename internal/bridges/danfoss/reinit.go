package danfoss

import "time"

// DefaultReinitDelay is the fixed delay before a recovery attempt.
const DefaultReinitDelay = 30 * time.Second

// ReinitScheduler holds at most one pending recovery attempt.
//
// Like DebounceGuard it belongs to one event loop. A cancelled timer that
// races its own firing is ignored by sequence number.
type ReinitScheduler struct {
	delay time.Duration
	post  func(func()) bool

	timer    *time.Timer
	seq      uint64
	pending  bool
	attempts uint64
}

// NewReinitScheduler creates a scheduler. post schedules a function on the owning loop.
func NewReinitScheduler(delay time.Duration, post func(func()) bool) *ReinitScheduler {
	if delay <= 0 {
		delay = DefaultReinitDelay
	}
	return &ReinitScheduler{delay: delay, post: post}
}

// Schedule arms a single attempt that runs fire on the loop after the delay.
// It returns false without doing anything if an attempt is already pending.
func (s *ReinitScheduler) Schedule(fire func()) bool {
	if s.pending {
		return false
	}
	s.seq++
	seq := s.seq
	s.pending = true
	s.timer = time.AfterFunc(s.delay, func() {
		s.post(func() {
			if seq != s.seq || !s.pending {
				return
			}
			// Cleared before the attempt so a failure can schedule the next one.
			s.pending = false
			s.timer = nil
			s.attempts++
			fire()
		})
	})
	return true
}

// Pending reports whether an attempt is armed.
func (s *ReinitScheduler) Pending() bool {
	return s.pending
}

// Cancel disarms the pending attempt, if any.
func (s *ReinitScheduler) Cancel() bool {
	if !s.pending {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
	s.pending = false
	return true
}

// Attempts returns how many attempts have fired.
func (s *ReinitScheduler) Attempts() uint64 {
	return s.attempts
}

// Delay returns the fixed delay between a failure and the next attempt.
func (s *ReinitScheduler) Delay() time.Duration {
	return s.delay
}
