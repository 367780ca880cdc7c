// Package timer implements the session's single main timer and its independent
// deferred-vote slot.
//
// A Service is owned by one event loop. Fires are handed back to that loop through the
// post function, so callbacks never run concurrently with command handlers. Every
// (re)schedule bumps a generation counter and a fire whose generation no longer matches
// is dropped, which makes Clear and Set safe against fires already in flight.
package timer

import (
	"time"
)

// DefaultExpiryMessage is announced when Extend has to start a fresh timer.
const DefaultExpiryMessage = "Time's up"

// Stopper cancels a scheduled callback. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Scheduler abstracts the clock so tests can drive time by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
	Now() time.Time
}

// RealScheduler schedules on the wall clock.
type RealScheduler struct{}

// AfterFunc wraps time.AfterFunc.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Now returns time.Now().
func (RealScheduler) Now() time.Time {
	return time.Now()
}

type slot struct {
	gen      uint64
	active   bool
	stop     Stopper
	deadline time.Time
	message  string
	onFire   func()
}

// Service owns the main and deferred timer slots. It is not safe for concurrent use;
// call it from the loop goroutine only.
type Service struct {
	sched    Scheduler
	post     func(func())
	announce func(string)

	main     slot
	deferred slot
}

// New creates a Service. post must enqueue its argument on the owning loop; announce is
// used for "=== message ===" expiry notices.
func New(sched Scheduler, post func(func()), announce func(string)) *Service {
	if sched == nil {
		sched = RealScheduler{}
	}
	return &Service{sched: sched, post: post, announce: announce}
}

// Set replaces any main timer with a new one firing after d.
// On fire, message (if non-empty) is announced and then onFire (if non-nil) runs.
func (s *Service) Set(d time.Duration, message string, onFire func()) {
	s.schedule(&s.main, d, message, onFire)
}

// Clear cancels the main timer. A no-op when none is active.
func (s *Service) Clear() {
	s.cancel(&s.main)
}

// Active reports whether a main timer is pending.
func (s *Service) Active() bool {
	return s.main.active
}

// Remaining returns the time left on the main timer, or zero when none is active.
func (s *Service) Remaining() time.Duration {
	if !s.main.active {
		return 0
	}
	if left := s.main.deadline.Sub(s.sched.Now()); left > 0 {
		return left
	}
	return 0
}

// Extend delays the live main timer by delta, keeping its message and callback.
// With no live timer a fresh delta timer is started. Returns the new time remaining.
func (s *Service) Extend(delta time.Duration) time.Duration {
	if !s.main.active {
		s.schedule(&s.main, delta, DefaultExpiryMessage, nil)
		return delta
	}
	total := s.Remaining() + delta
	s.schedule(&s.main, total, s.main.message, s.main.onFire)
	return total
}

// SetDeferred arms the deferred slot. It never touches the main timer.
func (s *Service) SetDeferred(d time.Duration, onFire func()) {
	s.schedule(&s.deferred, d, "", onFire)
}

// ClearDeferred cancels the deferred slot.
func (s *Service) ClearDeferred() {
	s.cancel(&s.deferred)
}

// DeferredActive reports whether the deferred slot is pending.
func (s *Service) DeferredActive() bool {
	return s.deferred.active
}

// ClearAll cancels both slots.
func (s *Service) ClearAll() {
	s.Clear()
	s.ClearDeferred()
}

func (s *Service) schedule(sl *slot, d time.Duration, message string, onFire func()) {
	s.cancel(sl)
	sl.gen++
	gen := sl.gen
	sl.active = true
	sl.deadline = s.sched.Now().Add(d)
	sl.message = message
	sl.onFire = onFire
	sl.stop = s.sched.AfterFunc(d, func() {
		s.post(func() { s.fire(sl, gen) })
	})
}

func (s *Service) cancel(sl *slot) {
	if sl.stop != nil {
		sl.stop.Stop()
	}
	sl.gen++
	sl.active = false
	sl.stop = nil
	sl.message = ""
	sl.onFire = nil
}

func (s *Service) fire(sl *slot, gen uint64) {
	if !sl.active || sl.gen != gen {
		return
	}
	message, onFire := sl.message, sl.onFire
	sl.active = false
	sl.stop = nil
	sl.message = ""
	sl.onFire = nil

	if message != "" && s.announce != nil {
		s.announce("=== " + message + " ===")
	}
	if onFire != nil {
		onFire()
	}
}
