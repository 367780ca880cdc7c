package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/dyluth/docket/internal/timer"
)

// ManualScheduler is a timer.Scheduler whose clock only moves when Advance is called.
// Due callbacks run synchronously, in deadline order, on the caller's goroutine.
type ManualScheduler struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*manualTimer
}

type manualTimer struct {
	at      time.Time
	seq     int
	f       func()
	stopped bool
}

var _ timer.Scheduler = (*ManualScheduler)(nil)

// NewManualScheduler starts the clock at a fixed instant.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

// Now returns the manual clock's current time.
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc registers f to run once the clock reaches now+d.
func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) timer.Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{at: m.now.Add(d), seq: m.seq, f: f}
	m.pending = append(m.pending, t)
	return stopFunc(func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	})
}

// Advance moves the clock forward by d, running every callback that becomes due.
// Callbacks scheduled by other callbacks are honoured if they fall inside the window.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		next.stopped = true
		m.now = next.at
		m.mu.Unlock()

		next.f()
	}
}

// Pending returns how many callbacks are still scheduled.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (m *ManualScheduler) nextDueLocked(target time.Time) *manualTimer {
	var due []*manualTimer
	live := m.pending[:0]
	for _, t := range m.pending {
		if t.stopped {
			continue
		}
		live = append(live, t)
		if !t.at.After(target) {
			due = append(due, t)
		}
	}
	m.pending = live
	if len(due) == 0 {
		return nil
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

type stopFunc func() bool

func (f stopFunc) Stop() bool { return f() }

// Inline is a post function that runs the closure immediately. Use it where a test
// stands in for the driver loop.
func Inline(f func()) { f() }
