package timer_test

import (
	"testing"
	"time"

	"github.com/dyluth/docket/internal/testutil"
	"github.com/dyluth/docket/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() (*timer.Service, *testutil.ManualScheduler, *[]string) {
	sched := testutil.NewManualScheduler()
	var announced []string
	svc := timer.New(sched, testutil.Inline, func(msg string) { announced = append(announced, msg) })
	return svc, sched, &announced
}

func TestSetAndFire(t *testing.T) {
	svc, sched, announced := newService()
	fired := 0
	svc.Set(30*time.Second, "Champion call over", func() { fired++ })
	assert.True(t, svc.Active())
	assert.Equal(t, 30*time.Second, svc.Remaining())

	sched.Advance(29 * time.Second)
	assert.Equal(t, 0, fired)
	assert.Equal(t, time.Second, svc.Remaining())

	sched.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.False(t, svc.Active())
	assert.Equal(t, []string{"=== Champion call over ==="}, *announced)
}

func TestSetReplacesExisting(t *testing.T) {
	svc, sched, _ := newService()
	var fired []string
	svc.Set(10*time.Second, "", func() { fired = append(fired, "first") })
	svc.Set(20*time.Second, "", func() { fired = append(fired, "second") })

	sched.Advance(time.Minute)
	assert.Equal(t, []string{"second"}, fired)
}

func TestClear(t *testing.T) {
	svc, sched, announced := newService()
	fired := false
	svc.Set(5*time.Second, "msg", func() { fired = true })
	svc.Clear()
	svc.Clear()

	sched.Advance(time.Minute)
	assert.False(t, fired)
	assert.Empty(t, *announced)
	assert.Equal(t, time.Duration(0), svc.Remaining())
}

func TestExtend(t *testing.T) {
	t.Run("adds exactly delta to an active timer", func(t *testing.T) {
		svc, sched, _ := newService()
		fired := false
		svc.Set(3*time.Minute, "Debate over", func() { fired = true })
		sched.Advance(time.Minute)

		remaining := svc.Extend(time.Minute)
		assert.Equal(t, 3*time.Minute, remaining)

		sched.Advance(2*time.Minute + 59*time.Second)
		assert.False(t, fired)
		sched.Advance(time.Second)
		assert.True(t, fired)
	})

	t.Run("compounds", func(t *testing.T) {
		svc, _, _ := newService()
		svc.Set(time.Minute, "", nil)
		svc.Extend(time.Minute)
		assert.Equal(t, 3*time.Minute, svc.Extend(time.Minute))
	})

	t.Run("starts a fresh timer when none is active", func(t *testing.T) {
		svc, sched, announced := newService()
		assert.Equal(t, 2*time.Minute, svc.Extend(2*time.Minute))
		assert.True(t, svc.Active())

		sched.Advance(2 * time.Minute)
		require.Len(t, *announced, 1)
		assert.Equal(t, "=== "+timer.DefaultExpiryMessage+" ===", (*announced)[0])
	})
}

func TestDeferredSlotIsIndependent(t *testing.T) {
	svc, sched, _ := newService()
	var fired []string
	svc.Set(time.Minute, "", func() { fired = append(fired, "main") })
	svc.SetDeferred(10*time.Second, func() { fired = append(fired, "deferred") })

	svc.Clear()
	assert.True(t, svc.DeferredActive())

	svc.Set(20*time.Second, "", func() { fired = append(fired, "main2") })
	svc.ClearDeferred()
	assert.True(t, svc.Active())

	svc.SetDeferred(5*time.Second, func() { fired = append(fired, "deferred2") })
	sched.Advance(time.Minute)
	assert.Equal(t, []string{"deferred2", "main2"}, fired)
}

func TestStaleFireIsDropped(t *testing.T) {
	sched := testutil.NewManualScheduler()
	var queue []func()
	post := func(f func()) { queue = append(queue, f) }
	svc := timer.New(sched, post, nil)

	fired := 0
	svc.Set(time.Second, "", func() { fired++ })
	sched.Advance(time.Second)
	require.Len(t, queue, 1, "fire is posted, not run")

	// the loop cleared the timer before draining the posted fire
	svc.Clear()
	for _, f := range queue {
		f()
	}
	assert.Equal(t, 0, fired)
}

func TestCallbackMayRearm(t *testing.T) {
	svc, sched, _ := newService()
	count := 0
	var rearm func()
	rearm = func() {
		count++
		if count < 3 {
			svc.Set(time.Second, "", rearm)
		}
	}
	svc.Set(time.Second, "", rearm)
	sched.Advance(10 * time.Second)
	assert.Equal(t, 3, count)
}
