package driver

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/docket/internal/chat"
	"github.com/dyluth/docket/internal/meeting"
	"github.com/dyluth/docket/internal/testutil"
	"github.com/dyluth/docket/pkg/docket"
)

const (
	channel = "#review"
	botNick = "docketbot"
)

type harness struct {
	d         *Driver
	transport *testutil.RecordingTransport
	sched     *testutil.ManualScheduler
	store     *docket.Client
}

// newHarness builds a driver whose store work runs inline and whose posts are drained
// explicitly, so tests step the loop by hand.
func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := docket.NewClient(&redis.Options{Addr: mr.Addr()}, "driver-test")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	transport := testutil.NewRecordingTransport(botNick)
	sched := testutil.NewManualScheduler()
	d, err := New(transport, NewStaticAuthorizer([]string{"Chair"}),
		meeting.Deps{Store: store, Settings: meeting.DefaultSettings()},
		Options{Channel: channel, Instance: "test", Scheduler: sched})
	require.NoError(t, err)
	d.submit = func(j job) {
		err := j.work(context.Background())
		if j.then != nil {
			j.then(err)
		}
	}
	return &harness{d: d, transport: transport, sched: sched, store: store}
}

func (h *harness) drain() {
	for {
		select {
		case f := <-h.d.posts:
			f()
		default:
			return
		}
	}
}

func (h *harness) channel(nick, text string) {
	h.d.handle(chat.Event{Kind: chat.EventMessage, From: nick, Target: channel, Text: text})
	h.drain()
}

func (h *harness) private(nick, text string) {
	h.d.handle(chat.Event{Kind: chat.EventMessage, From: nick, Target: botNick, Text: text})
	h.drain()
}

func (h *harness) advance(d time.Duration) {
	h.sched.Advance(d)
	h.drain()
}

func (h *harness) seed(t *testing.T, items ...*docket.ReviewItem) {
	t.Helper()
	for _, item := range items {
		require.NoError(t, h.store.SaveItem(context.Background(), item))
	}
}

func TestNewValidates(t *testing.T) {
	transport := testutil.NewRecordingTransport(botNick)
	auth := NewStaticAuthorizer(nil)

	_, err := New(nil, auth, meeting.Deps{}, Options{Channel: channel})
	assert.Error(t, err)
	_, err = New(transport, nil, meeting.Deps{}, Options{Channel: channel})
	assert.Error(t, err)
	_, err = New(transport, auth, meeting.Deps{}, Options{})
	assert.Error(t, err)

	d, err := New(transport, auth, meeting.Deps{}, Options{Channel: channel})
	require.NoError(t, err)
	assert.Equal(t, ",", d.opts.Sigil)
	assert.Equal(t, "none", d.Mode().Name())
}

func TestCheckTable(t *testing.T) {
	table := map[string]meeting.Command{"start": func(string, []string) error { return nil }}
	err := checkTable("broken", "chair", table, []string{"start", "next", "end"})
	require.Error(t, err)
	assert.Equal(t, "broken mode is missing chair commands: next, end", err.Error())
	assert.NoError(t, checkTable("ok", "chair", table, []string{"start"}))
}

func TestCommandRouting(t *testing.T) {
	h := newHarness(t)

	t.Run("non-chairs are ignored", func(t *testing.T) {
		h.channel("mallory", ",mode sequential")
		assert.Empty(t, h.transport.SentTo(channel))
		assert.Equal(t, "none", h.d.Mode().Name())
	})

	t.Run("idle mode hints", func(t *testing.T) {
		h.channel("chair", ",next")
		assert.Equal(t, `chair: No review format is selected. Use "mode sequential" or "mode group" first.`,
			h.transport.Last(channel))
	})

	t.Run("unknown command", func(t *testing.T) {
		h.channel("CHAIR", ",frobnicate")
		assert.Equal(t, "CHAIR: I don't recognize that command.", h.transport.Last(channel))
	})

	t.Run("mode switch", func(t *testing.T) {
		h.channel("chair", ",mode")
		assert.Equal(t, "chair: I am currently in none mode.", h.transport.Last(channel))

		h.channel("chair", ",mode bogus")
		assert.Contains(t, h.transport.Last(channel), `I don't know a "bogus" mode`)

		h.channel("chair", ",MODE kitten")
		assert.Equal(t, "=== Now in sequential mode. ===", h.transport.Last(channel))
		assert.Equal(t, "sequential", h.d.Mode().Name())

		h.channel("chair", ",mode sequential")
		assert.Equal(t, "chair: Already in sequential mode.", h.transport.Last(channel))
	})
}

func TestSessionThroughDriver(t *testing.T) {
	h := newHarness(t)
	h.seed(t,
		&docket.ReviewItem{ID: 1, Title: "Generics", Status: docket.StatusUnreviewed},
		&docket.ReviewItem{ID: 2, Title: "Profiling", Status: docket.StatusUnreviewed},
		&docket.ReviewItem{ID: 3, Title: "Fuzzing", Status: docket.StatusUnreviewed},
	)

	h.channel("chair", ",mode sequential")
	h.channel("chair", ",start")
	assert.Contains(t, h.transport.SentTo(channel), "=== Item #1: Generics ===")

	t.Run("mode switch refused mid-session", func(t *testing.T) {
		h.channel("chair", ",mode group")
		assert.Equal(t, "chair: A session is running; end it before switching modes.", h.transport.Last(channel))
		assert.Equal(t, "sequential", h.d.Mode().Name())
	})

	t.Run("champion window elapses", func(t *testing.T) {
		h.advance(30 * time.Second)
		assert.Equal(t, meeting.PhaseDebate, h.d.Mode().Phase())
	})

	t.Run("free text reaches the vote listener", func(t *testing.T) {
		h.channel("chair", ",vote")
		h.channel("alice", "aye")
		h.channel("bob", "yes")
		h.channel("carol", "nay")
		h.channel("chair", ",report")
		assert.Contains(t, h.transport.SentTo(channel), "=== Votes on #1: 2 in favor, 1 opposed ===")
	})

	t.Run("state violations are corrections", func(t *testing.T) {
		h.channel("chair", ",next")
		assert.Contains(t, h.transport.Last(channel), "chair: We just had a report on the current item.")
	})

	t.Run("accept persists", func(t *testing.T) {
		h.channel("chair", ",accept")
		item, err := h.store.GetItem(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, docket.StatusAccepted, item.Status)
	})

	t.Run("sleep ends the session", func(t *testing.T) {
		h.channel("chair", ",sleep")
		assert.Contains(t, h.transport.SentTo(channel), "=== Th-th-th-that's all folks! ===")
		assert.Equal(t, "Going to sleep. Wake me with mode sequential or mode group.", h.transport.Last(channel))
		assert.Equal(t, "none", h.d.Mode().Name())
		assert.False(t, h.d.timers.Active())
	})
}

func TestPrivateMessages(t *testing.T) {
	h := newHarness(t)

	h.private("zoe", "current")
	assert.Equal(t, []string{"No session is running right now."}, h.transport.SentTo("zoe"))

	h.private("zoe", "bogus")
	assert.Equal(t, "I don't recognize that command. Try help.", h.transport.Last("zoe"))

	h.private("zoe", "help")
	assert.Equal(t, "Private commands: agenda, current, help, next, rules, voting.", h.transport.Last("zoe"))

	h.private("chair", ",help")
	assert.Contains(t, h.transport.Last("chair"), "Chair commands: ,accept ,certify")
	assert.Empty(t, h.transport.SentTo(channel), "private traffic stays private")
}

func TestJoinGreetsDuringSession(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &docket.ReviewItem{ID: 1, Title: "Generics", Status: docket.StatusUnreviewed})
	h.channel("chair", ",mode sequential")
	h.channel("chair", ",start")
	h.transport.Reset()

	h.d.handle(chat.Event{Kind: chat.EventJoin, From: botNick, Target: channel})
	assert.Empty(t, h.transport.SentTo(channel))

	h.d.handle(chat.Event{Kind: chat.EventJoin, From: "late", Target: channel})
	assert.Contains(t, h.transport.Last(channel), "Howdy late.")
	assert.NotEmpty(t, h.transport.SentTo("late"))
}

func TestTimerAnnouncementsGoToChannel(t *testing.T) {
	h := newHarness(t)
	h.d.timers.Extend(time.Minute)
	h.advance(time.Minute)
	assert.Equal(t, "=== Time's up ===", h.transport.Last(channel))
}

func TestAnnounceGoesThroughLoop(t *testing.T) {
	h := newHarness(t)
	h.d.Announce("Transcript lines could not be saved")
	assert.Empty(t, h.transport.SentTo(channel), "nothing is sent until the loop runs")
	h.drain()
	assert.Equal(t, "Transcript lines could not be saved", h.transport.Last(channel))
}

func TestRunStopsWithTransport(t *testing.T) {
	transport := testutil.NewRecordingTransport(botNick)
	d, err := New(transport, NewStaticAuthorizer([]string{"chair"}), meeting.Deps{Settings: meeting.DefaultSettings()},
		Options{Channel: channel})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	transport.Inject(chat.Event{Kind: chat.EventReady})
	transport.Inject(chat.Event{Kind: chat.EventMessage, From: "chair", Target: channel, Text: ",mode group"})
	assert.Eventually(t, func() bool {
		return transport.Last(channel) == "=== Now in group mode. ==="
	}, time.Second, 10*time.Millisecond)

	transport.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("driver did not stop when the transport closed")
	}
}
