package meeting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/docket/internal/testutil"
	"github.com/dyluth/docket/internal/timer"
	"github.com/dyluth/docket/pkg/docket"
)

const botNick = "docketbot"

// fakeEnv stands in for the driver: store work runs inline, timers run off a manual clock
// and everything said is captured.
type fakeEnv struct {
	sched   *testutil.ManualScheduler
	timers  *timer.Service
	handler StateHandler

	said     []string
	told     map[string][]string
	events   []string
	switched []string
	roster   []string
	chairs   map[string]bool
}

func newFakeEnv() *fakeEnv {
	env := &fakeEnv{
		sched:  testutil.NewManualScheduler(),
		told:   make(map[string][]string),
		chairs: map[string]bool{"chair": true},
	}
	env.timers = timer.New(env.sched, testutil.Inline, env.Say)
	return env
}

func (e *fakeEnv) Say(text string)        { e.said = append(e.said, text) }
func (e *fakeEnv) Tell(nick, text string) { e.told[nick] = append(e.told[nick], text) }
func (e *fakeEnv) BotNick() string        { return botNick }
func (e *fakeEnv) IsChair(nick string) bool {
	return e.chairs[nick]
}

func (e *fakeEnv) SetTimer(d time.Duration, message string, onFire func()) {
	e.timers.Set(d, message, onFire)
}
func (e *fakeEnv) ClearTimer()                                   { e.timers.Clear() }
func (e *fakeEnv) ExtendTimer(delta time.Duration) time.Duration { return e.timers.Extend(delta) }
func (e *fakeEnv) TimerActive() bool                             { return e.timers.Active() }
func (e *fakeEnv) SetDeferred(d time.Duration, onFire func())    { e.timers.SetDeferred(d, onFire) }
func (e *fakeEnv) ClearDeferred()                                { e.timers.ClearDeferred() }

func (e *fakeEnv) Names(then func([]string, error)) {
	then(append([]string{botNick}, e.roster...), nil)
}

func (e *fakeEnv) Async(work func(ctx context.Context) error, then func(error)) {
	then(work(context.Background()))
}

func (e *fakeEnv) SetStateHandler(h StateHandler) { e.handler = h }
func (e *fakeEnv) ClearStateHandler()             { e.handler = nil }

func (e *fakeEnv) SwitchMode(name string) error {
	e.switched = append(e.switched, name)
	return nil
}

func (e *fakeEnv) Event(eventType string, _ map[string]interface{}) {
	e.events = append(e.events, eventType)
}

// line delivers a non-command channel line the way the driver does.
func (e *fakeEnv) line(m Mode, nick, text string) {
	m.Record(nick, text)
	if e.handler != nil {
		e.handler(nick, text)
	}
}

func (e *fakeEnv) lastSaid() string {
	if len(e.said) == 0 {
		return ""
	}
	return e.said[len(e.said)-1]
}

// saidContaining reports whether any channel line contains substr.
func (e *fakeEnv) saidContaining(substr string) bool {
	for _, line := range e.said {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func (e *fakeEnv) reset() {
	e.said = nil
	e.told = make(map[string][]string)
}

// recordingRecorder captures transcript lines per ref.
type recordingRecorder struct {
	lines map[string][]string
}

func (r *recordingRecorder) Record(ref, nick, line string) {
	if r.lines == nil {
		r.lines = make(map[string][]string)
	}
	r.lines[ref] = append(r.lines[ref], nick+": "+line)
}

func setupStore(t *testing.T) *docket.Client {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := docket.NewClient(&redis.Options{Addr: mr.Addr()}, "meeting-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func seedItems(t *testing.T, store docket.Store, items ...*docket.ReviewItem) {
	t.Helper()
	for _, item := range items {
		require.NoError(t, store.SaveItem(context.Background(), item))
	}
}

func testSettings() Settings {
	s := DefaultSettings()
	s.RulesURL = "https://example.org/rules"
	return s
}

// run invokes a chair command and returns its error.
func run(m Mode, name string, args ...string) error {
	return m.Commands()[name]("chair", args)
}

func runPrivate(m Mode, nick, name string, args ...string) error {
	return m.PrivateCommands()[name](nick, args)
}
