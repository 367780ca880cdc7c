package driver

import (
	"context"
	"time"

	"github.com/dyluth/docket/internal/meeting"
)

// loopEnv is the capability modes get. Every method must be called from the loop.
type loopEnv struct {
	d *Driver
}

var _ meeting.Env = (*loopEnv)(nil)

func (e *loopEnv) Say(text string)          { e.d.say(text) }
func (e *loopEnv) Tell(nick, text string)   { e.d.tell(nick, text) }
func (e *loopEnv) BotNick() string          { return e.d.transport.Nick() }
func (e *loopEnv) IsChair(nick string) bool { return e.d.auth.IsChair(nick) }

func (e *loopEnv) SetTimer(d time.Duration, message string, onFire func()) {
	e.d.timers.Set(d, message, onFire)
}

func (e *loopEnv) ClearTimer()                                   { e.d.timers.Clear() }
func (e *loopEnv) ExtendTimer(delta time.Duration) time.Duration { return e.d.timers.Extend(delta) }
func (e *loopEnv) TimerActive() bool                             { return e.d.timers.Active() }
func (e *loopEnv) SetDeferred(d time.Duration, onFire func())    { e.d.timers.SetDeferred(d, onFire) }
func (e *loopEnv) ClearDeferred()                                { e.d.timers.ClearDeferred() }

func (e *loopEnv) Names(then func(names []string, err error)) {
	e.d.transport.Names(e.d.opts.Channel, func(names []string, err error) {
		e.d.post(func() { then(names, err) })
	})
}

func (e *loopEnv) Async(work func(ctx context.Context) error, then func(err error)) {
	e.d.submit(job{work: work, then: then})
}

func (e *loopEnv) SetStateHandler(h meeting.StateHandler) { e.d.handler = h }
func (e *loopEnv) ClearStateHandler()                     { e.d.handler = nil }

func (e *loopEnv) SwitchMode(name string) error {
	return e.d.switchTo(name)
}

func (e *loopEnv) Event(eventType string, fields map[string]interface{}) {
	e.d.logEvent(eventType, fields)
}
