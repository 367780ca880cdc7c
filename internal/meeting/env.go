package meeting

import (
	"context"
	"time"
)

// StateHandler receives every non-command channel line while installed.
type StateHandler func(nick, text string)

// Command handles one chat command. args are the whitespace-separated words after the
// command name.
type Command func(nick string, args []string) error

// Env is everything a Mode may do to the outside world. The driver implements it; all
// callbacks passed in are invoked on the driver loop.
type Env interface {
	// Say sends a line to the session channel.
	Say(text string)
	// Tell sends a private line to nick.
	Tell(nick, text string)
	BotNick() string
	IsChair(nick string) bool

	SetTimer(d time.Duration, message string, onFire func())
	ClearTimer()
	ExtendTimer(delta time.Duration) time.Duration
	TimerActive() bool
	SetDeferred(d time.Duration, onFire func())
	ClearDeferred()

	// Names asks the transport for the channel roster.
	Names(then func(names []string, err error))
	// Async runs work off the loop and then posts then(err) back onto it.
	Async(work func(ctx context.Context) error, then func(err error))

	SetStateHandler(h StateHandler)
	ClearStateHandler()
	SwitchMode(name string) error

	// Event emits a structured log event.
	Event(eventType string, fields map[string]interface{})
}

// Recorder receives transcript lines. ref is docket.ItemTranscriptRef or
// docket.SessionTranscriptRef.
type Recorder interface {
	Record(ref, nick, line string)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string, string) {}

// Mode is one variant of the session state machine.
type Mode interface {
	Name() string
	// Attach hands the mode its Env. Called once when the driver is built.
	Attach(env Env)
	// Commands is the chair command table; it must cover ChairCommands.
	Commands() map[string]Command
	// PrivateCommands is the unrestricted table; it must cover PrivateCommands.
	PrivateCommands() map[string]Command
	Phase() Phase
	// InSession reports whether a session is open (mode switches are refused).
	InSession() bool
	OnJoin(nick string)
	// Record is the transcript hook, called for every channel line.
	Record(nick, line string)
}
