// Package chat defines the narrow transport surface the session driver talks to.
// The IRC implementation lives in internal/ircbot; tests use a recording fake.
package chat

import "strings"

// EventKind classifies an inbound event.
type EventKind string

const (
	// EventReady fires once the transport has registered and joined its channel.
	EventReady EventKind = "ready"
	// EventMessage is a channel or private message.
	EventMessage EventKind = "message"
	// EventNotice is a NOTICE, typically from services.
	EventNotice EventKind = "notice"
	// EventJoin is a user joining the channel.
	EventJoin EventKind = "join"
)

// Event is one inbound occurrence on the transport.
type Event struct {
	Kind   EventKind
	From   string // sender nick
	Target string // channel name, or the bot's nick for private messages
	Text   string
}

// IsPrivate reports whether the event was addressed to self rather than a channel.
func (e Event) IsPrivate(self string) bool {
	return strings.EqualFold(e.Target, self)
}

// Transport is a chat connection.
type Transport interface {
	// Events delivers inbound events. The channel is closed when the transport stops.
	Events() <-chan Event
	// Send writes text to a channel or nick.
	Send(target, text string) error
	// Names asks for the roster of channel. cb runs on the transport's goroutine.
	Names(channel string, cb func(names []string, err error))
	// Nick is the transport's current nick.
	Nick() string
}
