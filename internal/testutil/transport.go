package testutil

import (
	"strings"
	"sync"

	"github.com/dyluth/docket/internal/chat"
)

// Sent is one line written through a RecordingTransport.
type Sent struct {
	Target string
	Text   string
}

// RecordingTransport is an in-memory chat.Transport. Inbound events are injected with
// Inject; outbound lines are captured. Names answers synchronously from Roster.
type RecordingTransport struct {
	mu     sync.Mutex
	nick   string
	events chan chat.Event
	sent   []Sent
	roster []string
}

var _ chat.Transport = (*RecordingTransport)(nil)

// NewRecordingTransport creates a transport whose own nick is nick.
func NewRecordingTransport(nick string) *RecordingTransport {
	return &RecordingTransport{nick: nick, events: make(chan chat.Event, 64)}
}

func (t *RecordingTransport) Events() <-chan chat.Event { return t.events }
func (t *RecordingTransport) Nick() string              { return t.nick }

// Send records the line.
func (t *RecordingTransport) Send(target, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, Sent{Target: target, Text: text})
	return nil
}

// Names reports the roster plus the transport's own nick.
func (t *RecordingTransport) Names(_ string, cb func([]string, error)) {
	t.mu.Lock()
	names := append([]string{t.nick}, t.roster...)
	t.mu.Unlock()
	cb(names, nil)
}

// SetRoster replaces the channel roster.
func (t *RecordingTransport) SetRoster(nicks ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roster = append([]string(nil), nicks...)
}

// Inject queues an inbound event.
func (t *RecordingTransport) Inject(ev chat.Event) {
	t.events <- ev
}

// Close ends the event stream.
func (t *RecordingTransport) Close() {
	close(t.events)
}

// SentTo returns every line sent to target, in order.
func (t *RecordingTransport) SentTo(target string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, s := range t.sent {
		if strings.EqualFold(s.Target, target) {
			out = append(out, s.Text)
		}
	}
	return out
}

// Last returns the last line sent to target, or "".
func (t *RecordingTransport) Last(target string) string {
	lines := t.SentTo(target)
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// Reset forgets everything sent so far.
func (t *RecordingTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}
