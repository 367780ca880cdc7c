package ircbot

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/irc.v4"

	"github.com/dyluth/docket/internal/chat"
)

type fakeWriter struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (w *fakeWriter) Write(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.lines = append(w.lines, line)
	return nil
}

func (w *fakeWriter) all() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

func newTestBot(t *testing.T) (*Bot, *fakeWriter) {
	t.Helper()
	b, err := New(Config{Server: "irc.example.org:6697", Nick: "docketbot", Channel: "#review"})
	require.NoError(t, err)
	w := &fakeWriter{}
	b.out = w
	return b, w
}

func feed(t *testing.T, b *Bot, line string) {
	t.Helper()
	m, err := irc.ParseMessage(line)
	require.NoError(t, err)
	b.handle(m)
}

func next(t *testing.T, b *Bot) chat.Event {
	t.Helper()
	select {
	case ev := <-b.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return chat.Event{}
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Nick: "x", Channel: "#c"})
	assert.Error(t, err)
	_, err = New(Config{Server: "h:1", Channel: "#c"})
	assert.Error(t, err)
	_, err = New(Config{Server: "h:1", Nick: "x", Channel: "review"})
	assert.Error(t, err)

	b, err := New(Config{Server: "h:1", Nick: "x", Channel: "#c"})
	require.NoError(t, err)
	assert.Equal(t, "x", b.cfg.User)
	assert.Equal(t, "x", b.cfg.Name)
}

func TestHandleTranslatesTraffic(t *testing.T) {
	b, w := newTestBot(t)

	feed(t, b, ":irc.example.org 001 docketbot_ :Welcome")
	assert.Equal(t, chat.Event{Kind: chat.EventReady}, next(t, b))
	assert.Equal(t, []string{"JOIN #review"}, w.all())
	assert.Equal(t, "docketbot_", b.Nick())

	feed(t, b, ":alice!a@host PRIVMSG #review :,start 4")
	assert.Equal(t, chat.Event{Kind: chat.EventMessage, From: "alice", Target: "#review", Text: ",start 4"}, next(t, b))

	feed(t, b, ":NickServ!s@services NOTICE docketbot_ :alice ACC 3")
	assert.Equal(t, chat.Event{Kind: chat.EventNotice, From: "NickServ", Target: "docketbot_", Text: "alice ACC 3"}, next(t, b))

	feed(t, b, ":bob!b@host JOIN #review")
	assert.Equal(t, chat.Event{Kind: chat.EventJoin, From: "bob", Target: "#review"}, next(t, b))

	feed(t, b, ":alice!a@host PRIVMSG docketbot_ :\x01VERSION\x01")
	feed(t, b, ":docketbot_!d@host NICK docketbot")
	assert.Equal(t, "docketbot", b.Nick())
	assert.Empty(t, b.events)
}

func TestNamesCollectsReplies(t *testing.T) {
	b, w := newTestBot(t)

	var got [][]string
	b.Names("#Review", func(names []string, err error) {
		require.NoError(t, err)
		got = append(got, names)
	})
	b.Names("#review", func(names []string, err error) {
		require.NoError(t, err)
		got = append(got, names)
	})
	assert.Equal(t, []string{"NAMES #Review"}, w.all(), "one query per channel")

	feed(t, b, ":srv 353 docketbot = #review :@alice +bob carol")
	feed(t, b, ":srv 353 docketbot = #review :~dave")
	feed(t, b, ":srv 366 docketbot #review :End of /NAMES list.")

	require.Len(t, got, 2)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, got[0])
	assert.Equal(t, got[0], got[1])
}

func TestNamesReportsWriteFailure(t *testing.T) {
	b, w := newTestBot(t)
	w.err = errors.New("broken pipe")

	var gotErr error
	b.Names("#review", func(_ []string, err error) { gotErr = err })
	assert.EqualError(t, gotErr, "broken pipe")
	assert.Empty(t, b.waiting)
}

func TestSendSplitsLines(t *testing.T) {
	b, w := newTestBot(t)
	require.NoError(t, b.Send("#review", "first\n\nsecond"))
	assert.Equal(t, []string{"PRIVMSG #review :first", "PRIVMSG #review :second"}, w.all())

	b.out = nil
	assert.Error(t, b.Send("#review", "x"))
}

func TestServeOverConnection(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	b, err := New(Config{Server: "irc.example.org:6667", Nick: "docketbot", Channel: "#review"})
	require.NoError(t, err)

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(serverSide)
		for scanner.Scan() {
			lines <- strings.TrimRight(scanner.Text(), "\r")
		}
		close(lines)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.serve(ctx, clientSide) }()

	waitFor := func(prefix string) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case line := <-lines:
				if strings.HasPrefix(line, prefix) {
					return
				}
			case <-deadline:
				t.Fatalf("never saw %q", prefix)
			}
		}
	}

	waitFor("USER docketbot")
	_, err = serverSide.Write([]byte(":srv 001 docketbot :Welcome\r\n"))
	require.NoError(t, err)
	waitFor("JOIN #review")
	assert.Equal(t, chat.EventReady, next(t, b).Kind)

	_, err = serverSide.Write([]byte(":carol!c@h PRIVMSG #review :aye\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "aye", next(t, b).Text)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
	_, open := <-b.events
	assert.False(t, open, "events closed on shutdown")
}
