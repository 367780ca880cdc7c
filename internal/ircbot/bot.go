// Package ircbot implements chat.Transport over an IRC connection.
package ircbot

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"gopkg.in/irc.v4"

	"github.com/dyluth/docket/internal/chat"
)

// Config describes the IRC connection.
type Config struct {
	Server   string // host:port
	TLS      bool
	Nick     string
	Password string // server password, optional
	User     string
	Name     string
	Channel  string
}

// writer is the part of *irc.Client the bot sends through.
type writer interface {
	Write(line string) error
}

// Bot is an IRC-backed chat.Transport. Run owns the connection; the other methods are safe
// to call from any goroutine.
type Bot struct {
	cfg    Config
	events chan chat.Event
	stop   chan struct{}

	mu      sync.Mutex
	out     writer
	nick    string
	roster  map[string][]string
	waiting map[string][]func([]string, error)
}

var _ chat.Transport = (*Bot)(nil)

// New validates cfg and returns an unconnected bot.
func New(cfg Config) (*Bot, error) {
	if cfg.Server == "" {
		return nil, fmt.Errorf("irc server is required")
	}
	if cfg.Nick == "" {
		return nil, fmt.Errorf("irc nick is required")
	}
	if !strings.HasPrefix(cfg.Channel, "#") && !strings.HasPrefix(cfg.Channel, "&") {
		return nil, fmt.Errorf("irc channel %q must start with # or &", cfg.Channel)
	}
	if cfg.User == "" {
		cfg.User = cfg.Nick
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Nick
	}
	return &Bot{
		cfg:     cfg,
		events:  make(chan chat.Event, 64),
		stop:    make(chan struct{}),
		nick:    cfg.Nick,
		roster:  make(map[string][]string),
		waiting: make(map[string][]func([]string, error)),
	}, nil
}

// Run dials the server and processes traffic until ctx is cancelled or the connection drops.
// The Events channel is closed when Run returns.
func (b *Bot) Run(ctx context.Context) error {
	conn, err := b.dial(ctx)
	if err != nil {
		b.shutdown(err)
		return err
	}
	log.Printf("[IRC] Connected to %s as %s", b.cfg.Server, b.cfg.Nick)
	return b.serve(ctx, conn)
}

func (b *Bot) serve(ctx context.Context, conn io.ReadWriteCloser) error {
	client := irc.NewClient(conn, irc.ClientConfig{
		Nick:          b.cfg.Nick,
		Pass:          b.cfg.Password,
		User:          b.cfg.User,
		Name:          b.cfg.Name,
		PingFrequency: time.Minute,
		PingTimeout:   2 * time.Minute,
		Handler: irc.HandlerFunc(func(_ *irc.Client, m *irc.Message) {
			b.handle(m)
		}),
	})

	b.mu.Lock()
	b.out = client
	b.mu.Unlock()

	err := client.RunContext(ctx)
	if ctx.Err() != nil {
		err = nil
	}
	b.shutdown(err)
	return err
}

func (b *Bot) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	if !b.cfg.TLS {
		conn, err := dialer.DialContext(ctx, "tcp", b.cfg.Server)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", b.cfg.Server, err)
		}
		return conn, nil
	}
	host, _, err := net.SplitHostPort(b.cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("invalid irc server %q: %w", b.cfg.Server, err)
	}
	td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
	conn, err := td.DialContext(ctx, "tcp", b.cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s over TLS: %w", b.cfg.Server, err)
	}
	return conn, nil
}

// shutdown fails outstanding roster queries and closes the event stream.
func (b *Bot) shutdown(err error) {
	if err == nil {
		err = fmt.Errorf("irc connection closed")
	}
	b.mu.Lock()
	b.out = nil
	waiting := b.waiting
	b.waiting = make(map[string][]func([]string, error))
	b.mu.Unlock()

	for _, cbs := range waiting {
		for _, cb := range cbs {
			cb(nil, err)
		}
	}
	close(b.stop)
	close(b.events)
}

// Events implements chat.Transport.
func (b *Bot) Events() <-chan chat.Event { return b.events }

// Nick implements chat.Transport.
func (b *Bot) Nick() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nick
}

// Send writes text as one PRIVMSG per line.
func (b *Bot) Send(target, text string) error {
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if err := b.write(fmt.Sprintf("PRIVMSG %s :%s", target, line)); err != nil {
			return fmt.Errorf("failed to send to %s: %w", target, err)
		}
	}
	return nil
}

// Names queries channel membership. Concurrent queries for the same channel share one NAMES.
func (b *Bot) Names(channel string, cb func([]string, error)) {
	key := strings.ToLower(channel)
	b.mu.Lock()
	b.waiting[key] = append(b.waiting[key], cb)
	first := len(b.waiting[key]) == 1
	b.mu.Unlock()

	if !first {
		return
	}
	if err := b.write("NAMES " + channel); err != nil {
		b.deliver(key, nil, err)
	}
}

func (b *Bot) write(line string) error {
	b.mu.Lock()
	out := b.out
	b.mu.Unlock()
	if out == nil {
		return fmt.Errorf("not connected")
	}
	return out.Write(line)
}

func (b *Bot) emit(ev chat.Event) {
	select {
	case b.events <- ev:
	case <-b.stop:
	}
}

// handle translates one server message.
func (b *Bot) handle(m *irc.Message) {
	from := ""
	if m.Prefix != nil {
		from = m.Prefix.Name
	}

	switch m.Command {
	case "001":
		if len(m.Params) > 0 {
			b.mu.Lock()
			b.nick = m.Params[0]
			b.mu.Unlock()
		}
		if err := b.write("JOIN " + b.cfg.Channel); err != nil {
			log.Printf("[IRC] Failed to join %s: %v", b.cfg.Channel, err)
			return
		}
		b.emit(chat.Event{Kind: chat.EventReady})

	case "PRIVMSG", "NOTICE":
		if len(m.Params) < 2 {
			return
		}
		text := m.Trailing()
		if strings.HasPrefix(text, "\x01") {
			return // CTCP
		}
		kind := chat.EventMessage
		if m.Command == "NOTICE" {
			kind = chat.EventNotice
		}
		b.emit(chat.Event{Kind: kind, From: from, Target: m.Params[0], Text: text})

	case "JOIN":
		if len(m.Params) < 1 {
			return
		}
		b.emit(chat.Event{Kind: chat.EventJoin, From: from, Target: m.Params[0]})

	case "NICK":
		if len(m.Params) < 1 {
			return
		}
		b.mu.Lock()
		if strings.EqualFold(from, b.nick) {
			b.nick = m.Params[0]
		}
		b.mu.Unlock()

	case "353": // RPL_NAMREPLY: me, symbol, channel, names
		if len(m.Params) < 4 {
			return
		}
		key := strings.ToLower(m.Params[2])
		var names []string
		for _, n := range strings.Fields(m.Trailing()) {
			names = append(names, strings.TrimLeft(n, "~&@%+"))
		}
		b.mu.Lock()
		b.roster[key] = append(b.roster[key], names...)
		b.mu.Unlock()

	case "366": // RPL_ENDOFNAMES: me, channel, text
		if len(m.Params) < 2 {
			return
		}
		key := strings.ToLower(m.Params[1])
		b.mu.Lock()
		names := b.roster[key]
		delete(b.roster, key)
		b.mu.Unlock()
		b.deliver(key, names, nil)

	case "433": // ERR_NICKNAMEINUSE before registration
		log.Printf("[IRC] Nick %s is in use", b.cfg.Nick)
	}
}

func (b *Bot) deliver(key string, names []string, err error) {
	b.mu.Lock()
	cbs := b.waiting[key]
	delete(b.waiting, key)
	b.mu.Unlock()
	for _, cb := range cbs {
		cb(names, err)
	}
}
