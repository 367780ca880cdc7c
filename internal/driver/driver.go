// Package driver owns the session loop: one goroutine that receives chat events, timer
// fires and store continuations, routes commands to the active meeting mode and gives
// modes their Env.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dyluth/docket/internal/chat"
	"github.com/dyluth/docket/internal/meeting"
	"github.com/dyluth/docket/internal/timer"
)

// Options configure a Driver.
type Options struct {
	Channel          string
	Sigil            string        // command prefix, default ","
	Instance         string        // reported in structured log events
	ReverifyInterval time.Duration // 0 disables periodic chair re-verification
	Scheduler        timer.Scheduler
}

// Driver routes chat traffic to the active mode.
type Driver struct {
	transport chat.Transport
	auth      Authorizer
	opts      Options

	modes   map[string]meeting.Mode
	tables  map[string]map[string]meeting.Command
	private map[string]map[string]meeting.Command
	mode    meeting.Mode

	timers  *timer.Service
	handler meeting.StateHandler
	posts   chan func()
	done    chan struct{}
	worker  *worker
	submit  func(job)
}

// New builds a driver over transport. The driver starts in idle mode; the sequential and
// group modes are built from deps. It fails if any mode leaves a chair or private command
// unimplemented.
func New(transport chat.Transport, auth Authorizer, deps meeting.Deps, opts Options) (*Driver, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("channel is required")
	}
	if opts.Sigil == "" {
		opts.Sigil = ","
	}

	d := &Driver{
		transport: transport,
		auth:      auth,
		opts:      opts,
		posts:     make(chan func(), 256),
		done:      make(chan struct{}),
	}
	d.timers = timer.New(opts.Scheduler, d.post, d.say)
	d.worker = newWorker(d.post)
	d.submit = d.worker.submit

	idle := meeting.NewIdleMode(deps.Settings)
	if err := d.register(idle, meeting.NewSequentialMode(deps), meeting.NewGroupMode(deps)); err != nil {
		return nil, err
	}
	d.mode = idle
	return d, nil
}

func (d *Driver) register(modes ...meeting.Mode) error {
	d.modes = make(map[string]meeting.Mode, len(modes))
	d.tables = make(map[string]map[string]meeting.Command, len(modes))
	d.private = make(map[string]map[string]meeting.Command, len(modes))

	env := &loopEnv{d: d}
	for _, m := range modes {
		commands, private := m.Commands(), m.PrivateCommands()
		if err := checkTable(m.Name(), "chair", commands, meeting.ChairCommands); err != nil {
			return err
		}
		if err := checkTable(m.Name(), "private", private, meeting.PrivateCommands); err != nil {
			return err
		}
		m.Attach(env)
		d.modes[m.Name()] = m
		d.tables[m.Name()] = commands
		d.private[m.Name()] = private
	}
	return nil
}

func checkTable(mode, kind string, table map[string]meeting.Command, names []string) error {
	var missing []string
	for _, name := range names {
		if table[name] == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s mode is missing %s commands: %s", mode, kind, strings.Join(missing, ", "))
	}
	return nil
}

// Mode returns the active mode.
func (d *Driver) Mode() meeting.Mode {
	return d.mode
}

// Run processes events until ctx is cancelled or the transport closes its event channel.
func (d *Driver) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.worker.run(ctx)

	var reverify <-chan time.Time
	if d.opts.ReverifyInterval > 0 {
		ticker := time.NewTicker(d.opts.ReverifyInterval)
		defer ticker.Stop()
		reverify = ticker.C
	}

	log.Printf("[Driver] Starting on %s as %s", d.opts.Channel, d.transport.Nick())
	events := d.transport.Events()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Driver] Shutting down...")
			d.shutdown()
			return nil

		case ev, ok := <-events:
			if !ok {
				log.Printf("[Driver] Transport closed")
				d.shutdown()
				return nil
			}
			d.handle(ev)

		case f := <-d.posts:
			f()

		case <-reverify:
			d.auth.VerifyAll()
		}
	}
}

func (d *Driver) shutdown() {
	d.timers.ClearAll()
	close(d.done)
}

// Announce says text in the channel from outside the loop.
func (d *Driver) Announce(text string) {
	d.post(func() { d.say(text) })
}

// post enqueues f onto the loop. Safe from any goroutine.
func (d *Driver) post(f func()) {
	select {
	case d.posts <- f:
	case <-d.done:
	}
}

func (d *Driver) handle(ev chat.Event) {
	self := d.transport.Nick()
	switch ev.Kind {
	case chat.EventReady:
		log.Printf("[Driver] Connected as %s", self)
		d.auth.VerifyAll()

	case chat.EventJoin:
		if strings.EqualFold(ev.From, self) {
			return
		}
		d.auth.Verify(ev.From)
		d.mode.OnJoin(ev.From)

	case chat.EventNotice:
		if nick, granted, ok := d.auth.HandleNotice(ev.From, ev.Text); ok {
			d.logEvent("chair_verified", map[string]interface{}{"nick": nick, "granted": granted})
		}

	case chat.EventMessage:
		if ev.IsPrivate(self) {
			d.handlePrivate(ev.From, ev.Text)
			return
		}
		if !strings.EqualFold(ev.Target, d.opts.Channel) {
			return
		}
		d.mode.Record(ev.From, ev.Text)
		d.handleChannel(ev.From, ev.Text)
	}
}

func (d *Driver) handleChannel(nick, text string) {
	if !strings.HasPrefix(text, d.opts.Sigil) {
		if d.handler != nil {
			d.handler(nick, text)
		}
		return
	}
	if !d.auth.IsChair(nick) {
		return
	}

	name, args := parseCommand(strings.TrimPrefix(text, d.opts.Sigil))
	if name == "" {
		return
	}

	var err error
	if cmd, ok := d.driverCommands()[name]; ok {
		err = cmd(nick, args)
	} else if cmd, ok := d.tables[d.mode.Name()][name]; ok {
		err = cmd(nick, args)
	} else {
		d.say(fmt.Sprintf("%s: I don't recognize that command.", nick))
		return
	}
	if err != nil {
		d.reportError(nick, name, err, d.say)
	}
}

func (d *Driver) handlePrivate(nick, text string) {
	name, args := parseCommand(strings.TrimPrefix(text, d.opts.Sigil))
	tell := func(msg string) { d.tell(nick, msg) }
	if name == "" {
		return
	}
	if name == "help" {
		tell(d.helpText(nick))
		return
	}

	cmd, ok := d.private[d.mode.Name()][name]
	if !ok {
		tell("I don't recognize that command. Try help.")
		return
	}
	if err := cmd(nick, args); err != nil {
		d.reportError(nick, name, err, tell)
	}
}

func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func (d *Driver) say(text string) {
	if err := d.transport.Send(d.opts.Channel, text); err != nil {
		log.Printf("[Driver] Failed to send to %s: %v", d.opts.Channel, err)
	}
	d.mode.Record(d.transport.Nick(), text)
}

func (d *Driver) tell(nick, text string) {
	if err := d.transport.Send(nick, text); err != nil {
		log.Printf("[Driver] Failed to send to %s: %v", nick, err)
	}
}

// switchTo activates the named mode. Pending timers and listeners belong to the old mode
// and are dropped.
func (d *Driver) switchTo(name string) error {
	m, ok := d.modes[name]
	if !ok {
		return fmt.Errorf("unknown mode %q", name)
	}
	if m == d.mode {
		return nil
	}
	from := d.mode.Name()
	d.timers.ClearAll()
	d.handler = nil
	d.mode = m
	d.logEvent("mode_switched", map[string]interface{}{"from": from, "to": name})
	return nil
}

// logEvent logs a structured event in JSON format.
func (d *Driver) logEvent(eventType string, data map[string]interface{}) {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "driver"
	data["event_type"] = eventType
	data["instance"] = d.opts.Instance
	data["mode"] = d.mode.Name()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Driver] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

func logf(format string, args ...interface{}) {
	log.Printf("[Driver] "+format, args...)
}
