package meeting

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/docket/internal/quorum"
	"github.com/dyluth/docket/internal/timespec"
	"github.com/dyluth/docket/pkg/docket"
)

// Deps are what a review mode is built from.
type Deps struct {
	Store    docket.Store
	Settings Settings
	Recorder Recorder // optional
}

// core is the session bookkeeping shared by both review modes.
type core struct {
	env      Env
	store    docket.Store
	settings Settings
	recorder Recorder
	quorum   *quorum.Tracker
	kind     docket.SessionKind

	session  *docket.Session
	starting bool
	phase    Phase
	epoch    uint64 // bumped on every phase change
	round    uint64 // bumped whenever a ballot or roll call opens
	reported map[string]bool
}

func newCore(kind docket.SessionKind, deps Deps) core {
	rec := deps.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return core{
		store:    deps.Store,
		settings: deps.Settings,
		recorder: rec,
		quorum:   quorum.New(""),
		kind:     kind,
		phase:    PhaseIdle,
	}
}

func (c *core) Attach(env Env) {
	c.env = env
	c.quorum.SetSelf(env.BotNick())
}

func (c *core) Phase() Phase {
	return c.phase
}

func (c *core) InSession() bool {
	return c.session != nil || c.starting
}

func (c *core) setPhase(p Phase) {
	from := c.phase
	c.phase = p
	c.epoch++
	if from != p {
		fields := map[string]interface{}{"from": string(from), "to": string(p)}
		if c.session != nil {
			fields["session"] = c.session.Number
		}
		c.env.Event("phase_changed", fields)
	}
}

// still returns a guard that holds while no phase change has happened since it was taken.
func (c *core) still() func() bool {
	epoch := c.epoch
	return func() bool { return c.epoch == epoch }
}

func (c *core) requireSession() error {
	if c.session == nil {
		return userErrorf("There is no session running; use start first.")
	}
	return nil
}

// failed surfaces an async failure in the channel.
func (c *core) failed(action string, err error) {
	log.Printf("[Meeting] failed to %s: %v", action, err)
	c.env.Say(fmt.Sprintf("Something went wrong trying to %s: %v", action, err))
}

// persist runs store work off the loop, reporting failure in the channel.
func (c *core) persist(action string, work func(ctx context.Context) error) {
	c.env.Async(work, func(err error) {
		if err != nil {
			c.failed(action, err)
		}
	})
}

// openSession resumes session args[0] or creates a new one, then calls then on the loop.
func (c *core) openSession(args []string, then func(resumed bool)) error {
	if c.session != nil {
		return userErrorf("Session #%d is already running; end it first.", c.session.Number)
	}
	if c.starting {
		return userErrorf("A session is already starting.")
	}

	number := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return userErrorf("%q is not a session number.", args[0])
		}
		number = n
	}

	c.starting = true
	var session *docket.Session
	c.env.Async(func(ctx context.Context) error {
		var err error
		if number > 0 {
			session, err = c.store.GetSession(ctx, number)
			return err
		}
		session, err = c.store.CreateSession(ctx, c.kind)
		return err
	}, func(err error) {
		c.starting = false
		if docket.IsNotFound(err) {
			c.env.Say(fmt.Sprintf("There is no session #%d in the system.", number))
			return
		}
		if err != nil {
			c.failed("start the session", err)
			return
		}

		session.EndedAtMs = 0
		c.session = session
		c.quorum.Reset()
		c.reported = nil
		c.env.Event("session_opened", map[string]interface{}{
			"session": session.Number,
			"kind":    string(c.kind),
			"resumed": number > 0,
		})
		then(number > 0)
	})
	return nil
}

// closeSession ends the session and hands the driver back to idle.
func (c *core) closeSession() {
	c.env.Say("=== Th-th-th-that's all folks! ===")
	c.env.ClearTimer()
	c.env.ClearDeferred()
	c.env.ClearStateHandler()

	if c.session != nil {
		c.session.EndedAtMs = time.Now().UnixMilli()
		snapshot := cloneSession(c.session)
		c.persist("close the session", func(ctx context.Context) error {
			return c.store.SaveSession(ctx, snapshot)
		})
		c.env.Event("session_closed", map[string]interface{}{
			"session": snapshot.Number,
			"decided": len(snapshot.Decided),
		})
	}
	c.session = nil
	c.reported = nil
	c.setPhase(PhaseIdle)

	if err := c.env.SwitchMode("none"); err != nil {
		log.Printf("[Meeting] failed to return to idle: %v", err)
	}
}

// saveSession persists a snapshot of the session's decided list.
func (c *core) saveSession() {
	if c.session == nil {
		return
	}
	snapshot := cloneSession(c.session)
	c.persist("save the session", func(ctx context.Context) error {
		return c.store.SaveSession(ctx, snapshot)
	})
}

// publish fires decision events for the given items.
func (c *core) publish(items []*docket.ReviewItem) {
	number := 0
	if c.session != nil {
		number = c.session.Number
	}
	events := make([]*docket.DecisionEvent, 0, len(items))
	for _, item := range items {
		events = append(events, &docket.DecisionEvent{
			ItemID:        item.ID,
			Decision:      item.Status,
			Alternative:   item.Alternative,
			SessionNumber: number,
		})
		c.env.Event("decision", map[string]interface{}{
			"session":     number,
			"item":        item.ID,
			"decision":    string(item.Status),
			"alternative": string(item.Alternative),
		})
	}
	c.persist("publish decisions", func(ctx context.Context) error {
		for _, event := range events {
			if err := c.store.PublishDecision(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// saveItems persists snapshots of items.
func (c *core) saveItems(action string, items ...*docket.ReviewItem) {
	snapshots := make([]*docket.ReviewItem, len(items))
	for i, item := range items {
		snapshots[i] = cloneItem(item)
	}
	c.persist(action, func(ctx context.Context) error {
		for _, item := range snapshots {
			if err := c.store.SaveItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// rollCall opens a roll call: every line spoken records the speaker as present.
func (c *core) rollCall() {
	c.env.ClearTimer()
	c.reported = make(map[string]bool)
	c.round++
	c.setPhase(PhaseRollCall)
	c.env.Say("=== Roll call! Please say your name for the record. ===")
	c.env.SetStateHandler(func(nick, _ string) {
		if c.phase == PhaseRollCall {
			c.reported[nick] = true
		}
	})
}

func (c *core) cmdNames(_ string, _ []string) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	switch c.phase {
	case PhaseIdle, PhaseRollCall, PhasePostCertify:
	default:
		return stateErrorf(c.phase, "Not during %s; finish this item first.", c.phase)
	}
	c.rollCall()
	return nil
}

func (c *core) cmdNonvoter(_ string, args []string) error {
	switch {
	case len(args) == 0 && c.phase == PhaseRollCall:
		c.convertLaggards()
	case len(args) == 0:
		c.env.Say(fmt.Sprintf("Nonvoters: %s.", c.quorum.Describe()))
	case len(args) == 1 && args[0] == "*":
		c.quorum.ClearNonVoters()
		c.env.Say("Nonvoter list cleared.")
	default:
		added := c.quorum.AddNonVoters(args...)
		if len(added) == 0 {
			c.env.Say(fmt.Sprintf("Nonvoters: %s.", c.quorum.Describe()))
			return nil
		}
		c.env.Say(fmt.Sprintf("Will no longer pester %s.", strings.Join(added, ", ")))
	}
	return nil
}

// convertLaggards turns everyone who has not reported in into a non-voter.
func (c *core) convertLaggards() {
	round := c.round
	c.env.Names(func(names []string, err error) {
		if round != c.round || c.phase != PhaseRollCall {
			return
		}
		if err != nil {
			c.failed("list the channel", err)
			return
		}
		laggards := c.quorum.Laggards(names, c.reported)
		if len(laggards) == 0 {
			c.env.Say("Everyone has reported in.")
			return
		}
		c.quorum.AddNonVoters(laggards...)
		c.env.Say(fmt.Sprintf("Will no longer pester %s.", strings.Join(laggards, ", ")))
	})
}

func (c *core) cmdVoter(_ string, args []string) error {
	switch {
	case len(args) == 0:
		c.env.Say(fmt.Sprintf("Nonvoters: %s.", c.quorum.Describe()))
	case len(args) == 1 && args[0] == "*":
		c.quorum.ClearNonVoters()
		c.env.Say("Will now pester everyone.")
	default:
		removed := c.quorum.RemoveNonVoters(args...)
		if len(removed) == 0 {
			c.env.Say(fmt.Sprintf("Nonvoters: %s.", c.quorum.Describe()))
			return nil
		}
		c.env.Say(fmt.Sprintf("Will now pester %s.", strings.Join(removed, ", ")))
	}
	return nil
}

// pester reports who has not voted (or reported in). responded is read when the roster
// arrives; a roster arriving after the round changed is ignored.
func (c *core) pester(responded func() map[string]bool) error {
	var missing, complete string
	switch c.phase {
	case PhaseVoting:
		missing, complete = "Didn't vote: %s.", "Everyone voted."
	case PhaseRollCall:
		missing, complete = "Haven't reported in: %s.", "Everyone has reported in."
	default:
		return stateErrorf(c.phase, "There is no vote or roll call to pester about.")
	}

	round := c.round
	c.env.Names(func(names []string, err error) {
		if round != c.round {
			return
		}
		if err != nil {
			c.failed("list the channel", err)
			return
		}
		laggards := c.quorum.Laggards(names, responded())
		if len(laggards) == 0 {
			c.env.Say(complete)
			return
		}
		c.env.Say(fmt.Sprintf(missing, strings.Join(laggards, ", ")))
	})
	return nil
}

func (c *core) cmdExtend(_ string, args []string) error {
	delta := time.Minute
	if len(args) > 0 {
		d, err := timespec.Duration(args[0], time.Minute)
		if err != nil {
			return userErrorf("extend takes a number of minutes: %v", err)
		}
		delta = d
	}
	c.env.ExtendTimer(delta)
	c.env.Say(fmt.Sprintf("=== Extending time by %s. Please continue. ===", timespec.Human(delta)))
	return nil
}

// deferVote calls openVote after d unless someone says "wait" first. The live main timer
// is pushed back by d. Long deferrals get a second warning DeferSecondCall before.
// resume, if set, keeps receiving lines while the vote is pending and is reinstalled on a
// veto. valid must fail once the phase moves on.
func (c *core) deferVote(chair string, d time.Duration, valid func() bool, openVote func(), resume StateHandler) {
	if c.env.TimerActive() {
		c.env.ExtendTimer(d)
	} else {
		c.env.Tell(chair, "Note: you called a deferred vote with no active timer on the channel. "+
			"I am doing as I am told, but am not sure what you are intending. FYI.")
	}
	c.armDeferred(d, valid, openVote)
	c.env.SetStateHandler(func(nick, text string) {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "wait") {
			c.env.ClearDeferred()
			if resume != nil {
				c.env.SetStateHandler(resume)
			} else {
				c.env.ClearStateHandler()
			}
			c.env.Say("Request to wait acknowledged. Holding off.")
			return
		}
		if resume != nil {
			resume(nick, text)
		}
	})
}

func (c *core) armDeferred(d time.Duration, valid func() bool, openVote func()) {
	second := c.settings.DeferSecondCall
	if d >= c.settings.DeferBoundary && d > second {
		c.env.SetDeferred(d-second, func() {
			if valid() {
				c.armDeferred(second, valid, openVote)
			}
		})
	} else {
		c.env.SetDeferred(d, func() {
			if valid() {
				openVote()
			}
		})
	}
	c.env.Say(fmt.Sprintf("Voting in %s unless someone objects (type \"wait\").", timespec.Human(d)))
}

// greet welcomes a latecomer to a running session.
func (c *core) greet(nick string, current string, busy bool) {
	if c.session == nil || c.quorum.IsNonVoter(nick) || strings.EqualFold(nick, c.env.BotNick()) {
		return
	}
	if busy {
		c.env.Say(fmt.Sprintf("Howdy %s. Right now we are in the %s segment on %s. "+
			"Please print your name for the record, but wait until this segment concludes.", nick, c.phase, current))
	} else {
		c.env.Say(fmt.Sprintf("Howdy %s; name for the record, please?", nick))
	}

	c.env.Tell(nick, fmt.Sprintf("Thanks for coming, %s! This session has already begun.", nick))
	if current != "" {
		c.env.Tell(nick, fmt.Sprintf("Currently, we are on %s. We are in the %s segment.", current, c.phase))
	} else {
		c.env.Tell(nick, "There is nothing under consideration right now.")
	}
	c.env.Tell(nick, "You may issue me commands via private message if you like. Issue `help` at any time for a list.")
}

// recordLine writes to the session transcript and to every ref given.
func (c *core) recordLine(nick, line string, refs ...string) {
	if c.session == nil {
		return
	}
	c.recorder.Record(c.session.TranscriptRef(), nick, line)
	for _, ref := range refs {
		c.recorder.Record(ref, nick, line)
	}
}

func (c *core) privateRules(nick string, _ []string) error {
	if c.settings.RulesURL == "" && c.settings.ProcessURL == "" {
		c.env.Tell(nick, "No rules have been published for this session.")
		return nil
	}
	if c.settings.RulesURL != "" {
		c.env.Tell(nick, "Meeting rules: "+c.settings.RulesURL)
	}
	if c.settings.ProcessURL != "" {
		c.env.Tell(nick, "Notes about process: "+c.settings.ProcessURL)
	}
	return nil
}

func (c *core) onlyIn(kind string) Command {
	return func(_ string, _ []string) error {
		return userErrorf("That command is only used in %s reviews.", kind)
	}
}

func describeItem(item *docket.ReviewItem) string {
	if item.Speaker == "" {
		return fmt.Sprintf("#%d: %s", item.ID, item.Title)
	}
	return fmt.Sprintf("#%d: %s (%s)", item.ID, item.Title, item.Speaker)
}

func cloneItem(item *docket.ReviewItem) *docket.ReviewItem {
	out := *item
	if item.Tally != nil {
		tally := *item.Tally
		out.Tally = &tally
	}
	return &out
}

func cloneSession(s *docket.Session) *docket.Session {
	out := *s
	out.Decided = append([]int{}, s.Decided...)
	return &out
}

func cloneGroup(g *docket.Group) *docket.Group {
	out := *g
	out.ItemIDs = append([]int{}, g.ItemIDs...)
	if g.Decisions != nil {
		out.Decisions = make(map[int]docket.Status, len(g.Decisions))
		for id, s := range g.Decisions {
			out.Decisions[id] = s
		}
	}
	return &out
}
