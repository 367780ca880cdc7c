package meeting

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/docket/internal/ballot"
	"github.com/dyluth/docket/internal/champion"
	"github.com/dyluth/docket/internal/timespec"
	"github.com/dyluth/docket/pkg/docket"
)

// SequentialMode reviews one item at a time: champion call, debate, aye/nay vote, report
// and a chair decision.
type SequentialMode struct {
	core

	current   *docket.ReviewItem
	upcoming  *docket.ReviewItem // set by goto, consumed by next
	preview   *docket.ReviewItem // what next would pick, for announcements
	champions champion.Queue
	votes     map[string]ballot.Vote

	counting  bool
	remaining int
}

var _ Mode = (*SequentialMode)(nil)

// NewSequentialMode creates a sequential review mode.
func NewSequentialMode(deps Deps) *SequentialMode {
	return &SequentialMode{core: newCore(docket.SessionKindSequential, deps)}
}

// Name returns "sequential".
func (s *SequentialMode) Name() string { return "sequential" }

// Current returns the item under review, if any.
func (s *SequentialMode) Current() *docket.ReviewItem { return s.current }

// Commands returns the chair command table.
func (s *SequentialMode) Commands() map[string]Command {
	return map[string]Command{
		"start":     s.cmdStart,
		"next":      s.cmdNext,
		"goto":      s.cmdGoto,
		"debate":    s.cmdDebate,
		"vote":      s.cmdVote,
		"extend":    s.cmdExtend,
		"report":    s.cmdReport,
		"accept":    s.decide("accept"),
		"reject":    s.cmdReject,
		"hold":      s.decide("hold"),
		"poster":    s.decide("poster"),
		"damaged":   s.onlyIn("group"),
		"certify":   s.onlyIn("group"),
		"suggest":   s.cmdSuggest,
		"nextchamp": s.cmdNextChampion,
		"names":     s.cmdNames,
		"pester":    s.cmdPester,
		"voter":     s.cmdVoter,
		"nonvoter":  s.cmdNonvoter,
		"end":       s.cmdEnd,
	}
}

// PrivateCommands returns the unrestricted command table.
func (s *SequentialMode) PrivateCommands() map[string]Command {
	return map[string]Command{
		"current": s.privateCurrent,
		"next":    s.privateNext,
		"rules":   s.privateRules,
		"voting":  s.privateVoting,
		"agenda":  s.privateAgenda,
	}
}

func (s *SequentialMode) cmdStart(_ string, args []string) error {
	return s.openSession(args, func(resumed bool) {
		verb := "started"
		if resumed {
			verb = "resumed"
		}
		s.env.Say(fmt.Sprintf("=== Session #%d %s. ===", s.session.Number, verb))
		s.advance()
	})
}

func (s *SequentialMode) cmdNext(_ string, args []string) error {
	if s.phase == PhasePostReport {
		return stateErrorf(s.phase, "We just had a report on the current item. I am stubbornly refusing "+
			"to move to the next item until the current one has been officially accepted or rejected.")
	}
	if err := s.requireSession(); err != nil {
		return err
	}
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return userErrorf("%q is not a number of remaining items.", args[0])
		}
		if n < 1 {
			n = 1
		}
		s.counting = true
		s.remaining = n
	}
	if s.counting {
		s.remaining--
	}
	s.advance()
	return nil
}

// queueFilter selects reviewable items not yet decided this session.
func (s *SequentialMode) queueFilter(exclude ...int) docket.ItemFilter {
	ex := append([]int{}, exclude...)
	if s.session != nil {
		ex = append(ex, s.session.Decided...)
	}
	return docket.ItemFilter{
		Statuses: []docket.Status{docket.StatusUnreviewed, docket.StatusHold},
		Exclude:  ex,
	}
}

// advance presents the goto target or the next item in the queue.
func (s *SequentialMode) advance() {
	s.env.ClearTimer()
	s.env.ClearDeferred()
	s.env.ClearStateHandler()

	var exclude []int
	if s.current != nil {
		exclude = append(exclude, s.current.ID)
	}
	filter := s.queueFilter(exclude...)
	target := s.upcoming
	s.upcoming = nil
	s.setPhase(PhaseIdle)
	valid := s.still()

	var item, following *docket.ReviewItem
	s.env.Async(func(ctx context.Context) error {
		if target != nil {
			fresh, err := s.store.GetItem(ctx, target.ID)
			if err != nil {
				return err
			}
			item = fresh
		} else {
			next, err := docket.NextItem(ctx, s.store, filter)
			if err != nil {
				return err
			}
			item = next
		}

		after := filter
		after.Exclude = append(append([]int{}, filter.Exclude...), item.ID)
		next, err := docket.NextItem(ctx, s.store, after)
		if err != nil && !docket.IsNotFound(err) {
			return err
		}
		following = next
		return nil
	}, func(err error) {
		if !valid() {
			return
		}
		if docket.IsNotFound(err) {
			s.current = nil
			s.preview = nil
			s.env.Say("Out of items!")
			return
		}
		if err != nil {
			s.failed("load the next item", err)
			return
		}
		s.present(item, following)
	})
}

// present announces item and opens the champion call.
func (s *SequentialMode) present(item, following *docket.ReviewItem) {
	s.current = item
	s.preview = following
	s.champions.Clear()
	s.votes = nil

	s.env.Say(fmt.Sprintf("=== Item %s ===", describeItem(item)))
	switch {
	case s.counting && s.remaining <= 0:
		s.env.Say("This will be the last item for today.")
	case following != nil:
		s.env.Say(fmt.Sprintf("(#%d will be next)", following.ID))
	default:
		s.env.Say("This will be the last item in the queue!")
	}

	id := item.ID
	s.setPhase(PhaseChampion)
	inCall := func() bool {
		return s.phase == PhaseChampion && s.current != nil && s.current.ID == id
	}

	if item.Status == docket.StatusHold {
		wait := 2 * s.settings.ChampionCall
		s.env.SetTimer(wait, "", func() {
			if inCall() {
				s.env.Say("Nobody stepped up to resurrect it.")
				s.apply(s.env.BotNick(), verdict{status: docket.StatusRejected})
			}
		})
		s.env.Say(fmt.Sprintf("This item, #%d, has already been debated and put on hold. "+
			"If you think it deserves to go forward and want to attempt to resurrect it, please say \"me\". "+
			"If there is a champion, then after the champion period we will debate as normal. "+
			"If there is no champion within %s, this item will be automatically rejected.",
			id, timespec.Human(wait)))
	} else {
		s.env.SetTimer(s.settings.ChampionCall, "", func() {
			if inCall() {
				s.startDebate(s.defaultDebate())
			}
		})
		s.env.Say(fmt.Sprintf("If you are a champion for #%d, or willing to champion it, please say \"me\". "+
			"If nobody steps up within %s, we will move on to debate.", id, timespec.Human(s.settings.ChampionCall)))
	}

	s.env.SetStateHandler(s.onChampionLine)
}

func (s *SequentialMode) onChampionLine(nick, text string) {
	if s.phase != PhaseChampion || s.current == nil {
		return
	}

	if champion.IsVolunteer(text) {
		pos, added := s.champions.Add(nick)
		switch {
		case !added:
		case pos == 0:
			s.inviteHead()
		default:
			head, _ := s.champions.Head()
			s.env.Say(fmt.Sprintf("%s: Excellent. Please champion #%d, but wait until %s is finished.",
				nick, s.current.ID, head))
		}
		return
	}

	if !s.champions.IsHead(nick) {
		if s.env.IsChair(nick) {
			return
		}
		if s.champions.Contains(nick) {
			s.env.Say(fmt.Sprintf("%s: You are in line to champion #%d, but please be quiet until it is your turn.",
				nick, s.current.ID))
		} else {
			s.env.Say(fmt.Sprintf("%s: Please do not speak during the championing process. "+
				"If you want to champion #%d, please say \"me\".", nick, s.current.ID))
		}
		return
	}

	if champion.IsDone(text) {
		s.env.Say(fmt.Sprintf("%s: Thank you.", nick))
		s.nextChampion()
	}
}

func (s *SequentialMode) inviteHead() {
	head, ok := s.champions.Head()
	if !ok {
		return
	}
	s.env.ClearTimer()
	s.env.Say(fmt.Sprintf("%s: You're up. Please type a succinct argument for the inclusion of #%d. "+
		"When you are finished, please type \"done\".", head, s.current.ID))
}

// nextChampion pops the head and hands over, or moves to debate when nobody is left.
func (s *SequentialMode) nextChampion() {
	if _, ok := s.champions.Advance(); ok {
		s.inviteHead()
		return
	}
	s.env.Say("There are no more champions in queue. Moving on to debate.")
	s.startDebate(s.defaultDebate())
}

func (s *SequentialMode) cmdNextChampion(_ string, _ []string) error {
	if s.phase != PhaseChampion {
		return stateErrorf(s.phase, "We are not taking champions right now.")
	}
	s.nextChampion()
	return nil
}

func (s *SequentialMode) defaultDebate() time.Duration {
	d := s.settings.DebateTime
	if s.current != nil && s.current.Status == docket.StatusHold && d > s.settings.HoldDebateReduction {
		d -= s.settings.HoldDebateReduction
	}
	return d
}

func (s *SequentialMode) startDebate(d time.Duration) {
	s.env.ClearDeferred()
	s.env.ClearStateHandler()
	s.env.SetTimer(d, "Debate time is up", nil)
	s.setPhase(PhaseDebate)
	s.env.Say(fmt.Sprintf("=== General Debate (%s) for Item: #%d ===", timespec.Human(d), s.current.ID))
}

func (s *SequentialMode) requireCurrent() error {
	if err := s.requireSession(); err != nil {
		return err
	}
	if s.current == nil {
		return userErrorf("There is no current item.")
	}
	return nil
}

func (s *SequentialMode) cmdDebate(_ string, args []string) error {
	if err := s.requireCurrent(); err != nil {
		return err
	}
	if s.phase == PhaseVoting || s.phase == PhasePostReport {
		return stateErrorf(s.phase, "Too late to debate; we are in %s.", s.phase)
	}
	d := s.defaultDebate()
	if len(args) > 0 {
		parsed, err := timespec.Duration(args[0], time.Minute)
		if err != nil {
			return userErrorf("debate takes a number of minutes: %v", err)
		}
		d = parsed
	}
	s.startDebate(d)
	return nil
}

func (s *SequentialMode) cmdVote(nick string, args []string) error {
	if err := s.requireCurrent(); err != nil {
		return err
	}
	switch s.phase {
	case PhaseVoting:
		return stateErrorf(s.phase, "We are already voting.")
	case PhasePostReport:
		return stateErrorf(s.phase, "The vote on #%d has been reported; decide it first.", s.current.ID)
	}

	if len(args) == 0 {
		s.openVote()
		return nil
	}
	d, err := timespec.Duration(args[0], time.Second)
	if err != nil {
		return userErrorf("vote takes a number of seconds to wait: %v", err)
	}
	id, still := s.current.ID, s.still()
	var resume StateHandler
	if s.phase == PhaseChampion {
		resume = s.onChampionLine
	}
	s.deferVote(nick, d, func() bool {
		return still() && s.current != nil && s.current.ID == id
	}, s.openVote, resume)
	return nil
}

func (s *SequentialMode) openVote() {
	s.env.ClearTimer()
	s.env.ClearDeferred()
	s.votes = make(map[string]ballot.Vote)
	s.round++
	s.setPhase(PhaseVoting)
	s.env.Say(fmt.Sprintf("=== Voting time! Yay/Nay votes for item #%d ===", s.current.ID))
	s.env.Say("Please do not speak during voting; wait until we've gotten our report.")
	s.env.SetStateHandler(s.onVoteLine)
}

func (s *SequentialMode) onVoteLine(nick, text string) {
	if s.phase != PhaseVoting {
		return
	}
	v, err := ballot.ParseSequential(text)
	switch err {
	case nil:
		s.votes[nick] = v
	case ballot.ErrNeedReason:
		s.env.Say(nick + ": " + ballot.AbstainHelp)
	default:
		s.env.Say(nick + ": " + ballot.VoteHelp)
	}
}

func (s *SequentialMode) cmdReport(_ string, _ []string) error {
	if err := s.requireCurrent(); err != nil {
		return err
	}
	if s.phase != PhaseVoting {
		return stateErrorf(s.phase, "There is no vote to report on.")
	}
	if len(s.votes) == 0 {
		return userErrorf("No votes have been cast yet; nothing to report.")
	}

	s.env.ClearStateHandler()
	s.setPhase(PhaseReport)
	tally := ballot.TallySequential(s.votes)
	s.env.Say(tally.Report(s.current.ID))
	s.current.Tally = tally.Snapshot()
	s.saveItems("save the vote", s.current)
	s.setPhase(PhasePostReport)
	return nil
}

func (s *SequentialMode) cmdReject(nick string, args []string) error {
	if len(args) > 0 {
		if _, err := strconv.Atoi(strings.TrimPrefix(args[0], "#")); err != nil {
			alt, err := docket.ParseAlternative(args[0])
			if err != nil {
				return userErrorf("I do not understand what kind of rejection you want: %v", err)
			}
			return s.decideWith(nick, args[1:], verdict{status: docket.StatusRejected, alternative: alt})
		}
	}
	return s.decideWith(nick, args, verdicts["reject"])
}

func (s *SequentialMode) decide(name string) Command {
	v := verdicts[name]
	return func(nick string, args []string) error {
		return s.decideWith(nick, args, v)
	}
}

// decideWith validates the (optional) ids against the current item and applies v.
func (s *SequentialMode) decideWith(nick string, args []string, v verdict) error {
	if err := s.requireCurrent(); err != nil {
		return err
	}
	if s.phase == PhaseVoting {
		return stateErrorf(s.phase, "Voting is still open; report first.")
	}
	if len(args) > 0 {
		if _, err := validateBatch(args, []int{s.current.ID}); err != nil {
			return err
		}
	}
	s.apply(nick, v)
	return nil
}

// apply records a decision on the current item and closes it.
func (s *SequentialMode) apply(nick string, v verdict) {
	s.env.ClearTimer()
	s.env.ClearDeferred()
	s.env.ClearStateHandler()
	s.setPhase(PhaseIdle)

	item := s.current
	item.Status = v.status
	item.Alternative = v.alternative
	s.session.RecordDecided(item.ID)
	s.env.Say("=== " + decisionText(item.ID, v) + " ===")

	s.saveItems("save the decision", item)
	s.saveSession()
	s.publish([]*docket.ReviewItem{item})
	s.env.Event("item_decided", map[string]interface{}{"item": item.ID, "by": nick})

	s.current = nil
	if s.counting && s.remaining <= 0 {
		s.closeSession()
	}
}

func (s *SequentialMode) cmdGoto(_ string, args []string) error {
	if err := s.requireSession(); err != nil {
		return err
	}
	if len(args) != 1 {
		return userErrorf("Usage: goto <item id>")
	}
	id, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
	if err != nil {
		return userErrorf("%q is not an item id.", args[0])
	}

	var item *docket.ReviewItem
	s.env.Async(func(ctx context.Context) error {
		var err error
		item, err = s.store.GetItem(ctx, id)
		return err
	}, func(err error) {
		if docket.IsNotFound(err) {
			s.env.Say(fmt.Sprintf("There is no item #%d.", id))
			return
		}
		if err != nil {
			s.failed("look up the item", err)
			return
		}
		s.upcoming = item
		s.env.Say(fmt.Sprintf("OK, the next item will be #%d (status: %s).", item.ID, item.Status))
	})
	return nil
}

func (s *SequentialMode) cmdSuggest(_ string, args []string) error {
	if err := s.requireCurrent(); err != nil {
		return err
	}
	if len(args) == 0 {
		return userErrorf("Usage: suggest <poster|lightning|open_space> [ids...]")
	}
	alt, err := docket.ParseAlternative(args[0])
	if err != nil {
		return userErrorf("%v", err)
	}
	if len(args) > 1 {
		if _, err := validateBatch(args[1:], []int{s.current.ID}); err != nil {
			return err
		}
	}
	s.current.Alternative = alt
	s.saveItems("save the suggestion", s.current)
	s.env.Say(fmt.Sprintf("=== Suggested %s for #%d ===", alt.Describe(), s.current.ID))
	return nil
}

func (s *SequentialMode) cmdPester(_ string, _ []string) error {
	if err := s.requireSession(); err != nil {
		return err
	}
	return s.pester(func() map[string]bool {
		if s.phase == PhaseRollCall {
			return s.reported
		}
		responded := make(map[string]bool, len(s.votes))
		for nick := range s.votes {
			responded[nick] = true
		}
		return responded
	})
}

func (s *SequentialMode) cmdEnd(_ string, _ []string) error {
	if err := s.requireSession(); err != nil {
		return err
	}
	s.current = nil
	s.upcoming = nil
	s.preview = nil
	s.counting = false
	s.champions.Clear()
	s.closeSession()
	return nil
}

// OnJoin greets latecomers.
func (s *SequentialMode) OnJoin(nick string) {
	current := ""
	if s.current != nil {
		current = fmt.Sprintf("item #%d (%s)", s.current.ID, s.current.Title)
	}
	busy := s.current != nil && (s.phase == PhaseChampion || s.phase == PhaseVoting)
	s.greet(nick, current, busy)
}

// Record is the transcript hook.
func (s *SequentialMode) Record(nick, line string) {
	if s.current != nil {
		s.recordLine(nick, line, s.current.TranscriptRef())
		return
	}
	s.recordLine(nick, line)
}

func (s *SequentialMode) privateCurrent(nick string, _ []string) error {
	if s.current == nil || s.phase == PhaseIdle {
		s.env.Tell(nick, "There is no current item in the system.")
		return nil
	}
	s.env.Tell(nick, "We are currently reviewing:")
	s.env.Tell(nick, "    "+describeItem(s.current))
	switch s.phase {
	case PhaseChampion:
		s.env.Tell(nick, "Currently, the item is being championed. Please refrain from speaking until debate.")
	case PhaseDebate:
		s.env.Tell(nick, "Currently, we are in debate. Feel free to participate.")
	case PhaseVoting:
		s.env.Tell(nick, "Currently, we are voting.")
	case PhasePostReport:
		s.env.Tell(nick, "The vote has been reported; the chair is about to decide.")
	}
	return nil
}

func (s *SequentialMode) privateNext(nick string, _ []string) error {
	next := s.upcoming
	if next == nil {
		next = s.preview
	}
	if next == nil {
		msg := "There is no upcoming item."
		if s.current != nil {
			msg += " We will be done after this item."
		}
		s.env.Tell(nick, msg)
		return nil
	}
	s.env.Tell(nick, "The next item to be discussed will be:")
	s.env.Tell(nick, "    "+describeItem(next))
	return nil
}

func (s *SequentialMode) privateVoting(nick string, _ []string) error {
	s.env.Tell(nick, `Vote by saying "aye" (or yes, yay, +1) or "nay" (or no, -1) while voting is open.`)
	s.env.Tell(nick, `To abstain, give a reason: "abstain afk" if you missed the debate, "abstain coi" for a conflict of interest.`)
	return nil
}

func (s *SequentialMode) privateAgenda(nick string, _ []string) error {
	count := s.settings.AgendaSize
	if s.counting {
		count = s.remaining + 1
	}
	if count < 1 {
		count = 1
	}

	var exclude []int
	if s.current != nil {
		exclude = append(exclude, s.current.ID)
	}
	filter := s.queueFilter(exclude...)
	filter.Limit = count

	var items []*docket.ReviewItem
	s.env.Async(func(ctx context.Context) error {
		var err error
		items, err = s.store.FilterItems(ctx, filter)
		return err
	}, func(err error) {
		if err != nil {
			s.failed("read the agenda", err)
			return
		}
		if len(items) == 0 && s.current == nil {
			s.env.Tell(nick, "There are no items on the agenda. Clearly, we shouldn't be here.")
			return
		}
		if s.current != nil {
			s.env.Tell(nick, "The current item is "+describeItem(s.current))
		}
		if len(items) == 0 {
			s.env.Tell(nick, "There are no subsequent items for today.")
			return
		}
		ids := make([]int, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		s.env.Tell(nick, "Subsequent items will be: "+joinIDs(ids)+".")
	})
	return nil
}
