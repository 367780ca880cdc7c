package meeting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/docket/internal/ballot"
	"github.com/dyluth/docket/internal/timespec"
	"github.com/dyluth/docket/pkg/docket"
)

// GroupMode reviews a batch of items at once: silent review, debate, a set-valued vote,
// a scored report and certification of the resulting decisions.
type GroupMode struct {
	core

	group   *docket.Group
	items   []*docket.ReviewItem
	members ballot.Set
	votes   map[string]ballot.Set
	staged  map[int]verdict
	scores  []ballot.ItemScore

	passed int // position of the last group taken up this session
}

var _ Mode = (*GroupMode)(nil)

// NewGroupMode creates a group review mode.
func NewGroupMode(deps Deps) *GroupMode {
	return &GroupMode{core: newCore(docket.SessionKindGroup, deps)}
}

// Name returns "group".
func (g *GroupMode) Name() string { return "group" }

// Group returns the group under review, if any.
func (g *GroupMode) Group() *docket.Group { return g.group }

// Commands returns the chair command table.
func (g *GroupMode) Commands() map[string]Command {
	return map[string]Command{
		"start":     g.cmdStart,
		"next":      g.cmdNext,
		"goto":      g.onlyIn("sequential"),
		"debate":    g.cmdDebate,
		"vote":      g.cmdVote,
		"extend":    g.cmdExtend,
		"report":    g.cmdReport,
		"accept":    g.stage("accept"),
		"reject":    g.stage("reject"),
		"hold":      g.stage("damaged"),
		"damaged":   g.stage("damaged"),
		"poster":    g.stage("poster"),
		"certify":   g.cmdCertify,
		"suggest":   g.cmdSuggest,
		"nextchamp": g.onlyIn("sequential"),
		"names":     g.cmdNames,
		"pester":    g.cmdPester,
		"voter":     g.cmdVoter,
		"nonvoter":  g.cmdNonvoter,
		"end":       g.cmdEnd,
	}
}

// PrivateCommands returns the unrestricted command table.
func (g *GroupMode) PrivateCommands() map[string]Command {
	return map[string]Command{
		"current": g.privateCurrent,
		"next":    g.privateNext,
		"rules":   g.privateRules,
		"voting":  g.privateVoting,
		"agenda":  g.privateAgenda,
	}
}

func (g *GroupMode) cmdStart(_ string, args []string) error {
	return g.openSession(args, func(resumed bool) {
		g.passed = 0
		if resumed {
			g.env.Say(fmt.Sprintf("=== Session #%d resumed. Say next when ready. ===", g.session.Number))
			g.setPhase(PhaseIdle)
			return
		}
		g.env.Say(fmt.Sprintf("=== Session #%d started. ===", g.session.Number))
		g.rollCall()
	})
}

func (g *GroupMode) cmdNext(_ string, _ []string) error {
	if g.phase == PhasePostReport {
		return stateErrorf(g.phase, "The vote on this group has been reported; certify it before moving on.")
	}
	if err := g.requireSession(); err != nil {
		return err
	}
	if g.phase == PhaseIntro {
		return stateErrorf(g.phase, "The next group is still loading.")
	}

	g.env.ClearTimer()
	g.env.ClearDeferred()
	g.env.ClearStateHandler()
	g.clearGroup()
	g.setPhase(PhaseIntro)
	valid := g.still()

	filter := docket.GroupFilter{UndecidedOnly: true, AfterPosition: g.passed}
	var group *docket.Group
	var items []*docket.ReviewItem
	g.env.Async(func(ctx context.Context) error {
		var err error
		group, err = docket.NextGroup(ctx, g.store, filter)
		if err != nil {
			return err
		}
		items, err = docket.LoadGroupItems(ctx, g.store, group)
		return err
	}, func(err error) {
		if !valid() {
			return
		}
		if docket.IsNotFound(err) && group == nil {
			g.env.Say("Out of groups!")
			g.setPhase(PhaseIdle)
			return
		}
		if err != nil {
			g.failed("load the next group", err)
			g.setPhase(PhaseIdle)
			return
		}
		g.present(group, items)
	})
	return nil
}

func (g *GroupMode) clearGroup() {
	g.group = nil
	g.items = nil
	g.members = nil
	g.votes = nil
	g.staged = nil
	g.scores = nil
}

// present announces the group and opens the silent review window.
func (g *GroupMode) present(group *docket.Group, items []*docket.ReviewItem) {
	g.group = group
	g.items = items
	g.members = ballot.NewSet(group.ItemIDs...)
	g.passed = group.Position

	g.env.Say(fmt.Sprintf("=== Group review for %q begins now! ===", group.Label))
	for _, item := range items {
		line := describeItem(item)
		if decision, ok := group.Decisions[item.ID]; ok {
			line += fmt.Sprintf(" [already %s]", decision)
		}
		g.env.Say(line)
	}

	d := scaled(len(items), g.settings.ReviewPerItem, g.settings.ReviewMin)
	g.setPhase(PhaseSilentReview)
	valid := g.still()
	g.env.SetTimer(d, "Silent review time is up", func() {
		if valid() {
			g.startDebate(g.defaultDebate())
		}
	})
	g.env.Say(fmt.Sprintf("=== Silent review (%s). Please read the items and hold comments until debate. ===",
		timespec.Human(d)))
}

func (g *GroupMode) defaultDebate() time.Duration {
	return scaled(len(g.items), g.settings.GroupDebatePerItem, g.settings.GroupDebateMin)
}

func (g *GroupMode) startDebate(d time.Duration) {
	g.env.ClearDeferred()
	g.env.ClearStateHandler()
	g.env.SetTimer(d, "Debate time is up", nil)
	g.setPhase(PhaseDebate)
	g.env.Say(fmt.Sprintf("=== General Debate (%s) for group %q ===", timespec.Human(d), g.group.Label))
}

func (g *GroupMode) requireGroup() error {
	if err := g.requireSession(); err != nil {
		return err
	}
	if g.group == nil {
		return userErrorf("There is no group under review.")
	}
	return nil
}

func (g *GroupMode) cmdDebate(_ string, args []string) error {
	if err := g.requireGroup(); err != nil {
		return err
	}
	switch g.phase {
	case PhaseSilentReview, PhaseDebate:
	default:
		return stateErrorf(g.phase, "Too late to debate; we are in %s.", g.phase)
	}
	d := g.defaultDebate()
	if len(args) > 0 {
		parsed, err := timespec.Duration(args[0], time.Minute)
		if err != nil {
			return userErrorf("debate takes a number of minutes: %v", err)
		}
		d = parsed
	}
	g.startDebate(d)
	return nil
}

func (g *GroupMode) cmdVote(nick string, args []string) error {
	if err := g.requireGroup(); err != nil {
		return err
	}
	switch g.phase {
	case PhaseSilentReview, PhaseDebate:
	default:
		return stateErrorf(g.phase, "Can't open a vote during %s.", g.phase)
	}

	if len(args) == 0 {
		g.openVote()
		return nil
	}
	d, err := timespec.Duration(args[0], time.Second)
	if err != nil {
		return userErrorf("vote takes a number of seconds to wait: %v", err)
	}
	code, still := g.group.Code, g.still()
	g.deferVote(nick, d, func() bool {
		return still() && g.group != nil && g.group.Code == code
	}, g.openVote, nil)
	return nil
}

func (g *GroupMode) openVote() {
	g.env.ClearTimer()
	g.env.ClearDeferred()
	g.votes = make(map[string]ballot.Set)
	g.round++
	g.setPhase(PhaseVoting)
	g.env.Say(fmt.Sprintf("=== Voting time! List the items you support in %q: %s ===",
		g.group.Label, joinIDs(g.members)))
	g.env.Say(`Say e.g. "1, 3, 5", "all -5" or "none +2". Send me "voting" privately for details.`)
	g.env.SetStateHandler(g.onVoteLine)
}

func (g *GroupMode) onVoteLine(nick, text string) {
	if g.phase != PhaseVoting {
		return
	}
	prior, hasPrior := g.votes[nick]
	vote, err := ballot.ParseGroupVote(text, g.members, prior, hasPrior)
	if err != nil {
		var perr *ballot.ParseError
		if errors.As(err, &perr) {
			g.env.Say(fmt.Sprintf("%s: %s. Your vote is unchanged (%s).", nick, perr, g.voteOf(nick)))
			return
		}
		g.env.Say(nick + ": " + err.Error())
		return
	}
	if vote == nil {
		vote = ballot.Set{}
	}
	g.votes[nick] = vote
}

func (g *GroupMode) voteOf(nick string) string {
	if vote, ok := g.votes[nick]; ok {
		return vote.String()
	}
	return "none"
}

func (g *GroupMode) cmdReport(_ string, _ []string) error {
	if err := g.requireGroup(); err != nil {
		return err
	}
	if g.phase != PhaseVoting {
		return stateErrorf(g.phase, "There is no vote to report on.")
	}
	if len(g.votes) == 0 {
		return userErrorf("No votes have been cast yet; nothing to report.")
	}

	g.env.ClearStateHandler()
	g.setPhase(PhaseReport)

	g.scores = ballot.ScoreGroup(g.members, g.votes, g.settings.Thresholds)
	g.staged = make(map[int]verdict, len(g.scores))
	byID := g.itemsByID()
	var tallied []*docket.ReviewItem

	g.env.Say(fmt.Sprintf("=== Votes on %q (%d voters) ===", g.group.Label, len(g.votes)))
	for _, score := range g.scores {
		g.env.Say(fmt.Sprintf("#%d: %d/%d (%.1f%%) -> %s",
			score.ItemID, score.Supporters, score.Voters, score.Percent, score.Status))
		g.staged[score.ItemID] = verdict{status: score.Status}
		if item, ok := byID[score.ItemID]; ok {
			item.Tally = score.Snapshot()
			tallied = append(tallied, item)
		}
	}
	g.saveItems("save the tallies", tallied...)

	if share := ballot.AcceptedShare(g.scores); share > g.settings.AcceptanceWarning {
		g.env.Say(fmt.Sprintf("Warning: %.1f%% of this group would be accepted, above the %.1f%% guideline.",
			share, g.settings.AcceptanceWarning))
	}
	g.env.Say("Adjust with accept/reject/damaged/poster <ids>, then certify.")
	g.setPhase(PhasePostReport)
	return nil
}

func (g *GroupMode) itemsByID() map[int]*docket.ReviewItem {
	out := make(map[int]*docket.ReviewItem, len(g.items))
	for _, item := range g.items {
		out[item.ID] = item
	}
	return out
}

func (g *GroupMode) stage(name string) Command {
	v := verdicts[name]
	return func(_ string, args []string) error {
		if err := g.requireGroup(); err != nil {
			return err
		}
		switch g.phase {
		case PhasePostReport, PhasePostCertify:
		default:
			return stateErrorf(g.phase, "Decisions are made after the report; we are in %s.", g.phase)
		}
		ids, err := validateBatch(args, g.members)
		if err != nil {
			return err
		}
		for _, id := range ids {
			g.staged[id] = v
		}
		if g.phase == PhasePostCertify {
			g.setPhase(PhasePostReport)
		}
		g.env.Say(fmt.Sprintf("Staged %s for %s. Say certify to apply.", describeVerdict(v), joinIDs(ids)))
		return nil
	}
}

func describeVerdict(v verdict) string {
	if v.alternative != docket.AlternativeNone {
		return fmt.Sprintf("%s (%s)", v.status, v.alternative.Describe())
	}
	return string(v.status)
}

func (g *GroupMode) cmdCertify(nick string, _ []string) error {
	if err := g.requireGroup(); err != nil {
		return err
	}
	if g.phase != PhasePostReport {
		return stateErrorf(g.phase, "Certify only follows a report; we are in %s.", g.phase)
	}

	byID := g.itemsByID()
	var changed []*docket.ReviewItem
	buckets := make(map[docket.Status][]int)
	for _, id := range g.members {
		v, ok := g.staged[id]
		if !ok {
			continue
		}
		if err := g.group.Decide(id, v.status); err != nil {
			return err
		}
		g.session.RecordDecided(id)
		buckets[v.status] = append(buckets[v.status], id)

		item := byID[id]
		if item == nil || (item.Status == v.status && item.Alternative == v.alternative) {
			continue
		}
		item.Status = v.status
		item.Alternative = v.alternative
		changed = append(changed, item)
	}

	g.saveItems("save the decisions", changed...)
	group := cloneGroup(g.group)
	g.persist("save the group", func(ctx context.Context) error {
		return g.store.SaveGroup(ctx, group)
	})
	g.saveSession()
	g.publish(changed)
	g.env.Event("group_certified", map[string]interface{}{
		"group":   g.group.Code,
		"by":      nick,
		"changed": len(changed),
		"decided": g.group.Decided,
	})

	var parts []string
	for _, status := range []docket.Status{docket.StatusAccepted, docket.StatusDamaged, docket.StatusRejected} {
		if ids := buckets[status]; len(ids) > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", status, joinIDs(ids)))
		}
	}
	g.env.Say(fmt.Sprintf("=== Group %q certified: %s ===", g.group.Label, strings.Join(parts, "; ")))
	g.setPhase(PhasePostCertify)
	return nil
}

func (g *GroupMode) cmdSuggest(_ string, args []string) error {
	if err := g.requireGroup(); err != nil {
		return err
	}
	if len(args) < 2 {
		return userErrorf("Usage: suggest <poster|lightning|open_space> <ids...>")
	}
	alt, err := docket.ParseAlternative(args[0])
	if err != nil {
		return userErrorf("%v", err)
	}
	ids, err := validateBatch(args[1:], g.members)
	if err != nil {
		return err
	}

	byID := g.itemsByID()
	var items []*docket.ReviewItem
	for _, id := range ids {
		if item := byID[id]; item != nil {
			item.Alternative = alt
			items = append(items, item)
		}
		if v, ok := g.staged[id]; ok {
			v.alternative = alt
			g.staged[id] = v
		}
	}
	g.saveItems("save the suggestion", items...)
	g.env.Say(fmt.Sprintf("=== Suggested %s for %s ===", alt.Describe(), joinIDs(ids)))
	return nil
}

func (g *GroupMode) cmdPester(_ string, _ []string) error {
	if err := g.requireSession(); err != nil {
		return err
	}
	return g.pester(func() map[string]bool {
		if g.phase == PhaseRollCall {
			return g.reported
		}
		responded := make(map[string]bool, len(g.votes))
		for nick := range g.votes {
			responded[nick] = true
		}
		return responded
	})
}

func (g *GroupMode) cmdEnd(_ string, _ []string) error {
	if err := g.requireSession(); err != nil {
		return err
	}
	g.clearGroup()
	g.passed = 0
	g.closeSession()
	return nil
}

// OnJoin greets latecomers.
func (g *GroupMode) OnJoin(nick string) {
	current := ""
	if g.group != nil {
		current = fmt.Sprintf("group %q", g.group.Label)
	}
	busy := g.group != nil && (g.phase == PhaseSilentReview || g.phase == PhaseVoting)
	g.greet(nick, current, busy)
}

// Record is the transcript hook. Lines during a group review go to every member item.
func (g *GroupMode) Record(nick, line string) {
	refs := make([]string, 0, len(g.members))
	for _, id := range g.members {
		refs = append(refs, docket.ItemTranscriptRef(id))
	}
	g.recordLine(nick, line, refs...)
}

func (g *GroupMode) privateCurrent(nick string, _ []string) error {
	if g.group == nil {
		g.env.Tell(nick, "There is no group under review.")
		return nil
	}
	g.env.Tell(nick, fmt.Sprintf("We are reviewing group %q (%s):", g.group.Label, g.phase))
	for _, item := range g.items {
		g.env.Tell(nick, "    "+describeItem(item))
	}
	if g.phase == PhaseVoting {
		g.env.Tell(nick, fmt.Sprintf("Your current vote: %s.", g.voteOf(nick)))
	}
	return nil
}

func (g *GroupMode) privateNext(nick string, _ []string) error {
	filter := docket.GroupFilter{UndecidedOnly: true, AfterPosition: g.passed}
	var next *docket.Group
	g.env.Async(func(ctx context.Context) error {
		var err error
		next, err = docket.NextGroup(ctx, g.store, filter)
		return err
	}, func(err error) {
		if docket.IsNotFound(err) {
			g.env.Tell(nick, "There is no upcoming group.")
			return
		}
		if err != nil {
			g.failed("look up the next group", err)
			return
		}
		g.env.Tell(nick, fmt.Sprintf("The next group will be %q: %s.", next.Label, joinIDs(next.ItemIDs)))
	})
	return nil
}

func (g *GroupMode) privateVoting(nick string, _ []string) error {
	g.env.Tell(nick, "List every item in the group you support. Examples:")
	g.env.Tell(nick, `    "1, 3, 5"     your vote becomes exactly #1, #3 and #5`)
	g.env.Tell(nick, `    "all -5"      everything except #5`)
	g.env.Tell(nick, `    "none +1 +3"  only #1 and #3`)
	g.env.Tell(nick, `    "+2 -3"       adjust the vote you already cast`)
	g.env.Tell(nick, fmt.Sprintf("Items with %.0f%% support are accepted; %.0f%% keeps them on standby.",
		g.settings.Thresholds.Accept, g.settings.Thresholds.Damaged))
	return nil
}

func (g *GroupMode) privateAgenda(nick string, _ []string) error {
	filter := docket.GroupFilter{UndecidedOnly: true, AfterPosition: g.passed}
	var groups []*docket.Group
	g.env.Async(func(ctx context.Context) error {
		var err error
		groups, err = g.store.FilterGroups(ctx, filter)
		return err
	}, func(err error) {
		if err != nil {
			g.failed("read the agenda", err)
			return
		}
		if g.group != nil {
			g.env.Tell(nick, fmt.Sprintf("The current group is %q.", g.group.Label))
		}
		if len(groups) == 0 {
			g.env.Tell(nick, "There are no subsequent groups.")
			return
		}
		limit := g.settings.AgendaSize
		if limit <= 0 || limit > len(groups) {
			limit = len(groups)
		}
		labels := make([]string, 0, limit)
		for _, group := range groups[:limit] {
			labels = append(labels, fmt.Sprintf("%q (%d items)", group.Label, len(group.ItemIDs)))
		}
		g.env.Tell(nick, "Subsequent groups will be: "+strings.Join(labels, ", ")+".")
	})
	return nil
}
