package ballot

import (
	"errors"
	"strings"
)

// Vote is a sequential-session ballot value.
type Vote string

const (
	Aye     Vote = "aye"
	Nay     Vote = "nay"
	Abstain Vote = "abstain"
)

var (
	ayeWords       = []string{"yes", "yay", "yea", "aye", "+1"}
	nayWords       = []string{"no", "nay", "-1"}
	abstainWords   = []string{"abs", "abstain"}
	abstainReasons = []string{"afk", "coi"}
)

var (
	// ErrNeedReason is returned for an abstention without an understood reason.
	ErrNeedReason = errors.New("abstention needs a reason")
	// ErrUnrecognized is returned when the text is not a vote at all.
	ErrUnrecognized = errors.New("not a vote")
)

// AbstainHelp is the reprompt for ErrNeedReason.
const AbstainHelp = `If you must abstain, please state your reason for doing so in a way I understand (e.g. "abstain coi"). ` +
	`Understood reasons are afk (you were away during the debate) and coi (conflict of interest). ` +
	`If you are simply unsure, please vote aye or nay.`

// VoteHelp is the reprompt for ErrUnrecognized.
const VoteHelp = "Please vote aye, nay, or abstain."

// ParseSequential classifies a chat line as aye, nay or abstain.
// Matching is on the lowercased, trimmed text: "y" and "n" must stand alone, the longer
// words match as prefixes. An abstention must end with an understood reason.
func ParseSequential(text string) (Vote, error) {
	msg := strings.Join(strings.Fields(strings.ToLower(text)), " ")

	switch {
	case msg == "y" || hasAnyPrefix(msg, ayeWords):
		return Aye, nil
	case msg == "n" || hasAnyPrefix(msg, nayWords):
		return Nay, nil
	case hasAnyPrefix(msg, abstainWords):
		fields := strings.Fields(msg)
		last := strings.TrimRight(fields[len(fields)-1], ".!")
		for _, reason := range abstainReasons {
			if last == reason {
				return Abstain, nil
			}
		}
		return "", ErrNeedReason
	default:
		return "", ErrUnrecognized
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
