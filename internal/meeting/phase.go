package meeting

// Phase is where a session currently is.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseRollCall     Phase = "rollcall"
	PhaseIntro        Phase = "intro"
	PhaseChampion     Phase = "champion"
	PhaseSilentReview Phase = "silent_review"
	PhaseDebate       Phase = "debate"
	PhaseVoting       Phase = "voting"
	PhaseReport       Phase = "report"
	PhasePostReport   Phase = "post-report"
	PhasePostCertify  Phase = "post-certify"
)

// ChairCommands is the chair-restricted command surface every Mode must implement.
// The driver checks each mode's table against it at construction.
var ChairCommands = []string{
	"start", "next", "goto", "debate", "vote", "extend", "report",
	"accept", "reject", "hold", "poster", "damaged", "certify", "suggest",
	"nextchamp", "names", "pester", "voter", "nonvoter", "end",
}

// PrivateCommands is the unrestricted command surface answered in private messages.
// "help" is answered by the driver.
var PrivateCommands = []string{"current", "next", "rules", "voting", "agenda"}
