package driver

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/dyluth/docket/internal/meeting"
	"github.com/dyluth/docket/pkg/docket"
)

// modeAliases maps what chairs type onto registered mode names.
var modeAliases = map[string]string{
	"sequential": "sequential",
	"kitten":     "sequential",
	"group":      "group",
	"thunder":    "group",
	"none":       "none",
	"idle":       "none",
	"off":        "none",
}

func (d *Driver) driverCommands() map[string]meeting.Command {
	return map[string]meeting.Command{
		"mode":  d.cmdMode,
		"sleep": d.cmdSleep,
		"help":  d.cmdHelp,
	}
}

func (d *Driver) cmdMode(nick string, args []string) error {
	d.auth.VerifyAll()
	if len(args) == 0 {
		d.say(fmt.Sprintf("%s: I am currently in %s mode.", nick, d.mode.Name()))
		return nil
	}

	name, ok := modeAliases[strings.ToLower(args[0])]
	if !ok {
		return &meeting.UserInputError{Msg: fmt.Sprintf("I don't know a %q mode. Try sequential, group or none.", args[0])}
	}
	if name == d.mode.Name() {
		d.say(fmt.Sprintf("%s: Already in %s mode.", nick, name))
		return nil
	}
	if d.mode.InSession() {
		return &meeting.StateViolation{
			Phase: d.mode.Phase(),
			Msg:   "A session is running; end it before switching modes.",
		}
	}
	if err := d.switchTo(name); err != nil {
		return err
	}
	d.say(fmt.Sprintf("=== Now in %s mode. ===", name))
	return nil
}

func (d *Driver) cmdSleep(nick string, _ []string) error {
	if d.mode.InSession() {
		if err := d.tables[d.mode.Name()]["end"](nick, nil); err != nil {
			return err
		}
	}
	if err := d.switchTo("none"); err != nil {
		return err
	}
	d.say("Going to sleep. Wake me with mode sequential or mode group.")
	return nil
}

func (d *Driver) cmdHelp(nick string, _ []string) error {
	d.tell(nick, d.helpText(nick))
	return nil
}

func (d *Driver) helpText(nick string) string {
	private := append([]string{"help"}, meeting.PrivateCommands...)
	sort.Strings(private)
	text := "Private commands: " + strings.Join(private, ", ") + "."
	if !d.auth.IsChair(nick) {
		return text
	}

	chair := append([]string{"mode", "sleep"}, meeting.ChairCommands...)
	sort.Strings(chair)
	for i, name := range chair {
		chair[i] = d.opts.Sigil + name
	}
	return text + " Chair commands: " + strings.Join(chair, " ") + "."
}

// reportError renders a command failure. Input and state errors are corrections addressed
// to the sender; anything unexpected is logged and reported as a failure.
func (d *Driver) reportError(nick, command string, err error, reply func(string)) {
	var uie *meeting.UserInputError
	var sv *meeting.StateViolation
	switch {
	case errors.As(err, &uie):
		reply(fmt.Sprintf("%s: %s", nick, uie.Msg))
	case errors.As(err, &sv):
		reply(fmt.Sprintf("%s: %s", nick, sv.Msg))
	case docket.IsNotFound(err):
		reply(err.Error())
	default:
		log.Printf("[Driver] Command %s from %s failed: %v", command, nick, err)
		reply(fmt.Sprintf("Something went wrong running %s: %v", command, err))
	}
}
