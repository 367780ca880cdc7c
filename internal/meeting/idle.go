package meeting

// IdleMode is active between sessions. Every meeting command answers with a hint to pick
// a review format; the private help still works.
type IdleMode struct {
	env      Env
	settings Settings
}

var _ Mode = (*IdleMode)(nil)

// NewIdleMode creates the idle mode.
func NewIdleMode(settings Settings) *IdleMode {
	return &IdleMode{settings: settings}
}

func (m *IdleMode) Name() string       { return "none" }
func (m *IdleMode) Attach(env Env)     { m.env = env }
func (m *IdleMode) Phase() Phase       { return PhaseIdle }
func (m *IdleMode) InSession() bool    { return false }
func (m *IdleMode) OnJoin(string)      {}
func (m *IdleMode) Record(_, _ string) {}

// Commands answers every chair command with the same hint.
func (m *IdleMode) Commands() map[string]Command {
	table := make(map[string]Command, len(ChairCommands))
	for _, name := range ChairCommands {
		table[name] = m.hint
	}
	return table
}

// PrivateCommands answers rules; the rest report that nothing is happening.
func (m *IdleMode) PrivateCommands() map[string]Command {
	table := make(map[string]Command, len(PrivateCommands))
	for _, name := range PrivateCommands {
		table[name] = m.nothing
	}
	table["rules"] = m.rules
	return table
}

func (m *IdleMode) hint(_ string, _ []string) error {
	return userErrorf("No review format is selected. Use \"mode sequential\" or \"mode group\" first.")
}

func (m *IdleMode) nothing(nick string, _ []string) error {
	m.env.Tell(nick, "No session is running right now.")
	return nil
}

func (m *IdleMode) rules(nick string, args []string) error {
	c := core{env: m.env, settings: m.settings}
	return c.privateRules(nick, args)
}
