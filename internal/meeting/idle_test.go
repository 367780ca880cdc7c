package meeting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTablesCoverSurface(t *testing.T) {
	store := setupStore(t)
	deps := Deps{Store: store, Settings: testSettings()}

	for _, m := range []Mode{NewIdleMode(deps.Settings), NewSequentialMode(deps), NewGroupMode(deps)} {
		commands := m.Commands()
		for _, name := range ChairCommands {
			assert.NotNil(t, commands[name], "%s mode is missing chair command %q", m.Name(), name)
		}
		private := m.PrivateCommands()
		for _, name := range PrivateCommands {
			assert.NotNil(t, private[name], "%s mode is missing private command %q", m.Name(), name)
		}
	}
}

func TestIdleModeHints(t *testing.T) {
	env := newFakeEnv()
	m := NewIdleMode(testSettings())
	m.Attach(env)

	for _, name := range ChairCommands {
		err := run(m, name)
		var uie *UserInputError
		require.True(t, errors.As(err, &uie), name)
		assert.Contains(t, uie.Msg, "mode sequential")
	}
	assert.False(t, m.InSession())
	assert.Equal(t, PhaseIdle, m.Phase())

	require.NoError(t, runPrivate(m, "zoe", "current"))
	assert.Equal(t, []string{"No session is running right now."}, env.told["zoe"])

	require.NoError(t, runPrivate(m, "zoe", "rules"))
	assert.Contains(t, env.told["zoe"], "Meeting rules: https://example.org/rules")
}
