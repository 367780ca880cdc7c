package printer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/docket/pkg/docket"
)

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Store unreachable", "Could not connect to Redis", []string{})
		require.Error(t, err)
		require.Equal(t, "Store unreachable", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Store unreachable", "Explanation", []string{
			"Start Redis",
			"Set store.driver: bolt",
		})
		require.Equal(t, "Store unreachable", err.Error())
	})

	t.Run("with context", func(t *testing.T) {
		err := ErrorWithContext("Bad file", "", map[string]string{"Path": "items.yml", "Line": "4"}, nil)
		require.Equal(t, "Bad file", err.Error())
	})
}

func withoutColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestStatus(t *testing.T) {
	withoutColor(t)
	assert.Equal(t, "accepted  ", Status(docket.StatusAccepted, "accepted  "))
	assert.Equal(t, "x", Status(docket.Status("bogus"), "x"))
}

func TestDecision(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	Decision(&buf, &docket.DecisionEvent{ItemID: 12, Decision: docket.StatusRejected,
		Alternative: docket.AlternativePoster, SessionNumber: 3})
	assert.Equal(t, "#12 rejected (as poster)  session 3\n", buf.String())

	buf.Reset()
	Decision(&buf, &docket.DecisionEvent{ItemID: 4, Decision: docket.StatusAccepted})
	assert.Equal(t, "#4 accepted\n", buf.String())
}
