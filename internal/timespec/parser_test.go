package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		arg     string
		unit    time.Duration
		want    time.Duration
		wantErr bool
	}{
		{"5", time.Minute, 5 * time.Minute, false},
		{"1.5", time.Minute, 90 * time.Second, false},
		{"30", time.Second, 30 * time.Second, false},
		{"90s", time.Minute, 90 * time.Second, false},
		{" 2m30s ", time.Second, 150 * time.Second, false},
		{"0", time.Minute, 0, true},
		{"-3", time.Minute, 0, true},
		{"-1m", time.Minute, 0, true},
		{"soon", time.Minute, 0, true},
		{"", time.Minute, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := Duration(tt.arg, tt.unit)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHuman(t *testing.T) {
	assert.Equal(t, "3 minutes", Human(3*time.Minute))
	assert.Equal(t, "1 minute 30 seconds", Human(90*time.Second))
	assert.Equal(t, "45 seconds", Human(45*time.Second))
	assert.Equal(t, "1 second", Human(time.Second))
	assert.Equal(t, "0 seconds", Human(0))
}

func TestParseRange(t *testing.T) {
	t.Run("absolute bounds", func(t *testing.T) {
		since, until, err := ParseRange("2026-04-01T09:00:00Z", "2026-04-01T10:00:00Z")
		require.NoError(t, err)
		assert.Less(t, since, until)
		assert.True(t, InRange(since+1, since, until))
		assert.False(t, InRange(until+1, since, until))
	})

	t.Run("relative since", func(t *testing.T) {
		since, until, err := ParseRange("1h", "")
		require.NoError(t, err)
		assert.Zero(t, until)
		assert.InDelta(t, time.Now().Add(-time.Hour).UnixMilli(), since, 5000)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, _, err := ParseRange("2026-04-01T10:00:00Z", "2026-04-01T09:00:00Z")
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := ParseRange("yesterday", "")
		assert.Error(t, err)
	})

	t.Run("open bounds", func(t *testing.T) {
		assert.True(t, InRange(42, 0, 0))
	})
}
