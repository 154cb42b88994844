package logging

import (
	"testing"

	"github.com/danmuck/groundctl/internal/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelUnmarshalText(t *testing.T) {
	tests := []struct {
		raw     string
		want    logs.Level
		wantErr bool
	}{
		{raw: "trace", want: logs.TraceLevel},
		{raw: " DEBUG ", want: logs.DebugLevel},
		{raw: "warning", want: logs.WarnLevel},
		{raw: "off", want: logs.Disabled},
		{raw: "loud", want: logs.InfoLevel, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			lvl := Level(logs.InfoLevel)
			err := lvl.UnmarshalText([]byte(tc.raw))
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, logs.Level(lvl))
		})
	}
}

func TestResolveProfilesWithoutOverrides(t *testing.T) {
	cfg, err := Resolve(ProfileRuntime)
	require.NoError(t, err)
	assert.Equal(t, logs.InfoLevel, cfg.Level)
	assert.True(t, cfg.Timestamp)
	assert.Equal(t, "groundctl", cfg.App)

	cfg, err = Resolve(ProfileTest)
	require.NoError(t, err)
	assert.Equal(t, logs.DebugLevel, cfg.Level)
	assert.False(t, cfg.Timestamp)
	assert.True(t, cfg.NoColor)
}

func TestResolveAppliesEnvOverrides(t *testing.T) {
	t.Setenv("GROUNDCTL_LOG_LEVEL", "error")
	t.Setenv("GROUNDCTL_LOG_TIMESTAMP", "true")
	t.Setenv("GROUNDCTL_LOG_BYPASS", "1")

	cfg, err := Resolve(ProfileTest)
	require.NoError(t, err)
	assert.Equal(t, logs.ErrorLevel, cfg.Level)
	assert.True(t, cfg.Timestamp)
	assert.True(t, cfg.Bypass)
	assert.True(t, cfg.NoColor, "unset variables keep the profile value")
}

func TestResolveKeepsProfileValueForBadOverride(t *testing.T) {
	t.Setenv("GROUNDCTL_LOG_LEVEL", "loud")
	t.Setenv("GROUNDCTL_LOG_NOCOLOR", "nope")
	t.Setenv("GROUNDCTL_LOG_TIMESTAMP", "true")

	cfg, err := Resolve(ProfileTest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "Level"`)
	assert.Contains(t, err.Error(), `field "NoColor"`)
	assert.Equal(t, logs.DebugLevel, cfg.Level)
	assert.True(t, cfg.NoColor)
	assert.True(t, cfg.Timestamp, "valid overrides still apply")
}
