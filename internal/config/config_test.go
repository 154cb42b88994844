package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/danmuck/groundctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestTemplateRoundTrip(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "groundctl.toml")
	require.NoError(t, WriteTemplate(path, KindGround, false))
	require.Error(t, WriteTemplate(path, KindGround, false))
	require.NoError(t, WriteTemplate(path, KindGround, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "groundctl", cfg.Name)
	assert.Equal(t, "ws://localhost:8765", cfg.Address)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Bridge.CorsOrigins)

	sc, err := cfg.SessionConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, sc.ConnectTimeout)
	assert.Equal(t, 15*time.Second, sc.HeartbeatInterval)
	assert.Equal(t, 3, sc.MaxReconnectAttempts)
	assert.Equal(t, session.BackoffLinear, sc.Backoff.Mode)
	assert.Equal(t, 2*time.Second, sc.Backoff.InitialDelay)

	_, err = Template("rover")
	assert.Error(t, err)
}

func TestLoadAppliesEnvAndDotenv(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "groundctl.toml", `
name = "field-station"
address = "ws://drone.local:8765"
max_reconnect_attempts = 5

[bridge]
listen_addr = ":9400"
`)
	dotenv := writeFile(t, dir, ".env", "GROUNDCTL_BRIDGE_TOKEN=from-dotenv\nGROUNDCTL_CLIENT_TYPE=dotenv-client\n")

	t.Setenv("GROUNDCTL_ADDRESS", "wss://drone.example:443")
	t.Setenv("GROUNDCTL_BRIDGE_CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("GROUNDCTL_CLIENT_TYPE", "env-client")
	t.Setenv("GROUNDCTL_BRIDGE_TOKEN", "")
	require.NoError(t, os.Unsetenv("GROUNDCTL_BRIDGE_TOKEN"))

	cfg, err := Load(path, dotenv, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "field-station", cfg.Name)
	assert.Equal(t, "wss://drone.example:443", cfg.Address)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Bridge.CorsOrigins)
	// Variables already present win over dotenv files.
	assert.Equal(t, "env-client", cfg.ClientType)
	assert.Equal(t, "from-dotenv", cfg.Bridge.Token)
}

func TestValidateRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	cfg.ConnectTimeout = "soon"
	assert.True(t, errors.Is(Validate(cfg), ErrInvalid))

	cfg = Default()
	cfg.Address = "ws://drone.local"
	cfg.SecurityMode = "production"
	assert.True(t, errors.Is(Validate(cfg), ErrInvalid))

	cfg = Default()
	cfg.Address = "ws://drone.local"
	cfg.ReconnectMode = "fibonacci"
	assert.True(t, errors.Is(Validate(cfg), ErrInvalid))

	cfg = Default()
	cfg.HeartbeatInterval = "-1s"
	assert.Error(t, Validate(cfg))

	assert.NoError(t, Validate(Default()))
}
