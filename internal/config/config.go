package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "GROUNDCTL_"

var ErrInvalid = errors.New("config: invalid")

type GroundConfig struct {
	Name                 string        `toml:"name" env:"NAME"`
	Address              string        `toml:"address" env:"ADDRESS"`
	Transport            string        `toml:"transport" env:"TRANSPORT"`
	ClientType           string        `toml:"client_type" env:"CLIENT_TYPE"`
	ConnectTimeout       string        `toml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	HeartbeatInterval    string        `toml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	WriteTimeout         string        `toml:"write_timeout" env:"WRITE_TIMEOUT"`
	MaxReconnectAttempts int           `toml:"max_reconnect_attempts" env:"MAX_RECONNECT_ATTEMPTS"`
	ReconnectMode        string        `toml:"reconnect_mode" env:"RECONNECT_MODE"`
	ReconnectStep        string        `toml:"reconnect_step" env:"RECONNECT_STEP"`
	ReconnectMaxDelay    string        `toml:"reconnect_max_delay" env:"RECONNECT_MAX_DELAY"`
	FlightLog            string        `toml:"flight_log" env:"FLIGHT_LOG"`
	SecurityMode         string        `toml:"security_mode" env:"SECURITY_MODE"`
	TLS                  TLSSection    `toml:"tls" envPrefix:"TLS_"`
	Bridge               BridgeSection `toml:"bridge" envPrefix:"BRIDGE_"`
}

type TLSSection struct {
	Enabled            bool   `toml:"enabled" env:"ENABLED"`
	Mutual             bool   `toml:"mutual" env:"MUTUAL"`
	CAFile             string `toml:"ca_file" env:"CA_FILE"`
	CertFile           string `toml:"cert_file" env:"CERT_FILE"`
	KeyFile            string `toml:"key_file" env:"KEY_FILE"`
	ServerName         string `toml:"server_name" env:"SERVER_NAME"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

type BridgeSection struct {
	ListenAddr  string   `toml:"listen_addr" env:"LISTEN_ADDR"`
	CorsOrigins []string `toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	Token       string   `toml:"token" env:"TOKEN"`
}

func Default() GroundConfig {
	def := session.DefaultConfig()
	return GroundConfig{
		Name:                 "groundctl",
		ClientType:           def.ClientType,
		ConnectTimeout:       def.ConnectTimeout.String(),
		HeartbeatInterval:    def.HeartbeatInterval.String(),
		WriteTimeout:         def.WriteTimeout.String(),
		MaxReconnectAttempts: def.MaxReconnectAttempts,
		ReconnectMode:        string(def.Backoff.Mode),
		ReconnectStep:        def.Backoff.InitialDelay.String(),
		SecurityMode:         string(session.SecurityModeDevelopment),
		Bridge: BridgeSection{
			ListenAddr:  "127.0.0.1:9400",
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Load reads path (when non-empty), applies GROUNDCTL_* overrides from the
// environment and any listed dotenv files, fills defaults, and validates.
func Load(path string, envFiles ...string) (GroundConfig, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := loadToml(path, &cfg); err != nil {
			return GroundConfig{}, err
		}
	}
	if err := loadDotenv(envFiles...); err != nil {
		return GroundConfig{}, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return GroundConfig{}, err
	}
	cfg.fillDefaults()
	if err := Validate(cfg); err != nil {
		return GroundConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// loadDotenv loads files without overriding variables already set. Missing
// files are skipped.
func loadDotenv(files ...string) error {
	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			continue
		}
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config dotenv failed (%s): %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays GROUNDCTL_* variables onto cfg. Unset variables leave
// fields untouched.
func ApplyEnv(cfg *GroundConfig) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config env failed: %w", err)
	}
	return nil
}

func (c *GroundConfig) fillDefaults() {
	def := Default()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = def.Name
	}
	if strings.TrimSpace(c.ClientType) == "" {
		c.ClientType = def.ClientType
	}
	if strings.TrimSpace(c.ReconnectMode) == "" {
		c.ReconnectMode = def.ReconnectMode
	}
	if strings.TrimSpace(c.SecurityMode) == "" {
		c.SecurityMode = def.SecurityMode
	}
	if strings.TrimSpace(c.Bridge.ListenAddr) == "" {
		c.Bridge.ListenAddr = def.Bridge.ListenAddr
	}
}

func Validate(cfg GroundConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalid)
	}
	if strings.TrimSpace(cfg.Bridge.ListenAddr) == "" {
		return fmt.Errorf("%w: bridge missing listen_addr", ErrInvalid)
	}
	for field, raw := range map[string]string{
		"connect_timeout":     cfg.ConnectTimeout,
		"heartbeat_interval":  cfg.HeartbeatInterval,
		"write_timeout":       cfg.WriteTimeout,
		"reconnect_step":      cfg.ReconnectStep,
		"reconnect_max_delay": cfg.ReconnectMaxDelay,
	} {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
		}
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return nil
	}
	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// SessionConfig converts the file form into a session.Config. Empty
// durations fall back to session defaults.
func (c GroundConfig) SessionConfig() (session.Config, error) {
	out := session.Config{
		Address:              strings.TrimSpace(c.Address),
		ClientType:           c.ClientType,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		Backoff: session.BackoffConfig{
			Mode:       session.BackoffMode(strings.ToLower(strings.TrimSpace(c.ReconnectMode))),
			Multiplier: 2.0,
		},
		SecurityMode: session.SecurityMode(c.SecurityMode),
		TLS: session.TLSConfig{
			Enabled:            c.TLS.Enabled,
			Mutual:             c.TLS.Mutual,
			CAFile:             c.TLS.CAFile,
			CertFile:           c.TLS.CertFile,
			KeyFile:            c.TLS.KeyFile,
			ServerName:         c.TLS.ServerName,
			InsecureSkipVerify: c.TLS.InsecureSkipVerify,
		},
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout, &out.ConnectTimeout},
		{"heartbeat_interval", c.HeartbeatInterval, &out.HeartbeatInterval},
		{"write_timeout", c.WriteTimeout, &out.WriteTimeout},
		{"reconnect_step", c.ReconnectStep, &out.Backoff.InitialDelay},
		{"reconnect_max_delay", c.ReconnectMaxDelay, &out.Backoff.MaxDelay},
	} {
		v, err := parseDuration(d.raw)
		if err != nil {
			return session.Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, d.name, err)
		}
		*d.dst = v
	}
	return out.WithDefaults(), nil
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
