// Package logging picks the logger profile for a binary or test run and
// layers GROUNDCTL_LOG_* overrides on top of it.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/danmuck/groundctl/internal/logs"
)

// EnvPrefix namespaces the logger overrides: GROUNDCTL_LOG_LEVEL,
// GROUNDCTL_LOG_TIMESTAMP, GROUNDCTL_LOG_NOCOLOR, GROUNDCTL_LOG_BYPASS.
const EnvPrefix = "GROUNDCTL_LOG_"

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Level accepts zerolog level names plus the aliases operators type in
// practice ("warning", "off").
type Level logs.Level

func (l *Level) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "trace", "diagnostics":
		*l = Level(logs.TraceLevel)
	case "debug":
		*l = Level(logs.DebugLevel)
	case "info":
		*l = Level(logs.InfoLevel)
	case "warn", "warning":
		*l = Level(logs.WarnLevel)
	case "error":
		*l = Level(logs.ErrorLevel)
	case "disabled", "disable", "off", "none":
		*l = Level(logs.Disabled)
	default:
		return fmt.Errorf("unknown log level %q", string(text))
	}
	return nil
}

// Settings is the env-facing view of logs.Config.
type Settings struct {
	Level     Level `env:"LEVEL"`
	Timestamp bool  `env:"TIMESTAMP"`
	NoColor   bool  `env:"NOCOLOR"`
	Bypass    bool  `env:"BYPASS"`
}

func (s Settings) apply(cfg logs.Config) logs.Config {
	cfg.Level = logs.Level(s.Level)
	cfg.Timestamp = s.Timestamp
	cfg.NoColor = s.NoColor
	cfg.Bypass = s.Bypass
	return cfg
}

func profileSettings(profile Profile) Settings {
	if profile == ProfileTest {
		return Settings{Level: Level(logs.DebugLevel), NoColor: true}
	}
	return Settings{Level: Level(logs.InfoLevel), Timestamp: true}
}

// Resolve returns the logger config for profile with env overrides applied.
// Variables that fail to parse keep the profile value and are reported in err.
func Resolve(profile Profile) (logs.Config, error) {
	s := profileSettings(profile)
	err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix})
	return s.apply(logs.DefaultConfig()), err
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the resolved logger once per process.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg, err := Resolve(profile)
		logs.Configure(cfg)
		if err != nil {
			logs.Warnf("logging.Configure ignored overrides err=%v", err)
		}
	})
}
