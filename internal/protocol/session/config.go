package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidConfig = errors.New("session: invalid config")
)

// BackoffMode selects how reconnect delays grow per attempt.
type BackoffMode string

const (
	BackoffLinear      BackoffMode = "linear"
	BackoffExponential BackoffMode = "exponential"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	Mode         BackoffMode
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// SecurityMode gates which transport settings are acceptable.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig configures secure (wss/sios) transports.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines session lifecycle and reliability settings.
type Config struct {
	Address              string
	ClientType           string
	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	WriteTimeout         time.Duration
	MaxReconnectAttempts int
	Backoff              BackoffConfig
	SecurityMode         SecurityMode
	TLS                  TLSConfig
}

const (
	DefaultClientType           = "electron"
	DefaultMaxReconnectAttempts = 3
	DefaultAltitude             = 15.0
	MinAltitude                 = 0.0
	MaxAltitude                 = 500.0
	MinWaypoints                = 2
)

// DefaultConfig returns the dashboard client's lifecycle defaults.
func DefaultConfig() Config {
	return Config{
		ClientType:           DefaultClientType,
		ConnectTimeout:       10 * time.Second,
		HeartbeatInterval:    15 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		Backoff: BackoffConfig{
			Mode:         BackoffLinear,
			InitialDelay: 2 * time.Second,
			Multiplier:   1.0,
		},
		SecurityMode: SecurityModeDevelopment,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
// A negative MaxReconnectAttempts disables automatic reconnects.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Address = strings.TrimSpace(c.Address)
	if strings.TrimSpace(c.ClientType) == "" {
		c.ClientType = def.ClientType
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if strings.TrimSpace(string(c.Backoff.Mode)) == "" {
		c.Backoff.Mode = def.Backoff.Mode
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	return c
}

// Validate checks the config after defaults have been applied.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return ErrAddressRequired
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect timeout must be positive", ErrInvalidConfig)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive", ErrInvalidConfig)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: max reconnect attempts must not be negative", ErrInvalidConfig)
	}
	switch c.Backoff.Mode {
	case BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("%w: unknown backoff mode %q", ErrInvalidConfig, c.Backoff.Mode)
	}
	return c.ValidateClientTransport()
}
