package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/groundctl/internal/auth"
	"github.com/danmuck/groundctl/internal/bridge"
	"github.com/danmuck/groundctl/internal/config"
	"github.com/danmuck/groundctl/internal/flightlog"
	"github.com/danmuck/groundctl/internal/logging"
	"github.com/danmuck/groundctl/internal/logs"
	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/danmuck/groundctl/internal/transport"
)

const usage = `usage: groundctl [-config path] [-address url] <command> [flags]

commands:
  monitor                         connect and print inbound messages
  send -command X [-params JSON]  send a generic command
  goto -lat N -lon N [-alt N]     send a go_to_location command
  mission -file mission.toml      send an execute_waypoints mission
  serve                           run the local HTTP bridge
`

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "groundctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("groundctl", flag.ContinueOnError)
	configPath := global.String("config", "", "path to groundctl.toml")
	address := global.String("address", "", "drone address (overrides config)")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := loadConfig(*configPath, *address)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "monitor":
		return runMonitor(ctx, cfg, stdout)
	case "send":
		return runSend(ctx, cfg, cmdArgs, stdout)
	case "goto":
		return runGoto(ctx, cfg, cmdArgs, stdout)
	case "mission":
		return runMission(ctx, cfg, cmdArgs, stdout)
	case "serve":
		return runServe(ctx, cfg)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func loadConfig(path, address string) (config.GroundConfig, error) {
	cfg, err := config.Load(path, ".env")
	if err != nil {
		return config.GroundConfig{}, err
	}
	if strings.TrimSpace(address) != "" {
		cfg.Address = strings.TrimSpace(address)
	}
	return cfg, nil
}

// client bundles a session with the flight log it journals into.
type client struct {
	sess  *session.Session
	store *flightlog.Store
}

func (c *client) close() {
	if c.sess != nil {
		c.sess.Disconnect()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			logs.Warnf("groundctl flightlog close err=%v", err)
		}
	}
}

func openStore(cfg config.GroundConfig) (*flightlog.Store, error) {
	if strings.TrimSpace(cfg.FlightLog) == "" {
		return nil, nil
	}
	return flightlog.Open(cfg.FlightLog)
}

func sessionFactory(cfg config.GroundConfig, store *flightlog.Store) bridge.SessionFactory {
	return func(h session.Handlers) (*session.Session, error) {
		sc, err := cfg.SessionConfig()
		if err != nil {
			return nil, err
		}
		dialer, err := transport.ForAddress(cfg.Transport, sc.Address)
		if err != nil {
			return nil, err
		}
		var opts []session.Option
		if store != nil {
			opts = append(opts, session.WithRecorder(store))
		}
		return session.New(sc, dialer, h, opts...)
	}
}

// dial builds a session that prints inbound messages and connects it.
func dial(ctx context.Context, cfg config.GroundConfig, stdout io.Writer, done chan<- struct{}) (*client, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	c := &client{store: store}
	h := session.Handlers{
		OnConnect: func() { logs.Infof("groundctl connected address=%s", cfg.Address) },
		OnDisconnect: func() {
			logs.Infof("groundctl disconnected address=%s", cfg.Address)
			if done != nil {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		},
		OnError:   func(err error) { logs.Warnf("groundctl session error err=%v", err) },
		OnMessage: func(msg session.Message) { fmt.Fprintln(stdout, msg.String()) },
	}
	sess, err := sessionFactory(cfg, store)(h)
	if err != nil {
		c.close()
		return nil, err
	}
	c.sess = sess
	if err := sess.Connect(ctx); err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

func runMonitor(ctx context.Context, cfg config.GroundConfig, stdout io.Writer) error {
	done := make(chan struct{}, 1)
	c, err := dial(ctx, cfg, stdout, done)
	if err != nil {
		return err
	}
	defer c.close()

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		if c.sess.ReconnectSuppressed() {
			return fmt.Errorf("%w after %d attempts", session.ErrReconnectsExhausted, c.sess.ReconnectAttempt())
		}
		return nil
	}
}

// linger keeps the session open briefly so replies to a command are printed.
func linger(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func runSend(ctx context.Context, cfg config.GroundConfig, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	command := fs.String("command", "", "command type")
	params := fs.String("params", "", "command params as a JSON object")
	wait := fs.Duration("wait", 2*time.Second, "time to wait for replies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var p map[string]any
	if strings.TrimSpace(*params) != "" {
		if err := json.Unmarshal([]byte(*params), &p); err != nil {
			return fmt.Errorf("%w: params: %v", session.ErrInvalidCommand, err)
		}
	}

	c, err := dial(ctx, cfg, stdout, nil)
	if err != nil {
		return err
	}
	defer c.close()
	if err := c.sess.SendCommand(*command, p); err != nil {
		return err
	}
	logs.Infof("groundctl sent command=%s", strings.TrimSpace(*command))
	linger(ctx, *wait)
	return nil
}

func runGoto(ctx context.Context, cfg config.GroundConfig, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("goto", flag.ContinueOnError)
	lat := fs.Float64("lat", 0, "latitude in degrees")
	lon := fs.Float64("lon", 0, "longitude in degrees")
	alt := fs.Float64("alt", session.DefaultAltitude, "altitude in meters")
	wait := fs.Duration("wait", 2*time.Second, "time to wait for replies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := session.ValidateGoToLocation(*lat, *lon, *alt); err != nil {
		return err
	}

	c, err := dial(ctx, cfg, stdout, nil)
	if err != nil {
		return err
	}
	defer c.close()
	id, err := c.sess.SendGoToLocation(*lat, *lon, *alt)
	if err != nil {
		return err
	}
	logs.Infof("groundctl sent go_to_location commandId=%s", id)
	linger(ctx, *wait)
	return nil
}

func runMission(ctx context.Context, cfg config.GroundConfig, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("mission", flag.ContinueOnError)
	file := fs.String("file", "", "mission file (TOML)")
	wait := fs.Duration("wait", 2*time.Second, "time to wait for replies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*file) == "" {
		return errors.New("mission: -file is required")
	}
	m, err := loadMission(*file)
	if err != nil {
		return err
	}

	c, err := dial(ctx, cfg, stdout, nil)
	if err != nil {
		return err
	}
	defer c.close()
	id, err := c.sess.SendExecuteWaypoints(m.Waypoints)
	if err != nil {
		return err
	}
	logs.Infof("groundctl sent mission=%q waypoints=%d commandId=%s", m.Name, len(m.Waypoints), id)
	linger(ctx, *wait)
	return nil
}

func runServe(ctx context.Context, cfg config.GroundConfig) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	bcfg := bridge.Config{
		ID:          cfg.Name,
		CorsOrigins: cfg.Bridge.CorsOrigins,
		Validator:   auth.ForToken(cfg.Bridge.Token),
	}
	if store != nil {
		bcfg.Journal = store
		defer store.Close()
	}
	b := bridge.New(bcfg, sessionFactory(cfg, store))
	return b.Run(ctx, cfg.Bridge.ListenAddr)
}
