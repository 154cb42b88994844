package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/groundctl/internal/config"
	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/danmuck/groundctl/internal/testutil/testlog"
)

func writeMission(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mission.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write mission: %v", err)
	}
	return path
}

func TestLoadMissionTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "mission.toml")
	if err := config.WriteTemplate(path, config.KindMission, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	m, err := loadMission(path)
	if err != nil {
		t.Fatalf("load mission: %v", err)
	}
	if m.Name != "survey-loop" || len(m.Waypoints) != 3 {
		t.Fatalf("unexpected mission: %+v", m)
	}
	if !m.Waypoints[0].IsHome || m.Waypoints[0].Altitude != nil {
		t.Fatalf("unexpected home waypoint: %+v", m.Waypoints[0])
	}
	if m.Waypoints[1].Altitude == nil || *m.Waypoints[1].Altitude != 40 {
		t.Fatalf("unexpected altitude: %+v", m.Waypoints[1])
	}

	frame, err := session.BuildExecuteWaypoints(m.Waypoints, 0, "m")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if frame.Waypoints[0].Altitude != int(session.DefaultAltitude) || frame.Waypoints[2].Order != 2 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestLoadMissionDefaultAltitude(t *testing.T) {
	testlog.Start(t)
	path := writeMission(t, `
default_altitude = 60

[[waypoints]]
id = "a"
latitude = 10.5
longitude = 20.5

[[waypoints]]
id = "b"
latitude = 11.5
longitude = 21.5
altitude = 0
`)
	m, err := loadMission(path)
	if err != nil {
		t.Fatalf("load mission: %v", err)
	}
	if m.Name != path {
		t.Fatalf("expected path as name, got %q", m.Name)
	}
	if *m.Waypoints[0].Altitude != 60 {
		t.Fatalf("default altitude not applied: %v", *m.Waypoints[0].Altitude)
	}
	if *m.Waypoints[1].Altitude != 0 {
		t.Fatalf("explicit zero altitude overwritten: %v", *m.Waypoints[1].Altitude)
	}
}

func TestLoadMissionRejects(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"no waypoints": `name = "empty"`,
		"one waypoint": `
[[waypoints]]
id = "solo"
latitude = 1.0
longitude = 1.0
`,
	}
	for name, body := range cases {
		if _, err := loadMission(writeMission(t, body)); !errors.Is(err, session.ErrTooFewWaypoints) {
			t.Fatalf("%s: expected too few waypoints, got %v", name, err)
		}
	}

	_, err := loadMission(writeMission(t, `
[[waypoints]]
id = "a"
latitude = 1.0
longitude = 1.0
altitud = 20

[[waypoints]]
id = "b"
latitude = 2.0
longitude = 2.0
`))
	if err == nil || !strings.Contains(err.Error(), "altitud") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	if err := run(nil, &out); err == nil {
		t.Fatalf("expected missing command error")
	}
	if err := run([]string{"-address", "ws://drone.local:8765", "hover"}, &out); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if err := run([]string{"goto", "-lat", "0", "-lon", "0"}, &out); !errors.Is(err, session.ErrInvalidCoordinates) {
		t.Fatalf("expected coordinate validation before dialing, got %v", err)
	}
}
