package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/groundctl/internal/protocol/session"
)

type missionFile struct {
	Name            string             `toml:"name"`
	DefaultAltitude float64            `toml:"default_altitude"`
	Waypoints       []session.Waypoint `toml:"waypoints"`
}

type mission struct {
	Name      string
	Waypoints []session.Waypoint
}

// loadMission decodes a waypoint list. Unknown keys are rejected so a typo
// in a field name never silently drops a value.
func loadMission(path string) (mission, error) {
	var raw missionFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return mission{}, fmt.Errorf("load mission: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return mission{}, fmt.Errorf("load mission: unknown keys %s", strings.Join(keys, ", "))
	}
	if !meta.IsDefined("waypoints") {
		return mission{}, fmt.Errorf("load mission: %w: no waypoints defined", session.ErrTooFewWaypoints)
	}

	out := mission{Name: strings.TrimSpace(raw.Name), Waypoints: raw.Waypoints}
	if out.Name == "" {
		out.Name = path
	}
	if meta.IsDefined("default_altitude") {
		for i := range out.Waypoints {
			if out.Waypoints[i].Altitude == nil {
				alt := raw.DefaultAltitude
				out.Waypoints[i].Altitude = &alt
			}
		}
	}
	if len(out.Waypoints) < session.MinWaypoints {
		return mission{}, fmt.Errorf("load mission: %w: got %d", session.ErrTooFewWaypoints, len(out.Waypoints))
	}
	return out, nil
}
