package session

import (
	"fmt"
	"math"
	"strings"
)

// Waypoint is one caller-supplied mission point. Order on the wire is its
// position in the slice passed to SendExecuteWaypoints.
type Waypoint struct {
	ID        string   `json:"id" toml:"id"`
	Name      string   `json:"name" toml:"name"`
	Latitude  float64  `json:"latitude" toml:"latitude"`
	Longitude float64  `json:"longitude" toml:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty" toml:"altitude"`
	IsHome    bool     `json:"isHome" toml:"is_home"`
}

// ValidateGoToLocation checks go-to parameters without rounding or clamping.
//
// A zero latitude or longitude is treated as unset and rejected.
func ValidateGoToLocation(lat, lon, alt float64) error {
	if !isFinite(lat) || !isFinite(lon) || lat == 0 || lon == 0 {
		return fmt.Errorf("%w: latitude=%v longitude=%v", ErrInvalidCoordinates, lat, lon)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: latitude=%v longitude=%v outside bounds", ErrInvalidCoordinates, lat, lon)
	}
	if !isFinite(alt) || alt < MinAltitude || alt > MaxAltitude {
		return fmt.Errorf("%w: altitude=%v (allowed %v..%v)", ErrAltitudeOutOfRange, alt, MinAltitude, MaxAltitude)
	}
	return nil
}

// BuildGoToLocation validates and normalizes a go-to command.
func BuildGoToLocation(lat, lon, alt float64, timestampMS int64, commandID string) (GoToLocationFrame, error) {
	if err := ValidateGoToLocation(lat, lon, alt); err != nil {
		return GoToLocationFrame{}, err
	}
	return GoToLocationFrame{
		Latitude:  RoundCoordinate(lat),
		Longitude: RoundCoordinate(lon),
		Altitude:  int(math.Round(alt)),
		Timestamp: timestampMS,
		CommandID: commandID,
	}, nil
}

// BuildExecuteWaypoints normalizes a mission. At least MinWaypoints are required.
func BuildExecuteWaypoints(waypoints []Waypoint, timestampMS int64, commandID string) (ExecuteWaypointsFrame, error) {
	if len(waypoints) < MinWaypoints {
		return ExecuteWaypointsFrame{}, fmt.Errorf("%w: got %d, need at least %d", ErrTooFewWaypoints, len(waypoints), MinWaypoints)
	}
	out := make([]WaypointFrame, 0, len(waypoints))
	for i, wp := range waypoints {
		alt := DefaultAltitude
		if wp.Altitude != nil {
			alt = *wp.Altitude
		}
		if !isFinite(wp.Latitude) || !isFinite(wp.Longitude) || !isFinite(alt) {
			return ExecuteWaypointsFrame{}, fmt.Errorf("%w: waypoint[%d] has a non-finite value", ErrInvalidCoordinates, i)
		}
		if alt < MinAltitude || alt > MaxAltitude {
			return ExecuteWaypointsFrame{}, fmt.Errorf(
				"%w: waypoint[%d] altitude=%v (allowed %v..%v)", ErrAltitudeOutOfRange, i, alt, MinAltitude, MaxAltitude,
			)
		}
		out = append(out, WaypointFrame{
			ID:        strings.TrimSpace(wp.ID),
			Name:      wp.Name,
			Latitude:  RoundCoordinate(wp.Latitude),
			Longitude: RoundCoordinate(wp.Longitude),
			Altitude:  int(math.Round(alt)),
			Order:     i,
			IsHome:    wp.IsHome,
		})
	}
	return ExecuteWaypointsFrame{
		Waypoints:      out,
		TotalWaypoints: len(out),
		Timestamp:      timestampMS,
		CommandID:      commandID,
	}, nil
}

// RoundCoordinate rounds to 6 decimal places (~0.1m).
func RoundCoordinate(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
