package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outbound frame type discriminators.
const (
	FrameClientIdentity   = "CLIENT_IDENTITY"
	FramePing             = "ping"
	FrameDisconnect       = "disconnect"
	FrameGoToLocation     = "go_to_location"
	FrameExecuteWaypoints = "execute_waypoints"
)

// Frame is the closed set of outbound frames. EncodeFrame is the only serializer.
type Frame interface {
	FrameType() string
	isFrame()
}

type IdentityFrame struct {
	ClientType string `json:"clientType"`
}

type PingFrame struct{}

type DisconnectFrame struct{}

// CommandFrame is a generic `{type: command, ...params}` passthrough.
type CommandFrame struct {
	Command string
	Params  map[string]any
}

type GoToLocationFrame struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  int     `json:"altitude"`
	Timestamp int64   `json:"timestamp"`
	CommandID string  `json:"commandId"`
}

type WaypointFrame struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  int     `json:"altitude"`
	Order     int     `json:"order"`
	IsHome    bool    `json:"isHome"`
}

type ExecuteWaypointsFrame struct {
	Waypoints      []WaypointFrame `json:"waypoints"`
	TotalWaypoints int             `json:"totalWaypoints"`
	Timestamp      int64           `json:"timestamp"`
	CommandID      string          `json:"commandId"`
}

func (IdentityFrame) FrameType() string         { return FrameClientIdentity }
func (PingFrame) FrameType() string             { return FramePing }
func (DisconnectFrame) FrameType() string       { return FrameDisconnect }
func (f CommandFrame) FrameType() string        { return f.Command }
func (GoToLocationFrame) FrameType() string     { return FrameGoToLocation }
func (ExecuteWaypointsFrame) FrameType() string { return FrameExecuteWaypoints }

func (IdentityFrame) isFrame()         {}
func (PingFrame) isFrame()             {}
func (DisconnectFrame) isFrame()       {}
func (CommandFrame) isFrame()          {}
func (GoToLocationFrame) isFrame()     {}
func (ExecuteWaypointsFrame) isFrame() {}

// EncodeFrame serializes a frame to one JSON text message with `type` set.
func EncodeFrame(f Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrInvalidCommand)
	}
	switch v := f.(type) {
	case IdentityFrame:
		type wire IdentityFrame
		return json.Marshal(struct {
			Type string `json:"type"`
			wire
		}{FrameClientIdentity, wire(v)})
	case PingFrame:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{FramePing})
	case DisconnectFrame:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{FrameDisconnect})
	case CommandFrame:
		return encodeCommandFrame(v)
	case GoToLocationFrame:
		type wire GoToLocationFrame
		return json.Marshal(struct {
			Type string `json:"type"`
			wire
		}{FrameGoToLocation, wire(v)})
	case ExecuteWaypointsFrame:
		type wire ExecuteWaypointsFrame
		if v.Waypoints == nil {
			v.Waypoints = []WaypointFrame{}
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			wire
		}{FrameExecuteWaypoints, wire(v)})
	default:
		return nil, fmt.Errorf("%w: unknown frame %T", ErrInvalidCommand, f)
	}
}

// The command name always wins over a `type` key inside params.
func encodeCommandFrame(f CommandFrame) ([]byte, error) {
	command := strings.TrimSpace(f.Command)
	if command == "" {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	body := make(map[string]any, len(f.Params)+1)
	for k, v := range f.Params {
		body[k] = v
	}
	body["type"] = command
	return json.Marshal(body)
}
