package session

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/groundctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeControlFrames(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		frame Frame
		want  string
	}{
		{IdentityFrame{ClientType: "electron"}, `{"type":"CLIENT_IDENTITY","clientType":"electron"}`},
		{PingFrame{}, `{"type":"ping"}`},
		{DisconnectFrame{}, `{"type":"disconnect"}`},
		{CommandFrame{Command: "takeoff"}, `{"type":"takeoff"}`},
	}
	for _, tc := range tests {
		got, err := EncodeFrame(tc.frame)
		require.NoError(t, err)
		assert.Equal(t, tc.want, string(got))
	}
}

func TestEncodeGoToLocationFrame(t *testing.T) {
	testlog.Start(t)
	frame, err := BuildGoToLocation(37.0, -122.0, 20, 1700000000000, "cmd-1")
	require.NoError(t, err)
	got, err := EncodeFrame(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "go_to_location",
		"latitude": 37,
		"longitude": -122,
		"altitude": 20,
		"timestamp": 1700000000000,
		"commandId": "cmd-1"
	}`, string(got))
}

func TestEncodeExecuteWaypointsFrame(t *testing.T) {
	testlog.Start(t)
	frame, err := BuildExecuteWaypoints([]Waypoint{
		{ID: "home", Name: "Home", Latitude: 37.7749, Longitude: -122.4194, IsHome: true},
		{ID: "wp1", Name: "Pier", Latitude: 37.8080, Longitude: -122.4177},
	}, 1, "m-1")
	require.NoError(t, err)
	got, err := EncodeFrame(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "execute_waypoints",
		"waypoints": [
			{"id":"home","name":"Home","latitude":37.7749,"longitude":-122.4194,"altitude":15,"order":0,"isHome":true},
			{"id":"wp1","name":"Pier","latitude":37.808,"longitude":-122.4177,"altitude":15,"order":1,"isHome":false}
		],
		"totalWaypoints": 2,
		"timestamp": 1,
		"commandId": "m-1"
	}`, string(got))
}

func TestEncodeCommandFrameRejectsEmptyCommand(t *testing.T) {
	testlog.Start(t)
	_, err := EncodeFrame(CommandFrame{Command: " "})
	require.ErrorIs(t, err, ErrInvalidCommand)
	_, err = EncodeFrame(nil)
	require.ErrorIs(t, err, ErrInvalidCommand)
}

func TestValidateGoToLocation(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name          string
		lat, lon, alt float64
		want          error
	}{
		{"zero sentinel", 0, 0, 15, ErrInvalidCoordinates},
		{"zero latitude", 0, 10, 15, ErrInvalidCoordinates},
		{"zero longitude", 10, 0, 15, ErrInvalidCoordinates},
		{"nan", math.NaN(), 10, 15, ErrInvalidCoordinates},
		{"latitude bound", 91, 10, 15, ErrInvalidCoordinates},
		{"longitude bound", 10, -181, 15, ErrInvalidCoordinates},
		{"altitude high", 12.345678, 98.765432, 600, ErrAltitudeOutOfRange},
		{"altitude low", 12.345678, 98.765432, -1, ErrAltitudeOutOfRange},
		{"altitude edge low", 12.345678, 98.765432, 0, nil},
		{"altitude edge high", 12.345678, 98.765432, 500, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGoToLocation(tc.lat, tc.lon, tc.alt)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestParseMessage(t *testing.T) {
	testlog.Start(t)
	msg, err := ParseMessage([]byte(` {"type":"telemetry","alt":12.5} `))
	require.NoError(t, err)
	assert.Equal(t, "telemetry", msg.Type())

	var body struct {
		Alt float64 `json:"alt"`
	}
	require.NoError(t, msg.Decode(&body))
	assert.Equal(t, 12.5, body.Alt)

	arr, err := ParseMessage([]byte(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, "", arr.Type())
	_, ok := arr.Fields()
	assert.False(t, ok)

	_, err = ParseMessage([]byte("ping?"))
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestReconnectNotificationShape(t *testing.T) {
	testlog.Start(t)
	msg := newReconnectMessage(ReconnectAttempt{Attempt: 2, MaxAttempts: 3, DelayMS: 4000})
	assert.Equal(t, MessageReconnectAttempt, msg.Type())
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg.Raw(), &out))
	assert.Equal(t, map[string]any{
		"type":        "reconnect_attempt",
		"attempt":     float64(2),
		"maxAttempts": float64(3),
		"delayMs":     float64(4000),
	}, out)
}
