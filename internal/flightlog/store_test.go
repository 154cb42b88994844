package flightlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/danmuck/groundctl/internal/protocol/session/sessiontest"
	"github.com/danmuck/groundctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "flight.db")
	store, err := Open(path)
	require.NoError(t, err)
	return store, path
}

func TestRecordAndQueryByCommandID(t *testing.T) {
	testlog.Start(t)
	store, _ := openTemp(t)
	defer store.Close()

	at := time.UnixMilli(1700000000123)
	store.RecordOutbound("cmd-1", session.FrameGoToLocation, []byte(`{"type":"go_to_location","commandId":"cmd-1"}`), at)
	ack, err := session.ParseMessage([]byte(`{"type":"command_ack","commandId":"cmd-1","ok":true}`))
	require.NoError(t, err)
	store.RecordInbound(ack, at.Add(time.Second))
	tele, err := session.ParseMessage([]byte(`{"type":"telemetry","alt":12}`))
	require.NoError(t, err)
	store.RecordInbound(tele, at.Add(2*time.Second))
	store.Sync()

	ctx := context.Background()
	got, err := store.ByCommandID(ctx, "cmd-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, DirectionOutbound, got[0].Direction)
	assert.Equal(t, session.FrameGoToLocation, got[0].FrameType)
	assert.Equal(t, at.UTC(), got[0].RecordedAt)
	assert.Equal(t, DirectionInbound, got[1].Direction)
	assert.Equal(t, "command_ack", got[1].FrameType)
	assert.JSONEq(t, `{"type":"command_ack","commandId":"cmd-1","ok":true}`, string(got[1].Payload))

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "telemetry", recent[0].FrameType)
	assert.Empty(t, recent[0].CommandID)
}

func TestReopenKeepsEntries(t *testing.T) {
	testlog.Start(t)
	store, path := openTemp(t)
	store.RecordOutbound("", "takeoff", []byte(`{"type":"takeoff"}`), time.Now())
	require.NoError(t, store.Close())
	assert.True(t, errors.Is(store.Close(), ErrClosed))

	// Recording after close is a no-op.
	store.RecordOutbound("", "land", []byte(`{"type":"land"}`), time.Now())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	entries, err := reopened.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "takeoff", entries[0].FrameType)
}

func TestSessionJournalsTraffic(t *testing.T) {
	testlog.Start(t)
	store, _ := openTemp(t)
	defer store.Close()

	dialer := sessiontest.NewFakeDialer()
	clock := sessiontest.NewFakeClock(time.Unix(1700000000, 0))
	s, err := session.New(
		session.Config{Address: "ws://drone.local:8765"},
		dialer,
		session.Handlers{},
		session.WithClock(clock),
		session.WithRecorder(store),
		session.WithIDGenerator(func() string { return "mission-1" }),
	)
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Connect(context.Background()) }()
	var tr *sessiontest.FakeTransport
	select {
	case tr = <-dialer.Dialed():
	case <-time.After(2 * time.Second):
		t.Fatalf("session never dialed")
	}
	tr.Open()
	require.NoError(t, <-errCh)

	id, err := s.SendExecuteWaypoints([]session.Waypoint{
		{ID: "home", Latitude: 37.7749, Longitude: -122.4194, IsHome: true},
		{ID: "wp1", Latitude: 37.8080, Longitude: -122.4177},
	})
	require.NoError(t, err)
	tr.Deliver([]byte(`{"type":"mission_accepted","commandId":"mission-1"}`))
	store.Sync()

	entries, err := store.ByCommandID(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Payload, &frame))
	assert.Equal(t, float64(2), frame["totalWaypoints"])
	assert.Equal(t, "mission_accepted", entries[1].FrameType)
	s.Disconnect()
}

func TestSyncWhileRecordingConcurrently(t *testing.T) {
	testlog.Start(t)
	store, _ := openTemp(t)
	defer store.Close()

	const writers, perWriter = 4, 25
	at := time.UnixMilli(1700000000000)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				store.RecordOutbound(fmt.Sprintf("cmd-%d-%d", w, i), "takeoff", []byte(`{"type":"takeoff"}`), at)
				if i%5 == 0 {
					store.Sync()
				}
			}
		}(w)
	}
	wg.Wait()
	store.Sync()

	got, err := store.Recent(context.Background(), writers*perWriter+10)
	require.NoError(t, err)
	assert.Len(t, got, writers*perWriter)
}
