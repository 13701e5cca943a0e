package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncdocs/presence/internal/adapters/roomstore"
	"github.com/syncdocs/presence/internal/core"
	"github.com/syncdocs/presence/internal/domain"
)

type coordFixture struct {
	coord *Coordinator
	reg   *Registry
	top   *Topics
	store core.RoomStore
	dir   *fakeDirectory
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()
	dir := newFakeDirectory()
	reg := NewRegistry()
	top := NewTopics(dir)
	store := roomstore.NewMemoryStore()
	return &coordFixture{
		coord: NewCoordinator(reg, top, store, dir, 2),
		reg:   reg,
		top:   top,
		store: store,
		dir:   dir,
	}
}

// connect registers a fake connection for the user.
func (f *coordFixture) connect(uid domain.UserID, connID string) *fakeConn {
	conn := newFakeConn()
	f.reg.Track(connID, uid, conn)
	return conn
}

// nextEvent decodes one frame from the connection or fails the test.
func nextEvent(t *testing.T, conn *fakeConn) map[string]any {
	t.Helper()
	select {
	case frame := <-conn.frames:
		var m map[string]any
		require.NoError(t, json.Unmarshal(frame, &m))
		return m
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event within deadline")
		return nil
	}
}

func assertNoEvent(t *testing.T, conn *fakeConn) {
	t.Helper()
	select {
	case frame := <-conn.frames:
		t.Fatalf("expected no event, got %s", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestJoinRoomBroadcastsToTopicIncludingJoiner(t *testing.T) {
	f := newCoordFixture(t)
	f.dir.allow(42, 7)
	conn := f.connect(7, "conn-7")

	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 7, "conn-7", "ann", domain.RoleEditor))

	state := nextEvent(t, conn)
	assert.Equal(t, domain.EventRoomState, state["type"])

	joined := nextEvent(t, conn)
	assert.Equal(t, domain.EventParticipantJoined, joined["type"])
	participant := joined["participant"].(map[string]any)
	assert.Equal(t, float64(7), participant["userId"])
	assert.Equal(t, "ann", participant["username"])
	assert.Equal(t, false, participant["isMuted"])

	room, err := f.store.Get(context.Background(), domain.RoomIDForDocument(42))
	require.NoError(t, err)
	assert.Len(t, room.Participants, 1)
}

func TestJoinRoomPermissionDenied(t *testing.T) {
	f := newCoordFixture(t)
	conn := f.connect(7, "conn-7")

	err := f.coord.JoinRoom(context.Background(), 42, 7, "conn-7", "ann", domain.RoleEditor)
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	// Denied joins are reported to the caller only, never broadcast.
	assertNoEvent(t, conn)
	_, err = f.store.Get(context.Background(), domain.RoomIDForDocument(42))
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestLeaveRoomDeletesEmptyRoom(t *testing.T) {
	f := newCoordFixture(t)
	f.dir.allow(42, 7)
	f.connect(7, "conn-7")
	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 7, "conn-7", "ann", domain.RoleEditor))

	require.NoError(t, f.coord.LeaveRoom(context.Background(), 42, 7))

	_, err := f.store.Get(context.Background(), domain.RoomIDForDocument(42))
	assert.ErrorIs(t, err, core.ErrRoomNotFound, "an emptied room must not persist")

	active, err := f.store.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestLeaveRoomNotifiesRemainingMembers(t *testing.T) {
	f := newCoordFixture(t)
	f.dir.allow(42, 1)
	f.dir.allow(42, 2)
	conn1 := f.connect(1, "conn-1")
	conn2 := f.connect(2, "conn-2")
	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 1, "conn-1", "alice", domain.RoleCreator))
	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 2, "conn-2", "bob", domain.RoleEditor))
	drain(conn1)
	drain(conn2)

	require.NoError(t, f.coord.LeaveRoom(context.Background(), 42, 2))

	left := nextEvent(t, conn1)
	assert.Equal(t, domain.EventParticipantLeft, left["type"])
	assert.Equal(t, float64(2), left["userId"])

	// The leaver's connections are unsubscribed before the broadcast.
	assertNoEvent(t, conn2)

	room, err := f.store.Get(context.Background(), domain.RoomIDForDocument(42))
	require.NoError(t, err)
	assert.Len(t, room.Participants, 1)
}

func TestLeaveRoomTwiceIsNoOp(t *testing.T) {
	f := newCoordFixture(t)
	f.dir.allow(42, 7)
	f.connect(7, "conn-7")
	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 7, "conn-7", "ann", domain.RoleEditor))

	require.NoError(t, f.coord.LeaveRoom(context.Background(), 42, 7))
	require.NoError(t, f.coord.LeaveRoom(context.Background(), 42, 7))
}

func TestToggleAfterLeaveIsSilentNoOp(t *testing.T) {
	f := newCoordFixture(t)
	f.dir.allow(42, 7)
	conn := f.connect(7, "conn-7")

	require.NoError(t, f.coord.ToggleMute(context.Background(), 42, 7, true))
	assertNoEvent(t, conn)

	_, err := f.store.Get(context.Background(), domain.RoomIDForDocument(42))
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestToggleMuteBroadcasts(t *testing.T) {
	f := newCoordFixture(t)
	f.dir.allow(42, 7)
	conn := f.connect(7, "conn-7")
	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 7, "conn-7", "ann", domain.RoleEditor))
	drain(conn)

	require.NoError(t, f.coord.ToggleMute(context.Background(), 42, 7, true))

	evt := nextEvent(t, conn)
	assert.Equal(t, domain.EventParticipantMuted, evt["type"])
	assert.Equal(t, float64(7), evt["userId"])
	assert.Equal(t, true, evt["value"])

	room, err := f.store.Get(context.Background(), domain.RoomIDForDocument(42))
	require.NoError(t, err)
	p, ok := room.Participant(7)
	require.True(t, ok)
	assert.True(t, p.Muted)
}

func TestConcurrentDistinctFieldTogglesAllLand(t *testing.T) {
	f := newCoordFixture(t)
	f.dir.allow(42, 7)
	f.connect(7, "conn-7")
	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 7, "conn-7", "ann", domain.RoleEditor))

	var wg sync.WaitGroup
	toggles := []func() error{
		func() error { return f.coord.ToggleMute(context.Background(), 42, 7, true) },
		func() error { return f.coord.ToggleCamera(context.Background(), 42, 7, true) },
		func() error { return f.coord.ToggleScreenShare(context.Background(), 42, 7, true) },
		func() error {
			return f.coord.SetMediaState(context.Background(), 42, 7, domain.MediaPaused, domain.MediaPaused)
		},
	}
	for _, toggle := range toggles {
		wg.Add(1)
		go func(fn func() error) {
			defer wg.Done()
			assert.NoError(t, fn())
		}(toggle)
	}
	wg.Wait()

	room, err := f.store.Get(context.Background(), domain.RoomIDForDocument(42))
	require.NoError(t, err)
	p, ok := room.Participant(7)
	require.True(t, ok)
	assert.True(t, p.Muted, "mute toggle lost")
	assert.True(t, p.CameraOn, "camera toggle lost")
	assert.True(t, p.ScreenSharing, "screen share toggle lost")
	assert.Equal(t, domain.MediaPaused, p.AudioState, "media update lost")
}

func TestOnDisconnectSweepsRooms(t *testing.T) {
	f := newCoordFixture(t)
	f.dir.allow(42, 7)
	f.dir.allow(42, 8)
	f.connect(7, "conn-7")
	conn8 := f.connect(8, "conn-8")
	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 7, "conn-7", "ann", domain.RoleEditor))
	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 8, "conn-8", "bob", domain.RoleEditor))
	drain(conn8)

	// Connection lost without an explicit leave.
	f.reg.Untrack("conn-7")
	f.top.DropConnection("conn-7")
	f.coord.OnDisconnect(context.Background(), "conn-7")

	left := nextEvent(t, conn8)
	assert.Equal(t, domain.EventParticipantLeft, left["type"])
	assert.Equal(t, float64(7), left["userId"])

	room, err := f.store.Get(context.Background(), domain.RoomIDForDocument(42))
	require.NoError(t, err)
	_, ok := room.Participant(7)
	assert.False(t, ok)
}

// Full end-to-end presence scenario: join, mute, drop without leave.
func TestPresenceScenarioJoinToggleDisconnect(t *testing.T) {
	f := newCoordFixture(t)
	f.dir.allow(42, 7)
	conn := f.connect(7, "conn-7")

	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 7, "conn-7", "ann", domain.RoleEditor))
	state := nextEvent(t, conn)
	assert.Equal(t, domain.EventRoomState, state["type"])
	joined := nextEvent(t, conn)
	assert.Equal(t, domain.EventParticipantJoined, joined["type"])
	participant := joined["participant"].(map[string]any)
	assert.Equal(t, "ann", participant["username"])
	assert.Equal(t, false, participant["isMuted"])

	require.NoError(t, f.coord.ToggleMute(context.Background(), 42, 7, true))
	muted := nextEvent(t, conn)
	assert.Equal(t, domain.EventParticipantMuted, muted["type"])
	assert.Equal(t, true, muted["value"])

	f.reg.Untrack("conn-7")
	f.top.DropConnection("conn-7")
	f.coord.OnDisconnect(context.Background(), "conn-7")

	_, err := f.store.Get(context.Background(), domain.RoomIDForDocument(42))
	assert.ErrorIs(t, err, core.ErrRoomNotFound, "sole participant gone, room key must be deleted")
}

func TestUserWithTwoTabsKeepsMembershipAfterOneDrop(t *testing.T) {
	f := newCoordFixture(t)
	f.dir.allow(42, 7)
	f.connect(7, "tab-1")
	tab2 := f.connect(7, "tab-2")
	require.NoError(t, f.coord.JoinRoom(context.Background(), 42, 7, "tab-2", "ann", domain.RoleEditor))
	drain(tab2)

	// Tab 1 was never the participant's connection; dropping it must not
	// evict the user from the room.
	f.reg.Untrack("tab-1")
	f.top.DropConnection("tab-1")
	f.coord.OnDisconnect(context.Background(), "tab-1")

	room, err := f.store.Get(context.Background(), domain.RoomIDForDocument(42))
	require.NoError(t, err)
	_, ok := room.Participant(7)
	assert.True(t, ok)
	assert.Equal(t, []string{"tab-2"}, f.reg.ConnectionsOfUser(7))
}

func drain(conn *fakeConn) {
	for {
		select {
		case <-conn.frames:
		default:
			return
		}
	}
}
