package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomIDForDocument(t *testing.T) {
	assert.Equal(t, "doc-42", RoomIDForDocument(42))
}

func TestRoomJoinReplacesSameUser(t *testing.T) {
	room := NewRoom(42)
	first, err := NewParticipant(7, "ann", "conn-1", RoleEditor)
	require.NoError(t, err)
	room.Join(first)

	second, err := NewParticipant(7, "ann", "conn-2", RoleEditor)
	require.NoError(t, err)
	room.Join(second)

	require.Len(t, room.Participants, 1)
	p, ok := room.Participant(7)
	require.True(t, ok)
	assert.Equal(t, "conn-2", p.ConnectionID)
}

func TestRoomLeave(t *testing.T) {
	room := NewRoom(42)
	p, err := NewParticipant(7, "ann", "conn-1", RoleEditor)
	require.NoError(t, err)
	room.Join(p)

	assert.True(t, room.Leave(7))
	assert.False(t, room.Leave(7))
	assert.True(t, room.Empty())
}

func TestRoomCloneIsDeep(t *testing.T) {
	room := NewRoom(42)
	p, err := NewParticipant(7, "ann", "conn-1", RoleEditor)
	require.NoError(t, err)
	room.Join(p)

	clone := room.Clone()
	clone.Participants[7].Muted = true

	original, _ := room.Participant(7)
	assert.False(t, original.Muted)
}
