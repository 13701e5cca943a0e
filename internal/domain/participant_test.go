package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParticipantDefaults(t *testing.T) {
	p, err := NewParticipant(7, "ann", "conn-1", RoleEditor)
	require.NoError(t, err)

	assert.Equal(t, UserID(7), p.UserID)
	assert.False(t, p.Muted)
	assert.False(t, p.CameraOn)
	assert.False(t, p.ScreenSharing)
	assert.Equal(t, MediaActive, p.AudioState)
	assert.Equal(t, MediaInactive, p.VideoState)
}

func TestNewParticipantRejectsBadUsername(t *testing.T) {
	_, err := NewParticipant(7, "", "conn-1", RoleEditor)
	assert.ErrorIs(t, err, ErrUsernameEmpty)

	long := make([]byte, MaxUsernameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = NewParticipant(7, string(long), "conn-1", RoleEditor)
	assert.ErrorIs(t, err, ErrUsernameTooLong)
}

func TestMediaStateRejectsUnknownValues(t *testing.T) {
	var p Participant
	err := json.Unmarshal([]byte(`{"userId":1,"username":"u","audioState":"warp"}`), &p)
	require.Error(t, err)

	err = json.Unmarshal([]byte(`{"userId":1,"username":"u","audioState":"paused"}`), &p)
	require.NoError(t, err)
	assert.Equal(t, MediaPaused, p.AudioState)
}

func TestRoleRejectsUnknownValues(t *testing.T) {
	var p Participant
	err := json.Unmarshal([]byte(`{"userId":1,"role":"superadmin"}`), &p)
	require.Error(t, err)

	_, err = ParseRole("creator")
	assert.NoError(t, err)
	_, err = ParseRole("viewer")
	assert.Error(t, err)
}

func TestParseSignalKind(t *testing.T) {
	for _, s := range []string{"offer", "answer", "candidate"} {
		kind, err := ParseSignalKind(s)
		require.NoError(t, err)
		assert.Equal(t, SignalKind(s), kind)
	}
	_, err := ParseSignalKind("renegotiate")
	assert.Error(t, err)
}

func TestParticipantWireNames(t *testing.T) {
	p, err := NewParticipant(7, "ann", "conn-1", RoleCreator)
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, key := range []string{"userId", "username", "connectionId", "isMuted", "isCameraOn", "isScreenSharing", "role", "audioState", "videoState"} {
		assert.Contains(t, m, key)
	}
}
