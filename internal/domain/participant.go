// Package domain contains the presence entities and their wire shapes.
// No transport or storage logic here.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

const MaxUsernameLen = 64

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
)

// UserID is the identity assigned by the upstream identity provider.
type UserID int64

// MediaState is the negotiated state of one media track.
// Unknown values are rejected on deserialize instead of silently defaulting.
type MediaState string

const (
	MediaActive   MediaState = "active"
	MediaInactive MediaState = "inactive"
	MediaPaused   MediaState = "paused"
)

func ParseMediaState(s string) (MediaState, error) {
	switch MediaState(s) {
	case MediaActive, MediaInactive, MediaPaused:
		return MediaState(s), nil
	}
	return "", fmt.Errorf("unknown media state %q", s)
}

func (m *MediaState) UnmarshalJSON(b []byte) error {
	s, err := unquote(b)
	if err != nil {
		return err
	}
	parsed, err := ParseMediaState(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Role is the document role claimed for the user by the identity provider.
type Role string

const (
	RoleCreator Role = "creator"
	RoleEditor  Role = "editor"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCreator, RoleEditor:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r *Role) UnmarshalJSON(b []byte) error {
	s, err := unquote(b)
	if err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Participant is a user's presence record within a room. Identity is the
// user id, not the connection id: a reconnecting user keeps the same
// participant and only the connection id is swapped.
type Participant struct {
	UserID        UserID     `json:"userId"`
	Username      string     `json:"username"`
	ConnectionID  string     `json:"connectionId"`
	Muted         bool       `json:"isMuted"`
	CameraOn      bool       `json:"isCameraOn"`
	ScreenSharing bool       `json:"isScreenSharing"`
	Role          Role       `json:"role"`
	AudioState    MediaState `json:"audioState"`
	VideoState    MediaState `json:"videoState"`
}

// NewParticipant builds the default presence record for a fresh join.
func NewParticipant(uid UserID, username, connID string, role Role) (*Participant, error) {
	if username == "" {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &Participant{
		UserID:       uid,
		Username:     username,
		ConnectionID: connID,
		Role:         role,
		AudioState:   MediaActive,
		VideoState:   MediaInactive,
	}, nil
}

func unquote(b []byte) (string, error) {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", err
	}
	return s, nil
}
