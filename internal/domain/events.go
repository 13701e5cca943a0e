package domain

// Event type tags carried in the "type" field of every outbound frame.
const (
	EventRoomState              = "room_state"
	EventParticipantJoined      = "participant_joined"
	EventParticipantLeft        = "participant_left"
	EventParticipantMuted       = "participant_muted"
	EventParticipantCamera      = "participant_camera"
	EventParticipantScreenShare = "participant_screen_share"
	EventParticipantMedia       = "participant_media"
)

// RoomStateEvent is sent to the joiner only, so a late arrival sees the
// members already present.
type RoomStateEvent struct {
	Type         string        `json:"type"`
	DocumentID   int64         `json:"documentId"`
	Participants []Participant `json:"participants"`
}

func NewRoomStateEvent(room *Room) RoomStateEvent {
	return RoomStateEvent{
		Type:         EventRoomState,
		DocumentID:   room.DocumentID,
		Participants: room.Snapshot(),
	}
}

type ParticipantJoinedEvent struct {
	Type        string      `json:"type"`
	DocumentID  int64       `json:"documentId"`
	Participant Participant `json:"participant"`
}

func NewParticipantJoinedEvent(documentID int64, p Participant) ParticipantJoinedEvent {
	return ParticipantJoinedEvent{Type: EventParticipantJoined, DocumentID: documentID, Participant: p}
}

type ParticipantLeftEvent struct {
	Type       string `json:"type"`
	DocumentID int64  `json:"documentId"`
	UserID     UserID `json:"userId"`
}

func NewParticipantLeftEvent(documentID int64, uid UserID) ParticipantLeftEvent {
	return ParticipantLeftEvent{Type: EventParticipantLeft, DocumentID: documentID, UserID: uid}
}

// FlagEvent covers the three boolean toggles; Type selects which flag.
type FlagEvent struct {
	Type       string `json:"type"`
	DocumentID int64  `json:"documentId"`
	UserID     UserID `json:"userId"`
	Value      bool   `json:"value"`
}

func NewFlagEvent(eventType string, documentID int64, uid UserID, value bool) FlagEvent {
	return FlagEvent{Type: eventType, DocumentID: documentID, UserID: uid, Value: value}
}

type MediaEvent struct {
	Type       string     `json:"type"`
	DocumentID int64      `json:"documentId"`
	UserID     UserID     `json:"userId"`
	Audio      MediaState `json:"audioState"`
	Video      MediaState `json:"videoState"`
}

func NewMediaEvent(documentID int64, uid UserID, audio, video MediaState) MediaEvent {
	return MediaEvent{Type: EventParticipantMedia, DocumentID: documentID, UserID: uid, Audio: audio, Video: video}
}

// SignalEvent is the point-to-point frame the relay delivers. Type is the
// signal kind; Payload is forwarded verbatim.
type SignalEvent struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Payload string `json:"payload"`
}

func NewSignalEvent(kind SignalKind, from, payload string) SignalEvent {
	return SignalEvent{Type: string(kind), From: from, Payload: payload}
}
