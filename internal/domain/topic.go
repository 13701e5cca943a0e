package domain

import "fmt"

// Topics are logical broadcast channels. A connection subscribes to the
// document topic for edit fan-out and to the voice-room topic while it has
// a participant in that room.

func DocumentTopic(documentID int64) string {
	return fmt.Sprintf("document:%d", documentID)
}

func VoiceRoomTopic(documentID int64) string {
	return fmt.Sprintf("voiceroom:%d", documentID)
}
