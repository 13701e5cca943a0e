package domain

import "fmt"

// Room is the ephemeral aggregate of voice participants for one document.
// It is a plain value: stores hand out deep copies and callers mutate a
// copy inside the store's serialized mutation section.
type Room struct {
	DocumentID   int64                   `json:"documentId"`
	Participants map[UserID]*Participant `json:"participants"`
}

// RoomIDForDocument derives the stable store key for a document's room.
func RoomIDForDocument(documentID int64) string {
	return fmt.Sprintf("doc-%d", documentID)
}

func NewRoom(documentID int64) *Room {
	return &Room{
		DocumentID:   documentID,
		Participants: make(map[UserID]*Participant),
	}
}

func (r *Room) ID() string { return RoomIDForDocument(r.DocumentID) }

// Join inserts the participant, replacing any existing record for the same
// user. A reconnecting user lands here with a fresh connection id.
func (r *Room) Join(p *Participant) {
	if r.Participants == nil {
		r.Participants = make(map[UserID]*Participant)
	}
	r.Participants[p.UserID] = p
}

// Leave removes the user's participant. Reports whether it was present.
func (r *Room) Leave(uid UserID) bool {
	if _, ok := r.Participants[uid]; !ok {
		return false
	}
	delete(r.Participants, uid)
	return true
}

func (r *Room) Participant(uid UserID) (*Participant, bool) {
	p, ok := r.Participants[uid]
	return p, ok
}

func (r *Room) Empty() bool { return len(r.Participants) == 0 }

// Clone returns a deep copy safe to hand across the store boundary.
func (r *Room) Clone() *Room {
	out := NewRoom(r.DocumentID)
	for uid, p := range r.Participants {
		cp := *p
		out.Participants[uid] = &cp
	}
	return out
}

// Snapshot returns the participants as a slice for event payloads.
func (r *Room) Snapshot() []Participant {
	out := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, *p)
	}
	return out
}
