package core

import (
	"context"

	"github.com/syncdocs/presence/internal/domain"
)

// Conn is the send side of one live client connection. TrySend must not
// block: a full buffer is an error, not a stall.
type Conn interface {
	TrySend(payload []byte) error
	Close()
}

// RoomStore backs Room persistence in the shared external store. All
// instances of the service see the same rooms through it.
//
// Mutate is the single serialization point for a room: it loads the room
// (or a fresh empty one when absent), applies fn to a private copy, then
// saves — or deletes when fn leaves the room empty, so an empty room is
// never persisted. Two concurrent Mutate calls for the same document must
// not interleave their read-modify-write cycles. An error from fn aborts
// the mutation with nothing written.
type RoomStore interface {
	Get(ctx context.Context, roomID string) (*domain.Room, error)
	Save(ctx context.Context, room *domain.Room) error
	Delete(ctx context.Context, roomID string) error
	ListActive(ctx context.Context) ([]*domain.Room, error)
	Mutate(ctx context.Context, documentID int64, fn func(*domain.Room) error) (*domain.Room, error)
}

// Directory is the external document/participant collaborator. It is the
// authority on who belongs where; in-process membership is rebuilt from it
// on every connect.
type Directory interface {
	IsParticipant(ctx context.Context, documentID int64, uid domain.UserID) (bool, error)
	TopicsFor(ctx context.Context, uid domain.UserID) ([]string, error)
}
