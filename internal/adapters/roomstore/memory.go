package roomstore

import (
	"context"
	"sync"

	"github.com/syncdocs/presence/internal/core"
	"github.com/syncdocs/presence/internal/domain"
)

// MemoryStore is the in-process backing. Every room mutation funnels
// through a per-room mutex, so two concurrent mutations of the same room
// cannot interleave; distinct rooms proceed fully in parallel. All reads
// and writes copy, callers never alias stored state.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room

	locks sync.Map // roomID -> *sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*domain.Room)}
}

var _ core.RoomStore = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID()] = room.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	return nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Mutate(ctx context.Context, documentID int64, fn func(*domain.Room) error) (*domain.Room, error) {
	roomID := domain.RoomIDForDocument(documentID)
	lock := s.lockFor(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.Get(ctx, roomID)
	if err != nil {
		room = domain.NewRoom(documentID)
	}
	if err := fn(room); err != nil {
		return nil, err
	}
	if room.Empty() {
		if err := s.Delete(ctx, roomID); err != nil {
			return nil, err
		}
		return room, nil
	}
	if err := s.Save(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *MemoryStore) lockFor(roomID string) *sync.Mutex {
	actual, _ := s.locks.LoadOrStore(roomID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
