// Package roomstore provides the shared room store backings: redis for
// multi-instance deployments and an in-memory store for single-instance
// runs and tests.
package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/syncdocs/presence/internal/core"
	"github.com/syncdocs/presence/internal/domain"
)

const (
	roomKeyPrefix = "presence:room:"
	activeSetKey  = "presence:rooms:active"
)

// RedisStore keeps each room as one JSON value plus a set of active room
// ids for the disconnect sweep. Mutations run under WATCH so two instances
// touching the same room cannot lose each other's writes.
type RedisStore struct {
	client *redis.Client

	// ttl, when positive, is re-armed on every save so rooms abandoned by
	// a crashed instance self-expire. Zero disables expiry.
	ttl time.Duration

	// conflictRetries bounds WATCH retry attempts before giving up with
	// ErrConflict.
	conflictRetries int
}

func NewRedisStore(url string, ttl time.Duration, conflictRetries int) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("roomstore: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("roomstore: ping: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl, conflictRetries: conflictRetries}, nil
}

var _ core.RoomStore = (*RedisStore)(nil)

func (s *RedisStore) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	raw, err := s.client.Get(ctx, roomKeyPrefix+roomID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", core.ErrStoreUnavailable, roomID, err)
	}
	return decodeRoom([]byte(raw))
}

func (s *RedisStore) Save(ctx context.Context, room *domain.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("roomstore: encode room: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKeyPrefix+room.ID(), raw, s.ttl)
		pipe.SAdd(ctx, activeSetKey, room.ID())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save %s: %v", core.ErrStoreUnavailable, room.ID(), err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, roomID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKeyPrefix+roomID)
		pipe.SRem(ctx, activeSetKey, roomID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", core.ErrStoreUnavailable, roomID, err)
	}
	return nil
}

// ListActive loads every room in the active set. Ids whose key has
// expired are pruned from the set on the way through.
func (s *RedisStore) ListActive(ctx context.Context) ([]*domain.Room, error) {
	ids, err := s.client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list active: %v", core.ErrStoreUnavailable, err)
	}
	rooms := make([]*domain.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.Get(ctx, id)
		if errors.Is(err, core.ErrRoomNotFound) {
			// Key expired under the index entry.
			if remErr := s.client.SRem(ctx, activeSetKey, id).Err(); remErr != nil {
				log.Warn().Err(remErr).Str("module", "roomstore.redis").Str("room", id).Msg("prune stale active id")
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// Mutate runs the get/mutate/save cycle under WATCH on the room key. A
// concurrent write between the read and the commit fails the transaction
// and the whole cycle is retried with a fresh read, so no update is lost.
func (s *RedisStore) Mutate(ctx context.Context, documentID int64, fn func(*domain.Room) error) (*domain.Room, error) {
	roomID := domain.RoomIDForDocument(documentID)
	key := roomKeyPrefix + roomID

	for attempt := 0; attempt <= s.conflictRetries; attempt++ {
		var (
			result *domain.Room
			fnErr  error
		)
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			room := domain.NewRoom(documentID)
			raw, err := tx.Get(ctx, key).Result()
			switch {
			case errors.Is(err, redis.Nil):
				// Room created implicitly on first join.
			case err != nil:
				return err
			default:
				if room, err = decodeRoom([]byte(raw)); err != nil {
					return err
				}
			}

			if fnErr = fn(room); fnErr != nil {
				return fnErr
			}
			result = room

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if room.Empty() {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, activeSetKey, roomID)
					return nil
				}
				encoded, err := json.Marshal(room)
				if err != nil {
					return err
				}
				pipe.Set(ctx, key, encoded, s.ttl)
				pipe.SAdd(ctx, activeSetKey, roomID)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return result, nil
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, redis.TxFailedErr):
			log.Debug().Str("module", "roomstore.redis").Str("room", roomID).Int("attempt", attempt+1).Msg("mutation conflict, retrying")
			continue
		default:
			return nil, fmt.Errorf("%w: mutate %s: %v", core.ErrStoreUnavailable, roomID, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", core.ErrConflict, roomID)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRoom(raw []byte) (*domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("roomstore: decode room: %w", err)
	}
	return &room, nil
}
