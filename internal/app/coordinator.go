package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/syncdocs/presence/internal/core"
	"github.com/syncdocs/presence/internal/domain"
)

// Coordinator orchestrates the join/leave/toggle state machine for voice
// rooms: it validates the caller against the directory, mutates the shared
// store under its serialization contract, keeps topic membership in step
// and fans events out to the room topic.
type Coordinator struct {
	Registry *Registry
	Topics   *Topics
	Store    core.RoomStore
	Dir      core.Directory

	// StoreRetries bounds re-attempts of a mutation that failed with a
	// transient store error. Zero means a single attempt.
	StoreRetries int
}

func NewCoordinator(reg *Registry, topics *Topics, store core.RoomStore, dir core.Directory, retries int) *Coordinator {
	return &Coordinator{Registry: reg, Topics: topics, Store: store, Dir: dir, StoreRetries: retries}
}

// JoinRoom moves (room, user) from NotJoined to Joined. The joiner gets a
// full room snapshot; everyone on the topic, joiner included, gets the
// participant_joined event.
func (c *Coordinator) JoinRoom(ctx context.Context, documentID int64, uid domain.UserID, connID, username string, role domain.Role) error {
	if err := c.checkParticipant(ctx, documentID, uid); err != nil {
		return err
	}

	var joined domain.Participant
	room, err := c.mutate(ctx, documentID, func(room *domain.Room) error {
		existing, ok := room.Participant(uid)
		if ok {
			// Reconnect: same participant, new connection.
			existing.ConnectionID = connID
			existing.Username = username
			joined = *existing
			return nil
		}
		p, err := domain.NewParticipant(uid, username, connID, role)
		if err != nil {
			return err
		}
		room.Join(p)
		joined = *p
		return nil
	})
	if err != nil {
		return err
	}

	topic := domain.VoiceRoomTopic(documentID)
	c.Topics.Subscribe(topic, connID)

	if conn, ok := c.Registry.Conn(connID); ok {
		c.send(conn, domain.NewRoomStateEvent(room))
	}
	c.broadcast(topic, domain.NewParticipantJoinedEvent(documentID, joined))
	log.Info().Str("module", "app.coordinator").Int64("doc", documentID).Int64("user", int64(uid)).Msg("joined room")
	return nil
}

// LeaveRoom moves (room, user) back to NotJoined. Leaving a room the user
// is not in is a silent no-op: presence is advisory and races with
// disconnects are expected. The emptied room is deleted by the store.
func (c *Coordinator) LeaveRoom(ctx context.Context, documentID int64, uid domain.UserID) error {
	_, err := c.mutate(ctx, documentID, func(room *domain.Room) error {
		if !room.Leave(uid) {
			return core.ErrParticipantNotFound
		}
		return nil
	})
	if benign(err) {
		return nil
	}
	if err != nil {
		return err
	}

	topic := domain.VoiceRoomTopic(documentID)
	for _, connID := range c.Registry.ConnectionsOfUser(uid) {
		c.Topics.Unsubscribe(topic, connID)
	}
	c.broadcast(topic, domain.NewParticipantLeftEvent(documentID, uid))
	log.Info().Str("module", "app.coordinator").Int64("doc", documentID).Int64("user", int64(uid)).Msg("left room")
	return nil
}

func (c *Coordinator) ToggleMute(ctx context.Context, documentID int64, uid domain.UserID, value bool) error {
	return c.toggle(ctx, documentID, uid, domain.EventParticipantMuted, value, func(p *domain.Participant) {
		p.Muted = value
	})
}

func (c *Coordinator) ToggleCamera(ctx context.Context, documentID int64, uid domain.UserID, value bool) error {
	return c.toggle(ctx, documentID, uid, domain.EventParticipantCamera, value, func(p *domain.Participant) {
		p.CameraOn = value
	})
}

func (c *Coordinator) ToggleScreenShare(ctx context.Context, documentID int64, uid domain.UserID, value bool) error {
	return c.toggle(ctx, documentID, uid, domain.EventParticipantScreenShare, value, func(p *domain.Participant) {
		p.ScreenSharing = value
	})
}

// SetMediaState updates the participant's track states, broadcast as one
// participant_media event.
func (c *Coordinator) SetMediaState(ctx context.Context, documentID int64, uid domain.UserID, audio, video domain.MediaState) error {
	if err := c.checkParticipant(ctx, documentID, uid); err != nil {
		return err
	}
	_, err := c.mutate(ctx, documentID, func(room *domain.Room) error {
		p, ok := room.Participant(uid)
		if !ok {
			return core.ErrParticipantNotFound
		}
		p.AudioState = audio
		p.VideoState = video
		return nil
	})
	if benign(err) {
		return nil
	}
	if err != nil {
		return err
	}
	c.broadcast(domain.VoiceRoomTopic(documentID), domain.NewMediaEvent(documentID, uid, audio, video))
	return nil
}

// OnDisconnect runs the leave transition for every room still holding a
// participant bound to the lost connection. The scan over active rooms is
// O(active rooms); acceptable because it runs only on disconnect, never on
// the steady-state path.
func (c *Coordinator) OnDisconnect(ctx context.Context, connID string) {
	rooms, err := c.Store.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("conn", connID).Msg("disconnect sweep: list active rooms")
		return
	}
	for _, room := range rooms {
		for uid, p := range room.Participants {
			if p.ConnectionID != connID {
				continue
			}
			if err := c.LeaveRoom(ctx, room.DocumentID, uid); err != nil {
				log.Error().Err(err).Str("module", "app.coordinator").Int64("doc", room.DocumentID).Int64("user", int64(uid)).Msg("disconnect sweep: leave")
			}
		}
	}
}

func (c *Coordinator) toggle(ctx context.Context, documentID int64, uid domain.UserID, eventType string, value bool, apply func(*domain.Participant)) error {
	if err := c.checkParticipant(ctx, documentID, uid); err != nil {
		return err
	}
	_, err := c.mutate(ctx, documentID, func(room *domain.Room) error {
		p, ok := room.Participant(uid)
		if !ok {
			return core.ErrParticipantNotFound
		}
		apply(p)
		return nil
	})
	if benign(err) {
		// Toggle lost a race against a leave; presence is best effort.
		return nil
	}
	if err != nil {
		return err
	}
	c.broadcast(domain.VoiceRoomTopic(documentID), domain.NewFlagEvent(eventType, documentID, uid, value))
	return nil
}

func (c *Coordinator) checkParticipant(ctx context.Context, documentID int64, uid domain.UserID) error {
	ok, err := c.Dir.IsParticipant(ctx, documentID, uid)
	if err != nil {
		return fmt.Errorf("directory check: %w", err)
	}
	if !ok {
		return core.ErrPermissionDenied
	}
	return nil
}

// mutate applies fn through the store, retrying transient failures a
// bounded number of times. A mutation is never partially applied: the
// store either persists the whole post-fn room or nothing.
func (c *Coordinator) mutate(ctx context.Context, documentID int64, fn func(*domain.Room) error) (*domain.Room, error) {
	var lastErr error
	for attempt := 0; attempt <= c.StoreRetries; attempt++ {
		room, err := c.Store.Mutate(ctx, documentID, fn)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, core.ErrStoreUnavailable) {
			return nil, err
		}
		lastErr = err
		log.Warn().Err(err).Str("module", "app.coordinator").Int64("doc", documentID).Int("attempt", attempt+1).Msg("store mutation retry")
	}
	return nil, lastErr
}

// broadcast fans the event out to every topic member. Stale members found
// without a live connection are unsubscribed lazily here.
func (c *Coordinator) broadcast(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("topic", topic).Msg("marshal event")
		return
	}
	sent, dropped := 0, 0
	for _, connID := range c.Topics.MembersOf(topic) {
		conn, ok := c.Registry.Conn(connID)
		if !ok {
			c.Topics.Unsubscribe(topic, connID)
			continue
		}
		if err := conn.TrySend(payload); err != nil {
			dropped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.coordinator").Str("topic", topic).Int("sent", sent).Int("dropped", dropped).Msg("broadcast")
}

func (c *Coordinator) send(conn core.Conn, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("marshal event")
		return
	}
	_ = conn.TrySend(payload)
}

func benign(err error) bool {
	return errors.Is(err, core.ErrRoomNotFound) || errors.Is(err, core.ErrParticipantNotFound)
}
