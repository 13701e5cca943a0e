package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/syncdocs/presence/internal/core"
	"github.com/syncdocs/presence/internal/domain"
)

const writeWait = 5 * time.Second

// session carries one live connection's identity through the pumps.
type session struct {
	ctl      *Controller
	connID   string
	uid      domain.UserID
	username string
	role     domain.Role
	conn     *wsConn
	limiter  *rateLimiter
}

func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.ctl.Opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-s.conn.send:
			if !ok {
				return
			}
			if err := s.conn.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "ws").Str("conn", s.connID).Msg("write")
				return
			}
		case <-ticker.C:
			if err := s.conn.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) readPump(ctx context.Context) {
	defer s.conn.Close()
	s.conn.conn.SetReadLimit(s.ctl.Opts.ReadLimit)

	// A peer that stops answering pings misses the deadline and the read
	// fails, instead of lingering until TCP gives up.
	pongWait := 2 * s.ctl.Opts.PingPeriod
	_ = s.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.conn.SetPongHandler(func(string) error {
		return s.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := s.conn.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "ws").Str("conn", s.connID).Msg("read closed")
				return
			}
			s.dispatch(ctx, data)
		}
	}
}

func (s *session) dispatch(ctx context.Context, data []byte) {
	if !s.limiter.Allow() {
		s.sendError("rate_limited")
		return
	}

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError("bad_payload")
		return
	}

	switch env.Type {
	case "join":
		s.handleJoin(ctx, data)
	case "leave":
		s.handleLeave(ctx, data)
	case "mute":
		s.handleFlag(ctx, data, s.ctl.Coord.ToggleMute)
	case "camera":
		s.handleFlag(ctx, data, s.ctl.Coord.ToggleCamera)
	case "screen_share":
		s.handleFlag(ctx, data, s.ctl.Coord.ToggleScreenShare)
	case "media":
		s.handleMedia(ctx, data)
	case "offer", "answer", "candidate":
		s.handleSignal(env.Type, data)
	case "ping":
		s.sendJSON(map[string]string{"type": "pong"})
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown envelope")
		s.sendError("unknown_type")
	}
}

func (s *session) handleJoin(ctx context.Context, data []byte) {
	var p struct {
		DocumentID int64 `json:"document_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == 0 {
		s.sendError("bad_payload")
		return
	}
	err := s.ctl.Coord.JoinRoom(ctx, p.DocumentID, s.uid, s.connID, s.username, s.role)
	if err != nil {
		s.sendCoordError(err)
	}
}

func (s *session) handleLeave(ctx context.Context, data []byte) {
	var p struct {
		DocumentID int64 `json:"document_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == 0 {
		s.sendError("bad_payload")
		return
	}
	if err := s.ctl.Coord.LeaveRoom(ctx, p.DocumentID, s.uid); err != nil {
		s.sendCoordError(err)
	}
}

func (s *session) handleFlag(ctx context.Context, data []byte, toggle func(context.Context, int64, domain.UserID, bool) error) {
	var p struct {
		DocumentID int64 `json:"document_id"`
		Value      bool  `json:"value"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == 0 {
		s.sendError("bad_payload")
		return
	}
	if err := toggle(ctx, p.DocumentID, s.uid, p.Value); err != nil {
		s.sendCoordError(err)
	}
}

func (s *session) handleMedia(ctx context.Context, data []byte) {
	var p struct {
		DocumentID int64             `json:"document_id"`
		Audio      domain.MediaState `json:"audioState"`
		Video      domain.MediaState `json:"videoState"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.DocumentID == 0 || p.Audio == "" || p.Video == "" {
		s.sendError("bad_payload")
		return
	}
	if err := s.ctl.Coord.SetMediaState(ctx, p.DocumentID, s.uid, p.Audio, p.Video); err != nil {
		s.sendCoordError(err)
	}
}

func (s *session) handleSignal(kindStr string, data []byte) {
	kind, err := domain.ParseSignalKind(kindStr)
	if err != nil {
		s.sendError("bad_payload")
		return
	}
	var p struct {
		To      string `json:"to"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		s.sendError("bad_payload")
		return
	}
	s.ctl.Relay.Forward(kind, s.connID, p.To, p.Payload)
}

func (s *session) sendCoordError(err error) {
	switch {
	case errors.Is(err, core.ErrPermissionDenied):
		s.sendError("permission_denied")
	case errors.Is(err, core.ErrStoreUnavailable), errors.Is(err, core.ErrConflict):
		s.sendError("try_again")
	default:
		log.Error().Err(err).Str("module", "ws").Str("conn", s.connID).Msg("coordinator error")
		s.sendError("internal")
	}
}

func (s *session) sendError(code string) {
	s.sendJSON(map[string]string{"type": "error", "error": code})
}

func (s *session) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("marshal")
		return
	}
	_ = s.conn.TrySend(b)
}
