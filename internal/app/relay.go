package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/syncdocs/presence/internal/domain"
)

// Relay forwards WebRTC negotiation payloads between two connections. It
// holds no state of its own: the registry answers whether the target is
// still alive, the payload passes through untouched.
type Relay struct {
	Registry *Registry
}

func NewRelay(reg *Registry) *Relay {
	return &Relay{Registry: reg}
}

// Forward delivers the payload to the target connection, tagged with the
// sender's connection id. A missing target is dropped silently: WebRTC
// negotiation races with connection teardown by nature, and the media
// protocol deals with loss on its own.
func (r *Relay) Forward(kind domain.SignalKind, fromConnID, toConnID, payload string) {
	conn, ok := r.Registry.Conn(toConnID)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("kind", string(kind)).Str("to", toConnID).Msg("signal target gone, dropped")
		return
	}
	frame, err := json.Marshal(domain.NewSignalEvent(kind, fromConnID, payload))
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("marshal signal")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "app.relay").Str("to", toConnID).Msg("signal dropped on backpressure")
	}
}
