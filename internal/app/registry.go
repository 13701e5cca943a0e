// Package app implements the presence core: connection registry, topic
// membership, session coordination and signaling relay.
package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/syncdocs/presence/internal/core"
	"github.com/syncdocs/presence/internal/domain"
)

type connEntry struct {
	UserID   domain.UserID
	Conn     core.Conn
	OpenedAt time.Time
}

// Registry is the process-local bidirectional index between live
// connections and their owning users. One mutex covers both directions so
// the two maps can never tear apart under concurrent connect/disconnect.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connEntry
	users map[domain.UserID]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*connEntry),
		users: make(map[domain.UserID]map[string]struct{}),
	}
}

// Track registers a live connection. Re-tracking the same connection id
// overwrites its owner, which absorbs reconnect races without leaking the
// old user mapping. A user may hold several connections at once.
func (r *Registry) Track(connID string, uid domain.UserID, conn core.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[connID]; ok && old.UserID != uid {
		r.dropFromUserLocked(old.UserID, connID)
	}
	r.conns[connID] = &connEntry{UserID: uid, Conn: conn, OpenedAt: time.Now()}
	set, ok := r.users[uid]
	if !ok {
		set = make(map[string]struct{})
		r.users[uid] = set
	}
	set[connID] = struct{}{}
	log.Info().Str("module", "app.registry").Str("conn", connID).Int64("user", int64(uid)).Msg("tracked connection")
}

// Untrack removes the connection. The second result reports whether this
// was the user's last connection, i.e. the user is now fully disconnected.
func (r *Registry) Untrack(connID string) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[connID]
	if !ok {
		return 0, false
	}
	delete(r.conns, connID)
	r.dropFromUserLocked(entry.UserID, connID)
	_, stillConnected := r.users[entry.UserID]
	log.Info().Str("module", "app.registry").Str("conn", connID).Int64("user", int64(entry.UserID)).Bool("last", !stillConnected).Msg("untracked connection")
	return entry.UserID, !stillConnected
}

func (r *Registry) OwnerOf(connID string) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[connID]
	if !ok {
		return 0, false
	}
	return entry.UserID, true
}

// Conn resolves a connection id to its live send handle.
func (r *Registry) Conn(connID string) (core.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return entry.Conn, true
}

// ConnectionsFor computes fan-out targets for a set of logical users.
// Unknown users contribute nothing.
func (r *Registry) ConnectionsFor(uids []domain.UserID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(uids))
	for _, uid := range uids {
		for connID := range r.users[uid] {
			out = append(out, connID)
		}
	}
	return out
}

// ConnectionsOfUser returns every live connection id the user owns.
func (r *Registry) ConnectionsOfUser(uid domain.UserID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[uid]
	out := make([]string, 0, len(set))
	for connID := range set {
		out = append(out, connID)
	}
	return out
}

// CloseAll terminates every tracked connection and clears the index.
// Used on shutdown; the handles are closed outside the lock.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]core.Conn, 0, len(r.conns))
	for _, entry := range r.conns {
		entries = append(entries, entry.Conn)
	}
	r.conns = make(map[string]*connEntry)
	r.users = make(map[domain.UserID]map[string]struct{})
	r.mu.Unlock()

	for _, conn := range entries {
		conn.Close()
	}
	log.Info().Str("module", "app.registry").Int("count", len(entries)).Msg("closed all connections")
}

func (r *Registry) dropFromUserLocked(uid domain.UserID, connID string) {
	set, ok := r.users[uid]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.users, uid)
	}
}
