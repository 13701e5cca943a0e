package app

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/syncdocs/presence/internal/core"
	"github.com/syncdocs/presence/internal/domain"
)

const topicShards = 16

type topicShard struct {
	mu     sync.RWMutex
	topics map[string]map[string]struct{}
}

type connShard struct {
	mu     sync.RWMutex
	topics map[string]map[string]struct{}
}

// Topics tracks which connections subscribe to which broadcast topics.
// Both directions are sharded by key hash so traffic on one document never
// contends with another; only same-topic operations share a lock.
type Topics struct {
	dir    core.Directory
	shards [topicShards]*topicShard
	conns  [topicShards]*connShard
}

func NewTopics(dir core.Directory) *Topics {
	t := &Topics{dir: dir}
	for i := range t.shards {
		t.shards[i] = &topicShard{topics: make(map[string]map[string]struct{})}
		t.conns[i] = &connShard{topics: make(map[string]map[string]struct{})}
	}
	return t
}

// Subscribe is idempotent.
func (t *Topics) Subscribe(topic, connID string) {
	s := t.shardFor(topic)
	s.mu.Lock()
	set, ok := s.topics[topic]
	if !ok {
		set = make(map[string]struct{})
		s.topics[topic] = set
	}
	set[connID] = struct{}{}
	s.mu.Unlock()

	c := t.connShardFor(connID)
	c.mu.Lock()
	set, ok = c.topics[connID]
	if !ok {
		set = make(map[string]struct{})
		c.topics[connID] = set
	}
	set[topic] = struct{}{}
	c.mu.Unlock()
}

// Unsubscribe is idempotent; empty member sets are removed eagerly.
func (t *Topics) Unsubscribe(topic, connID string) {
	s := t.shardFor(topic)
	s.mu.Lock()
	if set, ok := s.topics[topic]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(s.topics, topic)
		}
	}
	s.mu.Unlock()

	c := t.connShardFor(connID)
	c.mu.Lock()
	if set, ok := c.topics[connID]; ok {
		delete(set, topic)
		if len(set) == 0 {
			delete(c.topics, connID)
		}
	}
	c.mu.Unlock()
}

func (t *Topics) MembersOf(topic string) []string {
	s := t.shardFor(topic)
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.topics[topic]
	out := make([]string, 0, len(set))
	for connID := range set {
		out = append(out, connID)
	}
	return out
}

// TopicsOf returns the topics the connection currently subscribes to.
func (t *Topics) TopicsOf(connID string) []string {
	c := t.connShardFor(connID)
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.topics[connID]
	out := make([]string, 0, len(set))
	for topic := range set {
		out = append(out, topic)
	}
	return out
}

// DropConnection eagerly removes the connection from every topic it had
// joined. Returns the topics it was removed from.
func (t *Topics) DropConnection(connID string) []string {
	topics := t.TopicsOf(connID)
	for _, topic := range topics {
		t.Unsubscribe(topic, connID)
	}
	return topics
}

// Rehydrate subscribes a fresh connection to the authoritative topic set
// for its user. In-process membership is never trusted across reconnects
// or failover to another instance; the directory is the source of truth.
func (t *Topics) Rehydrate(ctx context.Context, connID string, uid domain.UserID) error {
	topics, err := t.dir.TopicsFor(ctx, uid)
	if err != nil {
		return err
	}
	for _, topic := range topics {
		t.Subscribe(topic, connID)
	}
	log.Debug().Str("module", "app.topics").Str("conn", connID).Int64("user", int64(uid)).Int("topics", len(topics)).Msg("rehydrated")
	return nil
}

func (t *Topics) shardFor(topic string) *topicShard {
	return t.shards[shardIndex(topic)]
}

func (t *Topics) connShardFor(connID string) *connShard {
	return t.conns[shardIndex(connID)]
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % topicShards)
}
