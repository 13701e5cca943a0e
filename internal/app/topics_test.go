package app

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncdocs/presence/internal/domain"
)

// fakeDirectory answers membership questions from fixed maps.
type fakeDirectory struct {
	mu         sync.Mutex
	topics     map[domain.UserID][]string
	documents  map[int64]map[domain.UserID]bool
	topicsErr  error
	memberErr  error
	topicCalls int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		topics:    make(map[domain.UserID][]string),
		documents: make(map[int64]map[domain.UserID]bool),
	}
}

func (d *fakeDirectory) IsParticipant(_ context.Context, documentID int64, uid domain.UserID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.memberErr != nil {
		return false, d.memberErr
	}
	return d.documents[documentID][uid], nil
}

func (d *fakeDirectory) TopicsFor(_ context.Context, uid domain.UserID) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.topicCalls++
	if d.topicsErr != nil {
		return nil, d.topicsErr
	}
	return d.topics[uid], nil
}

func (d *fakeDirectory) allow(documentID int64, uid domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.documents[documentID] == nil {
		d.documents[documentID] = make(map[domain.UserID]bool)
	}
	d.documents[documentID][uid] = true
}

func TestTopicsSubscribeIdempotent(t *testing.T) {
	topics := NewTopics(newFakeDirectory())
	topics.Subscribe("document:1", "conn-1")
	topics.Subscribe("document:1", "conn-1")

	assert.Equal(t, []string{"conn-1"}, topics.MembersOf("document:1"))
}

func TestTopicsUnsubscribeIdempotent(t *testing.T) {
	topics := NewTopics(newFakeDirectory())
	topics.Subscribe("document:1", "conn-1")
	topics.Unsubscribe("document:1", "conn-1")
	topics.Unsubscribe("document:1", "conn-1")

	assert.Empty(t, topics.MembersOf("document:1"))
	assert.Empty(t, topics.TopicsOf("conn-1"))
}

func TestTopicsDropConnection(t *testing.T) {
	topics := NewTopics(newFakeDirectory())
	topics.Subscribe("document:1", "conn-1")
	topics.Subscribe("voiceroom:1", "conn-1")
	topics.Subscribe("document:1", "conn-2")

	dropped := topics.DropConnection("conn-1")
	assert.ElementsMatch(t, []string{"document:1", "voiceroom:1"}, dropped)
	assert.Equal(t, []string{"conn-2"}, topics.MembersOf("document:1"))
	assert.Empty(t, topics.MembersOf("voiceroom:1"))
}

func TestRehydrateReproducesAuthoritativeTopics(t *testing.T) {
	dir := newFakeDirectory()
	dir.topics[7] = []string{"document:1", "document:2", "voiceroom:2"}
	topics := NewTopics(dir)

	// Stale state from a previous connection must not matter.
	topics.Subscribe("old-conn", "conn-old")

	require.NoError(t, topics.Rehydrate(context.Background(), "conn-new", 7))
	assert.ElementsMatch(t, []string{"document:1", "document:2", "voiceroom:2"}, topics.TopicsOf("conn-new"))
}

func TestRehydratePropagatesDirectoryError(t *testing.T) {
	dir := newFakeDirectory()
	dir.topicsErr = assert.AnError
	topics := NewTopics(dir)

	err := topics.Rehydrate(context.Background(), "conn-1", 7)
	assert.Error(t, err)
	assert.Empty(t, topics.TopicsOf("conn-1"))
}

func TestTopicsConcurrentDistinctTopics(t *testing.T) {
	topics := NewTopics(newFakeDirectory())
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			topic := domain.DocumentTopic(int64(n))
			for j := 0; j < 200; j++ {
				topics.Subscribe(topic, "conn-1")
				topics.MembersOf(topic)
				topics.Unsubscribe(topic, "conn-1")
			}
		}(i)
	}
	wg.Wait()
	assert.Empty(t, topics.TopicsOf("conn-1"))
}
