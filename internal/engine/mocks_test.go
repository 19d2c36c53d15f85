package engine

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"gundog/internal/llm"
	"gundog/internal/store"
)

func TestMain(m *testing.M) {
	// go.opencensus.io starts a background worker in its package init; it
	// is not stoppable from tests and is not a leak in this package.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// scriptedClient replays canned responses in order. An empty script makes
// every call fail with ErrBackendUnavailable.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	generated []string
}

func (c *scriptedClient) next(prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if len(c.responses) == 0 {
		return "", llm.ErrBackendUnavailable
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func (c *scriptedClient) StartChat(_ context.Context, _ string, _ []llm.Turn) (llm.ChatSession, error) {
	return &scriptedChat{client: c}, nil
}

func (c *scriptedClient) Generate(_ context.Context, _ string, prompt string) (string, error) {
	c.mu.Lock()
	c.generated = append(c.generated, prompt)
	c.mu.Unlock()
	return c.next(prompt)
}

type scriptedChat struct {
	client *scriptedClient
}

func (s *scriptedChat) Send(_ context.Context, message string) (string, error) {
	return s.client.next(message)
}

// memStore is an in-memory SnapshotStore for executor tests.
type memStore struct {
	mu    sync.Mutex
	docs  map[string]store.Snapshot
	saves int
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]store.Snapshot{}}
}

func (m *memStore) key(identity, scenario string) string { return identity + "/" + scenario }

func (m *memStore) SaveState(_ context.Context, snap store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.docs[m.key(snap.Identity, snap.Scenario)]
	snap.AAR = existing.AAR
	m.docs[m.key(snap.Identity, snap.Scenario)] = snap
	m.saves++
	return nil
}

func (m *memStore) SaveAAR(_ context.Context, identity, scenario, report string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.docs[m.key(identity, scenario)]
	snap.Identity, snap.Scenario = identity, scenario
	snap.AAR = report
	m.docs[m.key(identity, scenario)] = snap
	return nil
}

func (m *memStore) Load(_ context.Context, identity, scenario string) (store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.docs[m.key(identity, scenario)]
	if !ok {
		return store.Snapshot{}, store.ErrNotFound
	}
	return snap, nil
}

func (m *memStore) Delete(_ context.Context, identity, scenario string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, m.key(identity, scenario))
	return nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
