// Package memory provides in-process conversation memory keyed by thread id.
// History lives for the lifetime of the process; there is no cross-process
// persistence.
package memory

import (
	"sync"

	"webrag/internal/llm"
)

// InMemory stores per-thread message history. Safe for use from concurrent
// invocations, though the workflow itself runs one invocation at a time.
type InMemory struct {
	mu      sync.RWMutex
	threads map[string][]llm.Message
}

func NewInMemory() *InMemory {
	return &InMemory{threads: make(map[string][]llm.Message)}
}

// Load returns a copy of the thread's messages; an unknown thread yields nil.
func (m *InMemory) Load(threadID string) []llm.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.threads[threadID]
	if stored == nil {
		return nil
	}
	return append([]llm.Message(nil), stored...)
}

// Save replaces the thread's history with the given messages. Workflows only
// ever append, so the history grows monotonically within a thread.
func (m *InMemory) Save(threadID string, messages []llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[threadID] = append([]llm.Message(nil), messages...)
}

// Threads returns the ids of all known threads.
func (m *InMemory) Threads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	return ids
}
