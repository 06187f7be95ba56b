package state

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Tracker for tests and dry runs.
type Memory struct {
	mu   sync.Mutex
	done map[string]bool
}

// NewMemory creates an empty in-memory tracker.
func NewMemory() *Memory {
	return &Memory{done: make(map[string]bool)}
}

func (m *Memory) key(source string, batch int) string {
	return fmt.Sprintf("%s/%d", source, batch)
}

// IsDone reports completion from the in-memory map.
func (m *Memory) IsDone(_ context.Context, source string, batch int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[m.key(source, batch)], nil
}

// MarkDone records completion in the in-memory map.
func (m *Memory) MarkDone(_ context.Context, source string, batch int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[m.key(source, batch)] = true
	return nil
}
