package cache

import (
	"context"
	"sync"

	"github.com/JakeFAU/socialcards/internal/cards"
)

// Memory keeps batches in process. Only useful when planning and capture run in the same process.
type Memory struct {
	mu      sync.RWMutex
	batches map[string]cards.JobBatch
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{batches: make(map[string]cards.JobBatch)}
}

// Set stores a copy of batch.
func (m *Memory) Set(_ context.Context, key string, batch cards.JobBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[key] = batch.Clone()
	return nil
}

// Get returns a copy of the stored batch, or an empty batch.
func (m *Memory) Get(_ context.Context, key string) (cards.JobBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batches[key].Clone(), nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
