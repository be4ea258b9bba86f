package memory

import (
	"context"
	"sync"

	"solana-transfer-lab/internal/storage"
)

// ProgressStore is an in-memory implementation of storage.ProgressStore.
type ProgressStore struct {
	mu   sync.RWMutex
	data map[progressKey]*storage.ScanProgress
}

type progressKey struct {
	mint    string
	account string
}

// NewProgressStore creates a new in-memory progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		data: make(map[progressKey]*storage.ScanProgress),
	}
}

// Compile-time interface check.
var _ storage.ProgressStore = (*ProgressStore)(nil)

// Get returns the progress for a scope. Returns ErrNotFound if absent.
func (s *ProgressStore) Get(_ context.Context, mint, account string) (*storage.ScanProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[progressKey{mint, account}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	progressCopy := *p
	return &progressCopy, nil
}

// Set upserts the progress for a scope.
func (s *ProgressStore) Set(_ context.Context, p *storage.ScanProgress) error {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	progressCopy := *p
	s.data[progressKey{p.Mint, p.Account}] = &progressCopy
	return nil
}
