package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/idhash"
	"solana-transfer-lab/internal/storage"
)

// TransferStore is an in-memory implementation of storage.TransferStore.
type TransferStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TransferRecord // keyed by transfer key
}

// NewTransferStore creates a new in-memory transfer store.
func NewTransferStore() *TransferStore {
	return &TransferStore{
		data: make(map[string]*domain.TransferRecord),
	}
}

// Compile-time interface check.
var _ storage.TransferStore = (*TransferStore)(nil)

// Insert adds a new transfer. Returns ErrDuplicateKey if the key exists.
func (s *TransferStore) Insert(_ context.Context, t *domain.TransferRecord) error {
	if t == nil || t.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := idhash.ComputeTransferKey(t.Signature, t.From, t.To, t.Amount)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	recordCopy := *t
	s.data[key] = &recordCopy
	return nil
}

// InsertBulk adds records, silently skipping keys that already exist.
func (s *TransferStore) InsertBulk(ctx context.Context, transfers []*domain.TransferRecord) (int, error) {
	var inserted int
	for _, t := range transfers {
		err := s.Insert(ctx, t)
		if errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// GetByMint retrieves up to limit transfers for a mint, newest first.
func (s *TransferStore) GetByMint(_ context.Context, mint string, limit int) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransferRecord
	for _, t := range s.data {
		if t.Mint == mint {
			recordCopy := *t
			result = append(result, &recordCopy)
		}
	}

	sortNewestFirst(result)
	return truncate(result, limit), nil
}

// GetByAccount retrieves transfers where the account is sender or receiver.
func (s *TransferStore) GetByAccount(_ context.Context, mint, account string, limit int) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransferRecord
	for _, t := range s.data {
		if t.Mint == mint && (t.From == account || t.To == account) {
			recordCopy := *t
			result = append(result, &recordCopy)
		}
	}

	sortNewestFirst(result)
	return truncate(result, limit), nil
}

// GetByTimeRange retrieves transfers within [startMs, endMs] inclusive.
func (s *TransferStore) GetByTimeRange(_ context.Context, mint string, startMs, endMs int64) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransferRecord
	for _, t := range s.data {
		if t.Mint == mint && t.TimestampMs >= startMs && t.TimestampMs <= endMs {
			recordCopy := *t
			result = append(result, &recordCopy)
		}
	}

	sortNewestFirst(result)
	return result, nil
}

func sortNewestFirst(records []*domain.TransferRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].TimestampMs != records[j].TimestampMs {
			return records[i].TimestampMs > records[j].TimestampMs
		}
		return records[i].Signature < records[j].Signature
	})
}

func truncate(records []*domain.TransferRecord, limit int) []*domain.TransferRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
