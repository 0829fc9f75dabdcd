package backup

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/memmesh/core"
)

// InMemorySnapshotStore is a volatile SnapshotStore keeping blobs in a
// process-local map. Safe for concurrent access; best suited for tests and
// ephemeral demo setups.
type InMemorySnapshotStore struct {
	mu    sync.RWMutex
	blobs map[uint64][]byte
}

// NewInMemorySnapshotStore constructs an empty in-memory snapshot store.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{blobs: make(map[uint64][]byte)}
}

// Write stores a copy of the blob under the sequence number.
func (s *InMemorySnapshotStore) Write(sequence uint64, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[sequence] = append([]byte(nil), blob...)
	return nil
}

// Read returns a copy of the stored blob.
func (s *InMemorySnapshotStore) Read(sequence uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[sequence]
	if !ok {
		return nil, fmt.Errorf("snapshot %d: %w", sequence, core.ErrNotFound)
	}
	return append([]byte(nil), blob...), nil
}

// Sequences lists stored sequence numbers ascending.
func (s *InMemorySnapshotStore) Sequences() ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seqs := make([]uint64, 0, len(s.blobs))
	for seq := range s.blobs {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// Delete removes the blob; unknown sequences are a no-op.
func (s *InMemorySnapshotStore) Delete(sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, sequence)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemorySnapshotStore) Close() error { return nil }
