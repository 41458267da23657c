// Package blockstore defines the block storage interface the tree
// persists buckets through, plus the in-memory, file-backed, and
// compressing implementations.
package blockstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ProllyDB/prolly/pkg/cid"
)

var (
	// ErrNotFound is returned when no block is stored under a CID.
	ErrNotFound = errors.New("block not found")
)

// Store is the content-addressed block store the tree core reads and
// writes through. Writes are idempotent by CID; deletes are not part
// of the contract.
type Store interface {
	// Get returns the bytes stored under c, or ErrNotFound.
	Get(ctx context.Context, c cid.CID) ([]byte, error)

	// Put stores data under c. Storing the same CID twice is a no-op.
	Put(ctx context.Context, c cid.CID, data []byte) error
}

// MemStore is a thread-safe in-memory block store.
type MemStore struct {
	mu     sync.RWMutex
	blocks map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blocks: make(map[string][]byte)}
}

// Get returns the stored bytes for c.
func (s *MemStore) Get(ctx context.Context, c cid.CID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[c.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c)
	}
	// Copy so callers cannot mutate stored bytes.
	return append([]byte(nil), data...), nil
}

// Put stores data under c.
func (s *MemStore) Put(ctx context.Context, c cid.CID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[c.Key()]; ok {
		return nil
	}
	s.blocks[c.Key()] = append([]byte(nil), data...)
	return nil
}

// Len returns the number of stored blocks.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}
