// Package snapshot persists serialized document replicas between sessions.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("snapshot not found")

// Store saves and loads opaque snapshot bytes keyed by document ID.
type Store interface {
	Save(ctx context.Context, documentID string, data []byte) error
	Load(ctx context.Context, documentID string) ([]byte, error)
	Delete(ctx context.Context, documentID string) error
}

// Chain writes through every store and reads from the first store that has the
// snapshot. A hit in a later store is copied back into the earlier ones.
type Chain struct {
	stores []Store
}

func NewChain(stores ...Store) *Chain {
	kept := make([]Store, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Chain{stores: kept}
}

func (c *Chain) Save(ctx context.Context, documentID string, data []byte) error {
	for i, s := range c.stores {
		if err := s.Save(ctx, documentID, data); err != nil {
			return fmt.Errorf("save snapshot in store %d: %w", i, err)
		}
	}
	return nil
}

func (c *Chain) Load(ctx context.Context, documentID string) ([]byte, error) {
	for i, s := range c.stores {
		data, err := s.Load(ctx, documentID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load snapshot from store %d: %w", i, err)
		}
		for _, earlier := range c.stores[:i] {
			_ = earlier.Save(ctx, documentID, data)
		}
		return data, nil
	}
	return nil, ErrNotFound
}

func (c *Chain) Delete(ctx context.Context, documentID string) error {
	var errs []error
	for _, s := range c.stores {
		if err := s.Delete(ctx, documentID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string][]byte{}}
}

func (m *MemoryStore) Save(_ context.Context, documentID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[documentID] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, documentID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.items[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Delete(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, documentID)
	return nil
}
