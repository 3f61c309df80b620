package cursor

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a thread-safe in-memory implementation of Store.
// Used for local mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	cursors map[string]map[int32]Cursor // group/topic -> partition -> cursor
}

// NewMemoryStore creates a new in-memory cursor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cursors: make(map[string]map[int32]Cursor),
	}
}

func (s *MemoryStore) Load(ctx context.Context, groupID string, topic string) ([]Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byPartition := s.cursors[groupID+"/"+topic]
	out := make([]Cursor, 0, len(byPartition))
	for _, c := range byPartition {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Partition < out[j].Partition })
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, c Cursor) error {
	if err := c.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.GroupID + "/" + c.Topic
	byPartition, ok := s.cursors[key]
	if !ok {
		byPartition = make(map[int32]Cursor)
		s.cursors[key] = byPartition
	}
	if existing, ok := byPartition[c.Partition]; ok && existing.Offset >= c.Offset {
		return nil
	}
	byPartition[c.Partition] = c
	return nil
}

// Close is a no-op for in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
