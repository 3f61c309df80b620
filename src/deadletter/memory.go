package deadletter

import (
	"context"
	"sync"
)

// MemorySink keeps dead letters in memory. Used for local mode and tests.
type MemorySink struct {
	mu      sync.RWMutex
	letters []Letter
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Send(ctx context.Context, letter Letter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.letters = append(s.letters, letter)
	return nil
}

func (s *MemorySink) List(ctx context.Context, groupID string, limit int) ([]Letter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Letter
	for _, l := range s.letters {
		if groupID != "" && l.GroupID != groupID {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
