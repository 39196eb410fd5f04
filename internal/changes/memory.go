package changes

import "sync"

// MemoryStore keeps tags in memory. Use in tests and dry runs.
type MemoryStore struct {
	mu   sync.RWMutex
	tags map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tags: make(map[string]string)}
}

func (s *MemoryStore) GetTag(calendarID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tag, ok := s.tags[calendarID]
	return tag, ok, nil
}

func (s *MemoryStore) PutTag(calendarID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[calendarID] = tag
	return nil
}
