package mirror

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"gcalvault/internal/gcalvault"
)

// MemoryMirror is an in-memory implementation of the Mirror interface.
// It keeps every uploaded file in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryMirror struct {
	name  string
	files map[string][]byte
	mu    sync.RWMutex
}

// NewMemoryMirror creates a new in-memory mirror with the given name.
func NewMemoryMirror(name string) *MemoryMirror {
	return &MemoryMirror{
		name:  name,
		files: make(map[string][]byte),
	}
}

// Put stores the file under name, replacing any previous copy.
func (m *MemoryMirror) Put(_ context.Context, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return nil
}

// Has reports whether name has been stored.
func (m *MemoryMirror) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[name]
	return ok
}

// Names returns the sorted names of all stored files.
func (m *MemoryMirror) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateSetup always succeeds for the in-memory mirror.
func (m *MemoryMirror) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryMirror implements gcalvault.Mirror interface
var _ gcalvault.Mirror = (*MemoryMirror)(nil)
