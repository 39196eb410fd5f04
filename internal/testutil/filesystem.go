package testutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gcalvault/internal/gcalvault"
)

// MockOutputStore is an in-memory output directory for testing.
type MockOutputStore struct {
	mu    sync.Mutex
	dir   string
	files map[string][]byte

	// WriteErr, when set, is returned by every WriteFile call.
	WriteErr error
}

var _ gcalvault.OutputStore = (*MockOutputStore)(nil)

// NewMockOutputStore creates an empty mock output directory.
func NewMockOutputStore() *MockOutputStore {
	return &MockOutputStore{
		dir:   "/mock/output",
		files: make(map[string][]byte),
	}
}

// AddFile adds a file to the mock directory.
func (m *MockOutputStore) AddFile(name string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = content
}

// Content returns a file's content and whether it exists.
func (m *MockOutputStore) Content(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	return data, ok
}

// Names returns the sorted names of all files.
func (m *MockOutputStore) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MockOutputStore) Dir() string { return m.dir }

func (m *MockOutputStore) Exists(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok, nil
}

func (m *MockOutputStore) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.files[name] = append([]byte(nil), data...)
	return nil
}

func (m *MockOutputStore) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

func (m *MockOutputStore) ListFiles(ext string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.files {
		if strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockOutputStore) Open(name string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, 0, fmt.Errorf("opening %s: %w", name, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}
