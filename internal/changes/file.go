package changes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps tags in a flat JSON object on disk. The whole map is
// rewritten on every update through a temp file and rename, so a crash
// leaves either the old or the new map.
type FileStore struct {
	mu     sync.Mutex
	path   string
	tags   map[string]string
	loaded bool
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore at path. The file is read lazily.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) GetTag(calendarID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return "", false, err
	}
	tag, ok := s.tags[calendarID]
	return tag, ok, nil
}

func (s *FileStore) PutTag(calendarID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}

	next := make(map[string]string, len(s.tags)+1)
	for k, v := range s.tags {
		next[k] = v
	}
	next[calendarID] = tag

	if err := s.save(next); err != nil {
		return err
	}
	s.tags = next
	return nil
}

func (s *FileStore) load() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.tags = make(map[string]string)
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	tags := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &tags); err != nil {
			return fmt.Errorf("decoding %s: %w", s.path, err)
		}
	}
	s.tags = tags
	s.loaded = true
	return nil
}

func (s *FileStore) save(tags map[string]string) error {
	data, err := json.MarshalIndent(tags, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".etags-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
