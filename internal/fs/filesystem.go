package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gcalvault/internal/gcalvault"
)

// OSOutputStore is the real filesystem implementation of gcalvault.OutputStore.
// File names are base names relative to the output directory.
type OSOutputStore struct {
	dir string
}

// NewOutputStore creates the output directory if needed and returns a store rooted there.
func NewOutputStore(dir string) (*OSOutputStore, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &OSOutputStore{dir: absDir}, nil
}

// Dir returns the output directory.
func (s *OSOutputStore) Dir() string {
	return s.dir
}

func (s *OSOutputStore) path(fileName string) (string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) || fileName == "." || fileName == ".." {
		return "", fmt.Errorf("invalid file name %q", fileName)
	}
	return filepath.Join(s.dir, fileName), nil
}

// Exists reports whether fileName is present as a regular file.
func (s *OSOutputStore) Exists(fileName string) (bool, error) {
	p, err := s.path(fileName)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", fileName, err)
	}
	return info.Mode().IsRegular(), nil
}

// WriteFile replaces fileName with data using a temp file and rename,
// so readers never observe a partially written file.
func (s *OSOutputStore) WriteFile(fileName string, data []byte) error {
	destPath, err := s.path(fileName)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Remove deletes fileName. A missing file is not an error.
func (s *OSOutputStore) Remove(fileName string) error {
	p, err := s.path(fileName)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", fileName, err)
	}
	return nil
}

// ListFiles returns the sorted base names of regular files in the output
// directory whose extension matches ext, ignoring case.
func (s *OSOutputStore) ListFiles(ext string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Open opens fileName for reading and returns its size.
func (s *OSOutputStore) Open(fileName string) (io.ReadCloser, int64, error) {
	p, err := s.path(fileName)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", fileName, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", fileName, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("not a regular file: %s", fileName)
	}
	return f, info.Size(), nil
}

// Compile-time check that OSOutputStore implements gcalvault.OutputStore interface
var _ gcalvault.OutputStore = (*OSOutputStore)(nil)
