package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gcalvault/internal/gcalvault"
)

// FileSystemMirror copies calendar files into a directory, for example a
// mounted network share:
//
//	<root>/
//	  <calendar file>.ics
type FileSystemMirror struct {
	name string
	root string
}

// NewFileSystemMirror creates a new filesystem mirror rooted at the given path.
func NewFileSystemMirror(name, root string) (*FileSystemMirror, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}
	return &FileSystemMirror{name: name, root: root}, nil
}

// Root returns the mirror directory.
func (m *FileSystemMirror) Root() string {
	return m.root
}

func (m *FileSystemMirror) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(m.root, name), nil
}

// Put stores content under name using an atomic write (temp file + rename).
func (m *FileSystemMirror) Put(_ context.Context, name string, r io.Reader, size int64) error {
	destPath, err := m.path(name)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(m.root, ".tmp-*")
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

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// ValidateSetup verifies that the mirror directory is accessible.
func (m *FileSystemMirror) ValidateSetup() error {
	info, err := os.Stat(m.root)
	if err != nil {
		return fmt.Errorf("mirror root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mirror root is not a directory: %s", m.root)
	}
	return nil
}

// Compile-time check that FileSystemMirror implements gcalvault.Mirror interface
var _ gcalvault.Mirror = (*FileSystemMirror)(nil)
