package gcalvault

import "io"

// OutputStore provides access to the directory holding calendar files.
// It abstracts file access to enable testing without touching the real filesystem.
type OutputStore interface {
	// Dir returns the directory the store writes into.
	Dir() string

	// Exists reports whether fileName is present.
	Exists(fileName string) (bool, error)

	// WriteFile replaces fileName with data atomically.
	WriteFile(fileName string, data []byte) error

	// Remove deletes fileName. A missing file is not an error.
	Remove(fileName string) error

	// ListFiles returns the base names of regular files whose extension matches ext, case-insensitively.
	ListFiles(ext string) ([]string, error)

	// Open opens fileName for reading and returns its size.
	Open(fileName string) (io.ReadCloser, int64, error)
}
