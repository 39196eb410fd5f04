package gcalvault

import (
	"context"
	"io"
)

// Vault is the version-controlled working tree holding the calendar files.
type Vault interface {
	// Stage adds a file in the working tree to the index. Staging twice is harmless.
	Stage(fileName string) error

	// UnstageAndDelete removes a file from the index and the working tree.
	// Untracked or already-deleted files are not an error.
	UnstageAndDelete(fileName string) error

	// Commit records staged changes and returns the number of changed paths.
	// Zero means nothing differed from HEAD and no commit was created.
	Commit(message string) (int, error)

	// Push publishes commits to every remote. pushed is false when pushing
	// is not configured.
	Push(ctx context.Context) (pushed bool, err error)

	// ValidateSetup verifies that the working tree is usable.
	ValidateSetup() error
}

// Mirror is an optional secondary copy of fetched calendar files.
type Mirror interface {
	// Put stores content under name, replacing any previous copy.
	// size is the number of bytes that will be read from r.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// ValidateSetup verifies that the mirror is accessible and properly configured.
	ValidateSetup() error
}
