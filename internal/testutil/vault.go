package testutil

import (
	"context"
	"sync"

	"gcalvault/internal/gcalvault"
	"gcalvault/internal/mirror"
)

// FakeVault records vault calls without touching git.
// Commit reports the number of distinct paths staged or removed since the last commit.
type FakeVault struct {
	mu      sync.Mutex
	pending map[string]bool

	Staged   []string
	Removed  []string
	Messages []string
	Pushes   int

	CommitErr error
	PushErr   error
	// PushConfigured controls the pushed result of a successful Push.
	PushConfigured bool
}

var _ gcalvault.Vault = (*FakeVault)(nil)

func NewFakeVault() *FakeVault {
	return &FakeVault{pending: make(map[string]bool), PushConfigured: true}
}

func (v *FakeVault) Stage(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Staged = append(v.Staged, name)
	v.pending[name] = true
	return nil
}

func (v *FakeVault) UnstageAndDelete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Removed = append(v.Removed, name)
	v.pending[name] = true
	return nil
}

func (v *FakeVault) Commit(message string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.CommitErr != nil {
		return 0, v.CommitErr
	}
	n := len(v.pending)
	if n > 0 {
		v.Messages = append(v.Messages, message)
	}
	v.pending = make(map[string]bool)
	return n, nil
}

func (v *FakeVault) Push(context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Pushes++
	if v.PushErr != nil {
		return false, v.PushErr
	}
	return v.PushConfigured, nil
}

func (v *FakeVault) ValidateSetup() error { return nil }

// NewTestMirror creates a new in-memory mirror for testing.
func NewTestMirror() *mirror.MemoryMirror {
	return mirror.NewMemoryMirror("test-mirror")
}
