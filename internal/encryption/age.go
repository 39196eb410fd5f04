package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"

	"gcalvault/internal/gcalvault"
)

// AgeSealer implements gcalvault.Sealer using filippo.io/age with an X25519 key.
// The identity is stored unencrypted with mode 0600 so unattended runs can
// read tokens; the recipient is written next to it with a ".pub" suffix.
type AgeSealer struct {
	keyPath string

	mu       sync.Mutex
	identity *age.X25519Identity
}

var _ gcalvault.Sealer = (*AgeSealer)(nil)

// NewAgeSealer creates an AgeSealer whose identity lives at keyPath.
func NewAgeSealer(keyPath string) *AgeSealer {
	return &AgeSealer{keyPath: keyPath}
}

// PublicKeyPath returns where the recipient is written.
func (s *AgeSealer) PublicKeyPath() string {
	return s.keyPath + ".pub"
}

// Setup generates a new X25519 identity unless one already exists.
func (s *AgeSealer) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.loadOrCreate()
	return err
}

// IsConfigured returns true if the identity file exists.
func (s *AgeSealer) IsConfigured() bool {
	_, err := os.Stat(s.keyPath)
	return err == nil
}

// Seal encrypts plaintext to the sealer's recipient, generating the key on first use.
func (s *AgeSealer) Seal(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	identity, err := s.loadOrCreate()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Open decrypts data produced by Seal.
func (s *AgeSealer) Open(sealed []byte) ([]byte, error) {
	s.mu.Lock()
	identity, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting data: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plaintext, nil
}

func (s *AgeSealer) loadOrCreate() (*age.X25519Identity, error) {
	identity, err := s.load()
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	identity, err = age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(s.keyPath, []byte(identity.String()+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(s.PublicKeyPath(), []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing public key: %w", err)
	}

	s.identity = identity
	return identity, nil
}

func (s *AgeSealer) load() (*age.X25519Identity, error) {
	if s.identity != nil {
		return s.identity, nil
	}

	data, err := os.ReadFile(s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	s.identity = identity
	return identity, nil
}
