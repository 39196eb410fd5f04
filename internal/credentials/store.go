package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"gcalvault/internal/gcalvault"
)

// Record is the persisted form of one identity's OAuth token.
type Record struct {
	Identity     string    `json:"identity"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// NewRecord captures tok for identity.
func NewRecord(identity string, tok *oauth2.Token, scopes []string) *Record {
	return &Record{
		Identity:     identity,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       append([]string(nil), scopes...),
	}
}

// Token converts the record back to an oauth2 token.
func (r *Record) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry,
	}
}

// Store keeps one token file per identity in a directory.
type Store struct {
	dir    string
	sealer gcalvault.Sealer
}

// NewStore creates a Store in dir. A nil sealer stores plain JSON.
func NewStore(dir string, sealer gcalvault.Sealer) *Store {
	return &Store{dir: dir, sealer: sealer}
}

// Path returns the token file for identity. Identities that would name a
// file outside the store directory are rejected.
func (s *Store) Path(identity string) (string, error) {
	if identity == "" || identity == "." || identity == ".." ||
		strings.ContainsAny(identity, `/\`) || identity != filepath.Base(identity) {
		return "", gcalvault.WrapErrorf(gcalvault.ErrConfiguration, "invalid identity %q for token file", identity)
	}
	return filepath.Join(s.dir, identity+".token.json"), nil
}

// Load returns the stored record for identity, or nil if there is none.
func (s *Store) Load(identity string) (*Record, error) {
	path, err := s.Path(identity)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	if s.sealer != nil {
		data, err = s.sealer.Open(data)
		if err != nil {
			return nil, fmt.Errorf("decrypting token file: %w", err)
		}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding token file: %w", err)
	}
	return &rec, nil
}

// Save writes rec atomically with mode 0600.
func (s *Store) Save(rec *Record) error {
	path, err := s.Path(rec.Identity)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if s.sealer != nil {
		data, err = s.sealer.Seal(data)
		if err != nil {
			return fmt.Errorf("encrypting token: %w", err)
		}
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

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
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming token file: %w", err)
	}
	return nil
}

// Delete removes the token file for identity. A missing file is not an error.
func (s *Store) Delete(identity string) error {
	path, err := s.Path(identity)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting token file: %w", err)
	}
	return nil
}
