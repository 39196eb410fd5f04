package credentials

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"gcalvault/internal/gcalvault"
)

// Authorizer runs an interactive authorization-code exchange.
type Authorizer interface {
	Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// IdentityVerifier reports which account a token belongs to.
type IdentityVerifier interface {
	Email(ctx context.Context, tok *oauth2.Token) (string, error)
}

// Options configures a Manager.
type Options struct {
	ClientID     string
	ClientSecret string
	Scopes       []string // requested on authorization and stored with the token
	StoreDir     string

	// Endpoint overrides the Google OAuth endpoint.
	Endpoint oauth2.Endpoint
}

// Manager implements gcalvault.CredentialSource on top of a token Store.
type Manager struct {
	opts       Options
	store      *Store
	authorizer Authorizer
	verifier   IdentityVerifier
	logger     gcalvault.Logger
}

var _ gcalvault.CredentialSource = (*Manager)(nil)

// NewManager creates a Manager. A nil sealer stores tokens as plain JSON.
func NewManager(opts Options, sealer gcalvault.Sealer, authorizer Authorizer, verifier IdentityVerifier, logger gcalvault.Logger) *Manager {
	if opts.Endpoint.TokenURL == "" {
		opts.Endpoint = google.Endpoint
	}
	return &Manager{
		opts:       opts,
		store:      NewStore(opts.StoreDir, sealer),
		authorizer: authorizer,
		verifier:   verifier,
		logger:     logger,
	}
}

// Store returns the token store backing the manager.
func (m *Manager) Store() *Store {
	return m.store
}

// OAuthConfig returns the client configuration used for refresh and authorization.
func (m *Manager) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.opts.ClientID,
		ClientSecret: m.opts.ClientSecret,
		Endpoint:     m.opts.Endpoint,
		Scopes:       m.opts.Scopes,
	}
}

// Obtain returns a usable credential for identity. A valid stored token is
// used as is, an expired one is refreshed, and otherwise a new authorization
// runs and its account is checked against identity.
func (m *Manager) Obtain(ctx context.Context, identity string) (*gcalvault.Credential, bool, error) {
	identity = gcalvault.NormalizeIdentity(identity)
	if identity == "" {
		return nil, false, gcalvault.WrapErrorf(gcalvault.ErrConfiguration, "no account email configured")
	}
	if m.opts.ClientID == "" || m.opts.ClientSecret == "" {
		return nil, false, gcalvault.WrapErrorf(gcalvault.ErrConfiguration, "no OAuth client configured")
	}
	cfg := m.OAuthConfig()

	rec, err := m.store.Load(identity)
	if err != nil {
		m.logger.Warn("ignoring unreadable token file", "identity", identity, "error", err)
		rec = nil
	}

	if rec != nil {
		tok := rec.Token()
		if tok.Valid() {
			return m.credential(ctx, cfg, identity, tok), false, nil
		}
		if tok.RefreshToken != "" {
			refreshed, err := cfg.TokenSource(ctx, tok).Token()
			if err == nil {
				if refreshed.RefreshToken == "" {
					refreshed.RefreshToken = tok.RefreshToken
				}
				if err := m.store.Save(NewRecord(identity, refreshed, m.opts.Scopes)); err != nil {
					return nil, false, fmt.Errorf("saving refreshed token: %w", err)
				}
				m.logger.Debug("refreshed token", "identity", identity)
				return m.credential(ctx, cfg, identity, refreshed), false, nil
			}
			m.logger.Warn("token refresh failed, reauthorizing", "identity", identity, "error", err)
		}
	}

	if m.authorizer == nil {
		return nil, false, fmt.Errorf("no valid token for %s and interactive authorization is unavailable", identity)
	}
	tok, err := m.authorizer.Authorize(ctx, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("authorizing %s: %w", identity, err)
	}
	if err := m.store.Save(NewRecord(identity, tok, m.opts.Scopes)); err != nil {
		return nil, false, fmt.Errorf("saving token: %w", err)
	}

	if err := m.verify(ctx, identity, tok); err != nil {
		if delErr := m.store.Delete(identity); delErr != nil {
			m.logger.Error("failed to delete token after verification failure", "identity", identity, "error", delErr)
		}
		return nil, false, err
	}

	return m.credential(ctx, cfg, identity, tok), true, nil
}

func (m *Manager) verify(ctx context.Context, identity string, tok *oauth2.Token) error {
	email, err := m.verifier.Email(ctx, tok)
	if err != nil {
		return fmt.Errorf("verifying account identity: %w", err)
	}
	actual := gcalvault.NormalizeIdentity(email)
	if actual != identity {
		return &gcalvault.IdentityMismatchError{Expected: identity, Actual: actual}
	}
	return nil
}

func (m *Manager) credential(ctx context.Context, cfg *oauth2.Config, identity string, tok *oauth2.Token) *gcalvault.Credential {
	return &gcalvault.Credential{
		Identity: identity,
		Token:    tok,
		Source:   cfg.TokenSource(ctx, tok),
	}
}
