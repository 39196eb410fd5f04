package google

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"gcalvault/internal/credentials"
)

// UserinfoVerifier reads the account email of a token from the userinfo endpoint.
type UserinfoVerifier struct {
	// ClientOptions are appended when creating the API service.
	ClientOptions []option.ClientOption
}

var _ credentials.IdentityVerifier = (*UserinfoVerifier)(nil)

// Email returns the email address of the account that granted tok.
func (v *UserinfoVerifier) Email(ctx context.Context, tok *oauth2.Token) (string, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, v.ClientOptions...)

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("creating userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("fetching userinfo: %w", err)
	}
	if info.Email == "" {
		return "", errors.New("userinfo response has no email; was the email scope granted?")
	}
	return info.Email, nil
}
