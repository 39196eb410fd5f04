package gcalvault

import (
	"context"

	"golang.org/x/oauth2"
)

// Credential is an access credential for one verified account.
type Credential struct {
	Identity string
	Token    *oauth2.Token

	// Source yields fresh tokens during the pass, refreshing when needed.
	Source oauth2.TokenSource
}

// CredentialSource obtains a usable credential for an account identity.
type CredentialSource interface {
	// Obtain returns a credential for identity. newlyAuthorized is true when
	// an interactive authorization ran during the call.
	Obtain(ctx context.Context, identity string) (cred *Credential, newlyAuthorized bool, err error)
}

// CalendarService is the remote calendar provider.
type CalendarService interface {
	// ListCalendars returns every calendar visible to the account. VersionTag is not populated.
	ListCalendars(ctx context.Context) ([]*Calendar, error)

	// VersionTag returns an opaque tag that changes whenever the calendar's content changes.
	// A calendar that does not exist yields ErrResourceNotFound.
	VersionTag(ctx context.Context, calendarID string) (string, error)

	// Export returns the full iCalendar document for a calendar.
	Export(ctx context.Context, calendarID string) ([]byte, error)
}

// Connector opens a CalendarService for a credential.
type Connector interface {
	Connect(ctx context.Context, cred *Credential) (CalendarService, error)
}
