package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"gcalvault/internal/gcalvault"
)

// DefaultCalDAVBaseURL serves full-calendar iCal exports.
const DefaultCalDAVBaseURL = "https://apidata.googleusercontent.com/caldav/v2/"

// Scopes requested from Google: the account email and read-only calendar access.
var Scopes = []string{
	oauth2api.OpenIDScope,
	oauth2api.UserinfoEmailScope,
	calendar.CalendarReadonlyScope,
}

// Connector opens Calendar API sessions for a credential.
type Connector struct {
	// ClientOptions are appended when creating the API service.
	ClientOptions []option.ClientOption

	// CalDAVBaseURL overrides DefaultCalDAVBaseURL. It must end with a slash.
	CalDAVBaseURL string
}

var _ gcalvault.Connector = (*Connector)(nil)

// Connect creates a CalendarService authorized by cred.
func (c *Connector) Connect(ctx context.Context, cred *gcalvault.Credential) (gcalvault.CalendarService, error) {
	src := cred.Source
	if src == nil {
		src = oauth2.StaticTokenSource(cred.Token)
	}
	httpClient := oauth2.NewClient(ctx, src)

	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, c.ClientOptions...)
	api, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}

	base := c.CalDAVBaseURL
	if base == "" {
		base = DefaultCalDAVBaseURL
	}
	return &CalendarService{api: api, http: httpClient, caldavBase: base}, nil
}

// CalendarService reads calendars through the Calendar API and exports them over CalDAV.
type CalendarService struct {
	api        *calendar.Service
	http       *http.Client
	caldavBase string
}

var _ gcalvault.CalendarService = (*CalendarService)(nil)

// ListCalendars returns every calendar in the account's calendar list.
func (s *CalendarService) ListCalendars(ctx context.Context) ([]*gcalvault.Calendar, error) {
	var out []*gcalvault.Calendar
	err := s.api.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			name := item.Summary
			if name == "" {
				name = item.Id
			}
			out = append(out, &gcalvault.Calendar{
				ID:         item.Id,
				Name:       name,
				AccessRole: gcalvault.AccessRole(item.AccessRole),
			})
		}
		return nil
	})
	if err != nil {
		return nil, mapAPIError(err, "")
	}
	return out, nil
}

// VersionTag returns the etag of a one-item events listing, which changes
// whenever any event in the calendar changes.
func (s *CalendarService) VersionTag(ctx context.Context, calendarID string) (string, error) {
	events, err := s.api.Events.List(calendarID).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return "", mapAPIError(err, calendarID)
	}
	return events.Etag, nil
}

// Export downloads the calendar as a single iCalendar document.
func (s *CalendarService) Export(ctx context.Context, calendarID string) ([]byte, error) {
	u := s.caldavBase + url.PathEscape(calendarID) + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building export request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading calendar: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode, calendarID); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading calendar body: %w", err)
	}
	return data, nil
}

// mapAPIError attaches a sentinel to not-found and unauthorized API errors.
func mapAPIError(err error, calendarID string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusUnauthorized) {
		return fmt.Errorf("%w: %w", statusError(gerr.Code, calendarID), err)
	}
	return err
}

func statusError(code int, calendarID string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return gcalvault.WrapErrorf(gcalvault.ErrResourceNotFound, "calendar %q", calendarID)
	case code == http.StatusUnauthorized:
		return gcalvault.WrapErrorf(gcalvault.ErrAuthenticationFailed, "calendar %q: access token rejected", calendarID)
	default:
		return fmt.Errorf("calendar %q: unexpected status %d %s", calendarID, code, strings.ToLower(http.StatusText(code)))
	}
}
