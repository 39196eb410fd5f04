package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gcalvault/internal/gcalvault"
)

// FakeCalendarService is an in-memory calendar provider.
type FakeCalendarService struct {
	mu sync.Mutex

	Calendars []*gcalvault.Calendar
	Tags      map[string]string
	Content   map[string][]byte

	ListCalls   int
	TagCalls    []string
	ExportCalls []string

	ListErr   error
	ExportErr map[string]error
}

var _ gcalvault.CalendarService = (*FakeCalendarService)(nil)

func NewFakeCalendarService() *FakeCalendarService {
	return &FakeCalendarService{
		Tags:      make(map[string]string),
		Content:   make(map[string][]byte),
		ExportErr: make(map[string]error),
	}
}

// AddCalendar registers a calendar with a version tag and iCal content.
func (f *FakeCalendarService) AddCalendar(id, name string, role gcalvault.AccessRole, tag string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calendars = append(f.Calendars, &gcalvault.Calendar{ID: id, Name: name, AccessRole: role})
	f.Tags[id] = tag
	f.Content[id] = content
}

// SetTag changes a calendar's version tag and content, as a remote edit would.
func (f *FakeCalendarService) SetTag(id, tag string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tags[id] = tag
	f.Content[id] = content
}

// RemoveCalendar drops a calendar from the remote list.
func (f *FakeCalendarService) RemoveCalendar(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.Calendars[:0]
	for _, c := range f.Calendars {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	f.Calendars = kept
	delete(f.Tags, id)
	delete(f.Content, id)
}

func (f *FakeCalendarService) ListCalendars(context.Context) ([]*gcalvault.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]*gcalvault.Calendar, 0, len(f.Calendars))
	for _, c := range f.Calendars {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *FakeCalendarService) VersionTag(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TagCalls = append(f.TagCalls, id)
	tag, ok := f.Tags[id]
	if !ok {
		return "", fmt.Errorf("calendar %q: %w", id, gcalvault.ErrResourceNotFound)
	}
	return tag, nil
}

func (f *FakeCalendarService) Export(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ExportCalls = append(f.ExportCalls, id)
	if err := f.ExportErr[id]; err != nil {
		return nil, err
	}
	data, ok := f.Content[id]
	if !ok {
		return nil, fmt.Errorf("calendar %q: %w", id, gcalvault.ErrResourceNotFound)
	}
	return data, nil
}

// FakeConnector hands out a fixed CalendarService.
type FakeConnector struct {
	Service gcalvault.CalendarService
	Err     error
}

var _ gcalvault.Connector = (*FakeConnector)(nil)

func (c *FakeConnector) Connect(context.Context, *gcalvault.Credential) (gcalvault.CalendarService, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Service, nil
}

// ErrStubAuthorization is returned by StubCredentialSource when Fail is set.
var ErrStubAuthorization = errors.New("stub authorization failed")

// StubCredentialSource returns a credential for a fixed identity.
type StubCredentialSource struct {
	Identity string
	Fail     bool
	Err      error
	Calls    int
}

var _ gcalvault.CredentialSource = (*StubCredentialSource)(nil)

func (s *StubCredentialSource) Obtain(_ context.Context, identity string) (*gcalvault.Credential, bool, error) {
	s.Calls++
	if s.Err != nil {
		return nil, false, s.Err
	}
	if s.Fail {
		return nil, false, ErrStubAuthorization
	}
	if s.Identity != "" && gcalvault.NormalizeIdentity(s.Identity) != identity {
		return nil, false, &gcalvault.IdentityMismatchError{Expected: identity, Actual: s.Identity}
	}
	return &gcalvault.Credential{Identity: identity}, false, nil
}
