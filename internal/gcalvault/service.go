package gcalvault

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CommitTimeLayout formats the UTC timestamp in sync commit messages.
const CommitTimeLayout = "2006-01-02 15:04:05"

// SyncOptions controls a single sync pass.
type SyncOptions struct {
	// Identity is the expected account email.
	Identity string

	// Selected limits the pass to these calendars. Empty means all calendars.
	Selected []Calendar

	// ExcludedRoles drops calendars whose access role is listed.
	ExcludedRoles []string

	// Clean removes calendar files that no longer belong to any resolved calendar.
	Clean bool

	// Push publishes the commit to the vault's remotes.
	Push bool

	// AlwaysRefresh relists every calendar even when a selection is configured.
	AlwaysRefresh bool
}

// SyncReport summarizes a finished pass.
type SyncReport struct {
	Fetched   int
	Skipped   int
	Removed   int
	Mirrored  int
	Changes   int
	Committed bool
	Pushed    bool

	// NewlyAuthorized is true when the pass ran an interactive authorization.
	NewlyAuthorized bool
}

// SyncService drives sync passes across the credential source, the remote
// calendar provider, the change detector and the vault.
type SyncService struct {
	credentials CredentialSource
	connector   Connector
	detector    ChangeDetector
	vault       Vault
	mirror      Mirror
	output      OutputStore
	logger      Logger
	clock       Clock
}

// NewSyncService creates a SyncService. A nil vault runs in export-only mode
// and a nil mirror disables mirroring.
func NewSyncService(credentials CredentialSource, connector Connector, detector ChangeDetector, vault Vault, mirror Mirror, output OutputStore, logger Logger, clock Clock) *SyncService {
	return &SyncService{
		credentials: credentials,
		connector:   connector,
		detector:    detector,
		vault:       vault,
		mirror:      mirror,
		output:      output,
		logger:      logger,
		clock:       clock,
	}
}

// Authenticate obtains a credential for identity and opens the calendar service with it.
func (s *SyncService) Authenticate(ctx context.Context, identity string) (CalendarService, bool, error) {
	identity = NormalizeIdentity(identity)
	if identity == "" {
		return nil, false, WrapErrorf(ErrConfiguration, "no account email configured")
	}

	cred, newlyAuthorized, err := s.credentials.Obtain(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrIdentityMismatch) || errors.Is(err, ErrConfiguration) {
			return nil, false, err
		}
		return nil, false, WrapError(ErrAuthenticationFailed, err)
	}
	if newlyAuthorized {
		s.logger.Info("authorized account", "identity", identity)
	}

	svc, err := s.connector.Connect(ctx, cred)
	if err != nil {
		return nil, false, WrapError(ErrAuthenticationFailed, fmt.Errorf("connecting to calendar service: %w", err))
	}
	return svc, newlyAuthorized, nil
}

// Sync runs one pass: authenticate, resolve calendars, fetch what changed,
// optionally clean orphans, commit, and optionally push and mirror.
func (s *SyncService) Sync(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	svc, newlyAuthorized, err := s.Authenticate(ctx, opts.Identity)
	if err != nil {
		return nil, err
	}

	calendars, err := s.resolveCalendars(ctx, svc, opts)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{NewlyAuthorized: newlyAuthorized}
	var fetched []string
	for _, cal := range calendars {
		if RoleExcluded(cal.AccessRole, opts.ExcludedRoles) {
			s.logger.Debug("calendar excluded by access role", "calendar", cal.Name, "role", string(cal.AccessRole))
			continue
		}

		didFetch, err := s.syncCalendar(ctx, svc, cal)
		if err != nil {
			return report, err
		}
		if didFetch {
			report.Fetched++
			fetched = append(fetched, cal.FileName())
		} else {
			report.Skipped++
		}
	}

	if opts.Clean {
		removed, err := s.removeOrphans(calendars)
		if err != nil {
			return report, err
		}
		report.Removed = removed
	}

	if s.vault != nil {
		message := fmt.Sprintf("gcalvault sync on %s UTC", s.clock.Now().UTC().Format(CommitTimeLayout))
		changes, err := s.vault.Commit(message)
		if err != nil {
			return report, WrapError(ErrVault, fmt.Errorf("committing: %w", err))
		}
		report.Changes = changes
		report.Committed = changes > 0
		if report.Committed {
			s.logger.Info("committed revisions", "count", changes)
		}

		if opts.Push {
			pushed, err := s.vault.Push(ctx)
			if err != nil {
				s.logger.Warn("push failed", "error", err)
			}
			report.Pushed = pushed && err == nil
		}
	}

	if s.mirror != nil {
		report.Mirrored = s.mirrorFiles(ctx, fetched)
	}

	return report, nil
}

// ResolveSelection maps requested calendar IDs to known calendars, dropping duplicates.
// IDs are compared case-insensitively. An unknown ID yields ErrResourceNotFound.
func ResolveSelection(available []*Calendar, ids []string) ([]Calendar, error) {
	byID := make(map[string]*Calendar, len(available))
	for _, cal := range available {
		byID[strings.ToLower(cal.ID)] = cal
	}

	seen := make(map[string]bool, len(ids))
	selected := make([]Calendar, 0, len(ids))
	for _, id := range ids {
		key := strings.ToLower(strings.TrimSpace(id))
		if key == "" || seen[key] {
			continue
		}
		cal, ok := byID[key]
		if !ok {
			return nil, WrapErrorf(ErrResourceNotFound, "calendar %q", id)
		}
		seen[key] = true
		selected = append(selected, *cal)
	}
	return selected, nil
}

func (s *SyncService) resolveCalendars(ctx context.Context, svc CalendarService, opts SyncOptions) ([]*Calendar, error) {
	var calendars []*Calendar
	if len(opts.Selected) == 0 || opts.AlwaysRefresh {
		listed, err := svc.ListCalendars(ctx)
		if err != nil {
			return nil, remoteError(fmt.Errorf("listing calendars: %w", err))
		}
		calendars = listed
	} else {
		seen := make(map[string]bool, len(opts.Selected))
		for _, sel := range opts.Selected {
			key := strings.ToLower(sel.ID)
			if seen[key] {
				continue
			}
			seen[key] = true
			cal := sel
			calendars = append(calendars, &cal)
		}
	}

	for _, cal := range calendars {
		tag, err := svc.VersionTag(ctx, cal.ID)
		if err != nil {
			return nil, remoteError(fmt.Errorf("reading version of calendar %q: %w", cal.ID, err))
		}
		cal.VersionTag = tag
	}
	return calendars, nil
}

// syncCalendar brings one calendar file up to date and reports whether it was downloaded.
// The tag is recorded only after the file is written and staged.
func (s *SyncService) syncCalendar(ctx context.Context, svc CalendarService, cal *Calendar) (bool, error) {
	fileName := cal.FileName()

	changed, err := s.detector.Changed(cal.ID, cal.VersionTag)
	if err != nil {
		return false, fmt.Errorf("checking calendar %q for changes: %w", cal.ID, err)
	}
	exists, err := s.output.Exists(fileName)
	if err != nil {
		return false, WrapError(ErrTransientIO, fmt.Errorf("checking %s: %w", fileName, err))
	}

	if !changed && exists {
		if err := s.detector.Record(cal.ID, cal.VersionTag); err != nil {
			return false, fmt.Errorf("recording version of calendar %q: %w", cal.ID, err)
		}
		s.logger.Info("calendar is up to date", "calendar", cal.Name)
		return false, nil
	}

	s.logger.Info("downloading calendar", "calendar", cal.Name)
	data, err := svc.Export(ctx, cal.ID)
	if err != nil {
		return false, remoteError(fmt.Errorf("exporting calendar %q: %w", cal.ID, err))
	}

	if err := s.output.WriteFile(fileName, data); err != nil {
		return false, WrapError(ErrTransientIO, fmt.Errorf("writing %s: %w", fileName, err))
	}
	if s.vault != nil {
		if err := s.vault.Stage(fileName); err != nil {
			return false, WrapError(ErrVault, fmt.Errorf("staging %s: %w", fileName, err))
		}
	}

	if err := s.detector.Record(cal.ID, cal.VersionTag); err != nil {
		return false, fmt.Errorf("recording version of calendar %q: %w", cal.ID, err)
	}
	s.logger.Info("saved calendar", "calendar", cal.ID, "file", fileName)
	return true, nil
}

// removeOrphans deletes calendar files on disk that match no resolved calendar.
func (s *SyncService) removeOrphans(calendars []*Calendar) (int, error) {
	expected := make(map[string]bool, len(calendars))
	for _, cal := range calendars {
		expected[cal.FileName()] = true
	}

	onDisk, err := s.output.ListFiles(FileExtension)
	if err != nil {
		return 0, WrapError(ErrTransientIO, fmt.Errorf("listing calendar files: %w", err))
	}

	removed := 0
	for _, name := range onDisk {
		if expected[strings.ToLower(name)] {
			continue
		}
		if s.vault != nil {
			if err := s.vault.UnstageAndDelete(name); err != nil {
				return removed, WrapError(ErrVault, fmt.Errorf("removing %s: %w", name, err))
			}
		}
		if err := s.output.Remove(name); err != nil {
			return removed, WrapError(ErrTransientIO, fmt.Errorf("removing %s: %w", name, err))
		}
		s.logger.Info("removed file", "file", name)
		removed++
	}
	return removed, nil
}

// mirrorFiles uploads fetched files to the mirror. Failures are logged and skipped.
func (s *SyncService) mirrorFiles(ctx context.Context, fileNames []string) int {
	mirrored := 0
	for _, name := range fileNames {
		if err := s.mirrorFile(ctx, name); err != nil {
			s.logger.Warn("mirror upload failed", "file", name, "error", err)
			continue
		}
		mirrored++
	}
	return mirrored
}

func (s *SyncService) mirrorFile(ctx context.Context, name string) error {
	r, size, err := s.output.Open(name)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer r.Close()

	if err := s.mirror.Put(ctx, name, r, size); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	return nil
}

// remoteError tags provider failures as transient unless they already carry a sentinel.
func remoteError(err error) error {
	if errors.Is(err, ErrResourceNotFound) || errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrTransientIO) {
		return err
	}
	return WrapError(ErrTransientIO, err)
}
