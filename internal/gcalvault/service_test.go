package gcalvault_test

import (
	"context"
	"errors"
	"testing"

	"gcalvault/internal/changes"
	"gcalvault/internal/gcalvault"
	"gcalvault/internal/testutil"
)

const testIdentity = "user@example.com"

type syncFixture struct {
	remote   *testutil.FakeCalendarService
	creds    *testutil.StubCredentialSource
	detector *changes.Detector
	vault    *testutil.FakeVault
	output   *testutil.MockOutputStore
	clock    *testutil.Clock
}

func newSyncFixture() *syncFixture {
	remote := testutil.NewFakeCalendarService()
	remote.AddCalendar("Primary@Example.com", "Primary", gcalvault.RoleOwner, "etag-1", []byte("BEGIN:VCALENDAR\nprimary\nEND:VCALENDAR\n"))
	remote.AddCalendar("holidays@group.v.calendar.google.com", "Holidays", gcalvault.RoleReader, "etag-2", []byte("BEGIN:VCALENDAR\nholidays\nEND:VCALENDAR\n"))
	return &syncFixture{
		remote:   remote,
		creds:    &testutil.StubCredentialSource{Identity: testIdentity},
		detector: changes.NewDetector(changes.NewMemoryStore()),
		vault:    testutil.NewFakeVault(),
		output:   testutil.NewMockOutputStore(),
		clock:    testutil.NewClock(),
	}
}

func (f *syncFixture) service(vault gcalvault.Vault, mirror gcalvault.Mirror) *gcalvault.SyncService {
	return gcalvault.NewSyncService(
		f.creds,
		&testutil.FakeConnector{Service: f.remote},
		f.detector,
		vault,
		mirror,
		f.output,
		gcalvault.NewNopLogger(),
		f.clock,
	)
}

func TestSync_FirstPassFetchesEverything(t *testing.T) {
	f := newSyncFixture()
	svc := f.service(f.vault, nil)

	report, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: testIdentity})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if report.Fetched != 2 || report.Skipped != 0 {
		t.Errorf("Fetched/Skipped = %d/%d, want 2/0", report.Fetched, report.Skipped)
	}
	if !report.Committed || report.Changes != 2 {
		t.Errorf("Committed/Changes = %v/%d, want true/2", report.Committed, report.Changes)
	}

	content, ok := f.output.Content("primary@example.com.ics")
	if !ok {
		t.Fatal("primary@example.com.ics was not written")
	}
	if string(content) != "BEGIN:VCALENDAR\nprimary\nEND:VCALENDAR\n" {
		t.Errorf("content = %q", content)
	}
	if _, ok := f.output.Content("holidays@group.v.calendar.google.com.ics"); !ok {
		t.Error("holidays calendar was not written")
	}

	if len(f.vault.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(f.vault.Messages))
	}
	if want := "gcalvault sync on 2024-01-15 10:30:00 UTC"; f.vault.Messages[0] != want {
		t.Errorf("commit message = %q, want %q", f.vault.Messages[0], want)
	}
}

func TestSync_UnchangedCalendarsAreSkipped(t *testing.T) {
	f := newSyncFixture()
	svc := f.service(f.vault, nil)
	ctx := context.Background()
	opts := gcalvault.SyncOptions{Identity: testIdentity}

	if _, err := svc.Sync(ctx, opts); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	f.remote.ExportCalls = nil

	report, err := svc.Sync(ctx, opts)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}

	if report.Fetched != 0 || report.Skipped != 2 {
		t.Errorf("Fetched/Skipped = %d/%d, want 0/2", report.Fetched, report.Skipped)
	}
	if len(f.remote.ExportCalls) != 0 {
		t.Errorf("ExportCalls = %v, want none", f.remote.ExportCalls)
	}
	if report.Committed || report.Changes != 0 {
		t.Errorf("Committed/Changes = %v/%d, want false/0", report.Committed, report.Changes)
	}
	if len(f.vault.Messages) != 1 {
		t.Errorf("len(Messages) = %d, want 1 (no empty commit)", len(f.vault.Messages))
	}
}

func TestSync_ChangedTagRefetchesOnlyThatCalendar(t *testing.T) {
	f := newSyncFixture()
	svc := f.service(f.vault, nil)
	ctx := context.Background()
	opts := gcalvault.SyncOptions{Identity: testIdentity}

	if _, err := svc.Sync(ctx, opts); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	f.remote.ExportCalls = nil
	f.remote.SetTag("Primary@Example.com", "etag-1b", []byte("updated"))

	report, err := svc.Sync(ctx, opts)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}

	if report.Fetched != 1 || report.Skipped != 1 {
		t.Errorf("Fetched/Skipped = %d/%d, want 1/1", report.Fetched, report.Skipped)
	}
	if len(f.remote.ExportCalls) != 1 || f.remote.ExportCalls[0] != "Primary@Example.com" {
		t.Errorf("ExportCalls = %v, want [Primary@Example.com]", f.remote.ExportCalls)
	}
	content, _ := f.output.Content("primary@example.com.ics")
	if string(content) != "updated" {
		t.Errorf("content = %q, want %q", content, "updated")
	}
	if report.Changes != 1 {
		t.Errorf("Changes = %d, want 1", report.Changes)
	}
}

func TestSync_MissingFileIsRefetchedEvenWhenTagUnchanged(t *testing.T) {
	f := newSyncFixture()
	svc := f.service(f.vault, nil)
	ctx := context.Background()
	opts := gcalvault.SyncOptions{Identity: testIdentity}

	if _, err := svc.Sync(ctx, opts); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	if err := f.output.Remove("primary@example.com.ics"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	report, err := svc.Sync(ctx, opts)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if report.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1", report.Fetched)
	}
	if _, ok := f.output.Content("primary@example.com.ics"); !ok {
		t.Error("file was not restored")
	}
}

func TestSync_FailedExportKeepsPreviousTag(t *testing.T) {
	f := newSyncFixture()
	svc := f.service(f.vault, nil)
	ctx := context.Background()
	opts := gcalvault.SyncOptions{Identity: testIdentity}

	if _, err := svc.Sync(ctx, opts); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}

	f.remote.SetTag("Primary@Example.com", "etag-1b", []byte("updated"))
	f.remote.ExportErr["Primary@Example.com"] = errors.New("connection reset")

	_, err := svc.Sync(ctx, opts)
	if !errors.Is(err, gcalvault.ErrTransientIO) {
		t.Fatalf("Sync() error = %v, want ErrTransientIO", err)
	}

	changed, err := f.detector.Changed("Primary@Example.com", "etag-1b")
	if err != nil {
		t.Fatalf("Changed() error = %v", err)
	}
	if !changed {
		t.Error("tag was recorded even though the export failed")
	}

	delete(f.remote.ExportErr, "Primary@Example.com")
	report, err := svc.Sync(ctx, opts)
	if err != nil {
		t.Fatalf("retry Sync() error = %v", err)
	}
	if report.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1", report.Fetched)
	}
}

func TestSync_FailedWriteKeepsPreviousTag(t *testing.T) {
	f := newSyncFixture()
	f.output.WriteErr = errors.New("disk full")
	svc := f.service(f.vault, nil)

	_, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: testIdentity})
	if !errors.Is(err, gcalvault.ErrTransientIO) {
		t.Fatalf("Sync() error = %v, want ErrTransientIO", err)
	}
	changed, _ := f.detector.Changed("Primary@Example.com", "etag-1")
	if !changed {
		t.Error("tag recorded for a file that was never written")
	}
	if len(f.vault.Messages) != 0 {
		t.Errorf("commits = %v, want none", f.vault.Messages)
	}
}

func TestSync_ExcludedRoles(t *testing.T) {
	f := newSyncFixture()
	svc := f.service(f.vault, nil)

	report, err := svc.Sync(context.Background(), gcalvault.SyncOptions{
		Identity:      testIdentity,
		ExcludedRoles: []string{"reader"},
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1", report.Fetched)
	}
	if _, ok := f.output.Content("holidays@group.v.calendar.google.com.ics"); ok {
		t.Error("reader calendar should have been excluded")
	}
}

func TestSync_SelectedCalendarsSkipListing(t *testing.T) {
	f := newSyncFixture()
	svc := f.service(f.vault, nil)

	report, err := svc.Sync(context.Background(), gcalvault.SyncOptions{
		Identity: testIdentity,
		Selected: []gcalvault.Calendar{
			{ID: "Primary@Example.com", Name: "Primary", AccessRole: gcalvault.RoleOwner},
			{ID: "primary@example.com", Name: "Primary", AccessRole: gcalvault.RoleOwner},
		},
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if f.remote.ListCalls != 0 {
		t.Errorf("ListCalls = %d, want 0", f.remote.ListCalls)
	}
	if report.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1", report.Fetched)
	}
	if len(f.remote.TagCalls) != 1 {
		t.Errorf("TagCalls = %v, want one call", f.remote.TagCalls)
	}
}

func TestSync_AlwaysRefreshIgnoresSelection(t *testing.T) {
	f := newSyncFixture()
	svc := f.service(f.vault, nil)

	report, err := svc.Sync(context.Background(), gcalvault.SyncOptions{
		Identity:      testIdentity,
		Selected:      []gcalvault.Calendar{{ID: "Primary@Example.com"}},
		AlwaysRefresh: true,
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if f.remote.ListCalls != 1 {
		t.Errorf("ListCalls = %d, want 1", f.remote.ListCalls)
	}
	if report.Fetched != 2 {
		t.Errorf("Fetched = %d, want 2", report.Fetched)
	}
}

func TestSync_MissingSelectedCalendar(t *testing.T) {
	f := newSyncFixture()
	svc := f.service(f.vault, nil)

	_, err := svc.Sync(context.Background(), gcalvault.SyncOptions{
		Identity: testIdentity,
		Selected: []gcalvault.Calendar{{ID: "gone@example.com"}},
	})
	if !errors.Is(err, gcalvault.ErrResourceNotFound) {
		t.Errorf("Sync() error = %v, want ErrResourceNotFound", err)
	}
}

func TestSync_CleanRemovesOrphans(t *testing.T) {
	f := newSyncFixture()
	f.output.AddFile("old-calendar@example.com.ics", []byte("stale"))
	f.output.AddFile("notes.txt", []byte("keep"))
	svc := f.service(f.vault, nil)

	report, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: testIdentity, Clean: true})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if report.Removed != 1 {
		t.Errorf("Removed = %d, want 1", report.Removed)
	}
	if _, ok := f.output.Content("old-calendar@example.com.ics"); ok {
		t.Error("orphan was not deleted")
	}
	if _, ok := f.output.Content("notes.txt"); !ok {
		t.Error("non-calendar file was deleted")
	}
	if len(f.vault.Removed) != 1 || f.vault.Removed[0] != "old-calendar@example.com.ics" {
		t.Errorf("vault.Removed = %v", f.vault.Removed)
	}
}

func TestSync_CleanKeepsExcludedCalendarsFiles(t *testing.T) {
	f := newSyncFixture()
	f.output.AddFile("holidays@group.v.calendar.google.com.ics", []byte("old copy"))
	svc := f.service(f.vault, nil)

	report, err := svc.Sync(context.Background(), gcalvault.SyncOptions{
		Identity:      testIdentity,
		ExcludedRoles: []string{"reader"},
		Clean:         true,
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Removed != 0 {
		t.Errorf("Removed = %d, want 0", report.Removed)
	}
}

func TestSync_WithoutCleanOrphansStay(t *testing.T) {
	f := newSyncFixture()
	f.output.AddFile("old-calendar@example.com.ics", []byte("stale"))
	svc := f.service(f.vault, nil)

	if _, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: testIdentity}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if _, ok := f.output.Content("old-calendar@example.com.ics"); !ok {
		t.Error("orphan deleted without clean")
	}
}

func TestSync_ExportOnly(t *testing.T) {
	f := newSyncFixture()
	f.output.AddFile("orphan@example.com.ics", []byte("stale"))
	svc := f.service(nil, nil)

	report, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: testIdentity, Clean: true, Push: true})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Fetched != 2 || report.Removed != 1 {
		t.Errorf("Fetched/Removed = %d/%d, want 2/1", report.Fetched, report.Removed)
	}
	if report.Committed || report.Pushed {
		t.Errorf("Committed/Pushed = %v/%v, want false/false", report.Committed, report.Pushed)
	}
	if _, ok := f.output.Content("orphan@example.com.ics"); ok {
		t.Error("orphan was not deleted")
	}
}

func TestSync_AuthenticationErrors(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		creds    *testutil.StubCredentialSource
		wantErr  error
	}{
		{
			name:     "empty identity",
			identity: "  ",
			creds:    &testutil.StubCredentialSource{},
			wantErr:  gcalvault.ErrConfiguration,
		},
		{
			name:     "authorization failure",
			identity: testIdentity,
			creds:    &testutil.StubCredentialSource{Fail: true},
			wantErr:  gcalvault.ErrAuthenticationFailed,
		},
		{
			name:     "identity mismatch",
			identity: testIdentity,
			creds:    &testutil.StubCredentialSource{Identity: "someone@else.com"},
			wantErr:  gcalvault.ErrIdentityMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture()
			f.creds = tt.creds
			svc := f.service(f.vault, nil)

			_, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: tt.identity})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Sync() error = %v, want %v", err, tt.wantErr)
			}
			if len(f.vault.Messages) != 0 || len(f.remote.ExportCalls) != 0 {
				t.Error("pass continued after authentication failure")
			}
		})
	}
}

func TestSync_IdentityIsNormalized(t *testing.T) {
	f := newSyncFixture()
	svc := f.service(f.vault, nil)

	if _, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: "  User@Example.COM "}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
}

func TestSync_Push(t *testing.T) {
	t.Run("pushes when requested", func(t *testing.T) {
		f := newSyncFixture()
		svc := f.service(f.vault, nil)
		report, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: testIdentity, Push: true})
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if !report.Pushed || f.vault.Pushes != 1 {
			t.Errorf("Pushed/Pushes = %v/%d, want true/1", report.Pushed, f.vault.Pushes)
		}
	})

	t.Run("push failure is not fatal", func(t *testing.T) {
		f := newSyncFixture()
		f.vault.PushErr = errors.New("remote hung up")
		svc := f.service(f.vault, nil)
		report, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: testIdentity, Push: true})
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if report.Pushed {
			t.Error("Pushed = true after failure")
		}
		if !report.Committed {
			t.Error("Committed = false, want true")
		}
	})

	t.Run("no push unless requested", func(t *testing.T) {
		f := newSyncFixture()
		svc := f.service(f.vault, nil)
		if _, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: testIdentity}); err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if f.vault.Pushes != 0 {
			t.Errorf("Pushes = %d, want 0", f.vault.Pushes)
		}
	})
}

func TestSync_CommitFailureIsVaultError(t *testing.T) {
	f := newSyncFixture()
	f.vault.CommitErr = errors.New("index locked")
	svc := f.service(f.vault, nil)

	_, err := svc.Sync(context.Background(), gcalvault.SyncOptions{Identity: testIdentity})
	if !errors.Is(err, gcalvault.ErrVault) {
		t.Errorf("Sync() error = %v, want ErrVault", err)
	}
}

func TestSync_MirrorsFetchedFiles(t *testing.T) {
	f := newSyncFixture()
	m := testutil.NewTestMirror()
	svc := f.service(f.vault, m)
	ctx := context.Background()

	report, err := svc.Sync(ctx, gcalvault.SyncOptions{Identity: testIdentity})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Mirrored != 2 {
		t.Errorf("Mirrored = %d, want 2", report.Mirrored)
	}
	if !m.Has("primary@example.com.ics") {
		t.Error("mirror is missing primary@example.com.ics")
	}

	report, err = svc.Sync(ctx, gcalvault.SyncOptions{Identity: testIdentity})
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if report.Mirrored != 0 {
		t.Errorf("Mirrored = %d on unchanged pass, want 0", report.Mirrored)
	}
}

func TestResolveSelection(t *testing.T) {
	available := []*gcalvault.Calendar{
		{ID: "a@example.com", Name: "A", AccessRole: gcalvault.RoleOwner},
		{ID: "B@example.com", Name: "B", AccessRole: gcalvault.RoleReader},
	}

	t.Run("dedupes case-insensitively", func(t *testing.T) {
		got, err := gcalvault.ResolveSelection(available, []string{"a@example.com", "b@example.com", "A@example.com"})
		if err != nil {
			t.Fatalf("ResolveSelection() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if got[1].ID != "B@example.com" || got[1].Name != "B" {
			t.Errorf("got[1] = %+v", got[1])
		}
	})

	t.Run("unknown calendar", func(t *testing.T) {
		_, err := gcalvault.ResolveSelection(available, []string{"c@example.com"})
		if !errors.Is(err, gcalvault.ErrResourceNotFound) {
			t.Errorf("error = %v, want ErrResourceNotFound", err)
		}
	})
}
