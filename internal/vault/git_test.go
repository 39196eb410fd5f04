package vault_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gcalvault/internal/changes"
	"gcalvault/internal/fs"
	"gcalvault/internal/gcalvault"
	"gcalvault/internal/testutil"
	"gcalvault/internal/vault"
)

func newTestVault(t *testing.T, dir string, opts vault.Options) *vault.GitVault {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = testutil.NewClock()
	}
	v, err := vault.NewGitVault("test", dir, []string{".ics"}, opts)
	require.NoError(t, err)
	return v
}

func headCommit(t *testing.T, v *vault.GitVault) *object.Commit {
	t.Helper()
	ref, err := v.Repository().Head()
	require.NoError(t, err)
	c, err := v.Repository().CommitObject(ref.Hash())
	require.NoError(t, err)
	return c
}

func commitCount(t *testing.T, v *vault.GitVault) int {
	t.Helper()
	iter, err := v.Repository().Log(&gogit.LogOptions{})
	require.NoError(t, err)
	n := 0
	require.NoError(t, iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	}))
	return n
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestIgnorePatterns(t *testing.T) {
	assert.Equal(t, "*\n!.gitignore\n!*.ics\n", vault.IgnorePatterns([]string{".ics"}))
	assert.Equal(t, "*\n!.gitignore\n!*.ics\n!*.vcf\n", vault.IgnorePatterns([]string{"ics", ".vcf"}))
}

func TestNewGitVault_InitializesRepository(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	v := newTestVault(t, dir, vault.Options{})

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "*\n!.gitignore\n!*.ics\n", string(data))

	head := headCommit(t, v)
	assert.Equal(t, vault.InitialCommitMessage, head.Message)
	assert.Equal(t, vault.DefaultAuthorName, head.Author.Name)
	assert.Equal(t, 1, commitCount(t, v))

	_, err = head.File(".gitignore")
	assert.NoError(t, err, ".gitignore should be committed")

	assert.NoError(t, v.ValidateSetup())
}

func TestNewGitVault_ReopensExistingRepository(t *testing.T) {
	dir := t.TempDir()
	first := newTestVault(t, dir, vault.Options{})
	writeFile(t, dir, "a.ics", "A")
	require.NoError(t, first.Stage("a.ics"))
	_, err := first.Commit("sync")
	require.NoError(t, err)

	second := newTestVault(t, dir, vault.Options{})
	assert.Equal(t, 2, commitCount(t, second), "reopening must not add commits")
	assert.Equal(t, "sync", headCommit(t, second).Message)
}

func TestNewGitVault_CompletesInterruptedInit(t *testing.T) {
	t.Run("unborn repository", func(t *testing.T) {
		dir := t.TempDir()
		_, err := gogit.PlainInit(dir, false)
		require.NoError(t, err)

		v := newTestVault(t, dir, vault.Options{})
		data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
		require.NoError(t, err)
		assert.Equal(t, "*\n!.gitignore\n!*.ics\n", string(data))
		assert.Equal(t, vault.InitialCommitMessage, headCommit(t, v).Message)
		assert.Equal(t, 1, commitCount(t, v))
	})

	t.Run("ignore file deleted", func(t *testing.T) {
		dir := t.TempDir()
		first := newTestVault(t, dir, vault.Options{})
		writeFile(t, dir, "a.ics", "A")
		require.NoError(t, first.Stage("a.ics"))
		_, err := first.Commit("sync")
		require.NoError(t, err)
		require.NoError(t, os.Remove(filepath.Join(dir, ".gitignore")))

		second := newTestVault(t, dir, vault.Options{})
		_, err = os.Stat(filepath.Join(dir, ".gitignore"))
		assert.NoError(t, err)
		assert.Equal(t, 2, commitCount(t, second), "restoring the committed ignore file adds no commit")
	})
}

func TestGitVault_Commit(t *testing.T) {
	dir := t.TempDir()
	clock := testutil.NewClock()
	v := newTestVault(t, dir, vault.Options{
		AuthorName:  "Backup Bot",
		AuthorEmail: "bot@example.com",
		Clock:       clock,
	})

	writeFile(t, dir, "a.ics", "A")
	writeFile(t, dir, "b.ics", "B")
	require.NoError(t, v.Stage("a.ics"))
	require.NoError(t, v.Stage("b.ics"))
	require.NoError(t, v.Stage("b.ics"), "staging twice is harmless")

	changed, err := v.Commit("gcalvault sync on 2024-01-15 10:30:00 UTC")
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	head := headCommit(t, v)
	assert.Equal(t, "gcalvault sync on 2024-01-15 10:30:00 UTC", head.Message)
	assert.Equal(t, "Backup Bot", head.Author.Name)
	assert.Equal(t, "bot@example.com", head.Author.Email)
	assert.True(t, head.Author.When.Equal(clock.Now()), "author time = %v", head.Author.When)

	t.Run("no changes creates no commit", func(t *testing.T) {
		changed, err := v.Commit("empty")
		require.NoError(t, err)
		assert.Equal(t, 0, changed)
		assert.Equal(t, 2, commitCount(t, v))
	})

	t.Run("restaging identical content creates no commit", func(t *testing.T) {
		writeFile(t, dir, "a.ics", "A")
		require.NoError(t, v.Stage("a.ics"))
		changed, err := v.Commit("identical")
		require.NoError(t, err)
		assert.Equal(t, 0, changed)
		assert.Equal(t, 2, commitCount(t, v))
	})

	t.Run("modified file", func(t *testing.T) {
		writeFile(t, dir, "a.ics", "A2")
		require.NoError(t, v.Stage("a.ics"))
		changed, err := v.Commit("modified")
		require.NoError(t, err)
		assert.Equal(t, 1, changed)
		assert.Equal(t, 3, commitCount(t, v))
	})

	t.Run("unstaged files are not counted", func(t *testing.T) {
		writeFile(t, dir, "c.ics", "C")
		writeFile(t, dir, "notes.txt", "ignored")
		changed, err := v.Commit("nothing staged")
		require.NoError(t, err)
		assert.Equal(t, 0, changed)
	})
}

func TestGitVault_UnstageAndDelete(t *testing.T) {
	dir := t.TempDir()
	v := newTestVault(t, dir, vault.Options{})

	writeFile(t, dir, "keep.ics", "K")
	writeFile(t, dir, "gone.ics", "G")
	require.NoError(t, v.Stage("keep.ics"))
	require.NoError(t, v.Stage("gone.ics"))
	_, err := v.Commit("initial")
	require.NoError(t, err)

	t.Run("tracked file", func(t *testing.T) {
		require.NoError(t, v.UnstageAndDelete("gone.ics"))
		_, err := os.Stat(filepath.Join(dir, "gone.ics"))
		assert.True(t, os.IsNotExist(err), "file should be deleted from the working tree")

		changed, err := v.Commit("remove")
		require.NoError(t, err)
		assert.Equal(t, 1, changed)

		head := headCommit(t, v)
		_, err = head.File("gone.ics")
		assert.ErrorIs(t, err, object.ErrFileNotFound)
		_, err = head.File("keep.ics")
		assert.NoError(t, err)
	})

	t.Run("untracked file is deleted", func(t *testing.T) {
		writeFile(t, dir, "stray.ics", "S")
		require.NoError(t, v.UnstageAndDelete("stray.ics"))
		_, err := os.Stat(filepath.Join(dir, "stray.ics"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		assert.NoError(t, v.UnstageAndDelete("never-existed.ics"))
	})
}

func TestGitVault_Push(t *testing.T) {
	t.Run("no key configured", func(t *testing.T) {
		v := newTestVault(t, t.TempDir(), vault.Options{})
		assert.False(t, v.PushConfigured())
		pushed, err := v.Push(context.Background())
		require.NoError(t, err)
		assert.False(t, pushed)
	})

	t.Run("key path missing", func(t *testing.T) {
		v := newTestVault(t, t.TempDir(), vault.Options{SSHKeyPath: filepath.Join(t.TempDir(), "ssh-key")})
		pushed, err := v.Push(context.Background())
		require.NoError(t, err)
		assert.False(t, pushed)
	})

	t.Run("no remotes", func(t *testing.T) {
		keyPath := filepath.Join(t.TempDir(), "ssh-key")
		require.NoError(t, os.WriteFile(keyPath, []byte("not a real key"), 0600))
		v := newTestVault(t, t.TempDir(), vault.Options{SSHKeyPath: keyPath})
		assert.True(t, v.PushConfigured())

		pushed, err := v.Push(context.Background())
		require.NoError(t, err)
		assert.False(t, pushed)
	})

	t.Run("unreadable key for ssh remote", func(t *testing.T) {
		keyPath := filepath.Join(t.TempDir(), "ssh-key")
		require.NoError(t, os.WriteFile(keyPath, []byte("not a real key"), 0600))
		v := newTestVault(t, t.TempDir(), vault.Options{SSHKeyPath: keyPath})
		_, err := v.Repository().CreateRemote(&config.RemoteConfig{
			Name: "origin",
			URLs: []string{"git@example.invalid:backup/calendars.git"},
		})
		require.NoError(t, err)

		pushed, err := v.Push(context.Background())
		assert.Error(t, err)
		assert.False(t, pushed)
	})
}

// A clean sync against a real vault removes exactly the orphaned file and
// commits that single change.
func TestCleanSync_RemovesOrphanFromVault(t *testing.T) {
	dir := t.TempDir()
	v := newTestVault(t, dir, vault.Options{})
	output, err := fs.NewOutputStore(dir)
	require.NoError(t, err)

	remote := testutil.NewFakeCalendarService()
	remote.AddCalendar("work@example.com", "Work", gcalvault.RoleOwner, "w1", []byte("BEGIN:VCALENDAR\nwork\nEND:VCALENDAR\n"))
	remote.AddCalendar("old@example.com", "Old", gcalvault.RoleReader, "o1", []byte("BEGIN:VCALENDAR\nold\nEND:VCALENDAR\n"))

	svc := gcalvault.NewSyncService(
		&testutil.StubCredentialSource{Identity: "user@example.com"},
		&testutil.FakeConnector{Service: remote},
		changes.NewDetector(changes.NewMemoryStore()),
		v,
		nil,
		output,
		gcalvault.NewNopLogger(),
		testutil.NewClock(),
	)
	ctx := context.Background()

	report, err := svc.Sync(ctx, gcalvault.SyncOptions{Identity: "user@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Changes)

	t.Run("unchanged pass creates no commit", func(t *testing.T) {
		report, err := svc.Sync(ctx, gcalvault.SyncOptions{Identity: "user@example.com"})
		require.NoError(t, err)
		assert.Equal(t, 2, report.Skipped)
		assert.Equal(t, 0, report.Changes)
		assert.False(t, report.Committed)
		assert.Equal(t, 2, commitCount(t, v))
	})

	t.Run("orphan removed", func(t *testing.T) {
		remote.RemoveCalendar("old@example.com")

		report, err := svc.Sync(ctx, gcalvault.SyncOptions{Identity: "user@example.com", Clean: true})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Removed)
		assert.Equal(t, 1, report.Changes)

		_, err = os.Stat(filepath.Join(dir, "old@example.com.ics"))
		assert.True(t, os.IsNotExist(err))

		head := headCommit(t, v)
		assert.Equal(t, "gcalvault sync on 2024-01-15 10:30:00 UTC", head.Message)
		_, err = head.File("old@example.com.ics")
		assert.ErrorIs(t, err, object.ErrFileNotFound)
		_, err = head.File("work@example.com.ics")
		assert.NoError(t, err)
	})
}
