package vault

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	gogitfs "github.com/go-git/go-git/v5/storage/filesystem"

	"gcalvault/internal/gcalvault"
)

// IgnoreFile is the name of the ignore file written into a new vault.
const IgnoreFile = ".gitignore"

// InitialCommitMessage is the message of the commit that adds the ignore file.
const InitialCommitMessage = "Add .gitignore"

// Commit author used when none is configured.
const (
	DefaultAuthorName  = "gcalvault"
	DefaultAuthorEmail = "gcalvault@localhost"
)

// Options configures a GitVault.
type Options struct {
	// SSHKeyPath is the private key used for pushing. Empty or missing disables push.
	SSHKeyPath  string
	AuthorName  string
	AuthorEmail string

	Clock  gcalvault.Clock
	Logger gcalvault.Logger
}

// GitVault is a git working tree holding calendar files.
// Only the ignore file and files with one of the tracked extensions are versioned.
type GitVault struct {
	name string
	dir  string
	opts Options

	fs       billy.Filesystem
	repo     *gogit.Repository
	worktree *gogit.Worktree
}

var _ gcalvault.Vault = (*GitVault)(nil)

// NewGitVault opens the repository at dir, initializing it when dir is not a
// git working tree yet. A repository without commits or without an ignore
// file gets one that excludes everything except itself and the given
// extensions, committed as the first commit.
func NewGitVault(name, dir string, extensions []string, opts Options) (*GitVault, error) {
	if opts.Clock == nil {
		opts.Clock = gcalvault.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = gcalvault.NewNopLogger()
	}
	if opts.AuthorName == "" {
		opts.AuthorName = DefaultAuthorName
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = DefaultAuthorEmail
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("creating vault directory: %w", err))
	}

	repoFS := osfs.New(dir)
	if err := repoFS.MkdirAll(gogit.GitDirName, 0755); err != nil {
		return nil, gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("creating .git directory: %w", err))
	}
	dotGitFS, err := repoFS.Chroot(gogit.GitDirName)
	if err != nil {
		return nil, gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("chroot .git directory: %w", err))
	}
	storage := gogitfs.NewStorage(dotGitFS, cache.NewObjectLRUDefault())

	fresh := true
	repo, err := gogit.Init(storage, repoFS)
	if errors.Is(err, gogit.ErrRepositoryAlreadyExists) {
		fresh = false
		repo, err = gogit.Open(storage, repoFS)
	}
	if err != nil {
		return nil, gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("opening repository at %s: %w", dir, err))
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("getting worktree: %w", err))
	}

	v := &GitVault{
		name:     name,
		dir:      dir,
		opts:     opts,
		fs:       repoFS,
		repo:     repo,
		worktree: wt,
	}

	bootstrap := fresh
	if !bootstrap {
		if bootstrap, err = v.needsBootstrap(); err != nil {
			return nil, err
		}
	}
	if bootstrap {
		if err := v.writeIgnoreFile(extensions); err != nil {
			return nil, err
		}
		opts.Logger.Info("initialized vault repository", "dir", dir, "fresh", fresh)
	}
	return v, nil
}

// needsBootstrap reports whether an existing repository was left unborn or
// lost its ignore file, as after an interrupted initialization.
func (v *GitVault) needsBootstrap() (bool, error) {
	if _, err := v.repo.Head(); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return true, nil
		}
		return false, gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("reading HEAD: %w", err))
	}
	if _, err := v.fs.Stat(IgnoreFile); err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("checking %s: %w", IgnoreFile, err))
	}
	return false, nil
}

// IgnorePatterns returns the ignore file content for the given extensions.
func IgnorePatterns(extensions []string) string {
	var b strings.Builder
	b.WriteString("*\n")
	b.WriteString("!" + IgnoreFile + "\n")
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		b.WriteString("!*" + ext + "\n")
	}
	return b.String()
}

func (v *GitVault) writeIgnoreFile(extensions []string) error {
	if err := util.WriteFile(v.fs, IgnoreFile, []byte(IgnorePatterns(extensions)), 0644); err != nil {
		return gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("writing %s: %w", IgnoreFile, err))
	}
	if err := v.Stage(IgnoreFile); err != nil {
		return err
	}
	if _, err := v.Commit(InitialCommitMessage); err != nil {
		return err
	}
	return nil
}

// Name returns the vault's name.
func (v *GitVault) Name() string {
	return v.name
}

// Dir returns the working tree directory.
func (v *GitVault) Dir() string {
	return v.dir
}

// Repository exposes the underlying go-git repository.
func (v *GitVault) Repository() *gogit.Repository {
	return v.repo
}

// Stage adds fileName to the index.
func (v *GitVault) Stage(fileName string) error {
	if _, err := v.worktree.Add(fileName); err != nil {
		return fmt.Errorf("staging %s: %w", fileName, err)
	}
	return nil
}

// UnstageAndDelete removes fileName from the index and the working tree.
// Untracked files are only deleted.
func (v *GitVault) UnstageAndDelete(fileName string) error {
	if _, err := v.worktree.Remove(fileName); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
		return fmt.Errorf("removing %s from index: %w", fileName, err)
	}
	if err := v.fs.Remove(fileName); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", fileName, err)
	}
	return nil
}

// Commit records the staged changes. It returns the number of staged paths
// that differ from HEAD and creates no commit when that number is zero.
func (v *GitVault) Commit(message string) (int, error) {
	status, err := v.worktree.Status()
	if err != nil {
		return 0, gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("reading status: %w", err))
	}

	changed := 0
	for _, s := range status {
		if s.Staging != gogit.Unmodified && s.Staging != gogit.Untracked {
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}

	_, err = v.worktree.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  v.opts.AuthorName,
			Email: v.opts.AuthorEmail,
			When:  v.opts.Clock.Now(),
		},
	})
	if err != nil {
		return 0, gcalvault.WrapError(gcalvault.ErrVault, fmt.Errorf("committing: %w", err))
	}
	return changed, nil
}

// ValidateSetup verifies that the working tree is accessible.
func (v *GitVault) ValidateSetup() error {
	info, err := os.Stat(v.dir)
	if err != nil {
		return fmt.Errorf("vault directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", v.dir)
	}
	if _, err := v.worktree.Status(); err != nil {
		return fmt.Errorf("vault repository not readable: %w", err)
	}
	return nil
}
