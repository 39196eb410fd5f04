package vault

import (
	"context"
	"errors"
	"fmt"
	"os"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// DefaultSSHUser is used for remotes whose URL names no user.
const DefaultSSHUser = "git"

// PushConfigured reports whether an SSH key is available for pushing.
func (v *GitVault) PushConfigured() bool {
	if v.opts.SSHKeyPath == "" {
		return false
	}
	info, err := os.Stat(v.opts.SSHKeyPath)
	return err == nil && !info.IsDir()
}

// Push pushes the current branch to every configured remote. It returns
// false without error when no SSH key is configured or the repository has no
// remotes. Host keys are not verified.
func (v *GitVault) Push(ctx context.Context) (bool, error) {
	if !v.PushConfigured() {
		v.opts.Logger.Debug("push skipped, no ssh key", "path", v.opts.SSHKeyPath)
		return false, nil
	}

	remotes, err := v.repo.Remotes()
	if err != nil {
		return false, fmt.Errorf("listing remotes: %w", err)
	}
	if len(remotes) == 0 {
		v.opts.Logger.Warn("push skipped, vault has no remotes", "dir", v.dir)
		return false, nil
	}

	for _, remote := range remotes {
		cfg := remote.Config()
		if len(cfg.URLs) == 0 {
			continue
		}
		auth, err := v.authFor(cfg.URLs[0])
		if err != nil {
			return false, fmt.Errorf("preparing auth for remote %s: %w", cfg.Name, err)
		}

		err = v.repo.PushContext(ctx, &gogit.PushOptions{
			RemoteName: cfg.Name,
			Auth:       auth,
		})
		switch {
		case errors.Is(err, gogit.NoErrAlreadyUpToDate):
			v.opts.Logger.Debug("remote already up to date", "remote", cfg.Name)
		case err != nil:
			return false, fmt.Errorf("pushing to %s: %w", cfg.Name, err)
		default:
			v.opts.Logger.Info("pushed vault", "remote", cfg.Name)
		}
	}
	return true, nil
}

// authFor returns public-key auth for ssh remotes and nil for every other transport.
func (v *GitVault) authFor(url string) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, fmt.Errorf("parsing remote url: %w", err)
	}
	if ep.Protocol != "ssh" {
		return nil, nil
	}

	user := ep.User
	if user == "" {
		user = DefaultSSHUser
	}
	keys, err := ssh.NewPublicKeysFromFile(user, v.opts.SSHKeyPath, "")
	if err != nil {
		return nil, fmt.Errorf("loading ssh key %s: %w", v.opts.SSHKeyPath, err)
	}
	keys.HostKeyCallback = gossh.InsecureIgnoreHostKey()
	return keys, nil
}
