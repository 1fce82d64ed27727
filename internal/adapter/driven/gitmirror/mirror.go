// Package gitmirror keeps local mirrors of remote repositories in sync and
// reads commits and diffs out of them.
//
// Network operations (clone, fetch, unshallow) shell out to the git binary,
// because go-git cannot unshallow a repository. Everything else goes through
// go-git.
package gitmirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// SupportsSSHKeyAuth reports whether the mirror manages SSH key material.
// It does not: ssh_key repositories are fetched with whatever identity the
// host's ssh configuration provides, in batch mode.
const SupportsSSHKeyAuth = false

const (
	remoteName    = "origin"
	fullRefSpec   = "+refs/heads/*:refs/remotes/origin/*"
	defaultGitBin = "git"
)

// Compile-time interface satisfaction check.
var _ driven.GitMirror = (*Mirror)(nil)

// Mirror implements driven.GitMirror on top of the git CLI and go-git.
type Mirror struct {
	gitBin  string
	timeout time.Duration
	now     func() time.Time
}

// NewMirror returns a Mirror whose git processes are killed after timeout.
func NewMirror(timeout time.Duration) *Mirror {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Mirror{gitBin: defaultGitBin, timeout: timeout, now: time.Now}
}

// Ensure clones the mirror when it is absent and fetches it otherwise. On
// return, successful or not, the remote URL stored in the mirror carries no
// credentials.
func (m *Mirror) Ensure(ctx context.Context, repo model.Repository) (bool, error) {
	present, err := mirrorPresent(repo.LocalPath)
	if err != nil {
		return false, &model.SyncError{Kind: model.SyncCorrupt, Op: "open", Err: err}
	}

	if !present {
		if err := m.clone(ctx, repo); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := m.withCredentials(ctx, repo, func(ctx context.Context) error {
		_, err := m.run(ctx, repo, repo.LocalPath, "fetch", "--prune", remoteName)
		return err
	}); err != nil {
		return false, err
	}
	return false, nil
}

// mirrorPresent reports whether path holds a git checkout. An existing
// directory that is neither empty nor a checkout is an error.
func mirrorPresent(path string) (bool, error) {
	if path == "" {
		return false, errors.New("repository has no local mirror path")
	}

	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		return true, nil
	}

	entries, err := os.ReadDir(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(entries) > 0 {
		return false, fmt.Errorf("%s exists and is not a git checkout", path)
	}
	return false, nil
}

func (m *Mirror) clone(ctx context.Context, repo model.Repository) error {
	authed, err := authURL(repo)
	if err != nil {
		return &model.SyncError{Kind: model.SyncCorrupt, Op: "clone", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(repo.LocalPath), 0o755); err != nil {
		return &model.SyncError{Kind: model.SyncCorrupt, Op: "clone", Err: err}
	}

	slog.Info("cloning mirror", "repo_id", repo.ID, "url", redactURL(repo.GitURL), "path", repo.LocalPath)

	_, err = m.run(ctx, repo, "",
		"clone", "--depth", "1", "--branch", repo.ReviewBranch(), "--single-branch", authed, repo.LocalPath)
	if err != nil {
		// A half-written clone would carry the authenticated URL at rest.
		_ = os.RemoveAll(repo.LocalPath)
		return err
	}

	// The clone recorded the authenticated URL; replace it and widen the
	// ref-spec so every branch becomes enumerable.
	if err := configureRemote(repo.LocalPath, cleanURL(repo.GitURL)); err != nil {
		_ = os.RemoveAll(repo.LocalPath)
		return &model.SyncError{Kind: model.SyncCorrupt, Op: "configure", Err: err}
	}

	return m.withCredentials(ctx, repo, func(ctx context.Context) error {
		_, err := m.run(ctx, repo, repo.LocalPath, "fetch", "--depth", "1", remoteName)
		return err
	})
}

// withCredentials points origin at the authenticated URL for the duration of
// fn and always restores the clean URL afterwards.
func (m *Mirror) withCredentials(ctx context.Context, repo model.Repository, fn func(context.Context) error) (err error) {
	authed, err := authURL(repo)
	if err != nil {
		return &model.SyncError{Kind: model.SyncCorrupt, Op: "fetch", Err: err}
	}
	clean := cleanURL(repo.GitURL)

	if err := configureRemote(repo.LocalPath, authed); err != nil {
		_ = configureRemote(repo.LocalPath, clean)
		return &model.SyncError{Kind: model.SyncCorrupt, Op: "configure", Err: err}
	}

	defer func() {
		if restoreErr := configureRemote(repo.LocalPath, clean); restoreErr != nil {
			slog.Error("failed to restore remote url", "repo_id", repo.ID, "error", restoreErr)
			if err == nil {
				err = &model.SyncError{Kind: model.SyncCorrupt, Op: "restore", Err: restoreErr}
			}
		}
	}()

	return fn(ctx)
}

// configureRemote sets origin's URL and repairs a missing fetch ref-spec.
func configureRemote(path, remoteURL string) error {
	r, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("open mirror: %w", err)
	}

	cfg, err := r.Config()
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	remote, ok := cfg.Remotes[remoteName]
	if !ok {
		remote = &config.RemoteConfig{Name: remoteName}
		cfg.Remotes[remoteName] = remote
	}
	remote.URLs = []string{remoteURL}

	hasFull := false
	for _, spec := range remote.Fetch {
		if string(spec) == fullRefSpec {
			hasFull = true
			break
		}
	}
	if !hasFull {
		remote.Fetch = []config.RefSpec{config.RefSpec(fullRefSpec)}
	}

	if err := r.SetConfig(cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// authURL injects the repository's credentials into an HTTP(S) URL. Embedded
// credentials win: a URL that already carries a password is returned as is,
// and a URL that carries only a username gets the password added.
func authURL(repo model.Repository) (string, error) {
	if repo.AuthMode == model.AuthModeSSHKey {
		return repo.GitURL, nil
	}

	u, err := url.Parse(repo.GitURL)
	if err != nil {
		return "", fmt.Errorf("parse git url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return repo.GitURL, nil
	}

	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			return repo.GitURL, nil
		}
		if repo.Password != "" {
			u.User = url.UserPassword(u.User.Username(), repo.Password)
		}
		return u.String(), nil
	}

	switch {
	case repo.Username != "" && repo.Password != "":
		u.User = url.UserPassword(repo.Username, repo.Password)
	case repo.Username != "":
		u.User = url.User(repo.Username)
	}
	return u.String(), nil
}

// cleanURL strips userinfo from HTTP(S) URLs. scp-style ssh URLs are kept.
func cleanURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return raw
	}
	u.User = nil
	return u.String()
}

var userinfoPattern = regexp.MustCompile(`(https?://)[^/@\s]+@`)

// redactURL hides userinfo in any URL embedded in s.
func redactURL(s string) string {
	return userinfoPattern.ReplaceAllString(s, "${1}*****@")
}

// gitEnv forces every git process to fail instead of prompting.
func gitEnv() []string {
	return append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_ASKPASS=",
		"SSH_ASKPASS=",
		"GCM_INTERACTIVE=never",
		"GIT_SSH_COMMAND=ssh -o BatchMode=yes",
	)
}

// run executes git under the mirror timeout and converts failures into a
// classified SyncError with credentials scrubbed from the message.
func (m *Mirror) run(ctx context.Context, repo model.Repository, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	full := append([]string{"-c", "credential.helper="}, args...)
	cmd := exec.CommandContext(ctx, m.gitBin, full...)
	cmd.Dir = dir
	cmd.Env = gitEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		msg = scrub(msg, repo.Password)
		return "", &model.SyncError{
			Kind: classify(ctx, msg),
			Op:   args[0],
			Err:  errors.New(msg),
		}
	}
	return stdout.String(), nil
}

func scrub(msg, password string) string {
	msg = redactURL(msg)
	if password != "" {
		msg = strings.ReplaceAll(msg, password, "*****")
		msg = strings.ReplaceAll(msg, url.QueryEscape(password), "*****")
	}
	return msg
}

var (
	authMarkers = []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"terminal prompts disabled",
		"invalid username or password",
		"permission denied",
		"access denied",
		"returned error: 401",
		"returned error: 403",
		"host key verification failed",
	}
	networkMarkers = []string{
		"could not resolve host",
		"connection refused",
		"connection timed out",
		"operation timed out",
		"network is unreachable",
		"failed to connect",
		"connection reset",
		"early eof",
		"remote end hung up",
		"unable to access",
	}
)

// classify buckets a git failure by its stderr text.
func classify(ctx context.Context, stderr string) model.SyncErrorKind {
	if ctx.Err() != nil {
		return model.SyncNetwork
	}

	lower := strings.ToLower(stderr)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return model.SyncAuth
		}
	}
	for _, marker := range networkMarkers {
		if strings.Contains(lower, marker) {
			return model.SyncNetwork
		}
	}
	return model.SyncCorrupt
}
