package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/chmouel/gitpanel/internal/models"
)

// askpassScript answers git's prompts from the environment of the git
// process, so credentials are never written to disk.
const askpassScript = `#!/bin/sh
case "$1" in
  Username*) printf '%s\n' "$GITPANEL_USERNAME" ;;
  *) printf '%s\n' "$GITPANEL_PASSWORD" ;;
esac
`

// authFailureMarkers are stderr fragments git and common hosts print when
// credentials are missing or rejected.
var authFailureMarkers = []string{
	"authentication failed",
	"could not read username",
	"could not read password",
	"terminal prompts disabled",
	"invalid username or password",
	"http basic: access denied",
	"the requested url returned error: 401",
	"the requested url returned error: 403",
	"permission denied (publickey",
	"invalid credentials",
}

// IsAuthFailure reports whether stderr output describes rejected or missing credentials.
func IsAuthFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range authFailureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// remoteError classifies a failed remote command.
func remoteError(op string, err error) error {
	var cmdErr *commandError
	if errors.As(err, &cmdErr) && IsAuthFailure(cmdErr.stderr) {
		return models.WrapError(models.ErrAuthenticationFailure, err, op)
	}
	var typed *models.Error
	if errors.As(err, &typed) {
		return typed
	}
	return models.WrapError(models.ErrRemoteOperationFailure, err, op)
}

func (s *Service) askpass() (string, error) {
	s.askpassOnce.Do(func() {
		dir, err := os.MkdirTemp("", "gitpanel-askpass-")
		if err != nil {
			s.askpassErr = err
			return
		}
		path := filepath.Join(dir, "askpass.sh")
		if err := os.WriteFile(path, []byte(askpassScript), 0o700); err != nil { //nolint:gosec
			s.askpassErr = err
			return
		}
		s.askpassPath = path
	})
	return s.askpassPath, s.askpassErr
}

// Close removes the askpass helper, if one was created.
func (s *Service) Close() error {
	if s.askpassPath == "" {
		return nil
	}
	return os.RemoveAll(filepath.Dir(s.askpassPath))
}

// credentialArgs returns the git options and environment for an attempt.
// Without credentials git relies on configured helpers only.
func (s *Service) credentialArgs(creds *models.Credentials) ([]string, []string, error) {
	if creds == nil {
		return nil, nil, nil
	}
	helper, err := s.askpass()
	if err != nil {
		return nil, nil, models.WrapError(models.ErrCommandFailed, err, "askpass helper")
	}
	// An empty credential.helper resets the helper list so a stale cached
	// entry cannot shadow the supplied credentials.
	args := []string{"-c", "credential.helper="}
	env := []string{
		"GIT_ASKPASS=" + helper,
		"GITPANEL_USERNAME=" + creds.Username,
		"GITPANEL_PASSWORD=" + creds.Password,
	}
	return args, env, nil
}

func (s *Service) remote(ctx context.Context, op, dir string, creds *models.Credentials, args ...string) error {
	pre, env, err := s.credentialArgs(creds)
	if err != nil {
		return err
	}
	if _, err := s.run(ctx, dir, env, append(pre, args...)...); err != nil {
		return remoteError(op, err)
	}
	return nil
}

// Push pushes the current branch to its upstream.
func (s *Service) Push(ctx context.Context, repo string, creds *models.Credentials) error {
	return s.remote(ctx, "push", repo, creds, "push")
}

// Pull pulls the current branch from its upstream.
func (s *Service) Pull(ctx context.Context, repo string, creds *models.Credentials) error {
	return s.remote(ctx, "pull", repo, creds, "pull", "--no-edit")
}

// Clone clones url into target, creating missing parent directories.
func (s *Service) Clone(ctx context.Context, url, target string, creds *models.Credentials) error {
	if strings.TrimSpace(url) == "" || strings.TrimSpace(target) == "" {
		return models.NewError(models.ErrInvalidRequest, "clone: url and target are required")
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return models.WrapError(models.ErrInvalidRequest, err, "clone")
	}
	parent := filepath.Dir(abs)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return models.WrapError(models.ErrCommandFailed, err, "clone")
	}
	return s.remote(ctx, "clone", parent, creds, "clone", "--", url, abs)
}
