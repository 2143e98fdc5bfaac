// Package git executes the git CLI on behalf of the backend service.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/chmouel/gitpanel/internal/backend"
	log "github.com/chmouel/gitpanel/internal/log"
	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/status"
)

// LookupPath is used to find executables in PATH. It's exposed as a package variable
// so tests can mock it and avoid depending on system binaries being installed.
var LookupPath = exec.LookPath

// Service runs git commands, one process per call, bounded by a semaphore.
type Service struct {
	semaphore chan struct{}
	logf      func(string, ...any)

	askpassOnce sync.Once
	askpassPath string
	askpassErr  error
}

var _ backend.Backend = (*Service)(nil)

// NewService constructs a Service and sets up concurrency limits.
func NewService(logf func(string, ...any)) *Service {
	limit := runtime.NumCPU() * 2
	if limit < 4 {
		limit = 4
	}
	if limit > 32 {
		limit = 32
	}

	// Counting semaphore: the channel starts full with 'limit' tokens.
	semaphore := make(chan struct{}, limit)
	for i := 0; i < limit; i++ {
		semaphore <- struct{}{}
	}

	if logf == nil {
		logf = log.Printf
	}
	return &Service{
		semaphore: semaphore,
		logf:      logf,
	}
}

// Available reports whether a git binary can be found.
func Available() bool {
	_, err := LookupPath("git")
	return err == nil
}

func (s *Service) debugf(format string, args ...any) {
	s.logf(format, args...)
}

func (s *Service) acquireSemaphore(ctx context.Context) error {
	select {
	case <-s.semaphore:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) releaseSemaphore() {
	s.semaphore <- struct{}{}
}

// commandError is a failed git invocation with its captured stderr.
type commandError struct {
	args     []string
	exitCode int
	stderr   string
	err      error
}

func (e *commandError) Error() string {
	detail := strings.TrimSpace(e.stderr)
	if detail == "" {
		detail = e.err.Error()
	}
	return fmt.Sprintf("git %s: %s", log.Redact(strings.Join(e.args, " ")), detail)
}

func (e *commandError) Unwrap() error {
	return e.err
}

// run executes git with args in dir. extraEnv is appended to the process
// environment and never logged.
func (s *Service) run(ctx context.Context, dir string, extraEnv []string, args ...string) ([]byte, error) {
	for _, arg := range args {
		if strings.ContainsRune(arg, 0) {
			return nil, models.NewError(models.ErrInvalidRequest, "argument contains null byte")
		}
	}
	if err := s.acquireSemaphore(ctx); err != nil {
		return nil, err
	}
	defer s.releaseSemaphore()

	command := log.Redact(strings.Join(args, " "))
	s.debugf("run: git %s (cwd=%s)", command, dir)

	// #nosec G204 -- arguments for git command come from internal logic and are not shell interpolated
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_EDITOR=true", "LC_ALL=C")
	cmd.Env = append(cmd.Env, extraEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cmdErr := &commandError{args: args, exitCode: -1, stderr: stderr.String(), err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.exitCode = exitErr.ExitCode()
		}
		s.debugf("error: git %s (exit %d)", command, cmdErr.exitCode)
		return nil, cmdErr
	}

	s.debugf("ok: git %s", command)
	return stdout.Bytes(), nil
}

// failed wraps a command error as a command_failed backend error.
func failed(op string, err error) error {
	var typed *models.Error
	if errors.As(err, &typed) {
		return typed
	}
	return models.WrapError(models.ErrCommandFailed, err, op)
}

// TopLevel resolves the repository root containing path.
func (s *Service) TopLevel(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", models.NewError(models.ErrNotARepository, "%s is not a directory", path)
	}
	out, err := s.run(ctx, path, nil, "rev-parse", "--show-toplevel")
	if err != nil {
		if ctx.Err() != nil {
			return "", failed("top_level", err)
		}
		return "", models.WrapError(models.ErrNotARepository, err, path)
	}
	return filepath.Clean(strings.TrimSpace(string(out))), nil
}

// Status returns branch information and classified file entries.
func (s *Service) Status(ctx context.Context, repo string) (status.Report, error) {
	out, err := s.run(ctx, repo, nil, "status", "--porcelain=v1", "-b", "-z")
	if err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.stderr, "not a git repository") {
			return status.Report{}, models.WrapError(models.ErrNotARepository, err, repo)
		}
		return status.Report{}, failed("status", err)
	}
	report, err := status.ParsePorcelain(out)
	if err != nil {
		return status.Report{}, models.WrapError(models.ErrCommandFailed, err, "status")
	}
	s.markText(ctx, repo, report.Files)
	return report, nil
}

// Add stages files, deletions included.
func (s *Service) Add(ctx context.Context, repo string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"add", "-A", "--"}, files...)
	if _, err := s.run(ctx, repo, nil, args...); err != nil {
		return failed("add", err)
	}
	return nil
}

// Reset unstages files. Repositories without commits drop them from the index.
func (s *Service) Reset(ctx context.Context, repo string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	var args []string
	if s.hasHead(ctx, repo) {
		args = append([]string{"reset", "-q", "HEAD", "--"}, files...)
	} else {
		args = append([]string{"rm", "--cached", "-q", "-r", "--"}, files...)
	}
	if _, err := s.run(ctx, repo, nil, args...); err != nil {
		return failed("reset", err)
	}
	return nil
}

// Checkout restores worktree files from the index.
func (s *Service) Checkout(ctx context.Context, repo string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"checkout", "--"}, files...)
	if _, err := s.run(ctx, repo, nil, args...); err != nil {
		return failed("checkout", err)
	}
	return nil
}

func (s *Service) hasHead(ctx context.Context, repo string) bool {
	_, err := s.run(ctx, repo, nil, "rev-parse", "--verify", "--quiet", "HEAD")
	return err == nil
}

// Init creates a repository at path, creating the directory if needed.
func (s *Service) Init(ctx context.Context, path string) error {
	if path == "" {
		return models.NewError(models.ErrInvalidRequest, "init: empty path")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return models.WrapError(models.ErrCommandFailed, err, "init")
	}
	if _, err := s.run(ctx, path, nil, "init", "-q"); err != nil {
		return failed("init", err)
	}
	return nil
}

// AddRemote registers url under name, "origin" when name is empty.
func (s *Service) AddRemote(ctx context.Context, repo, url, name string) error {
	if strings.TrimSpace(url) == "" {
		return models.NewError(models.ErrInvalidRequest, "add_remote: empty url")
	}
	if name == "" {
		name = "origin"
	}
	if _, err := s.run(ctx, repo, nil, "remote", "add", name, url); err != nil {
		return failed("add_remote", err)
	}
	return nil
}

// Show returns the content of path at ref.
func (s *Service) Show(ctx context.Context, repo, path string, ref models.RevisionRef) ([]byte, error) {
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == "." || strings.HasPrefix(clean, "../") || filepath.IsAbs(path) {
		return nil, models.NewError(models.ErrInvalidRequest, "show: path %q escapes the repository", path)
	}

	var object string
	switch {
	case ref.SpecialRef() == models.RefWorking:
		data, err := os.ReadFile(filepath.Join(repo, filepath.FromSlash(clean))) // #nosec G304 -- confined to repo above
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, models.WrapError(models.ErrCommandFailed, err, "show")
		}
		return data, nil
	case ref.SpecialRef() == models.RefIndex:
		object = ":" + clean
	case ref.IsZero():
		return nil, models.NewError(models.ErrInvalidRequest, "show: empty revision")
	default:
		object = ref.String() + ":" + clean
	}

	out, err := s.run(ctx, repo, nil, "show", object)
	if err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) && isMissingPath(cmdErr.stderr) {
			return nil, nil
		}
		return nil, failed("show", err)
	}
	return out, nil
}

func isMissingPath(stderr string) bool {
	for _, marker := range []string{
		"does not exist in",
		"exists on disk, but not in",
		"is in the index, but not at stage",
		"invalid object name",
		"bad revision",
	} {
		if strings.Contains(strings.ToLower(stderr), strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
