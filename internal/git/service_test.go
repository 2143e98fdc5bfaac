package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmouel/gitpanel/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	if !Available() {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_CONFIG_GLOBAL", os.DevNull)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	svc := NewService(func(string, ...any) {})
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	full := append([]string{"-c", "user.name=Test", "-c", "user.email=test@example.com", "-c", "commit.gpgsign=false"}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// initRepo creates a repository on branch main with one committed file.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitCmd(t, dir, "init", "-q", "-b", "main")
	writeFile(t, dir, "a.py", "print('a')\n")
	writeFile(t, dir, "b.py", "print('b')\n")
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-qm", "initial")
	return resolved(t, dir)
}

func resolved(t *testing.T, dir string) string {
	t.Helper()
	real, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return real
}

func TestNewService(t *testing.T) {
	service := NewService(nil)

	assert.NotNil(t, service.logf)
	expectedSlots := runtime.NumCPU() * 2
	if expectedSlots < 4 {
		expectedSlots = 4
	}
	if expectedSlots > 32 {
		expectedSlots = 32
	}
	assert.Len(t, service.semaphore, expectedSlots)
}

func TestAcquireSemaphoreHonoursContext(t *testing.T) {
	service := NewService(func(string, ...any) {})
	for len(service.semaphore) > 0 {
		<-service.semaphore
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, service.acquireSemaphore(ctx), context.Canceled)
}

func TestTopLevel(t *testing.T) {
	svc := newTestService(t)
	repo := initRepo(t)
	sub := filepath.Join(repo, "pkg", "inner")
	require.NoError(t, os.MkdirAll(sub, 0o750))

	root, err := svc.TopLevel(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, repo, root)

	_, err = svc.TopLevel(context.Background(), t.TempDir())
	assert.True(t, models.IsKind(err, models.ErrNotARepository), "got %v", err)

	_, err = svc.TopLevel(context.Background(), filepath.Join(repo, "missing"))
	assert.True(t, models.IsKind(err, models.ErrNotARepository))
}

func TestStatusAndStagingRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	repo := initRepo(t)

	writeFile(t, repo, "a.py", "print('a2')\n")
	writeFile(t, repo, "b.py", "print('b2')\n")
	writeFile(t, repo, "new/c.py", "print('c')\n")
	require.NoError(t, svc.Add(ctx, repo, []string{"a.py"}))

	report, err := svc.Status(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, "main", report.Branch)

	byPath := map[string]models.StatusFile{}
	for _, f := range report.Files {
		byPath[f.To] = f
	}
	require.Len(t, byPath, 3)
	assert.Equal(t, models.CategoryStaged, byPath["a.py"].Category)
	assert.Equal(t, models.CategoryUnstaged, byPath["b.py"].Category)
	assert.Equal(t, models.CategoryUntracked, byPath["new/"].Category)
	assert.True(t, byPath["new/"].IsDir())

	require.NoError(t, svc.Reset(ctx, repo, []string{"a.py"}))
	require.NoError(t, svc.Checkout(ctx, repo, []string{"b.py"}))

	report, err = svc.Status(ctx, repo)
	require.NoError(t, err)
	byPath = map[string]models.StatusFile{}
	for _, f := range report.Files {
		byPath[f.To] = f
	}
	assert.Equal(t, models.CategoryUnstaged, byPath["a.py"].Category, "reset keeps worktree changes")
	assert.NotContains(t, byPath, "b.py", "checkout restores the file")
}

func TestStatusOutsideRepository(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Status(context.Background(), t.TempDir())
	assert.True(t, models.IsKind(err, models.ErrNotARepository), "got %v", err)
}

func TestResetWithoutCommits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, svc.Init(ctx, dir))
	writeFile(t, dir, "first.txt", "hello\n")
	require.NoError(t, svc.Add(ctx, dir, []string{"first.txt"}))

	report, err := svc.Status(ctx, dir)
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, models.CategoryStaged, report.Files[0].Category)

	require.NoError(t, svc.Reset(ctx, dir, []string{"first.txt"}))
	report, err = svc.Status(ctx, dir)
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, models.CategoryUntracked, report.Files[0].Category)
}

func TestStatusWorktreeRename(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	repo := initRepo(t)

	require.NoError(t, os.Rename(filepath.Join(repo, "a.py"), filepath.Join(repo, "new.py")))
	gitCmd(t, repo, "add", "-N", "new.py")

	report, err := svc.Status(ctx, repo)
	require.NoError(t, err)

	byPath := map[string]models.StatusFile{}
	for _, f := range report.Files {
		byPath[f.To] = f
	}
	require.Contains(t, byPath, "new.py")
	// Older git reports a deletion and an addition instead of a rename.
	if renamed := byPath["new.py"]; renamed.Y == 'R' {
		assert.Equal(t, "a.py", renamed.From)
		assert.NotContains(t, byPath, "a.py")
	}
}

func TestStatusMarksText(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	repo := initRepo(t)
	writeFile(t, repo, "Makefile", "all:\n\ttrue\n")
	writeFile(t, repo, "logo.bin", "\x89PNG\x00\x01")
	gitCmd(t, repo, "add", ".")
	gitCmd(t, repo, "commit", "-qm", "assets")

	writeFile(t, repo, "Makefile", "all:\n\tfalse\n")
	writeFile(t, repo, "logo.bin", "\x89PNG\x00\x02")
	writeFile(t, repo, "LICENSE", "MIT\n")
	writeFile(t, repo, "blob.dat", "a\x00b")
	writeFile(t, repo, "vendor/lib.c", "int x;\n")
	require.NoError(t, os.Remove(filepath.Join(repo, "b.py")))

	report, err := svc.Status(ctx, repo)
	require.NoError(t, err)
	byPath := map[string]models.StatusFile{}
	for _, f := range report.Files {
		byPath[f.To] = f
	}

	tests := []struct {
		path string
		text bool
	}{
		{path: "Makefile", text: true},
		{path: "logo.bin", text: false},
		{path: "LICENSE", text: true},
		{path: "blob.dat", text: false},
		{path: "vendor/", text: false},
		{path: "b.py", text: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Contains(t, byPath, tt.path)
			assert.Equal(t, tt.text, byPath[tt.path].Text)
		})
	}
}

func TestStatusMarksTextWithoutCommits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, svc.Init(ctx, dir))
	writeFile(t, dir, "Dockerfile", "FROM scratch\n")
	require.NoError(t, svc.Add(ctx, dir, []string{"Dockerfile"}))

	report, err := svc.Status(ctx, dir)
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.True(t, report.Files[0].Text)
}

func TestShow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	repo := initRepo(t)
	writeFile(t, repo, "a.py", "print('staged')\n")
	require.NoError(t, svc.Add(ctx, repo, []string{"a.py"}))
	writeFile(t, repo, "a.py", "print('working')\n")

	head, err := svc.Show(ctx, repo, "a.py", models.GitRef("HEAD"))
	require.NoError(t, err)
	assert.Equal(t, "print('a')\n", string(head))

	index, err := svc.Show(ctx, repo, "a.py", models.Special(models.RefIndex))
	require.NoError(t, err)
	assert.Equal(t, "print('staged')\n", string(index))

	working, err := svc.Show(ctx, repo, "a.py", models.Special(models.RefWorking))
	require.NoError(t, err)
	assert.Equal(t, "print('working')\n", string(working))

	missing, err := svc.Show(ctx, repo, "nope.py", models.GitRef("HEAD"))
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = svc.Show(ctx, repo, "../outside", models.Special(models.RefWorking))
	assert.True(t, models.IsKind(err, models.ErrInvalidRequest))
}

func TestPushPullAndClone(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	seed := initRepo(t)
	bare := filepath.Join(t.TempDir(), "remote.git")
	gitCmd(t, filepath.Dir(bare), "init", "-q", "--bare", bare)
	gitCmd(t, bare, "symbolic-ref", "HEAD", "refs/heads/main")
	require.NoError(t, svc.AddRemote(ctx, seed, bare, ""))
	gitCmd(t, seed, "push", "-q", "origin", "main")

	first := filepath.Join(t.TempDir(), "clones", "first")
	second := filepath.Join(t.TempDir(), "second")
	require.NoError(t, svc.Clone(ctx, bare, first, nil))
	require.NoError(t, svc.Clone(ctx, bare, second, nil))

	writeFile(t, first, "a.py", "print('pushed')\n")
	gitCmd(t, first, "commit", "-qam", "change")
	require.NoError(t, svc.Push(ctx, first, nil))

	require.NoError(t, svc.Pull(ctx, second, nil))
	data, err := os.ReadFile(filepath.Join(second, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('pushed')\n", string(data))

	err = svc.Push(ctx, t.TempDir(), nil)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrRemoteOperationFailure), "got %v", err)
}

func TestAddRemoteValidation(t *testing.T) {
	svc := newTestService(t)
	repo := initRepo(t)

	err := svc.AddRemote(context.Background(), repo, "  ", "origin")
	assert.True(t, models.IsKind(err, models.ErrInvalidRequest))

	require.NoError(t, svc.AddRemote(context.Background(), repo, "https://example.com/r.git", "upstream"))
	assert.Contains(t, gitCmd(t, repo, "remote", "-v"), "upstream\thttps://example.com/r.git")

	err = svc.AddRemote(context.Background(), repo, "https://example.com/r.git", "upstream")
	assert.True(t, models.IsKind(err, models.ErrCommandFailed))
}

func TestIsAuthFailure(t *testing.T) {
	tests := []struct {
		stderr   string
		expected bool
	}{
		{"remote: Invalid username or password.\nfatal: Authentication failed for 'https://h/r.git/'", true},
		{"fatal: could not read Username for 'https://github.com': terminal prompts disabled", true},
		{"fatal: unable to access 'https://h/': The requested URL returned error: 403", true},
		{"git@github.com: Permission denied (publickey).", true},
		{"fatal: unable to access 'https://h/': Could not resolve host: h", false},
		{"! [rejected] main -> main (fetch first)", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsAuthFailure(tt.stderr), tt.stderr)
	}
}

func TestRemoteErrorClassification(t *testing.T) {
	auth := remoteError("push", &commandError{args: []string{"push"}, stderr: "fatal: Authentication failed", err: assert.AnError})
	assert.True(t, models.IsKind(auth, models.ErrAuthenticationFailure))

	other := remoteError("push", &commandError{args: []string{"push"}, stderr: "Could not resolve host", err: assert.AnError})
	assert.True(t, models.IsKind(other, models.ErrRemoteOperationFailure))
}

func TestCredentialArgs(t *testing.T) {
	svc := NewService(func(string, ...any) {})
	t.Cleanup(func() { _ = svc.Close() })

	args, env, err := svc.credentialArgs(nil)
	require.NoError(t, err)
	assert.Nil(t, args)
	assert.Nil(t, env)

	args, env, err = svc.credentialArgs(&models.Credentials{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "credential.helper="}, args)
	assert.Contains(t, env, "GITPANEL_USERNAME=alice")
	assert.Contains(t, env, "GITPANEL_PASSWORD=s3cret")

	var helper string
	for _, kv := range env {
		if strings.HasPrefix(kv, "GIT_ASKPASS=") {
			helper = strings.TrimPrefix(kv, "GIT_ASKPASS=")
		}
	}
	require.NotEmpty(t, helper)
	script, err := os.ReadFile(helper)
	require.NoError(t, err)
	assert.NotContains(t, string(script), "s3cret", "helper must not embed credentials")

	require.NoError(t, svc.Close())
	_, err = os.Stat(helper)
	assert.True(t, os.IsNotExist(err))
}

func TestCommandErrorRedactsURLs(t *testing.T) {
	err := &commandError{
		args:   []string{"clone", "https://alice:pw@example.com/r.git"},
		stderr: "fatal: repository not found",
		err:    assert.AnError,
	}
	assert.NotContains(t, err.Error(), "pw@")
	assert.Contains(t, err.Error(), "repository not found")
}
