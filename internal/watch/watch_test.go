package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w := New(root, t.Logf)
	w.Debounce = 50 * time.Millisecond
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)
	return w
}

func waitEvent(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Events():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func assertNoEvent(t *testing.T, w *Watcher, wait time.Duration) {
	t.Helper()
	select {
	case <-w.Events():
		t.Fatal("unexpected change notification")
	case <-time.After(wait):
	}
}

func TestWatcherSignalsOnFileWrite(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o600))
	waitEvent(t, w)
}

func TestWatcherCoalescesBursts(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte{byte(i)}, 0o600))
	}
	waitEvent(t, w)
	assertNoEvent(t, w, 200*time.Millisecond)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)
	before := w.Watched()

	sub := filepath.Join(root, "pkg", "inner")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	waitEvent(t, w)
	require.Eventually(t, func() bool { return w.Watched() > before }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.txt"), []byte("b"), 0o600))
	waitEvent(t, w)
}

func TestWatcherIgnoresGitObjects(t *testing.T) {
	root := t.TempDir()
	objects := filepath.Join(root, ".git", "objects", "ab")
	require.NoError(t, os.MkdirAll(objects, 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "refs", "heads"), 0o750))
	w := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(objects, "cdef"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "COMMIT_EDITMSG"), []byte("x"), 0o600))
	assertNoEvent(t, w, 200*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "refs", "heads", "main"), []byte("sha"), 0o600))
	waitEvent(t, w)
}

func TestRelevant(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "repo")
	w := New(root, nil)

	tests := []struct {
		path     string
		expected bool
	}{
		{filepath.Join(root, "main.go"), true},
		{filepath.Join(root, "pkg", "x.go"), true},
		{filepath.Join(root, ".git"), true},
		{filepath.Join(root, ".git", "index"), true},
		{filepath.Join(root, ".git", "HEAD"), true},
		{filepath.Join(root, ".git", "refs", "heads", "main"), true},
		{filepath.Join(root, ".git", "refs", "heads", "main.lock"), false},
		{filepath.Join(root, ".git", "objects", "ab", "cd"), false},
		{filepath.Join(root, ".git", "index.lock"), false},
		{filepath.Join(string(filepath.Separator), "elsewhere", "x.go"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, w.Relevant(tt.path), tt.path)
	}
}

func TestStartRejectsMissingRoot(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, w.Start())
	w.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	w := New(t.TempDir(), nil)
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
}
