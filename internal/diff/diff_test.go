package diff

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmouel/gitpanel/internal/models"
)

var testExtensions = []string{".py", "go", ".MD"}

func TestResolveDefaults(t *testing.T) {
	r := NewResolver(testExtensions)

	staged, err := r.Resolve(Request{Path: "a.py", Category: models.CategoryStaged})
	require.NoError(t, err)
	assert.Equal(t, models.DiffContext{Path: "a.py", Previous: models.GitRef("HEAD"), Current: models.Special(models.RefIndex)}, staged)

	for _, category := range []models.Category{models.CategoryUnstaged, models.CategoryPartiallyStaged, models.CategoryUntracked} {
		dc, err := r.Resolve(Request{Path: "a.py", Category: category})
		require.NoError(t, err)
		assert.Equal(t, models.Special(models.RefWorking), dc.Current, category)
		assert.Equal(t, models.GitRef("HEAD"), dc.Previous, category)
	}
}

func TestResolveIsStable(t *testing.T) {
	r := NewResolver(testExtensions)
	first, err := r.Resolve(Request{Path: "a.py", Category: models.CategoryStaged})
	require.NoError(t, err)
	second, err := r.Resolve(Request{Path: "a.py", Category: models.CategoryStaged})
	require.NoError(t, err)
	assert.Equal(t, first.IdentityKey(), second.IdentityKey())

	unstaged, err := r.Resolve(Request{Path: "a.py", Category: models.CategoryUnstaged})
	require.NoError(t, err)
	assert.NotEqual(t, first.IdentityKey(), unstaged.IdentityKey())
}

func TestResolveExplicit(t *testing.T) {
	r := NewResolver(testExtensions)
	explicit := &models.DiffContext{Previous: models.GitRef("abc123"), Current: models.GitRef("def456")}

	dc, err := r.Resolve(Request{Path: "main.go", Category: models.CategoryStaged, Explicit: explicit})
	require.NoError(t, err)
	assert.Equal(t, models.DiffContext{Path: "main.go", Previous: models.GitRef("abc123"), Current: models.GitRef("def456")}, dc)

	_, err = r.Resolve(Request{Path: "main.go", Explicit: &models.DiffContext{Current: models.GitRef("x")}})
	assert.True(t, models.IsKind(err, models.ErrInvalidRequest))
}

func TestResolveGating(t *testing.T) {
	r := NewResolver(testExtensions)

	tests := []struct {
		name    string
		req     Request
		allowed bool
	}{
		{"supported extension", Request{Path: "x/y.py"}, true},
		{"extension without dot in config", Request{Path: "main.go"}, true},
		{"case insensitive", Request{Path: "README.md"}, true},
		{"binary", Request{Path: "logo.png"}, false},
		{"marked as text", Request{Path: "logo.png", IsText: true}, true},
		{"no extension", Request{Path: "Makefile"}, false},
		{"no extension marked as text", Request{Path: "Makefile", IsText: true}, true},
		{"directory", Request{Path: "pkg/", IsText: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.req)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, models.IsKind(err, models.ErrUnsupportedDiffTarget), "got %v", err)
		})
	}
}

func TestCheckSingleTarget(t *testing.T) {
	assert.True(t, models.IsKind(CheckSingleTarget(models.StatusFile{To: "c.py", X: 'D', Y: ' '}), models.ErrFileDeleted))
	assert.True(t, models.IsKind(CheckSingleTarget(models.StatusFile{To: "c.py", X: ' ', Y: 'D'}), models.ErrFileDeleted))
	assert.NoError(t, CheckSingleTarget(models.StatusFile{To: "c.py", X: 'M', Y: ' '}))
}

func TestRegistryOpensOncePerKey(t *testing.T) {
	reg := NewRegistry()
	var focused []View
	reg.OnFocus(func(v View) { focused = append(focused, v) })

	dc := models.DiffContext{Path: "a.py", Previous: models.GitRef("HEAD"), Current: models.Special(models.RefIndex)}
	opens := 0
	open := func(View) error { opens++; return nil }

	first, opened, err := reg.OpenOrFocus(dc, open)
	require.NoError(t, err)
	assert.True(t, opened)

	second, opened, err := reg.OpenOrFocus(dc, open)
	require.NoError(t, err)
	assert.False(t, opened)

	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, first.Handle, second.Handle)
	assert.Equal(t, 1, second.Focused)
	require.Len(t, focused, 1)
	assert.Equal(t, first.Key, focused[0].Key)

	other := dc
	other.Current = models.Special(models.RefWorking)
	_, opened, err = reg.OpenOrFocus(other, open)
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Equal(t, 2, reg.Len())

	assert.True(t, reg.Close(first.Key))
	assert.False(t, reg.Close(first.Key))
	_, ok := reg.Lookup(first.Key)
	assert.False(t, ok)

	_, opened, err = reg.OpenOrFocus(dc, open)
	require.NoError(t, err)
	assert.True(t, opened, "closed views can be opened again")
}

func TestRegistryOpenFailureLeavesNoView(t *testing.T) {
	reg := NewRegistry()
	dc := models.DiffContext{Path: "a.py", Previous: models.GitRef("HEAD"), Current: models.Special(models.RefWorking)}

	_, _, err := reg.OpenOrFocus(dc, func(View) error { return errors.New("no window") })
	require.Error(t, err)
	assert.Zero(t, reg.Len())
}

type fakeSource map[string]string

func (f fakeSource) Show(_ context.Context, _, path string, ref models.RevisionRef) ([]byte, error) {
	if content, ok := f[path+"@"+ref.String()]; ok {
		return []byte(content), nil
	}
	return nil, nil
}

func TestRender(t *testing.T) {
	src := fakeSource{
		"a.py@HEAD":    "one\ntwo\nthree\n",
		"a.py@WORKING": "one\n2\nthree\n",
	}
	dc := models.DiffContext{Path: "a.py", Previous: models.GitRef("HEAD"), Current: models.Special(models.RefWorking)}

	out, err := Render(context.Background(), src, "/repo", dc, DefaultContextLines)
	require.NoError(t, err)
	assert.Equal(t, "--- a/a.py@HEAD\n+++ b/a.py@WORKING\n@@ -1,3 +1,3 @@\n one\n-two\n+2\n three\n", out)
}

func TestRenderNewAndIdenticalFiles(t *testing.T) {
	src := fakeSource{"new.py@WORKING": "hello\n", "same.py@HEAD": "x\n", "same.py@INDEX": "x\n"}

	out, err := Render(context.Background(), src, "/repo",
		models.DiffContext{Path: "new.py", Previous: models.GitRef("HEAD"), Current: models.Special(models.RefWorking)}, 3)
	require.NoError(t, err)
	assert.Contains(t, out, "@@ -0,0 +1 @@\n+hello\n")

	out, err = Render(context.Background(), src, "/repo",
		models.DiffContext{Path: "same.py", Previous: models.GitRef("HEAD"), Current: models.Special(models.RefIndex)}, 3)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRenderPropagatesErrors(t *testing.T) {
	_, err := Render(context.Background(), failingSource{}, "/repo",
		models.DiffContext{Path: "a.py", Previous: models.GitRef("HEAD"), Current: models.Special(models.RefWorking)}, 3)
	assert.True(t, models.IsKind(err, models.ErrBackendUnreachable))
}

type failingSource struct{}

func (failingSource) Show(context.Context, string, string, models.RevisionRef) ([]byte, error) {
	return nil, models.NewError(models.ErrBackendUnreachable, "down")
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(nil))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines([]byte("a\nb\n")))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines([]byte("a\nb")))
}
