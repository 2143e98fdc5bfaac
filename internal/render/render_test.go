package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chmouel/gitpanel/internal/actions"
	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/remote"
	"github.com/chmouel/gitpanel/internal/repo"
	"github.com/chmouel/gitpanel/internal/status"
	"github.com/chmouel/gitpanel/internal/theme"
)

func TestStatusGroupsByCategory(t *testing.T) {
	r := New(theme.Dracula(), false, 0)
	out := r.Status(repo.Change{
		Status:   models.RepositoryStatus{RootPath: "/work/repo", Branch: "main"},
		Upstream: "origin/main",
		Ahead:    2,
		Files: []models.StatusFile{
			status.NewFile("new/", '?', '?'),
			status.NewFile("b.py", ' ', 'M'),
			status.NewFile("a.py", 'M', ' '),
			status.NewFile("c.py", 'M', 'M'),
		},
	})

	assert.Contains(t, out, "main")
	assert.Contains(t, out, "[origin/main ↑2]")
	assert.Contains(t, out, "/work/repo")

	staged := strings.Index(out, "Staged (1)")
	partial := strings.Index(out, "Partially staged (1)")
	changes := strings.Index(out, "Changes (1)")
	untracked := strings.Index(out, "Untracked (1)")
	assert.True(t, staged >= 0 && staged < partial && partial < changes && changes < untracked, out)
	assert.Contains(t, out, "M  a.py")
	assert.Contains(t, out, "?? new/")
}

func TestStatusUnboundAndClean(t *testing.T) {
	r := New(nil, false, 0)

	out := r.Status(repo.Change{Err: models.NewError(models.ErrNotARepository, "/tmp")})
	assert.Contains(t, out, "not in a git repository")
	assert.Contains(t, out, "not_a_repository")

	out = r.Status(repo.Change{Status: models.RepositoryStatus{RootPath: "/r", Branch: "main"}})
	assert.Contains(t, out, "working tree clean")
}

func TestRenames(t *testing.T) {
	f := status.NewFile("new.go", 'R', ' ')
	f.From = "old.go"
	out := New(nil, false, 0).Status(repo.Change{
		Status: models.RepositoryStatus{RootPath: "/r", Branch: "main"},
		Files:  []models.StatusFile{f},
	})
	assert.Contains(t, out, "old.go → new.go")
}

func TestIcons(t *testing.T) {
	assert.NotEmpty(t, deviconFor("main.go"))
	assert.NotEmpty(t, deviconFor("pkg/"))
	assert.Empty(t, deviconFor(""))

	withIcons := New(nil, true, 0).Header(repo.Change{Status: models.RepositoryStatus{RootPath: "/r", Branch: "main"}})
	withoutIcons := New(nil, false, 0).Header(repo.Change{Status: models.RepositoryStatus{RootPath: "/r", Branch: "main"}})
	assert.Contains(t, withIcons, iconBranch)
	assert.NotContains(t, withoutIcons, iconBranch)
}

func TestOutcomeAndResult(t *testing.T) {
	r := New(nil, false, 0)

	assert.Contains(t, r.Outcome(remote.Outcome{State: remote.Succeeded, Operation: remote.Push}), "push succeeded")
	assert.Contains(t, r.Outcome(remote.Outcome{State: remote.Cancelled, Operation: remote.Pull}), "pull cancelled")

	out := r.Result(actions.Result{
		Action:  "discard",
		Applied: []string{"a.py", "b.py"},
		Skipped: []actions.Skip{{Path: "new.py", Detail: "untracked files are not discarded"}},
	})
	assert.Contains(t, out, "discard: a.py, b.py")
	assert.Contains(t, out, "skipped new.py: untracked files are not discarded")

	assert.Contains(t, r.Result(actions.Result{Action: "add"}), "add: nothing to do")
	assert.Contains(t, r.Error(errors.New("boom")), "boom")
}

func TestResultWraps(t *testing.T) {
	r := New(nil, false, 20)
	out := r.Result(actions.Result{Action: "add", Applied: []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}})
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len(line), 20)
	}
}

func TestDiff(t *testing.T) {
	r := New(nil, false, 0)
	out := r.Diff("--- a/x@HEAD\n+++ b/x@WORKING\n@@ -1 +1 @@\n-old\n+new\n")
	assert.Equal(t, []string{"--- a/x@HEAD", "+++ b/x@WORKING", "@@ -1 +1 @@", "-old", "+new"}, strings.Split(out, "\n"))
	assert.Contains(t, r.Diff(""), "no differences")
}
