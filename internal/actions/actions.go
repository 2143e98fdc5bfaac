// Package actions binds user-facing panel actions to the tracker, the diff
// resolver and the backend.
package actions

import (
	"context"
	"path/filepath"

	"github.com/chmouel/gitpanel/internal/backend"
	"github.com/chmouel/gitpanel/internal/config"
	"github.com/chmouel/gitpanel/internal/diff"
	log "github.com/chmouel/gitpanel/internal/log"
	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/remote"
	"github.com/chmouel/gitpanel/internal/repo"
)

// Opener shows files and diff views to the user.
type Opener interface {
	// OpenFile opens the file at an absolute path.
	OpenFile(ctx context.Context, path string) error
	// OpenDiff presents a newly created diff view for repo.
	OpenDiff(ctx context.Context, repo string, view diff.View) error
}

// Skip records a selected file an action did not touch.
type Skip struct {
	Path   string
	Reason models.ErrorKind
	Detail string
}

// Result summarises a batch action.
type Result struct {
	Action  string
	Applied []string
	Skipped []Skip
	// Views lists diff views opened or focused by the action.
	Views []diff.View
	// Outcome is set by remote operations.
	Outcome *remote.Outcome
}

func (r *Result) skip(path string, kind models.ErrorKind, detail string) {
	r.Skipped = append(r.Skipped, Skip{Path: path, Reason: kind, Detail: detail})
}

// Options wires a Layer.
type Options struct {
	Tracker  *repo.Tracker
	Backend  backend.Backend
	Resolver *diff.Resolver
	Registry *diff.Registry
	Opener   Opener
	Prompt   remote.CredentialPrompt
	Config   *config.AppConfig
	Logf     func(string, ...any)
}

// Layer runs actions over batches of selected files.
type Layer struct {
	tracker  *repo.Tracker
	backend  backend.Backend
	resolver *diff.Resolver
	registry *diff.Registry
	opener   Opener
	prompt   remote.CredentialPrompt
	cfg      *config.AppConfig
	logf     func(string, ...any)
}

// New builds a Layer. Missing resolver, registry or config get defaults.
func New(opts Options) *Layer {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = diff.NewResolver(cfg.DiffExtensions)
	}
	registry := opts.Registry
	if registry == nil {
		registry = diff.NewRegistry()
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Layer{
		tracker:  opts.Tracker,
		backend:  opts.Backend,
		resolver: resolver,
		registry: registry,
		opener:   opts.Opener,
		prompt:   opts.Prompt,
		cfg:      cfg,
		logf:     logf,
	}
}

// Registry returns the diff view registry.
func (l *Layer) Registry() *diff.Registry {
	return l.registry
}

func (l *Layer) root() (string, error) {
	st := l.tracker.Status()
	if !st.Bound() {
		return "", models.NewError(models.ErrNotARepository, "no repository is active")
	}
	return st.RootPath, nil
}

// finish refreshes the tracker after a mutating action.
func (l *Layer) finish(ctx context.Context) {
	l.tracker.RefreshStatus(ctx)
}

func paths(files []models.StatusFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.To)
	}
	return out
}

// Add stages the selected files. Files already fully staged are skipped
// unless simple staging is on.
func (l *Layer) Add(ctx context.Context, files []models.StatusFile) (Result, error) {
	res := Result{Action: "add"}
	root, err := l.root()
	if err != nil {
		return res, err
	}

	var targets []string
	for _, f := range files {
		if !l.cfg.SimpleStaging && f.Category == models.CategoryStaged {
			res.skip(f.To, "", "already staged")
			continue
		}
		targets = append(targets, f.To)
	}
	defer l.finish(ctx)
	if len(targets) == 0 {
		return res, nil
	}
	if err := l.backend.Add(ctx, root, targets); err != nil {
		return res, err
	}
	res.Applied = targets
	return res, nil
}

// Unstage removes staged changes of the selected files from the index.
func (l *Layer) Unstage(ctx context.Context, files []models.StatusFile) (Result, error) {
	res := Result{Action: "unstage"}
	root, err := l.root()
	if err != nil {
		return res, err
	}

	var targets []string
	for _, f := range files {
		switch f.Category {
		case models.CategoryStaged, models.CategoryPartiallyStaged:
			targets = append(targets, f.To)
		default:
			res.skip(f.To, "", "nothing staged")
		}
	}
	defer l.finish(ctx)
	if len(targets) == 0 {
		return res, nil
	}
	if err := l.backend.Reset(ctx, root, targets); err != nil {
		return res, err
	}
	res.Applied = targets
	return res, nil
}

// Discard throws away changes of the selected files. Staged files are
// unstaged, unstaged files restored from the index, and partially staged
// files get both. Untracked files are never deleted. With simple staging
// every tracked file is reset and restored.
func (l *Layer) Discard(ctx context.Context, files []models.StatusFile) (Result, error) {
	res := Result{Action: "discard"}
	root, err := l.root()
	if err != nil {
		return res, err
	}

	var resets, checkouts []string
	for _, f := range files {
		if f.Category == models.CategoryUntracked {
			res.skip(f.To, "", "untracked files are not discarded")
			continue
		}
		if l.cfg.SimpleStaging {
			resets = append(resets, f.To)
			checkouts = append(checkouts, f.To)
			continue
		}
		switch f.Category {
		case models.CategoryStaged:
			resets = append(resets, f.To)
		case models.CategoryUnstaged:
			checkouts = append(checkouts, f.To)
		case models.CategoryPartiallyStaged:
			resets = append(resets, f.To)
			checkouts = append(checkouts, f.To)
		}
	}

	defer l.finish(ctx)
	if len(resets) > 0 {
		if err := l.backend.Reset(ctx, root, resets); err != nil {
			return res, err
		}
	}
	if len(checkouts) > 0 {
		if err := l.backend.Checkout(ctx, root, checkouts); err != nil {
			return res, err
		}
	}
	seen := make(map[string]struct{})
	for _, p := range append(resets, checkouts...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		res.Applied = append(res.Applied, p)
	}
	return res, nil
}

// Ignore adds file, or every file with its extension, to .gitignore.
func (l *Layer) Ignore(ctx context.Context, file models.StatusFile, byExtension bool) (Result, error) {
	res := Result{Action: "ignore"}
	root, err := l.root()
	if err != nil {
		return res, err
	}
	defer l.finish(ctx)
	if err := l.backend.Ignore(ctx, root, file.To, byExtension); err != nil {
		return res, err
	}
	res.Applied = []string{file.To}
	return res, nil
}

// Diff opens, or focuses, a diff view per selected file. A single target
// that is deleted or not diffable is an error; in batches such files are
// skipped.
func (l *Layer) Diff(ctx context.Context, files []models.StatusFile, explicit *models.DiffContext) (Result, error) {
	res := Result{Action: "diff"}
	root, err := l.root()
	if err != nil {
		return res, err
	}
	single := len(files) == 1

	for _, f := range files {
		if err := diff.CheckSingleTarget(f); err != nil {
			if single {
				return res, err
			}
			res.skip(f.To, models.ErrFileDeleted, "deleted")
			continue
		}
		dc, err := l.resolver.Resolve(diff.Request{Path: f.To, Category: f.Category, IsText: f.Text, Explicit: explicit})
		if err != nil {
			if single {
				return res, err
			}
			res.skip(f.To, models.KindOf(err), "not diffable")
			continue
		}
		view, opened, err := l.registry.OpenOrFocus(dc, func(v diff.View) error {
			if l.opener == nil {
				return nil
			}
			return l.opener.OpenDiff(ctx, root, v)
		})
		if err != nil {
			return res, err
		}
		if !opened {
			l.logf("diff: focused existing view for %s", f.To)
		}
		res.Views = append(res.Views, view)
		res.Applied = append(res.Applied, f.To)
	}
	return res, nil
}

// Open opens the selected files. Directories cannot be opened; a single
// deleted target is reported without touching the file.
func (l *Layer) Open(ctx context.Context, files []models.StatusFile) (Result, error) {
	res := Result{Action: "open"}
	root, err := l.root()
	if err != nil {
		return res, err
	}
	single := len(files) == 1

	for _, f := range files {
		if f.IsDir() {
			if single {
				return res, models.NewError(models.ErrInvalidRequest, "%s is a directory", f.To)
			}
			res.skip(f.To, models.ErrInvalidRequest, "directory")
			continue
		}
		if err := diff.CheckSingleTarget(f); err != nil {
			if single {
				return res, err
			}
			res.skip(f.To, models.ErrFileDeleted, "deleted")
			continue
		}
		if l.opener != nil {
			if err := l.opener.OpenFile(ctx, filepath.Join(root, filepath.FromSlash(f.To))); err != nil {
				return res, err
			}
		}
		res.Applied = append(res.Applied, f.To)
	}
	return res, nil
}

// Activate handles a double click: diff when configured, open otherwise.
func (l *Layer) Activate(ctx context.Context, file models.StatusFile) (Result, error) {
	if l.cfg.DoubleClickDiff {
		return l.Diff(ctx, []models.StatusFile{file}, nil)
	}
	return l.Open(ctx, []models.StatusFile{file})
}

// Init creates a repository at dir and binds the tracker to it.
func (l *Layer) Init(ctx context.Context, dir string) (Result, error) {
	res := Result{Action: "init"}
	if err := l.tracker.Initialize(ctx, dir); err != nil {
		return res, err
	}
	res.Applied = []string{dir}
	return res, nil
}

// AddRemote registers a remote on the active repository.
func (l *Layer) AddRemote(ctx context.Context, url, name string) (Result, error) {
	res := Result{Action: "add_remote"}
	root, err := l.root()
	if err != nil {
		return res, err
	}
	defer l.finish(ctx)
	if err := l.backend.AddRemote(ctx, root, url, name); err != nil {
		return res, err
	}
	res.Applied = []string{url}
	return res, nil
}

// Push pushes the active repository, prompting for credentials as needed.
func (l *Layer) Push(ctx context.Context) (Result, error) {
	return l.runRemote(ctx, remote.Push)
}

// Pull pulls into the active repository, prompting for credentials as needed.
func (l *Layer) Pull(ctx context.Context) (Result, error) {
	return l.runRemote(ctx, remote.Pull)
}

func (l *Layer) runRemote(ctx context.Context, op remote.Operation) (Result, error) {
	res := Result{Action: string(op)}
	root, err := l.root()
	if err != nil {
		return res, err
	}
	defer l.finish(ctx)
	outcome := l.sequencer(remote.BackendExecutor{Backend: l.backend, Repo: root}).Run(ctx, op)
	res.Outcome = &outcome
	return res, nil
}

// Clone clones url into target. No repository needs to be active.
func (l *Layer) Clone(ctx context.Context, url, target string) (Result, error) {
	res := Result{Action: "clone"}
	outcome := l.sequencer(remote.BackendExecutor{Backend: l.backend, URL: url, Target: target}).Run(ctx, remote.Clone)
	res.Outcome = &outcome
	if outcome.State == remote.Succeeded {
		res.Applied = []string{target}
	}
	l.finish(ctx)
	return res, nil
}

func (l *Layer) sequencer(exec remote.Executor) *remote.Sequencer {
	return remote.NewSequencer(exec, l.prompt, l.cfg.CredentialRetryLimit, l.logf)
}
