// Package repo tracks which repository the panel is bound to and the latest
// status reported for it.
package repo

import (
	"context"
	"path/filepath"
	"slices"
	"sync"

	"github.com/chmouel/gitpanel/internal/backend"
	log "github.com/chmouel/gitpanel/internal/log"
	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/status"
)

// Change is delivered to subscribers whenever the tracked state changes.
// Err is set when the last refresh degraded the tracker to unbound.
type Change struct {
	Status   models.RepositoryStatus
	Files    []models.StatusFile
	Upstream string
	Ahead    int
	Behind   int
	Err      error
}

func (c Change) equal(o Change) bool {
	return c.Status == o.Status &&
		c.Upstream == o.Upstream &&
		c.Ahead == o.Ahead &&
		c.Behind == o.Behind &&
		slices.Equal(c.Files, o.Files) &&
		errText(c.Err) == errText(o.Err)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Tracker owns the repository binding. It is the only writer of that state.
type Tracker struct {
	backend backend.Backend
	logf    func(string, ...any)

	mu         sync.Mutex
	active     string
	generation uint64
	restored   bool
	state      Change
	subs       map[int]func(Change)
	nextSub    int

	// deliverMu orders callbacks to match the order state was applied.
	deliverMu sync.Mutex
}

// NewTracker returns an unbound tracker.
func NewTracker(b backend.Backend, logf func(string, ...any)) *Tracker {
	if logf == nil {
		logf = log.Printf
	}
	return &Tracker{
		backend: b,
		logf:    logf,
		subs:    make(map[int]func(Change)),
	}
}

// Status returns the current binding.
func (t *Tracker) Status() models.RepositoryStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Status
}

// Files returns a copy of the latest file list.
func (t *Tracker) Files() []models.StatusFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.state.Files)
}

// Snapshot returns the full tracked state.
func (t *Tracker) Snapshot() Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Change {
	c := t.state
	c.Files = slices.Clone(c.Files)
	return c
}

// ActiveDirectory returns the last directory reported by the host.
func (t *Tracker) ActiveDirectory() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Subscribe registers fn for change notifications and returns a func that
// removes it. fn must not call RefreshStatus or the notification methods
// synchronously.
func (t *Tracker) Subscribe(fn func(Change)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// SetActiveDirectory handles the host reporting a new active directory.
// Reporting the current directory again is a no-op.
func (t *Tracker) SetActiveDirectory(ctx context.Context, dir string) {
	if dir == "" {
		return
	}
	dir = filepath.Clean(dir)

	t.mu.Lock()
	if dir == t.active {
		t.mu.Unlock()
		return
	}
	t.active = dir
	t.generation++
	t.mu.Unlock()

	t.logf("tracker: active directory %s", dir)
	t.refresh(ctx, true)
}

// Restored performs the initial bind when the host is restored. Only the
// first call has an effect.
func (t *Tracker) Restored(ctx context.Context, dir string) {
	t.mu.Lock()
	if t.restored {
		t.mu.Unlock()
		return
	}
	t.restored = true
	t.mu.Unlock()

	t.SetActiveDirectory(ctx, dir)
}

// Initialize creates a repository at dir and binds to it.
func (t *Tracker) Initialize(ctx context.Context, dir string) error {
	dir = filepath.Clean(dir)
	if err := t.backend.Init(ctx, dir); err != nil {
		return err
	}

	t.mu.Lock()
	t.active = dir
	t.generation++
	t.mu.Unlock()

	t.refresh(ctx, true)
	return nil
}

// FileChanged re-queries status for the bound repository.
func (t *Tracker) FileChanged(ctx context.Context) {
	t.refresh(ctx, false)
}

// RefreshStatus re-fetches status and branch. It never fails: errors leave
// the tracker unbound and reach subscribers through Change.Err. Concurrent
// calls are applied in completion order.
func (t *Tracker) RefreshStatus(ctx context.Context) {
	t.refresh(ctx, false)
}

// refresh queries the backend and applies the result unless the active
// directory changed meanwhile. resolve forces the root to be looked up again.
func (t *Tracker) refresh(ctx context.Context, resolve bool) {
	t.mu.Lock()
	gen := t.generation
	active := t.active
	root := t.state.Status.RootPath
	t.mu.Unlock()

	if resolve || root == "" {
		if active == "" {
			return
		}
		resolved, err := t.backend.TopLevel(ctx, active)
		if err != nil {
			t.apply(gen, Change{Err: err})
			return
		}
		root = resolved
	}

	report, err := t.backend.Status(ctx, root)
	if err != nil {
		t.apply(gen, Change{Err: err})
		return
	}
	t.apply(gen, changeFromReport(root, report))
}

func changeFromReport(root string, report status.Report) Change {
	return Change{
		Status:   models.RepositoryStatus{RootPath: root, Branch: report.Branch},
		Files:    report.Files,
		Upstream: report.Upstream,
		Ahead:    report.Ahead,
		Behind:   report.Behind,
	}
}

func (t *Tracker) apply(gen uint64, next Change) {
	t.mu.Lock()
	if gen != t.generation {
		t.mu.Unlock()
		t.logf("tracker: discarding result for superseded directory")
		return
	}
	if next.Err != nil {
		t.logf("tracker: unbound: %v", next.Err)
	}
	if t.state.equal(next) {
		t.mu.Unlock()
		return
	}
	t.state = next
	change := t.snapshotLocked()
	fns := make([]func(Change), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}

	t.deliverMu.Lock()
	t.mu.Unlock()
	defer t.deliverMu.Unlock()
	for _, fn := range fns {
		fn(change)
	}
}
