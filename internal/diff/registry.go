package diff

import (
	"sync"

	"github.com/google/uuid"

	"github.com/chmouel/gitpanel/internal/models"
)

// View is an open diff view.
type View struct {
	Key     string
	Handle  uuid.UUID
	Context models.DiffContext
	Focused int
}

// Registry maps identity keys to open views.
type Registry struct {
	mu      sync.Mutex
	views   map[string]*View
	onFocus func(View)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string]*View)}
}

// OnFocus sets a hook called when an existing view is brought forward.
func (r *Registry) OnFocus(fn func(View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFocus = fn
}

// OpenOrFocus focuses the view for dc's identity key, or creates one by
// calling open. It reports whether a new view was opened. open runs with the
// registry locked so two callers can never open the same key; it must not
// call back into the registry.
func (r *Registry) OpenOrFocus(dc models.DiffContext, open func(View) error) (View, bool, error) {
	key := dc.IdentityKey()

	r.mu.Lock()
	if existing, ok := r.views[key]; ok {
		existing.Focused++
		view := *existing
		hook := r.onFocus
		r.mu.Unlock()
		if hook != nil {
			hook(view)
		}
		return view, false, nil
	}
	defer r.mu.Unlock()

	view := View{Key: key, Handle: uuid.New(), Context: dc}
	if open != nil {
		if err := open(view); err != nil {
			return View{}, false, err
		}
	}
	r.views[key] = &view
	return view, true, nil
}

// Lookup returns the open view for key.
func (r *Registry) Lookup(key string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[key]
	if !ok {
		return View{}, false
	}
	return *v, true
}

// Close forgets the view for key and reports whether one was open.
func (r *Registry) Close(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.views[key]; !ok {
		return false
	}
	delete(r.views, key)
	return true
}

// Len returns the number of open views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
