package server

import (
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chmouel/gitpanel/internal/backend"
	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/watch"
)

const (
	// writeDeadline bounds a single websocket write.
	writeDeadline = 5 * time.Second
	// readDeadline is extended on every pong; three missed pings drop the client.
	readDeadline = 90 * time.Second
	pingInterval = 30 * time.Second
	// Clients never send payloads; anything larger is a protocol error.
	maxReadMessageSize = 4 * 1024
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:     allowedOrigin,
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// Source produces change signals for one working tree.
type Source interface {
	Start() error
	Stop()
	Events() <-chan struct{}
}

// SourceFactory creates a Source for a repository root.
type SourceFactory func(root string) Source

// WatchSources returns a factory backed by filesystem watchers.
func WatchSources(logf func(string, ...any)) SourceFactory {
	return func(root string) Source {
		return watch.New(root, logf)
	}
}

// feed fans one Source out to every subscriber of a root.
type feed struct {
	source Source
	subs   map[chan backend.Event]struct{}
	done   chan struct{}
}

// Hub shares one Source per repository root among websocket clients. A root's
// source is started on its first subscriber and stopped after its last.
type Hub struct {
	newSource SourceFactory
	logf      func(string, ...any)

	mu     sync.Mutex
	feeds  map[string]*feed
	closed bool
}

// NewHub creates a hub using newSource for each watched root.
func NewHub(newSource SourceFactory, logf func(string, ...any)) *Hub {
	return &Hub{
		newSource: newSource,
		logf:      logf,
		feeds:     make(map[string]*feed),
	}
}

func (h *Hub) debugf(format string, args ...any) {
	if h.logf != nil {
		h.logf(format, args...)
	}
}

// Subscribers reports how many clients listen on root.
func (h *Hub) Subscribers(root string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.feeds[filepath.Clean(root)]; ok {
		return len(f.subs)
	}
	return 0
}

// Subscribe registers a listener for root. The returned cancel func is
// idempotent.
func (h *Hub) Subscribe(root string) (<-chan backend.Event, func(), error) {
	root = filepath.Clean(root)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, models.NewError(models.ErrBackendUnreachable, "events: hub closed")
	}

	f, ok := h.feeds[root]
	if !ok {
		source := h.newSource(root)
		if err := source.Start(); err != nil {
			return nil, nil, models.WrapError(models.ErrInvalidRequest, err, "events: watch "+root)
		}
		f = &feed{source: source, subs: make(map[chan backend.Event]struct{}), done: make(chan struct{})}
		h.feeds[root] = f
		go h.pump(root, f)
		h.debugf("events: watching %s", root)
	}

	ch := make(chan backend.Event, 1)
	f.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.unsubscribe(root, f, ch) })
	}
	return ch, cancel, nil
}

func (h *Hub) unsubscribe(root string, f *feed, ch chan backend.Event) {
	h.mu.Lock()
	delete(f.subs, ch)
	last := len(f.subs) == 0 && h.feeds[root] == f
	if last {
		delete(h.feeds, root)
	}
	h.mu.Unlock()

	if last {
		close(f.done)
		f.source.Stop()
		h.debugf("events: stopped watching %s", root)
	}
}

func (h *Hub) pump(root string, f *feed) {
	events := f.source.Events()
	for {
		select {
		case <-f.done:
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			ev := backend.Event{Type: backend.EventFileChanged, Path: root}
			h.mu.Lock()
			for ch := range f.subs {
				select {
				case ch <- ev:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close stops every source. Subscribe fails afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	feeds := h.feeds
	h.feeds = make(map[string]*feed)
	h.closed = true
	h.mu.Unlock()

	for _, f := range feeds {
		close(f.done)
		f.source.Stop()
	}
}

// handleEvents upgrades to a websocket and forwards change events for the
// path query parameter until the client goes away.
func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Checked again by the upgrader; rejecting here avoids starting a watcher.
	if !allowedOrigin(r) {
		writeJSON(w, http.StatusForbidden, backend.ErrorReply{
			ErrorKind: models.ErrInvalidRequest,
			Message:   "events: origin not allowed",
		})
		return
	}
	root := r.URL.Query().Get("path")
	if root == "" || !filepath.IsAbs(root) {
		writeJSON(w, http.StatusBadRequest, backend.ErrorReply{
			ErrorKind: models.ErrInvalidRequest,
			Message:   "events: absolute path query parameter is required",
		})
		return
	}

	events, cancel, err := h.Subscribe(root)
	if err != nil {
		kind := models.KindOf(err)
		writeJSON(w, statusFor(kind), backend.ErrorReply{ErrorKind: kind, Message: err.Error()})
		return
	}
	defer cancel()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.debugf("events: upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	// The read pump only observes control frames and disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.debugf("events: write failed: %v", err)
				return
			}
		}
	}
}
