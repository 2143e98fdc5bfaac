// Package server exposes a backend.Backend over HTTP/JSON and streams
// working tree changes over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chmouel/gitpanel/internal/backend"
	log "github.com/chmouel/gitpanel/internal/log"
	"github.com/chmouel/gitpanel/internal/models"
)

// maxRequestBytes bounds request bodies.
const maxRequestBytes = 1 << 20

// shutdownTimeout bounds graceful shutdown in Serve.
const shutdownTimeout = 5 * time.Second

// Server routes backend operations and the event stream.
type Server struct {
	backend backend.Backend
	hub     *Hub
	mux     *http.ServeMux
	logf    func(string, ...any)
}

// New builds a server over b. hub may be nil, in which case /events is not
// served.
func New(b backend.Backend, hub *Hub, logf func(string, ...any)) *Server {
	s := &Server{
		backend: b,
		hub:     hub,
		mux:     http.NewServeMux(),
		logf:    logf,
	}
	s.mux.HandleFunc("POST /git/{op}", s.handleOp)
	if hub != nil {
		s.mux.HandleFunc("GET /events", hub.handleEvents)
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens on addr until ctx ends, then shuts down gracefully. ready,
// when non-nil, receives the bound address once listening.
func (s *Server) Serve(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.debugf("server: listening on %s", ln.Addr())
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.debugf("server: stopped")
	return nil
}

func (s *Server) debugf(format string, args ...any) {
	if s.logf != nil {
		s.logf(format, args...)
	}
}

func (s *Server) handleOp(w http.ResponseWriter, r *http.Request) {
	op := r.PathValue("op")
	if !allowedOrigin(r) {
		s.debugf("server: %s rejected origin %q", op, r.Header.Get("Origin"))
		writeJSON(w, http.StatusForbidden, backend.ErrorReply{
			ErrorKind: models.ErrInvalidRequest,
			Message:   "origin not allowed",
		})
		return
	}
	if !isJSON(r) {
		writeJSON(w, http.StatusUnsupportedMediaType, backend.ErrorReply{
			ErrorKind: models.ErrInvalidRequest,
			Message:   "content type must be application/json",
		})
		return
	}

	var req backend.Request
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, op, models.WrapError(models.ErrInvalidRequest, err, "read body"))
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, op, models.WrapError(models.ErrInvalidRequest, err, "decode body"))
			return
		}
	}

	reply, err := s.dispatch(r.Context(), op, req)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	if reply == nil {
		reply = struct{}{}
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) dispatch(ctx context.Context, op string, req backend.Request) (any, error) {
	if op != backend.OpClone && req.Path == "" {
		return nil, models.NewError(models.ErrInvalidRequest, "%s: path is required", op)
	}
	b := s.backend
	switch op {
	case backend.OpTopLevel:
		root, err := b.TopLevel(ctx, req.Path)
		if err != nil {
			return nil, err
		}
		return backend.PathReply{Path: root}, nil
	case backend.OpStatus:
		report, err := b.Status(ctx, req.Path)
		if err != nil {
			return nil, err
		}
		return backend.NewStatusReply(report), nil
	case backend.OpAdd:
		return nil, b.Add(ctx, req.Path, req.Files)
	case backend.OpReset:
		return nil, b.Reset(ctx, req.Path, req.Files)
	case backend.OpCheckout:
		return nil, b.Checkout(ctx, req.Path, req.Files)
	case backend.OpPush:
		return nil, b.Push(ctx, req.Path, req.Credentials())
	case backend.OpPull:
		return nil, b.Pull(ctx, req.Path, req.Credentials())
	case backend.OpIgnore:
		return nil, b.Ignore(ctx, req.Path, req.File, req.ByExtension)
	case backend.OpInit:
		return nil, b.Init(ctx, req.Path)
	case backend.OpClone:
		return nil, b.Clone(ctx, req.URL, req.Target, req.Credentials())
	case backend.OpAddRemote:
		return nil, b.AddRemote(ctx, req.Path, req.URL, req.Name)
	case backend.OpShow:
		if req.File == "" || req.Ref == "" {
			return nil, models.NewError(models.ErrInvalidRequest, "show: file and ref are required")
		}
		content, err := b.Show(ctx, req.Path, req.File, models.ParseRevision(req.Ref))
		if err != nil {
			return nil, err
		}
		return backend.ShowReply{Content: content}, nil
	}
	return nil, models.NewError(models.ErrInvalidRequest, "unknown operation %q", op)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.ErrInvalidRequest:
		return http.StatusBadRequest
	case models.ErrNotARepository:
		return http.StatusNotFound
	case models.ErrAuthenticationFailure:
		return http.StatusUnauthorized
	case models.ErrFileDeleted:
		return http.StatusGone
	case models.ErrUnsupportedDiffTarget:
		return http.StatusUnprocessableEntity
	case models.ErrRemoteOperationFailure:
		return http.StatusBadGateway
	case models.ErrBackendUnreachable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	kind := models.KindOf(err)
	if kind == "" {
		kind = models.ErrCommandFailed
	}
	message := err.Error()
	var typed *models.Error
	if errors.As(err, &typed) {
		message = typed.Message
		if typed.Err != nil {
			message = strings.TrimPrefix(message+": "+typed.Err.Error(), ": ")
		}
	}
	s.debugf("server: %s failed: %s", op, kind)
	writeJSON(w, statusFor(kind), backend.ErrorReply{ErrorKind: kind, Message: log.Redact(message)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
