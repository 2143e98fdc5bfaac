package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/status"
)

// maxReplyBytes bounds how much of a reply body is read.
const maxReplyBytes = 64 << 20

// Client talks to the backend service over HTTP/JSON.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	dialer  *websocket.Dialer
	logf    func(string, ...any)
}

var _ Backend = (*Client)(nil)

// NewClient builds a client for baseURL. timeout bounds every call except
// push, pull and clone, which run until their context ends.
func NewClient(baseURL string, timeout time.Duration, logf func(string, ...any)) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
		dialer:  websocket.DefaultDialer,
		logf:    logf,
	}
}

func (c *Client) debugf(format string, args ...any) {
	if c.logf != nil {
		c.logf(format, args...)
	}
}

func (c *Client) call(ctx context.Context, op string, req Request, out any) error {
	switch op {
	case OpPush, OpPull, OpClone:
	default:
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return models.WrapError(models.ErrInvalidRequest, err, op)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/git/"+op, bytes.NewReader(body))
	if err != nil {
		return models.WrapError(models.ErrInvalidRequest, err, op)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.debugf("backend: %s path=%s", op, req.Path)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.WrapError(models.ErrBackendUnreachable, err, op)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return models.WrapError(models.ErrBackendUnreachable, err, op)
	}

	if resp.StatusCode != http.StatusOK {
		var reply ErrorReply
		if jsonErr := json.Unmarshal(data, &reply); jsonErr != nil || reply.ErrorKind == "" {
			return models.NewError(models.ErrBackendUnreachable, "%s: unexpected status %d", op, resp.StatusCode)
		}
		c.debugf("backend: %s failed: %s", op, reply.ErrorKind)
		return &models.Error{Kind: reply.ErrorKind, Message: reply.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return models.WrapError(models.ErrBackendUnreachable, err, fmt.Sprintf("%s: decode reply", op))
	}
	return nil
}

// TopLevel resolves the repository root containing path.
func (c *Client) TopLevel(ctx context.Context, path string) (string, error) {
	var reply PathReply
	if err := c.call(ctx, OpTopLevel, Request{Path: path}, &reply); err != nil {
		return "", err
	}
	return reply.Path, nil
}

// Status returns branch information and classified file entries.
func (c *Client) Status(ctx context.Context, repo string) (status.Report, error) {
	var reply StatusReply
	if err := c.call(ctx, OpStatus, Request{Path: repo}, &reply); err != nil {
		return status.Report{}, err
	}
	report, err := reply.Report()
	if err != nil {
		return status.Report{}, models.WrapError(models.ErrBackendUnreachable, err, "status: decode reply")
	}
	return report, nil
}

func (c *Client) Add(ctx context.Context, repo string, files []string) error {
	return c.call(ctx, OpAdd, Request{Path: repo, Files: files}, nil)
}

func (c *Client) Reset(ctx context.Context, repo string, files []string) error {
	return c.call(ctx, OpReset, Request{Path: repo, Files: files}, nil)
}

func (c *Client) Checkout(ctx context.Context, repo string, files []string) error {
	return c.call(ctx, OpCheckout, Request{Path: repo, Files: files}, nil)
}

func (c *Client) Push(ctx context.Context, repo string, creds *models.Credentials) error {
	return c.call(ctx, OpPush, Request{Path: repo, Auth: authFrom(creds)}, nil)
}

func (c *Client) Pull(ctx context.Context, repo string, creds *models.Credentials) error {
	return c.call(ctx, OpPull, Request{Path: repo, Auth: authFrom(creds)}, nil)
}

func (c *Client) Ignore(ctx context.Context, repo, file string, byExtension bool) error {
	return c.call(ctx, OpIgnore, Request{Path: repo, File: file, ByExtension: byExtension}, nil)
}

func (c *Client) Init(ctx context.Context, path string) error {
	return c.call(ctx, OpInit, Request{Path: path}, nil)
}

func (c *Client) Clone(ctx context.Context, url, target string, creds *models.Credentials) error {
	return c.call(ctx, OpClone, Request{URL: url, Target: target, Auth: authFrom(creds)}, nil)
}

func (c *Client) AddRemote(ctx context.Context, repo, url, name string) error {
	return c.call(ctx, OpAddRemote, Request{Path: repo, URL: url, Name: name}, nil)
}

func (c *Client) Show(ctx context.Context, repo, path string, ref models.RevisionRef) ([]byte, error) {
	var reply ShowReply
	if err := c.call(ctx, OpShow, Request{Path: repo, File: path, Ref: ref.String()}, &reply); err != nil {
		return nil, err
	}
	return reply.Content, nil
}

// Subscribe streams change events for repo until ctx ends or the connection
// drops. fn runs on the reading goroutine.
func (c *Client) Subscribe(ctx context.Context, repo string, fn func(Event)) error {
	wsURL, err := c.eventsURL(repo)
	if err != nil {
		return models.WrapError(models.ErrInvalidRequest, err, "events")
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return models.WrapError(models.ErrBackendUnreachable, err, "events")
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return models.NewError(models.ErrBackendUnreachable, "events: %s", closeErr.Text)
			}
			return models.WrapError(models.ErrBackendUnreachable, err, "events")
		}
		fn(ev)
	}
}

func (c *Client) eventsURL(repo string) (string, error) {
	u, err := url.Parse(c.baseURL + "/events")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("path", repo)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
