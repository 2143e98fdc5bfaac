// Package backend defines the Git backend operations used by the panel core
// and an HTTP client for the local backend service.
package backend

import (
	"context"

	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/status"
)

// Backend is the set of Git operations the panel relies on. Every call may
// fail with a *models.Error carrying an ErrorKind.
type Backend interface {
	// TopLevel resolves the repository root containing path.
	TopLevel(ctx context.Context, path string) (string, error)
	Status(ctx context.Context, repo string) (status.Report, error)
	Add(ctx context.Context, repo string, files []string) error
	Reset(ctx context.Context, repo string, files []string) error
	Checkout(ctx context.Context, repo string, files []string) error
	Push(ctx context.Context, repo string, creds *models.Credentials) error
	Pull(ctx context.Context, repo string, creds *models.Credentials) error
	Ignore(ctx context.Context, repo, file string, byExtension bool) error
	Init(ctx context.Context, path string) error
	Clone(ctx context.Context, url, target string, creds *models.Credentials) error
	AddRemote(ctx context.Context, repo, url, name string) error
	// Show returns the content of path at ref. A path absent from that
	// revision yields empty content and no error.
	Show(ctx context.Context, repo, path string, ref models.RevisionRef) ([]byte, error)
}

// Operation names, shared by the HTTP routes and the client.
const (
	OpTopLevel  = "top_level"
	OpStatus    = "status"
	OpAdd       = "add"
	OpReset     = "reset"
	OpCheckout  = "checkout"
	OpPush      = "push"
	OpPull      = "pull"
	OpIgnore    = "ignore"
	OpInit      = "init"
	OpClone     = "clone"
	OpAddRemote = "add_remote"
	OpShow      = "show"
)
