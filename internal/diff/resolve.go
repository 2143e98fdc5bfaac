// Package diff resolves which revisions to compare for a file, keeps at
// most one open view per identity key and renders unified diffs.
package diff

import (
	"path/filepath"
	"strings"

	"github.com/chmouel/gitpanel/internal/models"
)

// Request describes a diff the user asked for.
type Request struct {
	Path     string
	Category models.Category
	// IsText marks files known to be text regardless of their extension.
	IsText bool
	// Explicit, when set, is used as is.
	Explicit *models.DiffContext
}

// Resolver maps requests to diff contexts.
type Resolver struct {
	extensions map[string]struct{}
}

// NewResolver builds a resolver accepting the given extensions. Matching is
// case-insensitive and a leading dot is optional.
func NewResolver(extensions []string) *Resolver {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return &Resolver{extensions: set}
}

// Supported reports whether path can be shown as a diff.
func (r *Resolver) Supported(path string, isText bool) bool {
	if isText {
		return true
	}
	_, ok := r.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Resolve returns the context to diff. Without an explicit context the file
// is compared against HEAD: staged files show the index, everything else the
// working tree.
func (r *Resolver) Resolve(req Request) (models.DiffContext, error) {
	path := req.Path
	if path == "" && req.Explicit != nil {
		path = req.Explicit.Path
	}
	if path == "" {
		return models.DiffContext{}, models.NewError(models.ErrInvalidRequest, "diff: empty path")
	}
	if strings.HasSuffix(path, "/") {
		return models.DiffContext{}, models.NewError(models.ErrUnsupportedDiffTarget, "%s is a directory", path)
	}
	if !r.Supported(path, req.IsText) {
		return models.DiffContext{}, models.NewError(models.ErrUnsupportedDiffTarget, "%s cannot be diffed", path)
	}

	if req.Explicit != nil {
		dc := *req.Explicit
		if dc.Path == "" {
			dc.Path = path
		}
		if dc.Previous.IsZero() || dc.Current.IsZero() {
			return models.DiffContext{}, models.NewError(models.ErrInvalidRequest, "diff: explicit context needs both revisions")
		}
		return dc, nil
	}

	current := models.Special(models.RefWorking)
	if req.Category == models.CategoryStaged {
		current = models.Special(models.RefIndex)
	}
	return models.DiffContext{
		Path:     path,
		Previous: models.GitRef("HEAD"),
		Current:  current,
	}, nil
}

// CheckSingleTarget rejects files deleted on either side, which cannot be
// opened or diffed as a single target.
func CheckSingleTarget(file models.StatusFile) error {
	if file.IsDeleted() {
		return models.NewError(models.ErrFileDeleted, "%s was deleted", file.To)
	}
	return nil
}
