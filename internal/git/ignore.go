package git

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/chmouel/gitpanel/internal/models"
)

// IgnorePattern returns the .gitignore line for file. byExtension ignores
// every file sharing the extension anywhere in the tree.
func IgnorePattern(file string, byExtension bool) (string, error) {
	file = strings.TrimPrefix(filepath.ToSlash(file), "./")
	if file == "" {
		return "", models.NewError(models.ErrInvalidRequest, "ignore: empty file")
	}
	if !byExtension {
		return "/" + strings.TrimPrefix(file, "/"), nil
	}
	ext := path.Ext(strings.TrimSuffix(file, "/"))
	if ext == "" {
		return "", models.NewError(models.ErrInvalidRequest, "ignore: %s has no extension", file)
	}
	return "**/*" + ext, nil
}

// Ignore appends a pattern for file to the repository's .gitignore unless an
// identical line is already present.
func (s *Service) Ignore(_ context.Context, repo, file string, byExtension bool) error {
	pattern, err := IgnorePattern(file, byExtension)
	if err != nil {
		return err
	}

	ignorePath := filepath.Join(repo, ".gitignore")
	existing, err := os.ReadFile(ignorePath) // #nosec G304 -- fixed name inside the repository
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return models.WrapError(models.ErrCommandFailed, err, "ignore")
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == pattern {
			return nil
		}
	}

	var b strings.Builder
	b.Write(existing)
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(pattern)
	b.WriteByte('\n')

	if err := os.WriteFile(ignorePath, []byte(b.String()), 0o644); err != nil { //nolint:gosec
		return models.WrapError(models.ErrCommandFailed, err, "ignore")
	}
	s.debugf("ignore: added %q to %s", pattern, ignorePath)
	return nil
}
