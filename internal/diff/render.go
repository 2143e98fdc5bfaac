package diff

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/chmouel/gitpanel/internal/models"
)

// DefaultContextLines is the number of unchanged lines around each hunk.
const DefaultContextLines = 3

// ContentSource reads a file at a revision. A path missing from the
// revision yields empty content.
type ContentSource interface {
	Show(ctx context.Context, repo, path string, ref models.RevisionRef) ([]byte, error)
}

// Render returns the unified diff between both sides of dc. An empty string
// means the sides are identical.
func Render(ctx context.Context, src ContentSource, repo string, dc models.DiffContext, contextLines int) (string, error) {
	before, err := src.Show(ctx, repo, dc.Path, dc.Previous)
	if err != nil {
		return "", fmt.Errorf("read %s@%s: %w", dc.Path, dc.Previous, err)
	}
	after, err := src.Show(ctx, repo, dc.Path, dc.Current)
	if err != nil {
		return "", fmt.Errorf("read %s@%s: %w", dc.Path, dc.Current, err)
	}
	if contextLines < 0 {
		contextLines = DefaultContextLines
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: fmt.Sprintf("a/%s@%s", dc.Path, dc.Previous),
		ToFile:   fmt.Sprintf("b/%s@%s", dc.Path, dc.Current),
		Context:  contextLines,
	})
}

// splitLines splits content into newline-terminated lines. Empty content has
// no lines and a missing final newline is added.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	lines := strings.SplitAfter(string(content), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}
