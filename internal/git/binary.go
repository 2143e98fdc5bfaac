package git

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/status"
)

// sniffLen matches the prefix git inspects for a NUL byte when deciding
// whether content is binary.
const sniffLen = 8000

// markText sets Text on entries whose content git considers text. Tracked
// changes use diff numstat; files numstat does not cover are read from the
// worktree. Failures leave entries unmarked.
func (s *Service) markText(ctx context.Context, repo string, files []models.StatusFile) {
	binary := map[string]bool{}
	if s.hasHead(ctx, repo) {
		out, err := s.run(ctx, repo, nil, "diff", "--numstat", "-z", "HEAD", "--")
		if err == nil {
			binary, err = status.ParseNumstat(out)
		}
		if err != nil {
			s.debugf("numstat failed in %s: %v", repo, err)
		}
	}

	for i := range files {
		f := &files[i]
		if f.IsDir() {
			continue
		}
		if isBinary, ok := binary[f.To]; ok {
			f.Text = !isBinary
			continue
		}
		if f.IsDeleted() {
			continue
		}
		f.Text = looksText(filepath.Join(repo, filepath.FromSlash(f.To)))
	}
}

// looksText reports whether the start of the file holds no NUL byte.
func looksText(path string) bool {
	fh, err := os.Open(path) // #nosec G304 -- path is a status entry under the repository root
	if err != nil {
		return false
	}
	defer func() { _ = fh.Close() }()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(fh, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false
	}
	return !bytes.Contains(buf[:n], []byte{0})
}
