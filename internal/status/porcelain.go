package status

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chmouel/gitpanel/internal/models"
)

// Report is the parsed output of `git status --porcelain=v1 -b -z`.
type Report struct {
	Branch   string
	Upstream string
	Ahead    int
	Behind   int
	Detached bool
	Files    []models.StatusFile
}

// ParsePorcelain parses NUL-separated porcelain v1 output with a branch header.
// Renames and copies, in either column, consume the following field as the
// original path.
func ParsePorcelain(raw []byte) (Report, error) {
	report := Report{Files: []models.StatusFile{}}
	fields := strings.Split(string(raw), "\x00")

	for i := 0; i < len(fields); i++ {
		field := fields[i]
		if field == "" {
			continue
		}
		if strings.HasPrefix(field, "## ") {
			parseBranchHeader(strings.TrimPrefix(field, "## "), &report)
			continue
		}
		if len(field) < 4 || field[2] != ' ' {
			return report, fmt.Errorf("malformed status entry %q", field)
		}

		file := NewFile(field[3:], field[0], field[1])
		if hasOriginalPath(file.X) || hasOriginalPath(file.Y) {
			if i+1 >= len(fields) {
				return report, fmt.Errorf("missing original path for %q", field)
			}
			i++
			file.From = fields[i]
		}
		report.Files = append(report.Files, file)
	}

	return report, nil
}

// hasOriginalPath reports whether a status column records a rename or copy.
// A worktree rename shows up after `git add -N` on the new path.
func hasOriginalPath(c byte) bool {
	return c == 'R' || c == 'C'
}

func parseBranchHeader(header string, report *Report) {
	for _, prefix := range []string{"No commits yet on ", "Initial commit on "} {
		if strings.HasPrefix(header, prefix) {
			report.Branch = strings.TrimPrefix(header, prefix)
			return
		}
	}
	if strings.HasPrefix(header, "HEAD (no branch)") {
		report.Branch = "HEAD"
		report.Detached = true
		return
	}

	// main...origin/main [ahead 1, behind 2]
	tracking := ""
	if idx := strings.Index(header, " ["); idx >= 0 && strings.HasSuffix(header, "]") {
		tracking = header[idx+2 : len(header)-1]
		header = header[:idx]
	}

	branch, upstream, _ := strings.Cut(header, "...")
	report.Branch = branch
	report.Upstream = upstream

	for _, part := range strings.Split(tracking, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "ahead "):
			report.Ahead, _ = strconv.Atoi(strings.TrimPrefix(part, "ahead "))
		case strings.HasPrefix(part, "behind "):
			report.Behind, _ = strconv.Atoi(strings.TrimPrefix(part, "behind "))
		}
	}
}
