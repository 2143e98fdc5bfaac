package models

import "strings"

// Category is the UI classification of a status entry.
type Category string

// Category values for StatusFile.Category.
const (
	CategoryUntracked       Category = "untracked"
	CategoryStaged          Category = "staged"
	CategoryUnstaged        Category = "unstaged"
	CategoryPartiallyStaged Category = "partially-staged"
)

// StatusFile represents a file entry from git status.
type StatusFile struct {
	To       string // Path from the repository root; directories end with "/"
	From     string // Original path for renames and copies
	X        byte   // Index status code
	Y        byte   // Worktree status code
	Category Category
	Text     bool // Content is known to be text, whatever the extension
}

// IsDir reports whether the entry is an untracked directory.
func (f StatusFile) IsDir() bool {
	return strings.HasSuffix(f.To, "/")
}

// IsDeleted reports whether either side of the entry records a deletion.
func (f StatusFile) IsDeleted() bool {
	return f.X == 'D' || f.Y == 'D'
}

// Code returns the two-letter porcelain code, e.g. "M " or "??".
func (f StatusFile) Code() string {
	return string([]byte{codeOrSpace(f.X), codeOrSpace(f.Y)})
}

func codeOrSpace(c byte) byte {
	if c == 0 {
		return ' '
	}
	return c
}
