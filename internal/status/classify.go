// Package status classifies porcelain status codes and parses git status output.
package status

import "github.com/chmouel/gitpanel/internal/models"

// Classify maps an index/worktree code pair to a UI category.
//
// Rules, first match wins:
//
//	'?' '?'              -> untracked
//	non-blank, blank     -> staged
//	blank, non-blank     -> unstaged
//	non-blank, non-blank -> partially-staged
//
// Any other pair (both blank) classifies as unstaged. Blank means a space,
// a NUL byte, or '.' as printed by porcelain v2.
func Classify(x, y byte) models.Category {
	switch {
	case x == '?' && y == '?':
		return models.CategoryUntracked
	case !isBlank(x) && isBlank(y):
		return models.CategoryStaged
	case isBlank(x) && !isBlank(y):
		return models.CategoryUnstaged
	case !isBlank(x) && !isBlank(y):
		return models.CategoryPartiallyStaged
	}
	return models.CategoryUnstaged
}

func isBlank(c byte) bool {
	return c == ' ' || c == 0 || c == '.'
}

// NewFile builds a classified status entry.
func NewFile(to string, x, y byte) models.StatusFile {
	return models.StatusFile{
		To:       to,
		X:        x,
		Y:        y,
		Category: Classify(x, y),
	}
}
