package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chmouel/gitpanel/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		x, y     byte
		expected models.Category
	}{
		{name: "untracked", x: '?', y: '?', expected: models.CategoryUntracked},
		{name: "staged modification", x: 'M', y: ' ', expected: models.CategoryStaged},
		{name: "staged addition", x: 'A', y: ' ', expected: models.CategoryStaged},
		{name: "staged deletion", x: 'D', y: ' ', expected: models.CategoryStaged},
		{name: "unstaged modification", x: ' ', y: 'M', expected: models.CategoryUnstaged},
		{name: "unstaged deletion", x: ' ', y: 'D', expected: models.CategoryUnstaged},
		{name: "partially staged same code", x: 'M', y: 'M', expected: models.CategoryPartiallyStaged},
		{name: "partially staged differing codes", x: 'A', y: 'M', expected: models.CategoryPartiallyStaged},
		{name: "porcelain v2 dots", x: '.', y: 'M', expected: models.CategoryUnstaged},
		{name: "nul index code", x: 0, y: 'M', expected: models.CategoryUnstaged},
		{name: "both blank falls back to unstaged", x: ' ', y: ' ', expected: models.CategoryUnstaged},
		{name: "both unset falls back to unstaged", x: 0, y: 0, expected: models.CategoryUnstaged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.x, tt.y))
		})
	}
}

func TestClassifyIsTotalAndDeterministic(t *testing.T) {
	valid := map[models.Category]bool{
		models.CategoryUntracked:       true,
		models.CategoryStaged:          true,
		models.CategoryUnstaged:        true,
		models.CategoryPartiallyStaged: true,
	}
	for x := 0; x < 256; x++ {
		for y := 0; y < 256; y++ {
			first := Classify(byte(x), byte(y))
			if !valid[first] {
				t.Fatalf("Classify(%q, %q) returned %q", x, y, first)
			}
			if second := Classify(byte(x), byte(y)); second != first {
				t.Fatalf("Classify(%q, %q) not deterministic: %q then %q", x, y, first, second)
			}
		}
	}
}
