// Package render formats panel state, action results and diffs for the
// terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wrap"

	"github.com/chmouel/gitpanel/internal/actions"
	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/remote"
	"github.com/chmouel/gitpanel/internal/repo"
	"github.com/chmouel/gitpanel/internal/theme"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// categoryOrder is the order sections are printed in.
var categoryOrder = []models.Category{
	models.CategoryStaged,
	models.CategoryPartiallyStaged,
	models.CategoryUnstaged,
	models.CategoryUntracked,
}

var categoryTitles = map[models.Category]string{
	models.CategoryStaged:          "Staged",
	models.CategoryPartiallyStaged: "Partially staged",
	models.CategoryUnstaged:        "Changes",
	models.CategoryUntracked:       "Untracked",
}

// Renderer formats output with a theme.
type Renderer struct {
	Thm       *theme.Theme
	ShowIcons bool
	Width     int
}

// New returns a renderer; width <= 0 uses DefaultWidth.
func New(thm *theme.Theme, showIcons bool, width int) *Renderer {
	if thm == nil {
		thm = theme.Dracula()
	}
	if width <= 0 {
		width = DefaultWidth
	}
	return &Renderer{Thm: thm, ShowIcons: showIcons, Width: width}
}

func (r *Renderer) categoryColor(c models.Category) lipgloss.Color {
	switch c {
	case models.CategoryStaged:
		return r.Thm.SuccessFg
	case models.CategoryPartiallyStaged:
		return r.Thm.Cyan
	case models.CategoryUntracked:
		return r.Thm.Pink
	}
	return r.Thm.WarnFg
}

func (r *Renderer) icon(glyph string) string {
	if !r.ShowIcons {
		return ""
	}
	return iconWithSpace(glyph)
}

// Header renders the repository line: branch, upstream and root.
func (r *Renderer) Header(c repo.Change) string {
	muted := lipgloss.NewStyle().Foreground(r.Thm.MutedFg)
	if !c.Status.Bound() {
		line := lipgloss.NewStyle().Foreground(r.Thm.ErrorFg).Render("not in a git repository")
		if c.Err != nil {
			line += " " + muted.Render("("+string(models.KindOf(c.Err))+")")
		}
		return line
	}

	branch := c.Status.Branch
	glyph := iconBranch
	if branch == "" {
		branch = "HEAD"
		glyph = iconDetached
	}
	parts := []string{lipgloss.NewStyle().Foreground(r.Thm.Accent).Bold(true).Render(r.icon(glyph) + branch)}
	if c.Upstream != "" {
		track := c.Upstream
		if c.Ahead > 0 {
			track += fmt.Sprintf(" ↑%d", c.Ahead)
		}
		if c.Behind > 0 {
			track += fmt.Sprintf(" ↓%d", c.Behind)
		}
		parts = append(parts, muted.Render("["+track+"]"))
	}
	parts = append(parts, muted.Render(c.Status.RootPath))
	return strings.Join(parts, " ")
}

// Status renders the header followed by files grouped by category.
func (r *Renderer) Status(c repo.Change) string {
	var b strings.Builder
	b.WriteString(r.Header(c))
	b.WriteString("\n")
	if !c.Status.Bound() {
		return b.String()
	}
	if len(c.Files) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(r.Thm.MutedFg).Render("nothing to commit, working tree clean"))
		b.WriteString("\n")
		return b.String()
	}

	grouped := make(map[models.Category][]models.StatusFile)
	for _, f := range c.Files {
		grouped[f.Category] = append(grouped[f.Category], f)
	}
	for _, cat := range categoryOrder {
		files := grouped[cat]
		if len(files) == 0 {
			continue
		}
		color := r.categoryColor(cat)
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprintf("%s (%d)", categoryTitles[cat], len(files))))
		b.WriteString("\n")
		for _, f := range files {
			b.WriteString(r.fileLine(f, color))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (r *Renderer) fileLine(f models.StatusFile, color lipgloss.Color) string {
	code := lipgloss.NewStyle().Foreground(color).Render(f.Code())
	name := f.To
	if f.From != "" {
		name = f.From + " → " + f.To
	}
	icon := ""
	if r.ShowIcons {
		icon = iconWithSpace(deviconFor(f.To))
	}
	return fmt.Sprintf("  %s %s%s", code, icon, lipgloss.NewStyle().Foreground(r.Thm.TextFg).Render(name))
}

// Outcome renders the result of a remote operation.
func (r *Renderer) Outcome(o remote.Outcome) string {
	var color lipgloss.Color
	var glyph string
	switch o.State {
	case remote.Succeeded:
		color, glyph = r.Thm.SuccessFg, iconSuccess
	case remote.Cancelled:
		color, glyph = r.Thm.MutedFg, iconCancel
	default:
		color, glyph = r.Thm.ErrorFg, iconFailure
	}
	return lipgloss.NewStyle().Foreground(color).Render(wrap.String(r.icon(glyph)+o.String(), r.Width))
}

// Result renders a batch action summary, listing skipped files.
func (r *Renderer) Result(res actions.Result) string {
	var lines []string
	if res.Outcome != nil {
		lines = append(lines, r.Outcome(*res.Outcome))
	}
	if len(res.Applied) > 0 {
		msg := fmt.Sprintf("%s: %s", res.Action, strings.Join(res.Applied, ", "))
		lines = append(lines, lipgloss.NewStyle().Foreground(r.Thm.SuccessFg).Render(wrap.String(msg, r.Width)))
	}
	for _, s := range res.Skipped {
		msg := fmt.Sprintf("skipped %s: %s", s.Path, s.Detail)
		lines = append(lines, lipgloss.NewStyle().Foreground(r.Thm.WarnFg).Render(wrap.String(msg, r.Width)))
	}
	if len(lines) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(r.Thm.MutedFg).Render(res.Action+": nothing to do"))
	}
	return strings.Join(lines, "\n")
}

// Error renders a failure with its kind.
func (r *Renderer) Error(err error) string {
	return lipgloss.NewStyle().Foreground(r.Thm.ErrorFg).Render(wrap.String(r.icon(iconFailure)+err.Error(), r.Width))
}

// Diff colours a unified diff.
func (r *Renderer) Diff(text string) string {
	if text == "" {
		return lipgloss.NewStyle().Foreground(r.Thm.MutedFg).Render("no differences")
	}
	added := lipgloss.NewStyle().Foreground(r.Thm.SuccessFg)
	removed := lipgloss.NewStyle().Foreground(r.Thm.ErrorFg)
	hunk := lipgloss.NewStyle().Foreground(r.Thm.Cyan)
	header := lipgloss.NewStyle().Foreground(r.Thm.Accent).Bold(true)

	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			lines[i] = header.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = hunk.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = added.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removed.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
