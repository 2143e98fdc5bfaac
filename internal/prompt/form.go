// Package prompt asks the user for remote credentials on the terminal.
package prompt

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wrap"

	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/remote"
	"github.com/chmouel/gitpanel/internal/theme"
)

const (
	keyEnter    = "enter"
	keyEsc      = "esc"
	keyCtrlC    = "ctrl+c"
	keyTab      = "tab"
	keyShiftTab = "shift+tab"
	keyUp       = "up"
	keyDown     = "down"

	boxWidth = 60
)

const (
	fieldUsername = iota
	fieldPassword
)

// Form is the bubbletea model of the credential dialog.
type Form struct {
	Request  remote.PromptRequest
	Username textinput.Model
	Password textinput.Model
	Thm      *theme.Theme

	focus     int
	errorMsg  string
	submitted bool
	cancelled bool
}

// NewForm builds a form for req, pre-filling username.
func NewForm(req remote.PromptRequest, username string, thm *theme.Theme) *Form {
	user := textinput.New()
	user.Placeholder = "username"
	user.SetValue(username)
	user.CharLimit = 256
	user.Prompt = ""
	user.Width = boxWidth - 12
	user.TextStyle = lipgloss.NewStyle().Foreground(thm.TextFg)

	pass := textinput.New()
	pass.Placeholder = "password or token"
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'
	pass.CharLimit = 1024
	pass.Prompt = ""
	pass.Width = boxWidth - 12
	pass.TextStyle = lipgloss.NewStyle().Foreground(thm.TextFg)

	f := &Form{Request: req, Username: user, Password: pass, Thm: thm}
	if username != "" {
		f.setFocus(fieldPassword)
	} else {
		f.setFocus(fieldUsername)
	}
	return f
}

func (f *Form) setFocus(field int) {
	f.focus = field
	if field == fieldUsername {
		f.Username.Focus()
		f.Password.Blur()
		return
	}
	f.Password.Focus()
	f.Username.Blur()
}

// Init implements tea.Model.
func (f *Form) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (f *Form) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return f, nil
	}

	switch key.String() {
	case keyEsc, keyCtrlC:
		f.cancelled = true
		return f, tea.Quit
	case keyTab, keyShiftTab, keyUp, keyDown:
		f.setFocus(1 - f.focus)
		return f, nil
	case keyEnter:
		if f.focus == fieldUsername {
			f.setFocus(fieldPassword)
			return f, nil
		}
		if strings.TrimSpace(f.Username.Value()) == "" {
			f.errorMsg = "username is required"
			f.setFocus(fieldUsername)
			return f, nil
		}
		f.submitted = true
		return f, tea.Quit
	}

	f.errorMsg = ""
	var cmd tea.Cmd
	if f.focus == fieldUsername {
		f.Username, cmd = f.Username.Update(key)
	} else {
		f.Password, cmd = f.Password.Update(key)
	}
	return f, cmd
}

// Result returns the entered credentials and whether the user submitted.
func (f *Form) Result() (models.Credentials, bool) {
	if !f.submitted {
		return models.Credentials{}, false
	}
	return models.Credentials{
		Username: strings.TrimSpace(f.Username.Value()),
		Password: f.Password.Value(),
	}, true
}

// View implements tea.Model.
func (f *Form) View() string {
	if f.submitted || f.cancelled {
		return ""
	}
	inner := boxWidth - 6

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(f.Thm.Accent).
		Padding(1, 2).
		Width(boxWidth)
	titleStyle := lipgloss.NewStyle().
		Foreground(f.Thm.Accent).
		Bold(true).
		Width(inner).
		Align(lipgloss.Center)
	labelStyle := lipgloss.NewStyle().Foreground(f.Thm.MutedFg)
	fieldStyle := func(focused bool) lipgloss.Style {
		style := lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1).Width(inner)
		if focused {
			return style.BorderForeground(f.Thm.Accent)
		}
		return style.BorderForeground(f.Thm.Border)
	}
	footerStyle := lipgloss.NewStyle().
		Foreground(f.Thm.MutedFg).
		Width(inner).
		Align(lipgloss.Center)

	lines := []string{titleStyle.Render(fmt.Sprintf("Credentials for %s", f.Request.Operation))}
	if f.Request.Message != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(f.Thm.WarnFg).Render(wrap.String(f.Request.Message, inner)))
	}
	lines = append(lines,
		labelStyle.Render("Username")+"\n"+fieldStyle(f.focus == fieldUsername).Render(f.Username.View()),
		labelStyle.Render("Password")+"\n"+fieldStyle(f.focus == fieldPassword).Render(f.Password.View()),
	)
	if f.errorMsg != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(f.Thm.ErrorFg).Render(f.errorMsg))
	}
	lines = append(lines, footerStyle.Render("Tab to switch field • Enter to confirm • Esc to cancel"))

	return boxStyle.Render(strings.Join(lines, "\n\n"))
}
