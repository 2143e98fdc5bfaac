package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/remote"
	"github.com/chmouel/gitpanel/internal/theme"
)

// Terminal prompts on a terminal with a form, or reads lines when input is
// not a TTY. The last username is remembered in memory to pre-fill retries;
// passwords are never kept.
type Terminal struct {
	in          io.Reader
	out         io.Writer
	thm         *theme.Theme
	interactive bool
	// readPassword reads a line without echo; nil reads a plain line.
	readPassword func() (string, error)
	options      []tea.ProgramOption

	mu       sync.Mutex
	lastUser string
	lines    *bufio.Reader
}

var _ remote.CredentialPrompt = (*Terminal)(nil)

// NewTerminal builds a prompt over in and out, using the form when both are
// terminals.
func NewTerminal(in, out *os.File, thm *theme.Theme) *Terminal {
	t := &Terminal{in: in, out: out, thm: thm}
	if term.IsTerminal(int(in.Fd())) { //nolint:gosec
		t.readPassword = func() (string, error) {
			b, err := term.ReadPassword(int(in.Fd())) //nolint:gosec
			return string(b), err
		}
		t.interactive = term.IsTerminal(int(out.Fd())) //nolint:gosec
	}
	return t
}

// NewLineReader builds a non-interactive prompt reading from in.
func NewLineReader(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out, thm: theme.Dracula()}
}

// Prompt implements remote.CredentialPrompt.
func (t *Terminal) Prompt(ctx context.Context, req remote.PromptRequest) (models.Credentials, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Credentials{}, false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		creds models.Credentials
		ok    bool
		err   error
	)
	if t.interactive {
		creds, ok, err = t.runForm(ctx, req)
	} else {
		creds, ok, err = t.readLines(req)
	}
	if ok {
		t.lastUser = creds.Username
	}
	return creds, ok, err
}

func (t *Terminal) runForm(ctx context.Context, req remote.PromptRequest) (models.Credentials, bool, error) {
	form := NewForm(req, t.lastUser, t.thm)
	opts := append([]tea.ProgramOption{
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
		tea.WithContext(ctx),
	}, t.options...)

	final, err := tea.NewProgram(form, opts...).Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.Credentials{}, false, ctxErr
	}
	if err != nil {
		return models.Credentials{}, false, fmt.Errorf("credential prompt: %w", err)
	}
	f, isForm := final.(*Form)
	if !isForm {
		return models.Credentials{}, false, errors.New("credential prompt: unexpected model")
	}
	creds, ok := f.Result()
	return creds, ok, nil
}

// readLines asks for username and password one line each. End of input
// declines.
func (t *Terminal) readLines(req remote.PromptRequest) (models.Credentials, bool, error) {
	if t.lines == nil {
		t.lines = bufio.NewReader(t.in)
	}
	if req.Message != "" {
		_, _ = fmt.Fprintf(t.out, "%s\n", req.Message)
	}

	userPrompt := fmt.Sprintf("Username for %s: ", req.Operation)
	if t.lastUser != "" {
		userPrompt = fmt.Sprintf("Username for %s [%s]: ", req.Operation, t.lastUser)
	}
	_, _ = fmt.Fprint(t.out, userPrompt)
	user, err := t.readLine()
	if err != nil {
		return t.declined(err)
	}
	if user == "" {
		user = t.lastUser
	}
	if user == "" {
		return models.Credentials{}, false, nil
	}

	_, _ = fmt.Fprint(t.out, "Password: ")
	var pass string
	if t.readPassword != nil {
		pass, err = t.readPassword()
		_, _ = fmt.Fprintln(t.out)
	} else {
		pass, err = t.readLine()
	}
	if err != nil {
		return t.declined(err)
	}
	return models.Credentials{Username: user, Password: pass}, true, nil
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.lines.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *Terminal) declined(err error) (models.Credentials, bool, error) {
	if errors.Is(err, io.EOF) {
		return models.Credentials{}, false, nil
	}
	return models.Credentials{}, false, fmt.Errorf("credential prompt: %w", err)
}
