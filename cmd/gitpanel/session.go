package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/chmouel/gitpanel/internal/actions"
	"github.com/chmouel/gitpanel/internal/backend"
	"github.com/chmouel/gitpanel/internal/config"
	"github.com/chmouel/gitpanel/internal/git"
	"github.com/chmouel/gitpanel/internal/log"
	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/prompt"
	"github.com/chmouel/gitpanel/internal/remote"
	"github.com/chmouel/gitpanel/internal/render"
	"github.com/chmouel/gitpanel/internal/repo"
	"github.com/chmouel/gitpanel/internal/theme"
	appcli "github.com/urfave/cli/v3"
)

// Seams replaced by tests.
var (
	loadConfigFunc = config.LoadConfig
	newBackendFunc = newBackend
	newPromptFunc  = func(thm *theme.Theme) remote.CredentialPrompt {
		return prompt.NewTerminal(os.Stdin, os.Stderr, thm)
	}
	newEditorFunc = editorFromEnv
)

// session holds everything a command needs, built from global flags.
type session struct {
	cfg      *config.AppConfig
	dir      string
	backend  backend.Backend
	tracker  *repo.Tracker
	layer    *actions.Layer
	renderer *render.Renderer
	out      io.Writer
	errOut   io.Writer
	close    func()
}

func writers(cmd *appcli.Command) (io.Writer, io.Writer) {
	root := cmd.Root()
	out, errOut := root.Writer, root.ErrWriter
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return out, errOut
}

// loadSettings sets up logging and configuration the way every command
// needs it, without contacting the backend.
func loadSettings(cmd *appcli.Command) (*config.AppConfig, string, error) {
	_, errOut := writers(cmd)

	debugLog := cmd.String("debug-log")
	if debugLog != "" {
		setDebugLog(errOut, debugLog)
	}

	dir := cmd.String("dir")
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		dir = wd
	}
	expanded, err := config.ExpandPath(dir)
	if err != nil {
		return nil, "", fmt.Errorf("error expanding dir: %w", err)
	}
	dir, err = filepath.Abs(expanded)
	if err != nil {
		return nil, "", err
	}
	// git reports resolved roots; match them when dir goes through a symlink.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	cfg, err := loadConfigFunc(cmd.String("config-file"), dir)
	if err != nil {
		fmt.Fprintf(errOut, "Error loading config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	if debugLog == "" {
		if cfg.DebugLog != "" {
			setDebugLog(errOut, cfg.DebugLog)
		} else {
			_ = log.SetFile("")
		}
	}

	if name := cmd.String("theme"); name != "" {
		normalized := config.NormalizeThemeName(name)
		if normalized == "" {
			return nil, "", fmt.Errorf("unknown theme %q", name)
		}
		cfg.Theme = normalized
	}
	if cmd.Bool("no-icons") {
		cfg.ShowIcons = false
	}
	if u := cmd.String("backend-url"); u != "" {
		cfg.BackendURL = strings.TrimRight(u, "/")
	}

	// CLI overrides have the highest precedence.
	if overrides := cmd.StringSlice("config"); len(overrides) > 0 {
		if err := cfg.ApplyCLIOverrides(overrides); err != nil {
			return nil, "", fmt.Errorf("error applying config overrides: %w", err)
		}
	}
	return cfg, dir, nil
}

func setDebugLog(errOut io.Writer, path string) {
	if expanded, err := config.ExpandPath(path); err == nil {
		path = expanded
	}
	if err := log.SetFile(path); err != nil {
		fmt.Fprintf(errOut, "Error opening debug log file %q: %v\n", path, err)
	}
}

// newBackend returns the in-process git service with --local, and the HTTP
// client otherwise.
func newBackend(cfg *config.AppConfig, local bool) (backend.Backend, func(), error) {
	if local {
		if !git.Available() {
			return nil, nil, models.NewError(models.ErrBackendUnreachable, "git executable not found in PATH")
		}
		svc := git.NewService(log.Prefixed("git"))
		return svc, func() { _ = svc.Close() }, nil
	}
	return backend.NewClient(cfg.BackendURL, cfg.RequestTimeout, log.Prefixed("client")), func() {}, nil
}

// newSession loads settings, connects the backend and binds the tracker to
// the working directory.
func newSession(ctx context.Context, cmd *appcli.Command) (*session, error) {
	cfg, dir, err := loadSettings(cmd)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	b, closeBackend, err := newBackendFunc(cfg, cmd.Bool("local"))
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	out, errOut := writers(cmd)
	thm := theme.GetTheme(cfg.Theme)
	renderer := render.New(thm, cfg.ShowIcons, terminalWidth(out))

	tracker := repo.NewTracker(b, log.Prefixed("tracker"))
	tracker.Restored(ctx, dir)

	s := &session{
		cfg:      cfg,
		dir:      dir,
		backend:  b,
		tracker:  tracker,
		renderer: renderer,
		out:      out,
		errOut:   errOut,
	}
	s.layer = actions.New(actions.Options{
		Tracker: tracker,
		Backend: b,
		Opener: &terminalOpener{
			out:          out,
			src:          b,
			renderer:     renderer,
			contextLines: contextLinesFrom(cmd),
			editor:       newEditorFunc(),
		},
		Prompt: newPromptFunc(thm),
		Config: cfg,
		Logf:   log.Prefixed("actions"),
	})
	s.close = func() {
		closeBackend()
		if err := log.Close(); err != nil {
			fmt.Fprintf(errOut, "Error closing debug log: %v\n", err)
		}
	}
	return s, nil
}

func contextLinesFrom(cmd *appcli.Command) int {
	if cmd.IsSet("context") {
		return cmd.Int("context")
	}
	return -1
}

func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) { //nolint:gosec
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd())) //nolint:gosec
	if err != nil {
		return 0
	}
	return width
}

// requireRepo fails with the tracker's binding error when no repository is
// active.
func (s *session) requireRepo() error {
	if s.tracker.Status().Bound() {
		return nil
	}
	if err := s.tracker.Snapshot().Err; err != nil {
		return err
	}
	return models.NewError(models.ErrNotARepository, "%s is not inside a git repository", s.dir)
}

// selectFiles maps command line paths to status entries. Paths are relative
// to the working directory. A path with no pending change yields a bare
// entry when allowClean is set and an error otherwise.
func (s *session) selectFiles(args []string, all, allowClean bool) ([]models.StatusFile, error) {
	if err := s.requireRepo(); err != nil {
		return nil, err
	}
	files := s.tracker.Files()
	if all {
		if len(files) == 0 {
			return nil, models.NewError(models.ErrInvalidRequest, "no changes")
		}
		return files, nil
	}
	if len(args) == 0 {
		return nil, models.NewError(models.ErrInvalidRequest, "no files selected")
	}

	root := s.tracker.Status().RootPath
	byPath := make(map[string]models.StatusFile, len(files))
	for _, f := range files {
		byPath[strings.TrimSuffix(f.To, "/")] = f
	}

	selected := make([]models.StatusFile, 0, len(args))
	for _, arg := range args {
		rel, err := repoRelative(root, s.dir, arg)
		if err != nil {
			return nil, err
		}
		if f, ok := byPath[rel]; ok {
			selected = append(selected, f)
			continue
		}
		if !allowClean {
			return nil, models.NewError(models.ErrInvalidRequest, "%s has no changes", rel)
		}
		selected = append(selected, models.StatusFile{To: rel})
	}
	return selected, nil
}

// repoRelative turns arg, relative to dir, into a slash path relative to
// root.
func repoRelative(root, dir, arg string) (string, error) {
	p := arg
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	rel, err := filepath.Rel(root, filepath.Clean(p))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", models.NewError(models.ErrInvalidRequest, "%s is outside the repository", arg)
	}
	return filepath.ToSlash(rel), nil
}
