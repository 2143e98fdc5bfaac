package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"

	"github.com/chmouel/gitpanel/internal/actions"
	"github.com/chmouel/gitpanel/internal/backend"
	"github.com/chmouel/gitpanel/internal/buildinfo"
	"github.com/chmouel/gitpanel/internal/git"
	"github.com/chmouel/gitpanel/internal/log"
	"github.com/chmouel/gitpanel/internal/models"
	"github.com/chmouel/gitpanel/internal/remote"
	"github.com/chmouel/gitpanel/internal/repo"
	"github.com/chmouel/gitpanel/internal/server"
	"github.com/chmouel/gitpanel/internal/watch"
	appcli "github.com/urfave/cli/v3"
)

// reportedError is returned once the failure has already been printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// isReported tells main not to print err a second time.
func isReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

// withSession builds a session, runs fn and releases the session.
func withSession(ctx context.Context, cmd *appcli.Command, fn func(*session) error) error {
	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}

// printResult prints an action result and turns a failed remote outcome
// into an error.
func (s *session) printResult(res actions.Result, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, s.renderer.Result(res))
	if res.Outcome != nil && res.Outcome.State != remote.Succeeded {
		return &reportedError{err: fmt.Errorf("%s", res.Outcome)}
	}
	return nil
}

type statusFileJSON struct {
	Path     string          `json:"path"`
	From     string          `json:"from,omitempty"`
	Code     string          `json:"code"`
	Category models.Category `json:"category"`
}

type statusJSON struct {
	Root     string           `json:"root"`
	Branch   string           `json:"branch"`
	Upstream string           `json:"upstream,omitempty"`
	Ahead    int              `json:"ahead"`
	Behind   int              `json:"behind"`
	Files    []statusFileJSON `json:"files"`
}

func writeStatusJSON(w io.Writer, c repo.Change) error {
	out := statusJSON{
		Root:     c.Status.RootPath,
		Branch:   c.Status.Branch,
		Upstream: c.Upstream,
		Ahead:    c.Ahead,
		Behind:   c.Behind,
		Files:    make([]statusFileJSON, 0, len(c.Files)),
	}
	for _, f := range c.Files {
		out.Files = append(out.Files, statusFileJSON{Path: f.To, From: f.From, Code: f.Code(), Category: f.Category})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func statusCommand() *appcli.Command {
	return &appcli.Command{
		Name:    "status",
		Aliases: []string{"st"},
		Usage:   "Show the branch and changed files",
		Flags: []appcli.Flag{
			&appcli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
		},
		Action: handleStatusAction,
	}
}

func handleStatusAction(ctx context.Context, cmd *appcli.Command) error {
	return withSession(ctx, cmd, func(s *session) error {
		change := s.tracker.Snapshot()
		if cmd.Bool("json") {
			if err := s.requireRepo(); err != nil {
				return err
			}
			return writeStatusJSON(s.out, change)
		}
		fmt.Fprint(s.out, s.renderer.Status(change))
		if err := s.requireRepo(); err != nil {
			return &reportedError{err: err}
		}
		return nil
	})
}

// batchCommand builds a command applying a batch action to selected files.
func batchCommand(name, usage string, run func(*actions.Layer) func(context.Context, []models.StatusFile) (actions.Result, error)) *appcli.Command {
	return &appcli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "[path...]",
		Flags:     fileFlags(),
		Action: func(ctx context.Context, cmd *appcli.Command) error {
			return withSession(ctx, cmd, func(s *session) error {
				files, err := s.selectFiles(cmd.Args().Slice(), cmd.Bool("all"), false)
				if err != nil {
					return err
				}
				return s.printResult(run(s.layer)(ctx, files))
			})
		},
	}
}

func addCommand() *appcli.Command {
	return batchCommand("add", "Stage files", func(l *actions.Layer) func(context.Context, []models.StatusFile) (actions.Result, error) {
		return l.Add
	})
}

func unstageCommand() *appcli.Command {
	return batchCommand("unstage", "Remove staged changes from the index", func(l *actions.Layer) func(context.Context, []models.StatusFile) (actions.Result, error) {
		return l.Unstage
	})
}

func discardCommand() *appcli.Command {
	return batchCommand("discard", "Discard changes of tracked files", func(l *actions.Layer) func(context.Context, []models.StatusFile) (actions.Result, error) {
		return l.Discard
	})
}

func ignoreCommand() *appcli.Command {
	return &appcli.Command{
		Name:      "ignore",
		Usage:     "Add a file or its extension to .gitignore",
		ArgsUsage: "<path>",
		Flags: []appcli.Flag{
			&appcli.BoolFlag{
				Name:    "ext",
				Aliases: []string{"e"},
				Usage:   "Ignore every file with the same extension",
			},
		},
		Action: func(ctx context.Context, cmd *appcli.Command) error {
			if cmd.NArg() != 1 {
				return models.NewError(models.ErrInvalidRequest, "ignore takes exactly one path")
			}
			return withSession(ctx, cmd, func(s *session) error {
				files, err := s.selectFiles(cmd.Args().Slice(), false, true)
				if err != nil {
					return err
				}
				return s.printResult(s.layer.Ignore(ctx, files[0], cmd.Bool("ext")))
			})
		},
	}
}

func diffCommand() *appcli.Command {
	return &appcli.Command{
		Name:      "diff",
		Usage:     "Show diffs of selected files",
		ArgsUsage: "[path...]",
		Flags: append(fileFlags(),
			&appcli.StringFlag{
				Name:  "previous",
				Usage: "Revision for the old side: a git ref, INDEX or WORKING",
			},
			&appcli.StringFlag{
				Name:  "current",
				Usage: "Revision for the new side: a git ref, INDEX or WORKING",
			},
			&appcli.IntFlag{
				Name:  "context",
				Usage: "Lines of context around each hunk",
				Value: 3,
			},
		),
		Action: func(ctx context.Context, cmd *appcli.Command) error {
			explicit, err := explicitContext(cmd.String("previous"), cmd.String("current"))
			if err != nil {
				return err
			}
			return withSession(ctx, cmd, func(s *session) error {
				files, err := s.selectFiles(cmd.Args().Slice(), cmd.Bool("all"), true)
				if err != nil {
					return err
				}
				res, err := s.layer.Diff(ctx, files, explicit)
				if err != nil {
					return err
				}
				if len(res.Skipped) > 0 {
					fmt.Fprintln(s.errOut, s.renderer.Result(actions.Result{Action: res.Action, Skipped: res.Skipped}))
				}
				return nil
			})
		},
	}
}

// explicitContext builds the explicit diff context from --previous and
// --current. Both or neither must be given; the path is filled per file.
func explicitContext(previous, current string) (*models.DiffContext, error) {
	if previous == "" && current == "" {
		return nil, nil
	}
	if previous == "" || current == "" {
		return nil, models.NewError(models.ErrInvalidRequest, "--previous and --current must be used together")
	}
	return &models.DiffContext{
		Previous: models.ParseRevision(previous),
		Current:  models.ParseRevision(current),
	}, nil
}

func openCommand() *appcli.Command {
	return &appcli.Command{
		Name:      "open",
		Usage:     "Open files in $EDITOR, or print their paths",
		ArgsUsage: "<path...>",
		Flags:     fileFlags(),
		Action: func(ctx context.Context, cmd *appcli.Command) error {
			return withSession(ctx, cmd, func(s *session) error {
				files, err := s.selectFiles(cmd.Args().Slice(), cmd.Bool("all"), true)
				if err != nil {
					return err
				}
				res, err := s.layer.Open(ctx, files)
				if err != nil {
					return err
				}
				if len(res.Skipped) > 0 {
					fmt.Fprintln(s.errOut, s.renderer.Result(actions.Result{Action: res.Action, Skipped: res.Skipped}))
				}
				return nil
			})
		},
	}
}

func activateCommand() *appcli.Command {
	return &appcli.Command{
		Name:      "activate",
		Usage:     "Open a file, or its diff when gp.double_click_diff is set",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *appcli.Command) error {
			if cmd.NArg() != 1 {
				return models.NewError(models.ErrInvalidRequest, "activate takes exactly one path")
			}
			return withSession(ctx, cmd, func(s *session) error {
				files, err := s.selectFiles(cmd.Args().Slice(), false, true)
				if err != nil {
					return err
				}
				_, err = s.layer.Activate(ctx, files[0])
				return err
			})
		},
	}
}

func pushCommand() *appcli.Command {
	return &appcli.Command{
		Name:  "push",
		Usage: "Push the current branch, prompting for credentials when needed",
		Action: func(ctx context.Context, cmd *appcli.Command) error {
			return withSession(ctx, cmd, func(s *session) error {
				return s.printResult(s.layer.Push(ctx))
			})
		},
	}
}

func pullCommand() *appcli.Command {
	return &appcli.Command{
		Name:  "pull",
		Usage: "Pull into the current branch, prompting for credentials when needed",
		Action: func(ctx context.Context, cmd *appcli.Command) error {
			return withSession(ctx, cmd, func(s *session) error {
				return s.printResult(s.layer.Pull(ctx))
			})
		},
	}
}

func cloneCommand() *appcli.Command {
	return &appcli.Command{
		Name:      "clone",
		Usage:     "Clone a repository, prompting for credentials when needed",
		ArgsUsage: "<url> [directory]",
		Action: func(ctx context.Context, cmd *appcli.Command) error {
			if cmd.NArg() < 1 || cmd.NArg() > 2 {
				return models.NewError(models.ErrInvalidRequest, "clone takes a url and an optional directory")
			}
			url := cmd.Args().Get(0)
			return withSession(ctx, cmd, func(s *session) error {
				target := cmd.Args().Get(1)
				if target == "" {
					target = cloneTarget(url)
				}
				if !filepath.IsAbs(target) {
					target = filepath.Join(s.dir, target)
				}
				return s.printResult(s.layer.Clone(ctx, url, target))
			})
		},
	}
}

// cloneTarget derives the directory name git would use for url.
func cloneTarget(url string) string {
	name := strings.TrimRight(url, "/\\")
	if i := strings.LastIndexAny(name, "/:\\"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".git")
	if name == "" {
		return "repository"
	}
	return name
}

func initCommand() *appcli.Command {
	return &appcli.Command{
		Name:      "init",
		Usage:     "Create a repository and show its status",
		ArgsUsage: "[directory]",
		Action: func(ctx context.Context, cmd *appcli.Command) error {
			return withSession(ctx, cmd, func(s *session) error {
				dir := s.dir
				if arg := cmd.Args().First(); arg != "" {
					dir = arg
					if !filepath.IsAbs(dir) {
						dir = filepath.Join(s.dir, dir)
					}
				}
				if err := s.printResult(s.layer.Init(ctx, dir)); err != nil {
					return err
				}
				fmt.Fprint(s.out, s.renderer.Status(s.tracker.Snapshot()))
				return nil
			})
		},
	}
}

func remoteCommand() *appcli.Command {
	return &appcli.Command{
		Name:  "remote",
		Usage: "Manage remotes",
		Commands: []*appcli.Command{
			{
				Name:      "add",
				Usage:     "Add a remote to the current repository",
				ArgsUsage: "<url>",
				Flags: []appcli.Flag{
					&appcli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "Remote name",
						Value:   "origin",
					},
				},
				Action: func(ctx context.Context, cmd *appcli.Command) error {
					if cmd.NArg() != 1 {
						return models.NewError(models.ErrInvalidRequest, "remote add takes exactly one url")
					}
					return withSession(ctx, cmd, func(s *session) error {
						return s.printResult(s.layer.AddRemote(ctx, cmd.Args().First(), cmd.String("name")))
					})
				},
			},
		},
	}
}

// eventSubscriber is implemented by backends that stream change events.
type eventSubscriber interface {
	Subscribe(ctx context.Context, repo string, fn func(backend.Event)) error
}

func watchCommand() *appcli.Command {
	return &appcli.Command{
		Name:  "watch",
		Usage: "Print the status again whenever the working tree changes",
		Action: func(ctx context.Context, cmd *appcli.Command) error {
			return withSession(ctx, cmd, func(s *session) error {
				if err := s.requireRepo(); err != nil {
					return err
				}
				fmt.Fprint(s.out, s.renderer.Status(s.tracker.Snapshot()))
				unsubscribe := s.tracker.Subscribe(func(c repo.Change) {
					fmt.Fprintln(s.out)
					fmt.Fprint(s.out, s.renderer.Status(c))
				})
				defer unsubscribe()
				return s.watchChanges(ctx)
			})
		},
	}
}

// watchChanges feeds change notifications to the tracker until ctx ends.
// Remote backends stream events; the in-process backend watches the tree.
func (s *session) watchChanges(ctx context.Context) error {
	root := s.tracker.Status().RootPath
	if sub, ok := s.backend.(eventSubscriber); ok {
		err := sub.Subscribe(ctx, root, func(backend.Event) {
			s.tracker.FileChanged(ctx)
		})
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	w := watch.New(root, log.Prefixed("watch"))
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Events():
			s.tracker.FileChanged(ctx)
		}
	}
}

func serveCommand() *appcli.Command {
	return &appcli.Command{
		Name:  "serve",
		Usage: "Run the backend service over HTTP",
		Flags: []appcli.Flag{
			&appcli.StringFlag{
				Name:    "addr",
				Aliases: []string{"l"},
				Usage:   "Listen address (defaults to gp.serve_addr)",
			},
		},
		Action: handleServeAction,
	}
}

func handleServeAction(ctx context.Context, cmd *appcli.Command) error {
	cfg, _, err := loadSettings(cmd)
	if err != nil {
		_ = log.Close()
		return err
	}
	defer func() { _ = log.Close() }()

	if !git.Available() {
		return models.NewError(models.ErrBackendUnreachable, "git executable not found in PATH")
	}
	svc := git.NewService(log.Prefixed("git"))
	defer func() { _ = svc.Close() }()

	var hub *server.Hub
	if cfg.AutoRefresh {
		hub = server.NewHub(server.WatchSources(log.Prefixed("watch")), log.Prefixed("events"))
	}
	addr := cmd.String("addr")
	if addr == "" {
		addr = cfg.ServeAddr
	}

	out, _ := writers(cmd)
	srv := server.New(svc, hub, log.Prefixed("server"))
	return srv.Serve(ctx, addr, func(a net.Addr) {
		fmt.Fprintf(out, "gitpanel backend listening on http://%s\n", a)
	})
}

func versionCommand() *appcli.Command {
	return &appcli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(_ context.Context, cmd *appcli.Command) error {
			out, _ := writers(cmd)
			_, err := fmt.Fprintln(out, buildinfo.Get())
			return err
		},
	}
}
