// Package main is the entry point for the gitpanel application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chmouel/gitpanel/internal/buildinfo"
	"github.com/chmouel/gitpanel/internal/config"
	appcli "github.com/urfave/cli/v3"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	buildinfo.Set(version, commit, date, builtBy)
	buildinfo.Enrich()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().Run(ctx, os.Args)
	stop()
	if err != nil {
		if !isReported(err) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}

// newApp builds the command tree. Without a subcommand, status is shown.
func newApp() *appcli.Command {
	return &appcli.Command{
		Name:                  "gitpanel",
		Usage:                 "Inspect and act on the working tree of a git repository",
		Version:               buildinfo.Version(),
		EnableShellCompletion: true,
		Flags:                 globalFlags(),
		Commands: []*appcli.Command{
			statusCommand(),
			addCommand(),
			unstageCommand(),
			discardCommand(),
			ignoreCommand(),
			diffCommand(),
			openCommand(),
			activateCommand(),
			pushCommand(),
			pullCommand(),
			cloneCommand(),
			initCommand(),
			remoteCommand(),
			watchCommand(),
			serveCommand(),
			versionCommand(),
		},
		Before: func(ctx context.Context, cmd *appcli.Command) (context.Context, error) {
			if name := cmd.String("theme"); name != "" && config.NormalizeThemeName(name) == "" {
				return ctx, fmt.Errorf("unknown theme %q", name)
			}
			return ctx, nil
		},
		Action: handleStatusAction,

		// gp.diff_extensions takes comma separated values.
		DisableSliceFlagSeparator: true,
	}
}
