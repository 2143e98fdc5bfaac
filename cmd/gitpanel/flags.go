package main

import (
	"strings"

	"github.com/chmouel/gitpanel/internal/theme"
	appcli "github.com/urfave/cli/v3"
)

// globalFlags returns all global flags for the application.
// --version is provided by urfave/cli from Command.Version.
func globalFlags() []appcli.Flag {
	return []appcli.Flag{
		&appcli.StringFlag{
			Name:    "dir",
			Aliases: []string{"C"},
			Usage:   "Run as if started in this directory",
		},
		&appcli.StringFlag{
			Name:    "backend-url",
			Usage:   "Base URL of the gitpanel backend service",
			Sources: appcli.EnvVars("GITPANEL_BACKEND_URL"),
		},
		&appcli.BoolFlag{
			Name:  "local",
			Usage: "Run git in-process instead of talking to a backend service",
		},
		&appcli.StringFlag{
			Name:  "debug-log",
			Usage: "Path to debug log file",
		},
		&appcli.StringFlag{
			Name:    "theme",
			Aliases: []string{"t"},
			Usage:   "Override the UI theme (" + strings.Join(theme.AvailableThemes(), ", ") + ")",
		},
		&appcli.BoolFlag{
			Name:  "no-icons",
			Usage: "Do not print file icons",
		},
		&appcli.StringFlag{
			Name:  "config-file",
			Usage: "Path to configuration file",
		},
		&appcli.StringSliceFlag{
			Name:  "config",
			Usage: "Override config values (repeatable): --config=gp.key=value",
		},
	}
}

// fileFlags are shared by the batch file actions.
func fileFlags() []appcli.Flag {
	return []appcli.Flag{
		&appcli.BoolFlag{
			Name:    "all",
			Aliases: []string{"a"},
			Usage:   "Select every changed file",
		},
	}
}
