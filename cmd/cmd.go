// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

// setupCommand handles setup operations for the database and the config file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "status",
						Usage: "List migrations and when they were applied",
					},
					&cli.IntFlag{
						Name:  "rollback",
						Usage: "Revert the newest N applied migrations",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write an example config.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Where to write the config file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// playlistCommand handles local playlist definitions.
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"pl"},
		Usage:   "Manage dynamic playlist definitions",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List dynamic playlists",
				Flags: append(jsonFlags(),
					&cli.BoolFlag{
						Name:  "scheduled",
						Usage: "Only playlists with a periodic schedule",
					},
				),
				Action: r.PlaylistList,
			},
			{
				Name:      "show",
				Usage:     "Show a playlist definition and its last snapshot",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Flags:     jsonFlags(),
				Action:    r.PlaylistShow,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a playlist definition (the stored playlist on the server is kept)",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action:    r.PlaylistDelete,
			},
		},
	}
}

// importCommand loads interchange documents into the local store.
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import playlist definitions from a JSON or YAML document",
		Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Document format (json, yaml); inferred from the file extension when empty",
			},
			&cli.BoolFlag{
				Name:  "replace",
				Usage: "Replace existing playlists with the same name",
			},
		},
		Action: r.Import,
	}
}

// exportCommand writes interchange documents.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export playlist definitions as JSON or YAML",
		Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Export every playlist as a list",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Document format (json, yaml); inferred from --output when empty",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path",
			},
		},
		Action: r.Export,
	}
}

// previewCommand evaluates a playlist without writing it.
func previewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Evaluate a playlist against the server without writing it",
		Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Track list format (txt, markdown, csv)",
				Value:   "txt",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the track list to a file",
			},
		},
		Action: r.Preview,
	}
}

// refreshCommand runs evaluation cycles immediately.
func refreshCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "refresh",
		Usage:     "Evaluate and materialize playlists now",
		Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Refresh every playlist",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent cycles with --all",
				Value: 2,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Print pipeline progress",
			},
		},
		Action: r.Refresh,
	}
}

// runsCommand lists recorded refresh runs.
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "runs",
		Usage:     "Show recent refresh runs",
		Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
		Flags: append(jsonFlags(),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of runs to show",
				Value:   10,
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only runs with this status (running, succeeded, failed)",
			},
		),
		Action: r.Runs,
	}
}

// daemonCommand runs the scheduler and the control API.
func daemonCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run scheduled refreshes and the control API until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Control API address, overrides [server] in the config",
			},
			&cli.BoolFlag{
				Name:  "no-server",
				Usage: "Do not start the control API",
			},
			&cli.DurationFlag{
				Name:  "sync-interval",
				Usage: "How often playlist definitions are reloaded from the store",
				Value: defaultSyncInterval,
			},
		},
		Action: r.Daemon,
	}
}

// remoteCommand talks to the music server directly.
func remoteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Music server diagnostics",
		Commands: []*cli.Command{
			{
				Name:   "ping",
				Usage:  "Check the music server connection",
				Action: r.RemotePing,
			},
			{
				Name:   "tagtypes",
				Usage:  "List the tag types the server indexes",
				Flags:  jsonFlags(),
				Action: r.RemoteTagTypes,
			},
			{
				Name:   "playlists",
				Usage:  "List stored playlists on the server",
				Flags:  jsonFlags(),
				Action: r.RemotePlaylists,
			},
		},
	}
}
