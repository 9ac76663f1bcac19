package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/dynlist/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	configPath := "config.toml"
	if env := os.Getenv("DYNLIST_CONFIG"); env != "" {
		configPath = env
	}

	runner := NewRunner(RunnerOpts{
		ConfigPath: configPath,
		Logger:     logger,
	})

	app := newApp(runner, configPath)

	err := app.Run(context.Background(), os.Args)
	if cerr := runner.Close(); cerr != nil {
		logger.Warn("cleanup failed", "err", cerr)
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}

func newApp(runner *Runner, configPath string) *cli.Command {
	return &cli.Command{
		Name:    "dynlist",
		Usage:   "Rule-based dynamic playlists for MPD",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   configPath,
			},
		},
		Commands: runner.register(),
	}
}
