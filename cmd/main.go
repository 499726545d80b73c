package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:    "tracklift",
		Usage:   "Ingest album archives into a streaming catalog",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   runner.before,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrValidation) {
			logger.Error("invalid input", "error", err)
			os.Exit(2)
		}
		logger.Fatalf("application error: %v", err)
	}
}
