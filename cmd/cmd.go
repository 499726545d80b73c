// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func formatFlag(value string) cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: text, json, markdown or csv",
		Value:   value,
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example config.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "path",
						Aliases: []string{"p"},
						Usage:   "Where to write the file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
		},
	}
}

// ingestCommand handles archive ingestion
func ingestCommand(r *Runner) *cli.Command {
	archiveFlags := []cli.Flag{
		configFlag(),
		&cli.StringFlag{
			Name:     "archive",
			Aliases:  []string{"a"},
			Usage:    "Zip archive of audio and .lrc files",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "album",
			Usage:    "Spotify album URL, URI or ID",
			Required: true,
		},
	}

	return &cli.Command{
		Name:  "ingest",
		Usage: "Ingest album archives into the catalog",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Extract, match, transcode, upload and persist an album",
				Flags: append(archiveFlags,
					&cli.StringFlag{
						Name:  "album-id",
						Usage: "Append songs to an existing album instead of creating one",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent media pipelines (overrides media.workers)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Use an in-memory database and object store",
					},
					formatFlag("text"),
				),
				Action: r.IngestRun,
			},
			{
				Name:   "check",
				Usage:  "Match archive files against the album listing without writing anything",
				Flags:  append(archiveFlags, formatFlag("text")),
				Action: r.IngestCheck,
			},
		},
	}
}

// albumCommand reads albums back out of the catalog
func albumCommand(r *Runner) *cli.Command {
	idFlag := &cli.StringFlag{
		Name:     "id",
		Usage:    "Album ID",
		Required: true,
	}

	return &cli.Command{
		Name:  "album",
		Usage: "Catalog album operations",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List albums",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AlbumList,
			},
			{
				Name:   "show",
				Usage:  "Show an album with its songs",
				Flags:  []cli.Flag{configFlag(), idFlag, formatFlag("text")},
				Action: r.AlbumShow,
			},
			{
				Name:  "export",
				Usage: "Write an album to disk (Markdown exports include the cover)",
				Flags: []cli.Flag{
					configFlag(),
					idFlag,
					formatFlag("markdown"),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: album ID)",
					},
				},
				Action: r.AlbumExport,
			},
		},
	}
}

// spotifyCommand handles Spotify metadata lookups
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify metadata lookups",
		Commands: []*cli.Command{
			{
				Name:  "album",
				Usage: "Show the track listing ingest would use",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "url"},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SpotifyAlbum,
			},
		},
	}
}
