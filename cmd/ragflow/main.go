// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/ragflow"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// cliApp carries what every command needs besides its flags.
type cliApp struct {
	out        io.Writer
	errOut     io.Writer
	engineOpts []ragflow.Option
}

func newApp(out, errOut io.Writer, engineOpts ...ragflow.Option) *cli.App {
	a := &cliApp{out: out, errOut: errOut, engineOpts: engineOpts}

	timeoutFlag := &cli.DurationFlag{
		Name:  "timeout",
		Usage: "How long to wait for run output (default from config)",
	}

	return &cli.App{
		Name:      "ragflow",
		Usage:     "Ingest documents and answer questions over them with durable workflows",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "ragflow.yaml",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB data directory (overrides config)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "Send events to a remote Inngest-compatible engine instead of running them in-process",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest text files, one event per file",
				ArgsUsage: "FILE...",
				Action:    a.ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source-id",
						Usage: "Source id for a single file (default: file name)",
					},
					&cli.BoolFlag{
						Name:  "no-wait",
						Usage: "Print event ids and return without waiting for the runs",
					},
					&cli.BoolFlag{
						Name:  "direct",
						Usage: "Ingest on the local worker pool without creating workflow runs",
					},
					timeoutFlag,
				},
			},
			{
				Name:      "query",
				Usage:     "Answer a question from ingested documents",
				ArgsUsage: "QUESTION",
				Action:    a.queryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of passages to retrieve (default from config)",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Only search passages from this source id",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the raw run output as JSON",
					},
					timeoutFlag,
				},
			},
			{
				Name:      "status",
				Usage:     "Show the runs triggered by an event",
				ArgsUsage: "EVENT_ID",
				Action:    a.statusCommand,
			},
			{
				Name:      "wait",
				Usage:     "Wait for the output of an event's run",
				ArgsUsage: "EVENT_ID",
				Action:    a.waitCommand,
				Flags:     []cli.Flag{timeoutFlag},
			},
			{
				Name:   "resume",
				Usage:  "Resume runs left unfinished by a previous process",
				Action: a.resumeCommand,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a run that has not finished",
				ArgsUsage: "RUN_ID",
				Action:    a.cancelCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
