package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/lineage/internal/config"
	"github.com/hpungsan/lineage/internal/errors"
	"github.com/hpungsan/lineage/internal/ops"
	"github.com/hpungsan/lineage/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, logger *zap.SugaredLogger) *cli.App {
	app := &cli.App{
		Name:    "lineage",
		Usage:   "Character-level authorship over git history",
		Version: Version,
		Commands: []*cli.Command{
			analyzeCmd(db, cfg, logger),
			runsCmd(db),
			latestCmd(db),
			deleteCmd(db),
			scoresCmd(db),
			summaryCmd(db),
			fileCmd(db),
			reportCmd(db),
			exportCmd(db, cfg),
			blameCmd(cfg),
			serveCmd(db, cfg, logger),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// runFlag selects a run; empty means the latest one.
var runFlag = &cli.StringFlag{Name: "run", Aliases: []string{"r"}, Usage: "Run ID (default: latest run)"}

// analyzeCmd creates the analyze command.
func analyzeCmd(db *sql.DB, cfg *config.Config, logger *zap.SugaredLogger) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Replay the history of every file tracked at HEAD and store ownership as a new run",
		ArgsUsage: "[repo]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "file", Aliases: []string{"f"}, Usage: "Only analyze this file (repeatable)"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"j"}, Usage: "Files analyzed at once (default: config)"},
		},
		Action: func(c *cli.Context) error {
			repo := "."
			if c.NArg() > 0 {
				repo = c.Args().First()
			}

			runCfg := *cfg
			if n := c.Int("workers"); n > 0 {
				runCfg.Workers = n
			}

			output, err := ops.Analyze(c.Context, db, &runCfg, logger, ops.AnalyzeInput{
				RepoPath: repo,
				Files:    c.StringSlice("file"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// runsCmd creates the runs command.
func runsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List stored runs, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListRuns(c.Context, db, ops.ListRunsInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// latestCmd creates the latest command.
func latestCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "latest",
		Usage: "Show the most recent run",
		Action: func(c *cli.Context) error {
			output, err := ops.LatestRun(c.Context, db)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a run and everything it stored",
		ArgsUsage: "<run-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.DeleteRun(c.Context, db, ops.DeleteRunInput{RunID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// scoresCmd creates the scores command.
func scoresCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "scores",
		Usage: "List per-file, per-author ownership scores",
		Flags: []cli.Flag{
			runFlag,
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Filter by file"},
			&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "Filter by author"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Scores(c.Context, db, ops.ScoresInput{
				RunID:  c.String("run"),
				File:   c.String("file"),
				Author: c.String("author"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// summaryCmd creates the summary command.
func summaryCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Aggregate a run by author",
		Flags: []cli.Flag{runFlag},
		Action: func(c *cli.Context) error {
			output, err := ops.Summary(c.Context, db, ops.SummaryInput{RunID: c.String("run")})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// fileCmd creates the file command.
func fileCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "file",
		Usage:     "Show everything a run stored for one file",
		ArgsUsage: "<path>",
		Flags:     []cli.Flag{runFlag},
		Action: func(c *cli.Context) error {
			output, err := ops.FileDetail(c.Context, db, ops.FileDetailInput{
				RunID: c.String("run"),
				File:  c.Args().First(),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// reportCmd creates the report command. The report is printed as markdown.
func reportCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Print a markdown ownership report",
		Flags: []cli.Flag{
			runFlag,
			&cli.IntFlag{Name: "top", Aliases: []string{"t"}, Value: ops.DefaultReportTop, Usage: "Files listed"},
			&cli.BoolFlag{Name: "json", Usage: "Print the report wrapped in JSON"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Report(c.Context, db, ops.ReportInput{
				RunID: c.String("run"),
				Top:   c.Int("top"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(output)
			}
			_, err = fmt.Fprint(os.Stdout, output.Markdown)
			return err
		},
	}
}

// exportCmd creates the export command.
func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a run's results as TSV files",
		Flags: []cli.Flag{
			runFlag,
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Target directory (default: ~/.lineage/exports/<run-id>)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, db, cfg, ops.ExportInput{
				RunID: c.String("run"),
				Dir:   c.String("dir"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// blameOutput reports where an HTML attribution page was written.
type blameOutput struct {
	File string `json:"file"`
	Head string `json:"head"`
	HTML string `json:"html"`
}

// blameCmd creates the blame command.
func blameCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "blame",
		Usage:     "Show which revision and author introduced every character of a file",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "repo", Value: ".", Usage: "Repository path"},
			&cli.StringFlag{Name: "head", Usage: "Commit to replay up to (default: HEAD)"},
			&cli.StringFlag{Name: "html", Usage: "Write a self-contained HTML page to this file instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Attribute(c.Context, cfg, ops.AttributeInput{
				RepoPath: c.String("repo"),
				File:     c.Args().First(),
				Head:     c.String("head"),
			})
			if err != nil {
				return outputError(err)
			}

			htmlPath := c.String("html")
			if htmlPath == "" {
				return outputJSON(output)
			}
			if err := writeHTML(htmlPath, output); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(blameOutput{File: output.File, Head: output.Head, HTML: htmlPath})
		},
	}
}

func writeHTML(path string, out *ops.AttributeOutput) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := web.RenderAttributionHTML(f, out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config, logger *zap.SugaredLogger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(db, cfg, logger, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv, logger)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if lErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", lErr.Code, lErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
