// Command lakecat inspects and repairs Glue tables stored on S3.
//
// Usage:
//
//	lakecat tables DB
//	lakecat partitions DB TABLE [--filter EXPR]
//	lakecat repair DB TABLE
//	lakecat delete-partitions DB TABLE (--partition k=v/k=v ... | --all)
//	lakecat truncate DB TABLE --yes
//	lakecat read DB TABLE [--columns c1,c2] [--where SQL] [--limit N] [--engine file|duckdb] [--json]
//
// AWS settings are taken from flags or LAKECAT_* environment variables,
// falling back to the default AWS credential chain.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "lakecat:", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lakecat",
		Usage: "keep Glue partitions in sync with the S3 data behind them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "region",
				Usage:   "AWS region",
				Value:   "us-east-1",
				EnvVars: []string{"LAKECAT_REGION", "AWS_REGION"},
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Usage:   "custom endpoint URL for S3 and Glue (LocalStack, MinIO)",
				EnvVars: []string{"LAKECAT_ENDPOINT"},
			},
			&cli.BoolFlag{
				Name:    "path-style",
				Usage:   "use path-style S3 addressing",
				EnvVars: []string{"LAKECAT_PATH_STYLE"},
			},
			&cli.StringFlag{
				Name:    "access-key",
				Usage:   "static AWS access key ID",
				EnvVars: []string{"LAKECAT_ACCESS_KEY"},
			},
			&cli.StringFlag{
				Name:    "secret-key",
				Usage:   "static AWS secret access key",
				EnvVars: []string{"LAKECAT_SECRET_KEY"},
			},
			&cli.StringFlag{
				Name:    "catalog-id",
				Usage:   "Glue catalog ID when not the account default",
				EnvVars: []string{"LAKECAT_CATALOG_ID"},
			},
			&cli.StringFlag{
				Name:  "fs-root",
				Usage: "read and write table data under this local directory instead of S3 (bucket = first-level directory)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "info",
				EnvVars: []string{"LAKECAT_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "text or json",
				Value: "text",
			},
		},
		Commands: []*cli.Command{
			tablesCommand(),
			partitionsCommand(),
			repairCommand(),
			deletePartitionsCommand(),
			truncateCommand(),
			readCommand(),
		},
	}
}

// newLogger builds the stderr logger from the global flags.
func newLogger(c *cli.Context) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", c.String("log-level"))
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(c.String("log-format")) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", c.String("log-format"))
	}
}
