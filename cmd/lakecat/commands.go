package main

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/lakecat/internal/awsconf"
	"github.com/pithecene-io/lakecat/lakecat"
	"github.com/pithecene-io/lakecat/lakecat/duckdb"
	gluestore "github.com/pithecene-io/lakecat/lakecat/glue"
	s3store "github.com/pithecene-io/lakecat/lakecat/s3"
)

// Read engines accepted by --engine.
const (
	engineFile   = "file"
	engineDuckDB = "duckdb"
)

// openCatalog builds the catalog from the global flags. The returned
// function releases the resources it opened.
func openCatalog(c *cli.Context, engine string) (*lakecat.Catalog, func(), error) {
	logger, err := newLogger(c)
	if err != nil {
		return nil, nil, err
	}

	clients, err := awsconf.NewClients(c.Context, awsconf.ClientConfig{
		Region:       c.String("region"),
		Endpoint:     c.String("endpoint"),
		UsePathStyle: c.Bool("path-style"),
		Credentials:  awsconf.StaticCredentials(c.String("access-key"), c.String("secret-key"), ""),
	})
	if err != nil {
		return nil, nil, err
	}

	meta, err := gluestore.New(clients.Glue, gluestore.Config{CatalogID: c.String("catalog-id")})
	if err != nil {
		return nil, nil, err
	}

	var store lakecat.ObjectStore
	root := c.String("fs-root")
	if root != "" {
		if store, err = lakecat.NewFS(root); err != nil {
			return nil, nil, fmt.Errorf("open fs root: %w", err)
		}
	} else if store, err = s3store.New(clients.S3, s3store.Config{}); err != nil {
		return nil, nil, err
	}

	opts := []lakecat.Option{lakecat.WithLogger(logger)}
	release := func() {}

	switch engine {
	case "", engineFile:
	case engineDuckDB:
		db, err := sql.Open("duckdb", "")
		if err != nil {
			return nil, nil, fmt.Errorf("open duckdb: %w", err)
		}
		release = func() { _ = db.Close() }

		cfg := duckdb.Config{}
		if root != "" {
			cfg.Resolve = func(loc lakecat.Location) string {
				return filepath.Join(root, loc.Bucket, filepath.FromSlash(loc.Prefix))
			}
		} else if err := configureDuckDBS3(c, db, clients); err != nil {
			release()
			return nil, nil, err
		}

		reader, err := duckdb.New(db, cfg)
		if err != nil {
			release()
			return nil, nil, err
		}
		opts = append(opts, lakecat.WithReader(reader))
	default:
		return nil, nil, fmt.Errorf("unknown engine %q (want %s or %s)", engine, engineFile, engineDuckDB)
	}

	catalog, err := lakecat.NewCatalog(meta, store, opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return catalog, release, nil
}

// configureDuckDBS3 hands the resolved AWS credentials and endpoint to
// DuckDB's httpfs extension.
func configureDuckDBS3(c *cli.Context, db *sql.DB, clients *awsconf.Clients) error {
	creds, err := clients.Config.Credentials.Retrieve(c.Context)
	if err != nil {
		return fmt.Errorf("retrieve aws credentials: %w", err)
	}
	cfg := duckdb.S3Config{
		Region:          clients.Config.Region,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		UsePathStyle:    c.Bool("path-style"),
	}
	if endpoint := c.String("endpoint"); endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid endpoint %q", endpoint)
		}
		cfg.Endpoint = u.Host
		cfg.DisableSSL = u.Scheme == "http"
	}
	return duckdb.ConfigureS3(c.Context, db, cfg)
}

func tableArgs(c *cli.Context) (string, string, error) {
	if c.Args().Len() != 2 {
		return "", "", errors.New("expected arguments: DB TABLE")
	}
	return c.Args().Get(0), c.Args().Get(1), nil
}

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

func tablesCommand() *cli.Command {
	return &cli.Command{
		Name:      "tables",
		Usage:     "list the tables of a database",
		ArgsUsage: "DB",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return errors.New("expected argument: DB")
			}
			catalog, release, err := openCatalog(c, "")
			if err != nil {
				return err
			}
			defer release()

			names, err := catalog.ListTables(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			cells := make([][]string, len(names))
			for i, n := range names {
				cells[i] = []string{n}
			}
			printTable(c.App.Writer, []string{"Table"}, cells)
			return nil
		},
	}
}

func partitionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "partitions",
		Usage:     "list the registered partitions of a table",
		ArgsUsage: "DB TABLE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "filter",
				Usage: "Glue partition expression, e.g. \"year = '2024'\"",
			},
		},
		Action: func(c *cli.Context) error {
			db, table, err := tableArgs(c)
			if err != nil {
				return err
			}
			catalog, release, err := openCatalog(c, "")
			if err != nil {
				return err
			}
			defer release()

			parts, err := catalog.GetPartitions(c.Context, db, table, c.String("filter"))
			if err != nil {
				return err
			}
			printPartitions(c.App.Writer, parts)
			return nil
		},
	}
}

func repairCommand() *cli.Command {
	return &cli.Command{
		Name:      "repair",
		Usage:     "delete partitions without data and register partitions with data",
		ArgsUsage: "DB TABLE",
		Action: func(c *cli.Context) error {
			db, table, err := tableArgs(c)
			if err != nil {
				return err
			}
			catalog, release, err := openCatalog(c, "")
			if err != nil {
				return err
			}
			defer release()

			report, err := catalog.RepairTable(c.Context, db, table)
			if report != nil {
				printRepairReport(c.App.Writer, report)
			}
			return err
		},
	}
}

func deletePartitionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-partitions",
		Usage:     "delete the data and registration of partitions",
		ArgsUsage: "DB TABLE",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "partition",
				Usage: "partition name such as year=2024/month=01 (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "delete every registered partition",
			},
		},
		Action: func(c *cli.Context) error {
			db, table, err := tableArgs(c)
			if err != nil {
				return err
			}
			names := c.StringSlice("partition")
			if len(names) == 0 && !c.Bool("all") {
				return errors.New("specify --partition or --all")
			}
			if len(names) > 0 && c.Bool("all") {
				return errors.New("--partition and --all are mutually exclusive")
			}

			catalog, release, err := openCatalog(c, "")
			if err != nil {
				return err
			}
			defer release()

			if c.Bool("all") {
				return catalog.DeletePartitions(c.Context, db, table, nil)
			}
			parts, err := resolvePartitions(c, catalog, db, table, names)
			if err != nil {
				return err
			}
			if err := catalog.DeletePartitions(c.Context, db, table, parts); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.App.Writer, "deleted %d partitions\n", len(parts))
			return nil
		},
	}
}

// resolvePartitions maps partition names to the registered partitions.
func resolvePartitions(c *cli.Context, catalog *lakecat.Catalog, db, table string, names []string) ([]lakecat.Partition, error) {
	t, err := catalog.Table(c.Context, db, table)
	if err != nil {
		return nil, err
	}
	registered, err := catalog.GetPartitions(c.Context, db, table, "")
	if err != nil {
		return nil, err
	}

	parts := make([]lakecat.Partition, 0, len(names))
	for _, name := range names {
		want, err := t.Partition(name)
		if err != nil {
			return nil, err
		}
		i := slices.IndexFunc(registered, func(p lakecat.Partition) bool {
			return slices.Equal(p.Values, want.Values)
		})
		if i < 0 {
			return nil, fmt.Errorf("partition %s of %s.%s: %w", want.Name, db, table, lakecat.ErrNotFound)
		}
		parts = append(parts, registered[i])
	}
	return parts, nil
}

func truncateCommand() *cli.Command {
	return &cli.Command{
		Name:      "truncate",
		Usage:     "delete every partition and every object under the table location",
		ArgsUsage: "DB TABLE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "confirm the deletion",
			},
		},
		Action: func(c *cli.Context) error {
			db, table, err := tableArgs(c)
			if err != nil {
				return err
			}
			if !c.Bool("yes") {
				return errors.New("truncate deletes all table data; pass --yes to confirm")
			}
			catalog, release, err := openCatalog(c, "")
			if err != nil {
				return err
			}
			defer release()

			return catalog.TruncateTable(c.Context, db, table)
		},
	}
}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "print table rows",
		ArgsUsage: "DB TABLE",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "columns",
				Usage: "columns to return (default all)",
			},
			&cli.StringFlag{
				Name:  "where",
				Usage: "SQL condition (duckdb engine only)",
			},
			&cli.StringSliceFlag{
				Name:  "order-by",
				Usage: "SQL ordering terms (duckdb engine only)",
			},
			&cli.StringFlag{
				Name:  "partition-filter",
				Usage: "read only partitions matching this Glue expression",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "maximum rows to return",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "rows to skip",
			},
			&cli.StringFlag{
				Name:  "engine",
				Usage: "read engine: file or duckdb",
				Value: engineFile,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print JSON lines instead of a table",
			},
		},
		Action: func(c *cli.Context) error {
			db, table, err := tableArgs(c)
			if err != nil {
				return err
			}
			catalog, release, err := openCatalog(c, c.String("engine"))
			if err != nil {
				return err
			}
			defer release()

			opts := lakecat.ReadOptions{
				Columns:   c.StringSlice("columns"),
				Condition: c.String("where"),
				OrderBy:   c.StringSlice("order-by"),
				Limit:     c.Int("limit"),
				Offset:    c.Int("offset"),
			}
			var rows []lakecat.Row
			if filter := c.String("partition-filter"); filter != "" {
				rows, err = catalog.ReadPartitionedTable(c.Context, db, table, filter, opts)
			} else {
				rows, err = catalog.ReadTable(c.Context, db, table, opts)
			}
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeJSONLines(c.App.Writer, rows)
			}
			printRows(c.App.Writer, rows, opts.Columns)
			return nil
		},
	}
}
