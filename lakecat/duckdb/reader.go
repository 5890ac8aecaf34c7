// Package duckdb provides a SQL read strategy for lakecat backed by DuckDB.
//
// The Reader hands the table's files to DuckDB's read_parquet, read_csv or
// read_json table functions with Hive partitioning enabled, so conditions,
// ordering, limits and offsets are evaluated by the engine. The caller opens
// the *sql.DB; registering the driver is a blank import:
//
//	import _ "github.com/marcboeker/go-duckdb"
//
//	db, err := sql.Open("duckdb", "")
//	reader, err := duckdb.New(db, duckdb.Config{})
//	catalog, err := lakecat.NewCatalog(meta, store, lakecat.WithReader(reader))
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pithecene-io/lakecat/lakecat"
)

// Config holds configuration for the DuckDB reader.
type Config struct {
	// Resolve maps a lakecat location to the path DuckDB reads. The default
	// renders an s3:// URI, which requires the httpfs extension (see
	// ConfigureS3). A local mirror of the bucket can be read by resolving
	// to a directory instead.
	Resolve func(lakecat.Location) string
}

// Reader implements lakecat.Reader by querying data files with DuckDB.
type Reader struct {
	db      *sql.DB
	resolve func(lakecat.Location) string
}

var _ lakecat.Reader = (*Reader)(nil)

// New creates a DuckDB reader over an open database handle.
func New(db *sql.DB, cfg Config) (*Reader, error) {
	if db == nil {
		return nil, errors.New("duckdb: database is required")
	}
	r := &Reader{db: db, resolve: cfg.Resolve}
	if r.resolve == nil {
		r.resolve = s3URI
	}
	return r, nil
}

// s3URI renders a location with the s3 scheme; DuckDB does not accept s3a
// or s3n.
func s3URI(loc lakecat.Location) string {
	loc.Scheme = "s3"
	return loc.String()
}

// Read implements lakecat.Reader. Partition columns are returned as strings,
// as the record engine returns them.
func (r *Reader) Read(ctx context.Context, src lakecat.Source, opts lakecat.ReadOptions) (_ []lakecat.Row, err error) {
	query, err := r.query(src, opts)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("duckdb: query %s.%s: %w", src.Table.Database, src.Table.Name, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return scanRows(rows)
}

// query renders the SELECT statement for a read.
func (r *Reader) query(src lakecat.Source, opts lakecat.ReadOptions) (string, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return "", fmt.Errorf("%w: negative limit or offset", lakecat.ErrUnsupportedOption)
	}
	from, err := r.tableFunction(src)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if len(opts.Columns) == 0 {
		b.WriteString("*")
	} else {
		for i, c := range opts.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quoteIdent(c))
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(from)
	if opts.Condition != "" {
		b.WriteString(" WHERE ")
		b.WriteString(opts.Condition)
	}
	if len(opts.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(opts.OrderBy, ", "))
	}
	if opts.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(opts.Offset))
	}
	return b.String(), nil
}

// tableFunction renders the table function call reading src's files.
func (r *Reader) tableFunction(src lakecat.Source) (string, error) {
	t := src.Table
	paths, err := r.paths(src)
	if err != nil {
		return "", err
	}
	list := make([]string, len(paths))
	for i, p := range paths {
		list[i] = quoteString(p)
	}
	files := "[" + strings.Join(list, ", ") + "]"

	hive := ""
	if t.Partitioned() {
		hive = ", hive_partitioning = true, hive_types_autocast = false"
	}

	switch f := t.Format(); f {
	case lakecat.FormatParquet:
		return fmt.Sprintf("read_parquet(%s%s)", files, hive), nil
	case lakecat.FormatCSV:
		header := "false"
		if t.HasHeader() {
			header = "true"
		}
		delim := t.Delimiter()
		if utf8.RuneCountInString(delim) != 1 {
			return "", fmt.Errorf("%w: delimiter %q", lakecat.ErrUnsupportedFormat, delim)
		}
		return fmt.Sprintf("read_csv(%s, delim = %s, header = %s, all_varchar = true%s)",
			files, quoteString(delim), header, hive), nil
	case lakecat.FormatJSONL:
		return fmt.Sprintf("read_json(%s, format = 'newline_delimited'%s)", files, hive), nil
	default:
		return "", fmt.Errorf("%w: %s", lakecat.ErrUnsupportedFormat, f)
	}
}

// paths returns the glob patterns of the files to read: the listed
// partitions' directories, or the whole table.
func (r *Reader) paths(src lakecat.Source) ([]string, error) {
	if src.Partitions == nil {
		if src.Table.Partitioned() {
			return []string{r.resolve(src.Location) + "/**/*"}, nil
		}
		return []string{r.resolve(src.Location) + "/*"}, nil
	}
	if len(src.Partitions) == 0 {
		return nil, fmt.Errorf("%w: no partitions to read", lakecat.ErrUnsupportedOption)
	}
	paths := make([]string, len(src.Partitions))
	for i, p := range src.Partitions {
		loc, err := lakecat.ParseLocation(p.Location)
		if err != nil {
			return nil, err
		}
		paths[i] = r.resolve(loc) + "/*"
	}
	return paths, nil
}

func scanRows(rows *sql.Rows) ([]lakecat.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []lakecat.Row{}
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(lakecat.Row, len(columns))
		for i, name := range columns {
			row[name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// quoteIdent quotes a column name as a SQL identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteString quotes a SQL string literal.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// -----------------------------------------------------------------------------
// S3 session
// -----------------------------------------------------------------------------

// S3Config configures DuckDB's httpfs extension for reading s3:// paths.
type S3Config struct {
	Region          string
	Endpoint        string // host[:port] without scheme, for S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
	DisableSSL      bool
}

// ConfigureS3 loads httpfs and sets the session's S3 settings. DuckDB
// settings are per connection, so the pool is limited to one connection.
func ConfigureS3(ctx context.Context, db *sql.DB, cfg S3Config) error {
	db.SetMaxOpenConns(1)

	stmts := []string{"INSTALL httpfs", "LOAD httpfs"}
	set := func(name, value string) {
		if value != "" {
			stmts = append(stmts, fmt.Sprintf("SET %s = %s", name, quoteString(value)))
		}
	}
	set("s3_region", cfg.Region)
	set("s3_endpoint", cfg.Endpoint)
	set("s3_access_key_id", cfg.AccessKeyID)
	set("s3_secret_access_key", cfg.SecretAccessKey)
	set("s3_session_token", cfg.SessionToken)
	if cfg.UsePathStyle {
		set("s3_url_style", "path")
	}
	if cfg.DisableSSL {
		stmts = append(stmts, "SET s3_use_ssl = false")
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("duckdb: configure s3: %s: %w", strings.SplitN(stmt, " =", 2)[0], err)
		}
	}
	return nil
}
