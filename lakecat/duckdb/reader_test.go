package duckdb

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/lakecat/lakecat"
)

func parquetTable(partitioned bool) *lakecat.Table {
	t := &lakecat.Table{
		Database: "db",
		Name:     "events",
		Location: "s3a://lake/db/events",
		StorageDescriptor: lakecat.StorageDescriptor{
			InputFormat: "org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat",
			Columns:     []lakecat.Column{{Name: "id", Type: "bigint"}, {Name: "name", Type: "string"}},
		},
	}
	if partitioned {
		t.PartitionKeys = []lakecat.Column{{Name: "year", Type: "string"}}
	}
	return t
}

func source(t *testing.T, table *lakecat.Table) lakecat.Source {
	t.Helper()
	loc, err := lakecat.ParseLocation(table.Location)
	require.NoError(t, err)
	return lakecat.Source{Table: table, Location: loc}
}

func newReader(t *testing.T) (*Reader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r, err := New(db, Config{})
	require.NoError(t, err)
	return r, mock
}

func TestNew_RequiresDatabase(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)
}

func TestReader_Query(t *testing.T) {
	r, _ := newReader(t)

	tests := []struct {
		name  string
		table *lakecat.Table
		opts  lakecat.ReadOptions
		want  string
	}{
		{
			name:  "unpartitioned parquet",
			table: parquetTable(false),
			want:  `SELECT * FROM read_parquet(['s3://lake/db/events/*'])`,
		},
		{
			name:  "partitioned parquet with options",
			table: parquetTable(true),
			opts: lakecat.ReadOptions{
				Columns:   []string{"id", "year"},
				Condition: "year = '2024'",
				OrderBy:   []string{"id DESC"},
				Limit:     10,
				Offset:    20,
			},
			want: `SELECT "id", "year" FROM read_parquet(['s3://lake/db/events/**/*'], hive_partitioning = true, hive_types_autocast = false)` +
				` WHERE year = '2024' ORDER BY id DESC LIMIT 10 OFFSET 20`,
		},
		{
			name: "csv with header and delimiter",
			table: func() *lakecat.Table {
				t := parquetTable(false)
				t.StorageDescriptor.InputFormat = "org.apache.hadoop.mapred.TextInputFormat"
				t.StorageDescriptor.SerDe.Parameters = map[string]string{"field.delim": "|"}
				t.Parameters = map[string]string{"skip.header.line.count": "1"}
				return t
			}(),
			want: `SELECT * FROM read_csv(['s3://lake/db/events/*'], delim = '|', header = true, all_varchar = true)`,
		},
		{
			name: "jsonl",
			table: func() *lakecat.Table {
				t := parquetTable(true)
				t.StorageDescriptor.InputFormat = "org.apache.hadoop.mapred.TextInputFormat"
				t.StorageDescriptor.SerDe.SerializationLibrary = "org.openx.data.jsonserde.JsonSerDe"
				return t
			}(),
			want: `SELECT * FROM read_json(['s3://lake/db/events/**/*'], format = 'newline_delimited', hive_partitioning = true, hive_types_autocast = false)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.query(source(t, tt.table), tt.opts)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestReader_Query_Partitions(t *testing.T) {
	r, _ := newReader(t)
	src := source(t, parquetTable(true))
	src.Partitions = []lakecat.Partition{
		{Name: "year=2024", Values: []string{"2024"}, Location: "s3://lake/db/events/year=2024"},
		{Name: "year=o'brien", Values: []string{"o'brien"}, Location: "s3://lake/db/events/year=o'brien"},
	}

	got, err := r.query(src, lakecat.ReadOptions{})
	require.NoError(t, err)
	require.Equal(t,
		`SELECT * FROM read_parquet(['s3://lake/db/events/year=2024/*', 's3://lake/db/events/year=o''brien/*'], hive_partitioning = true, hive_types_autocast = false)`,
		got)
}

func TestReader_Query_Errors(t *testing.T) {
	r, _ := newReader(t)

	orc := parquetTable(false)
	orc.StorageDescriptor.InputFormat = "org.apache.hadoop.hive.ql.io.orc.OrcInputFormat"
	_, err := r.query(source(t, orc), lakecat.ReadOptions{})
	require.ErrorIs(t, err, lakecat.ErrUnsupportedFormat)

	_, err = r.query(source(t, parquetTable(false)), lakecat.ReadOptions{Limit: -1})
	require.ErrorIs(t, err, lakecat.ErrUnsupportedOption)

	src := source(t, parquetTable(true))
	src.Partitions = []lakecat.Partition{}
	_, err = r.query(src, lakecat.ReadOptions{})
	require.ErrorIs(t, err, lakecat.ErrUnsupportedOption)
}

func TestReader_Query_Resolve(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	r, err := New(db, Config{Resolve: func(loc lakecat.Location) string {
		return "/data/" + loc.Bucket + "/" + loc.Prefix
	}})
	require.NoError(t, err)

	got, err := r.query(source(t, parquetTable(false)), lakecat.ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, `SELECT * FROM read_parquet(['/data/lake/db/events/*'])`, got)
}

func TestReader_Read(t *testing.T) {
	r, mock := newReader(t)
	src := source(t, parquetTable(true))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "year" FROM read_parquet(`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "year"}).
			AddRow(int64(1), "2024").
			AddRow(int64(2), "2025"))

	rows, err := r.Read(t.Context(), src, lakecat.ReadOptions{Columns: []string{"id", "year"}})
	require.NoError(t, err)
	require.Equal(t, []lakecat.Row{
		{"id": int64(1), "year": "2024"},
		{"id": int64(2), "year": "2025"},
	}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReader_Read_Empty(t *testing.T) {
	r, mock := newReader(t)

	mock.ExpectQuery(`SELECT \* FROM read_parquet`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, err := r.Read(t.Context(), source(t, parquetTable(false)), lakecat.ReadOptions{})
	require.NoError(t, err)
	require.Empty(t, rows)
	require.NotNil(t, rows)
}

func TestReader_Read_QueryError(t *testing.T) {
	r, mock := newReader(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(sqlmock.ErrCancelled)

	_, err := r.Read(t.Context(), source(t, parquetTable(false)), lakecat.ReadOptions{})
	require.ErrorIs(t, err, sqlmock.ErrCancelled)
}

func TestConfigureS3(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for _, stmt := range []string{
		"INSTALL httpfs",
		"LOAD httpfs",
		"SET s3_region = 'us-east-1'",
		"SET s3_endpoint = 'localhost:4566'",
		"SET s3_access_key_id = 'test'",
		"SET s3_secret_access_key = 'test'",
		"SET s3_url_style = 'path'",
		"SET s3_use_ssl = false",
	} {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err = ConfigureS3(t.Context(), db, S3Config{
		Region:          "us-east-1",
		Endpoint:        "localhost:4566",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
		DisableSSL:      true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigureS3_HidesSecretInError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSTALL httpfs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("LOAD httpfs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET s3_secret_access_key").WillReturnError(sqlmock.ErrCancelled)

	err = ConfigureS3(t.Context(), db, S3Config{SecretAccessKey: "hunter2"})
	require.Error(t, err)
	require.NotContains(t, err.Error(), "hunter2")
}
