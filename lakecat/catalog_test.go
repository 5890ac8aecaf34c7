package lakecat_test

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/lakecat/lakecat"
)

func TestCatalog_Accessors(t *testing.T) {
	table := glueTable(parquetInput, "year", "month")
	table.StorageDescriptor.Location = aws.String(testLocation + "/")
	f := newFixture(t, table)
	other := glueTable(parquetInput)
	other.Name = aws.String("users")
	f.glue.AddTable(testDB, other)
	ctx := t.Context()

	loc, err := f.catalog.Location(ctx, testDB, testTable)
	require.NoError(t, err)
	require.Equal(t, testLocation, loc)

	cols, err := f.catalog.PartitionColumns(ctx, testDB, testTable)
	require.NoError(t, err)
	require.Equal(t, []string{"year", "month"}, cols)

	tables, err := f.catalog.ListTables(ctx, testDB)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"events", "users"}, tables)

	_, err = f.catalog.Table(ctx, testDB, "missing")
	require.ErrorIs(t, err, lakecat.ErrNotFound)
	_, err = f.catalog.PartitionColumns(ctx, testDB, "missing")
	require.ErrorIs(t, err, lakecat.ErrNotFound)
}

func TestGetPartitions_Naming(t *testing.T) {
	f := newFixture(t, glueTable(parquetInput, "year", "month"))
	f.addPartition("2024", "01")
	f.glue.AddPartition(testDB, testTable, "", "2024", "02")
	f.glue.AddPartition(testDB, testTable, "s3://archive/events/2023", "2023", "12")

	parts, err := f.catalog.GetPartitions(t.Context(), testDB, testTable, "")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"year=2024/month=01",
		"year=2024/month=02",
		"s3://archive/events/2023",
	}, names(parts))

	for _, p := range parts {
		switch p.Values[1] {
		case "02":
			// No storage descriptor: the Hive location is assumed.
			require.Equal(t, testLocation+"/year=2024/month=02", p.Location)
		case "12":
			require.Equal(t, "s3://archive/events/2023", p.Location)
		}
		require.NotNil(t, p.Record)
	}
}

func TestGetPartitions_TableNotFound(t *testing.T) {
	f := newFixture(t, glueTable(parquetInput, "year"))

	_, err := f.catalog.GetPartitions(t.Context(), testDB, "missing", "")
	require.ErrorIs(t, err, lakecat.ErrNotFound)
}
