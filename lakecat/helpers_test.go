package lakecat_test

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/lakecat/lakecat"
	"github.com/pithecene-io/lakecat/lakecat/glue"
	"github.com/pithecene-io/lakecat/lakecat/s3"
)

const (
	testDB       = "analytics"
	testTable    = "events"
	testBucket   = "lake"
	testPrefix   = "analytics/events"
	testLocation = "s3://lake/analytics/events"
)

const (
	parquetInput = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat"
	textInput    = "org.apache.hadoop.mapred.TextInputFormat"
)

// glueTable describes the events table with the given partition keys.
func glueTable(inputFormat string, keys ...string) types.Table {
	t := types.Table{
		Name: aws.String(testTable),
		StorageDescriptor: &types.StorageDescriptor{
			Location:     aws.String(testLocation),
			InputFormat:  aws.String(inputFormat),
			OutputFormat: aws.String("output"),
			Columns: []types.Column{
				{Name: aws.String("id"), Type: aws.String("bigint")},
				{Name: aws.String("name"), Type: aws.String("string")},
			},
			SerdeInfo: &types.SerDeInfo{Parameters: map[string]string{}},
		},
		Parameters: map[string]string{},
	}
	for _, k := range keys {
		t.PartitionKeys = append(t.PartitionKeys, types.Column{Name: aws.String(k), Type: aws.String("string")})
	}
	return t
}

// fixture is a catalog over mock Glue and S3 clients.
type fixture struct {
	catalog *lakecat.Catalog
	glue    *glue.MockGlueClient
	s3      *s3.MockS3Client
}

func newFixture(t *testing.T, table types.Table, opts ...lakecat.Option) *fixture {
	t.Helper()
	f := &fixture{
		glue: glue.NewMockGlueClient(),
		s3:   s3.NewMockS3Client(),
	}
	f.glue.AddTable(testDB, table)
	f.s3.Seed(testBucket)

	meta, err := glue.New(f.glue, glue.Config{})
	require.NoError(t, err)
	store, err := s3.New(f.s3, s3.Config{PageSize: 2})
	require.NoError(t, err)

	f.catalog, err = lakecat.NewCatalog(meta, store, opts...)
	require.NoError(t, err)
	return f
}

// addPartition registers a partition at its Hive location under the table.
func (f *fixture) addPartition(values ...string) {
	keys := []string{"year", "month"}[:len(values)]
	loc := testLocation
	for i, v := range values {
		loc += "/" + keys[i] + "=" + v
	}
	f.glue.AddPartition(testDB, testTable, loc, values...)
}

// seed stores objects under the table prefix.
func (f *fixture) seed(rel ...string) {
	for _, r := range rel {
		f.s3.Seed(testBucket, testPrefix+"/"+r)
	}
}

func names(parts []lakecat.Partition) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Name
	}
	return out
}

// newStoreFixture is a catalog over a mock Glue client and the given
// object store.
func newStoreFixture(t *testing.T, table types.Table, store lakecat.ObjectStore, opts ...lakecat.Option) (*lakecat.Catalog, *glue.MockGlueClient) {
	t.Helper()
	client := glue.NewMockGlueClient()
	client.AddTable(testDB, table)

	meta, err := glue.New(client, glue.Config{})
	require.NoError(t, err)
	catalog, err := lakecat.NewCatalog(meta, store, opts...)
	require.NoError(t, err)
	return catalog, client
}

func typesColumn(name, typ string) types.Column {
	return types.Column{Name: aws.String(name), Type: aws.String(typ)}
}
