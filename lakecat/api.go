// Package lakecat keeps a data-lake metadata catalog consistent with the
// object store that holds the table data.
//
// A Catalog reads table descriptors and partitions from a MetadataStore
// (AWS Glue), lists and deletes objects through an ObjectStore (S3), and
// reconciles the two: partitions registered without data are removed and
// Hive-style partition directories with data are registered. Reading and
// writing rows is delegated to pluggable Reader and Writer strategies.
//
// All operations are synchronous. Callers must not repair the same table
// from two goroutines at once; the catalog does not isolate concurrent
// modifications of a table between its own calls.
package lakecat

import (
	"context"
	"io"
	"iter"
	"maps"
	"slices"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Table descriptors
// -----------------------------------------------------------------------------

// Column is a named, typed table column. Type is the catalog's type name
// (for example "string", "bigint", "decimal(10,2)").
type Column struct {
	Name    string
	Type    string
	Comment string
}

// SerDeInfo describes the serializer/deserializer of a table's files.
type SerDeInfo struct {
	Name                 string
	SerializationLibrary string
	Parameters           map[string]string
}

// SortColumn is a column the data files are sorted by.
type SortColumn struct {
	Column string
	// Order is 1 for ascending and 0 for descending.
	Order int32
}

// SkewedInfo lists skewed column values and their dedicated locations.
type SkewedInfo struct {
	ColumnNames       []string
	ColumnValues      []string
	ValueLocationMaps map[string]string
}

// StorageDescriptor describes where and how a table's or partition's
// files are stored.
type StorageDescriptor struct {
	Columns                []Column
	Location               string
	InputFormat            string
	OutputFormat           string
	Compressed             bool
	NumberOfBuckets        int32
	SerDe                  SerDeInfo
	BucketColumns          []string
	SortColumns            []SortColumn
	Skewed                 *SkewedInfo
	Parameters             map[string]string
	StoredAsSubDirectories bool
}

// Clone returns a deep copy of the descriptor.
func (sd StorageDescriptor) Clone() StorageDescriptor {
	out := sd
	out.Columns = slices.Clone(sd.Columns)
	out.SerDe.Parameters = maps.Clone(sd.SerDe.Parameters)
	out.BucketColumns = slices.Clone(sd.BucketColumns)
	out.SortColumns = slices.Clone(sd.SortColumns)
	out.Parameters = maps.Clone(sd.Parameters)
	if sd.Skewed != nil {
		out.Skewed = &SkewedInfo{
			ColumnNames:       slices.Clone(sd.Skewed.ColumnNames),
			ColumnValues:      slices.Clone(sd.Skewed.ColumnValues),
			ValueLocationMaps: maps.Clone(sd.Skewed.ValueLocationMaps),
		}
	}
	return out
}

// WithLocation returns a deep copy with only the location replaced.
func (sd StorageDescriptor) WithLocation(location string) StorageDescriptor {
	out := sd.Clone()
	out.Location = location
	return out
}

// Table is a table descriptor as recorded by the metadata store.
type Table struct {
	Database          string
	Name              string
	Location          string
	PartitionKeys     []Column
	StorageDescriptor StorageDescriptor
	Parameters        map[string]string
}

// PartitionKeyNames returns the declared partition key names in order.
func (t *Table) PartitionKeyNames() []string {
	names := make([]string, len(t.PartitionKeys))
	for i, k := range t.PartitionKeys {
		names[i] = k.Name
	}
	return names
}

// Partitioned reports whether the table declares partition keys.
func (t *Table) Partitioned() bool {
	return len(t.PartitionKeys) > 0
}

// Columns returns the data columns (partition keys excluded).
func (t *Table) Columns() []Column {
	return t.StorageDescriptor.Columns
}

// AllColumns returns the data columns followed by the partition keys.
func (t *Table) AllColumns() []Column {
	return slices.Concat(t.StorageDescriptor.Columns, t.PartitionKeys)
}

// Format returns the file format implied by the table's input format.
func (t *Table) Format() FileFormat {
	// JSON tables share TextInputFormat with CSV; the SerDe tells them apart.
	if strings.Contains(t.StorageDescriptor.SerDe.SerializationLibrary, "JsonSerDe") {
		return FormatJSONL
	}
	if f, ok := inputFormats[t.StorageDescriptor.InputFormat]; ok {
		return f
	}
	// Tables registered by hand often set only the classification.
	switch strings.ToLower(t.Parameters["classification"]) {
	case "parquet":
		return FormatParquet
	case "csv":
		return FormatCSV
	case "json":
		return FormatJSONL
	}
	return FormatUnknown
}

// Delimiter returns the column separator of text files, defaulting to ",".
func (t *Table) Delimiter() string {
	params := t.StorageDescriptor.SerDe.Parameters
	if d := params["field.delim"]; d != "" {
		return d
	}
	if d := params["separatorChar"]; d != "" {
		return d
	}
	return ","
}

// HasHeader reports whether text files carry a header line.
func (t *Table) HasHeader() bool {
	v, ok := t.Parameters["skip.header.line.count"]
	if !ok {
		v, ok = t.StorageDescriptor.SerDe.Parameters["skip.header.line.count"]
	}
	return ok && v != "" && v != "0"
}

// FileFormat identifies a data file format.
type FileFormat string

// Supported and recognised file formats.
const (
	FormatParquet FileFormat = "parquet"
	FormatCSV     FileFormat = "csv"
	FormatJSONL   FileFormat = "json"
	FormatORC     FileFormat = "orc"
	FormatAvro    FileFormat = "avro"
	FormatUnknown FileFormat = "unknown"
)

var inputFormats = map[string]FileFormat{
	"org.apache.hadoop.mapred.TextInputFormat":                      FormatCSV,
	"org.apache.hadoop.mapred.SequenceFileInputFormat":              FormatUnknown,
	"org.apache.hadoop.hive.ql.io.orc.OrcInputFormat":               FormatORC,
	"org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat": FormatParquet,
	"org.apache.hadoop.hive.ql.io.avro.AvroContainerInputFormat":    FormatAvro,
	"org.apache.hadoop.hive.ql.io.avro.AvroKeyInputFormat":          FormatAvro,
}

// -----------------------------------------------------------------------------
// Partitions
// -----------------------------------------------------------------------------

// PartitionRecord is a partition as returned by the metadata store.
type PartitionRecord struct {
	Values            []string
	Location          string
	StorageDescriptor *StorageDescriptor
	Parameters        map[string]string
	CreatedAt         time.Time
}

// PartitionInput is a partition to register in the metadata store.
type PartitionInput struct {
	Values            []string
	StorageDescriptor StorageDescriptor
}

// Partition identifies one directory-level grouping of a table's data.
//
// Values[i] belongs to the table's i-th partition key, and Name is the Hive
// fragment "k=v/k=v" under the table location. Partitions are immutable.
type Partition struct {
	Name     string
	Values   []string
	Location string

	// Record is the metadata store's record, or nil for partitions
	// synthesized from storage.
	Record *PartitionRecord
}

// String returns the partition name.
func (p Partition) String() string {
	return p.Name
}

// Row is a single record keyed by column name.
type Row = map[string]any

// -----------------------------------------------------------------------------
// Collaborators
// -----------------------------------------------------------------------------

// MetadataStore abstracts the partition catalog (AWS Glue).
type MetadataStore interface {
	// GetTable returns the table descriptor. Returns ErrNotFound if the
	// database or table does not exist.
	GetTable(ctx context.Context, database, table string) (*Table, error)

	// ListTables returns the table names of a database.
	ListTables(ctx context.Context, database string) ([]string, error)

	// ListPartitions yields pages of partitions, optionally filtered by a
	// store-specific expression. Each iteration of the sequence restarts
	// the listing.
	ListPartitions(ctx context.Context, database, table, expression string) iter.Seq2[[]PartitionRecord, error]

	// BatchCreatePartitions registers partitions in a single call.
	BatchCreatePartitions(ctx context.Context, database, table string, entries []PartitionInput) error

	// BatchDeletePartitions removes partitions by value tuple in a single call.
	BatchDeletePartitions(ctx context.Context, database, table string, values [][]string) error
}

// ObjectStore abstracts the object storage that holds table data (S3).
type ObjectStore interface {
	// ListPages yields pages of object keys under prefix. Each iteration of
	// the sequence restarts the listing.
	ListPages(ctx context.Context, bucket, prefix string) iter.Seq2[[]string, error]

	// DeleteObjects deletes the given keys in a single call.
	DeleteObjects(ctx context.Context, bucket string, keys []string) error

	// Get opens an object for reading. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Put writes an object, replacing any existing one.
	Put(ctx context.Context, bucket, key string, r io.Reader) error
}
