package lakecat

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/pithecene-io/lakecat/internal/partition"
)

// -----------------------------------------------------------------------------
// Strategies
// -----------------------------------------------------------------------------

// Source is the data a Reader reads: a whole table, or only the listed
// partitions when Partitions is non-nil.
type Source struct {
	Table      *Table
	Location   Location
	Partitions []Partition
}

// Target is the directory a Writer writes one data file into.
type Target struct {
	Table    *Table
	Location Location
}

// ReadOptions narrows a read.
type ReadOptions struct {
	// Columns projects the result. Empty means all columns.
	Columns []string

	// Condition is a SQL predicate, for strategies that support it.
	Condition string

	// OrderBy lists SQL ordering terms, for strategies that support it.
	OrderBy []string

	// Limit caps the rows returned. Zero means no limit.
	Limit int

	// Offset skips rows before the first one returned.
	Offset int
}

// WriteOptions controls WriteTable.
type WriteOptions struct {
	// Overwrite replaces the data being written to: the partitions the rows
	// belong to, or the whole table when it is unpartitioned.
	Overwrite bool

	// Compression is "none", "gzip" or "zstd" for text formats, plus
	// "snappy" (the default) for parquet.
	Compression string
}

// Reader reads table rows.
type Reader interface {
	Read(ctx context.Context, src Source, opts ReadOptions) ([]Row, error)
}

// Writer writes rows as one new data file under dst and returns the
// object key it wrote.
type Writer interface {
	Write(ctx context.Context, dst Target, rows []Row, opts WriteOptions) (string, error)
}

// -----------------------------------------------------------------------------
// RecordEngine
// -----------------------------------------------------------------------------

// RecordEngine reads and writes data files directly through an ObjectStore,
// decoding them with the codec of the table's format. Partition values are
// taken from the object path, as Hive does.
//
// It evaluates no SQL: a Condition or OrderBy fails with
// ErrUnsupportedOption.
type RecordEngine struct {
	store ObjectStore
}

// NewRecordEngine creates a record engine over store.
func NewRecordEngine(store ObjectStore) *RecordEngine {
	return &RecordEngine{store: store}
}

// dataFile is a data object and the partition values of its directory.
type dataFile struct {
	bucket string
	key    string
	values []string
}

// Read implements Reader.
func (e *RecordEngine) Read(ctx context.Context, src Source, opts ReadOptions) ([]Row, error) {
	if opts.Condition != "" || len(opts.OrderBy) > 0 {
		return nil, fmt.Errorf("%w: record engine cannot evaluate conditions or ordering", ErrUnsupportedOption)
	}
	t := src.Table
	if err := checkColumns(t, opts.Columns); err != nil {
		return nil, err
	}
	dec, err := decoderFor(t)
	if err != nil {
		return nil, err
	}
	files, err := e.dataFiles(ctx, src)
	if err != nil {
		return nil, err
	}

	keys := t.PartitionKeyNames()
	skip := opts.Offset
	out := []Row{}
	for _, f := range files {
		rows, err := e.readFile(ctx, f.bucket, f.key, dec)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if skip > 0 {
				skip--
				continue
			}
			for i, k := range keys {
				if i < len(f.values) {
					row[k] = f.values[i]
				}
			}
			out = append(out, project(row, opts.Columns))
			if opts.Limit > 0 && len(out) == opts.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// dataFiles lists the objects to read, partition by partition or in key
// order for a whole table. Hidden files such as _SUCCESS markers are
// skipped. A whole partitioned table yields only objects inside well-formed
// partition directories.
func (e *RecordEngine) dataFiles(ctx context.Context, src Source) ([]dataFile, error) {
	var files []dataFile
	add := func(loc Location, values []string, classify bool) error {
		dir := loc.Dir()
		for page, err := range e.store.ListPages(ctx, loc.Bucket, dir) {
			if err != nil {
				return fmt.Errorf("list objects under %s: %w", loc, err)
			}
			for _, key := range page {
				if hiddenFile(key) {
					continue
				}
				vals := values
				if classify {
					frag, class := classifyKey(key, dir, src.Table.PartitionKeyNames())
					if class != keyPartitioned {
						continue
					}
					vals = frag.Values()
				} else if strings.HasSuffix(key, "/") {
					continue
				}
				files = append(files, dataFile{bucket: loc.Bucket, key: key, values: vals})
			}
		}
		return nil
	}

	switch {
	case src.Partitions != nil:
		for _, p := range src.Partitions {
			loc, err := ParseLocation(p.Location)
			if err != nil {
				return nil, err
			}
			if err := add(loc, p.Values, false); err != nil {
				return nil, err
			}
		}
		return files, nil
	default:
		err := add(src.Location, nil, src.Table.Partitioned())
		slices.SortFunc(files, func(a, b dataFile) int { return strings.Compare(a.key, b.key) })
		return files, err
	}
}

func hiddenFile(key string) bool {
	base := path.Base(key)
	return strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".")
}

func (e *RecordEngine) readFile(ctx context.Context, bucket, key string, dec codec) (_ []Row, err error) {
	rc, err := e.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer(rc, &err)

	r, err := compressorForKey(key).Decompress(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress %s: %w", ErrInvalidFormat, key, err)
	}
	defer closer(r, &err)

	rows, err := dec.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return rows, nil
}

// Write implements Writer. The file is named "<uuid><ext>[<compression ext>]".
func (e *RecordEngine) Write(ctx context.Context, dst Target, rows []Row, opts WriteOptions) (string, error) {
	enc, err := codecFor(dst.Table, opts.Compression)
	if err != nil {
		return "", err
	}

	comp := compressor(noopCompressor{})
	if _, isParquet := enc.(*parquetCodec); !isParquet {
		if comp, err = compressorFor(opts.Compression); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	w, err := comp.Compress(&buf)
	if err != nil {
		return "", err
	}
	if err := enc.Encode(w, rows); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	key := dst.Location.Join(uuid.NewString() + enc.Extension() + comp.Extension()).Prefix
	if err := e.store.Put(ctx, dst.Location.Bucket, key, &buf); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// checkColumns rejects projected columns the table does not declare. Tables
// without declared columns accept any projection.
func checkColumns(t *Table, columns []string) error {
	all := t.AllColumns()
	if len(columns) == 0 || len(all) == 0 {
		return nil
	}
	known := columnNames(all)
	for _, c := range columns {
		if !slices.Contains(known, c) {
			return fmt.Errorf("%w: unknown column %q in %s.%s", ErrSchemaViolation, c, t.Database, t.Name)
		}
	}
	return nil
}

func project(row Row, columns []string) Row {
	if len(columns) == 0 {
		return row
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return out
}

// partitionValuesOf returns a row's partition values as path strings.
// Missing, nil and empty values use Hive's default partition name.
func partitionValuesOf(row Row, keys []string) ([]string, error) {
	values := make([]string, len(keys))
	for i, k := range keys {
		s := ""
		if v := row[k]; v != nil {
			s = fmt.Sprint(v)
		}
		if s == "" {
			values[i] = hiveDefaultPartition
			continue
		}
		if strings.ContainsAny(s, "/=") {
			return nil, fmt.Errorf("%w: value %q of partition key %q contains '/' or '='", ErrSchemaViolation, s, k)
		}
		values[i] = s
	}
	return values, nil
}

const hiveDefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// groupByPartition splits rows by partition value tuple, dropping the
// partition columns. Groups are returned in first-seen order.
func groupByPartition(rows []Row, keys []string) ([][]string, map[partition.Fragment][]Row, error) {
	var order [][]string
	groups := make(map[partition.Fragment][]Row)
	for _, row := range rows {
		values, err := partitionValuesOf(row, keys)
		if err != nil {
			return nil, nil, err
		}
		frag := partition.NewFragment(values)
		if _, seen := groups[frag]; !seen {
			order = append(order, values)
		}
		data := make(Row, len(row))
		for k, v := range row {
			if !slices.Contains(keys, k) {
				data[k] = v
			}
		}
		groups[frag] = append(groups[frag], data)
	}
	return order, groups, nil
}
