package lakecat

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/cast"
)

// -----------------------------------------------------------------------------
// Parquet Codec
// -----------------------------------------------------------------------------

// parquetType is the parquet representation of a catalog column type.
type parquetType int

const (
	parquetInt32 parquetType = iota
	parquetInt64
	parquetFloat32
	parquetFloat64
	parquetString
	parquetBool
	parquetBytes
	parquetTimestamp
	parquetDate
)

// parquetTypeOf maps a catalog type name such as "bigint" or
// "varchar(20)" to its parquet representation. Nested types are not
// supported.
func parquetTypeOf(catalogType string) (parquetType, bool) {
	switch baseType(catalogType) {
	case "tinyint", "smallint", "int", "integer":
		return parquetInt32, true
	case "bigint":
		return parquetInt64, true
	case "float", "real":
		return parquetFloat32, true
	case "double", "decimal":
		return parquetFloat64, true
	case "string", "varchar", "char":
		return parquetString, true
	case "boolean":
		return parquetBool, true
	case "binary":
		return parquetBytes, true
	case "timestamp":
		return parquetTimestamp, true
	case "date":
		return parquetDate, true
	}
	return 0, false
}

const secondsPerDay = 24 * 60 * 60

type parquetField struct {
	name string
	typ  parquetType
}

// parquetCodec writes files with one optional leaf per data column and
// reads any flat parquet file. BYTE_ARRAY columns decode as strings and
// timestamps as int64 in the file's unit.
type parquetCodec struct {
	fields      map[string]parquetField
	schema      *parquet.Schema
	fieldOrder  []string // schema column order
	compression parquet.WriterOption
}

func newParquetCodec(columns []Column, compression string) (*parquetCodec, error) {
	c := &parquetCodec{fields: make(map[string]parquetField, len(columns))}
	group := make(parquet.Group, len(columns))
	for _, col := range columns {
		typ, ok := parquetTypeOf(col.Type)
		if !ok {
			return nil, fmt.Errorf("%w: column %q has unsupported type %q", ErrUnsupportedFormat, col.Name, col.Type)
		}
		if _, dup := c.fields[col.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchemaViolation, col.Name)
		}
		c.fields[col.Name] = parquetField{name: col.Name, typ: typ}
		group[col.Name] = parquet.Optional(parquetNode(typ))
	}
	c.schema = parquet.NewSchema("record", group)
	for _, f := range c.schema.Fields() {
		c.fieldOrder = append(c.fieldOrder, f.Name())
	}

	switch strings.ToLower(compression) {
	case "", "snappy":
		c.compression = parquet.Compression(&parquet.Snappy)
	case CompressionNone:
		c.compression = parquet.Compression(&parquet.Uncompressed)
	case CompressionGzip:
		c.compression = parquet.Compression(&parquet.Gzip)
	case CompressionZstd:
		c.compression = parquet.Compression(&parquet.Zstd)
	default:
		return nil, fmt.Errorf("%w: parquet compression %q", ErrUnsupportedOption, compression)
	}
	return c, nil
}

func parquetNode(typ parquetType) parquet.Node {
	switch typ {
	case parquetInt32:
		return parquet.Int(32)
	case parquetInt64:
		return parquet.Int(64)
	case parquetFloat32:
		return parquet.Leaf(parquet.FloatType)
	case parquetFloat64:
		return parquet.Leaf(parquet.DoubleType)
	case parquetBool:
		return parquet.Leaf(parquet.BooleanType)
	case parquetBytes:
		return parquet.Leaf(parquet.ByteArrayType)
	case parquetTimestamp:
		return parquet.Timestamp(parquet.Millisecond)
	case parquetDate:
		return parquet.Date()
	default:
		return parquet.String()
	}
}

func (*parquetCodec) Name() string      { return "parquet" }
func (*parquetCodec) Extension() string { return ".parquet" }

func (c *parquetCodec) Encode(w io.Writer, rows []Row) error {
	var buf bytes.Buffer
	rowBuf := parquet.NewBuffer(c.schema)
	for i, record := range rows {
		row, err := c.recordToRow(record, i)
		if err != nil {
			return err
		}
		if _, err := rowBuf.WriteRows([]parquet.Row{row}); err != nil {
			return fmt.Errorf("parquet: write row %d: %w", i, err)
		}
	}

	pqWriter := parquet.NewWriter(&buf, c.schema, c.compression)
	if _, err := pqWriter.WriteRowGroup(rowBuf); err != nil {
		_ = pqWriter.Close()
		return fmt.Errorf("parquet: write row group: %w", err)
	}
	if err := pqWriter.Close(); err != nil {
		return fmt.Errorf("parquet: close writer: %w", err)
	}
	_, err := io.Copy(w, &buf)
	return err
}

func (c *parquetCodec) recordToRow(record Row, index int) (parquet.Row, error) {
	row := make(parquet.Row, len(c.fieldOrder))
	for i, name := range c.fieldOrder {
		val := record[name]
		if val == nil {
			row[i] = parquet.NullValue().Level(0, 0, i)
			continue
		}
		pv, err := toParquetValue(val, c.fields[name].typ)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d column %q: %w", ErrSchemaViolation, index, name, err)
		}
		row[i] = pv.Level(0, 1, i)
	}
	return row, nil
}

func toParquetValue(val any, typ parquetType) (parquet.Value, error) {
	switch typ {
	case parquetInt32:
		v, err := cast.ToInt32E(val)
		return parquet.Int32Value(v), err
	case parquetInt64:
		v, err := cast.ToInt64E(val)
		return parquet.Int64Value(v), err
	case parquetFloat32:
		v, err := cast.ToFloat32E(val)
		return parquet.FloatValue(v), err
	case parquetFloat64:
		v, err := cast.ToFloat64E(val)
		return parquet.DoubleValue(v), err
	case parquetBool:
		v, err := cast.ToBoolE(val)
		return parquet.BooleanValue(v), err
	case parquetBytes:
		if b, ok := val.([]byte); ok {
			return parquet.ByteArrayValue(b), nil
		}
		v, err := cast.ToStringE(val)
		return parquet.ByteArrayValue([]byte(v)), err
	case parquetTimestamp:
		v, err := cast.ToTimeE(val)
		return parquet.Int64Value(v.UnixMilli()), err
	case parquetDate:
		v, err := cast.ToTimeE(val)
		y, m, d := v.Date()
		days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
		return parquet.Int32Value(int32(days)), err
	default:
		v, err := cast.ToStringE(val)
		return parquet.ByteArrayValue([]byte(v)), err
	}
}

// Decode reads every row of a flat parquet file. Columns are named by their
// path in the file schema, so files written by other tools decode too.
func (c *parquetCodec) Decode(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("parquet: read file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrInvalidFormat
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrInvalidFormat
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if file.NumRows() == 0 {
		return []Row{}, nil
	}

	paths := file.Schema().Columns()
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = strings.Join(p, ".")
	}

	reader := parquet.NewReader(file)
	defer func() { _ = reader.Close() }()

	records := make([]Row, 0, file.NumRows())
	rows := make([]parquet.Row, 100)
	for {
		n, err := reader.ReadRows(rows)
		for i := range n {
			records = append(records, rowToRecord(rows[i], names))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: read rows: %w", ErrInvalidFormat, err)
		}
	}
	return records, nil
}

func rowToRecord(row parquet.Row, names []string) Row {
	record := make(Row, len(names))
	for _, name := range names {
		record[name] = nil
	}
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(names) {
			continue
		}
		record[names[col]] = fromParquetValue(v)
	}
	return record
}

func fromParquetValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
