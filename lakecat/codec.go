package lakecat

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

const maxScanTokenSize = 10 * 1024 * 1024 // 10MB

// codec encodes and decodes the rows of one data file.
type codec interface {
	Name() string
	// Extension is the file name suffix, before any compression suffix.
	Extension() string
	Encode(w io.Writer, rows []Row) error
	Decode(r io.Reader) ([]Row, error)
}

// codecFor returns the codec of the table's file format. Only data columns
// are encoded; partition values live in the object path.
func codecFor(t *Table, compression string) (codec, error) {
	switch f := t.Format(); f {
	case FormatParquet:
		return newParquetCodec(t.Columns(), compression)
	case FormatCSV:
		delim, _ := utf8.DecodeRuneInString(t.Delimiter())
		return &csvCodec{
			columns: columnNames(t.Columns()),
			delim:   delim,
			header:  t.HasHeader(),
		}, nil
	case FormatJSONL:
		return &jsonlCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %s (input format %q)", ErrUnsupportedFormat, f, t.StorageDescriptor.InputFormat)
	}
}

// decoderFor is codecFor for reading. Parquet files carry their own schema,
// so columns of types the writer does not support still decode.
func decoderFor(t *Table) (codec, error) {
	if t.Format() == FormatParquet {
		return &parquetCodec{}, nil
	}
	return codecFor(t, "")
}

func columnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// -----------------------------------------------------------------------------
// JSONL Codec
// -----------------------------------------------------------------------------

// jsonlCodec stores one JSON object per line, as Hive's JsonSerDe reads it.
type jsonlCodec struct{}

func (*jsonlCodec) Name() string      { return "jsonl" }
func (*jsonlCodec) Extension() string { return ".json" }

func (*jsonlCodec) Encode(w io.Writer, rows []Row) error {
	enc := jsonCodec.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func (*jsonlCodec) Decode(r io.Reader) ([]Row, error) {
	var rows []Row
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row Row
		if err := jsonCodec.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// -----------------------------------------------------------------------------
// CSV Codec
// -----------------------------------------------------------------------------

// csvCodec reads and writes delimited text. Fields map to the table's data
// columns by position; without declared columns the header names them.
type csvCodec struct {
	columns []string
	delim   rune
	header  bool
}

func (*csvCodec) Name() string      { return "csv" }
func (*csvCodec) Extension() string { return ".csv" }

func (c *csvCodec) Encode(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = c.delim
	if c.header {
		if err := cw.Write(c.columns); err != nil {
			return err
		}
	}
	record := make([]string, len(c.columns))
	for i, row := range rows {
		for j, name := range c.columns {
			v, err := cast.ToStringE(row[name])
			if err != nil {
				return fmt.Errorf("%w: row %d column %q: %w", ErrSchemaViolation, i, name, err)
			}
			record[j] = v
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (c *csvCodec) Decode(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = c.delim
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	columns := c.columns
	if c.header {
		head, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
		}
		if len(columns) == 0 {
			columns = append([]string(nil), head...)
		}
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
		}
		row := make(Row, len(columns))
		for i, name := range columns {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = nil
			}
		}
		rows = append(rows, row)
	}
}
