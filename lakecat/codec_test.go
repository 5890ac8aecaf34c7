package lakecat

import (
	"bytes"
	"errors"
	"io"
	"maps"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCSVCodec_HeaderAndDelimiter(t *testing.T) {
	c := &csvCodec{columns: []string{"id", "name"}, delim: ';', header: true}

	var buf bytes.Buffer
	if err := c.Encode(&buf, []Row{{"id": 1, "name": "a;b"}, {"id": 2}}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "id;name\n1;\"a;b\"\n2;\n" {
		t.Errorf("unexpected encoding %q", got)
	}

	rows, err := c.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0]["name"] != "a;b" || rows[1]["id"] != "2" {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestCSVCodec_HeaderNamesUndeclaredColumns(t *testing.T) {
	c := &csvCodec{delim: ',', header: true}

	rows, err := c.Decode(strings.NewReader("a,b\n1,2\n3\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := []Row{{"a": "1", "b": "2"}, {"a": "3", "b": nil}}
	for i := range want {
		if !maps.Equal(rows[i], want[i]) {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestJSONLCodec_InvalidLine(t *testing.T) {
	_, err := (&jsonlCodec{}).Decode(strings.NewReader("{\"id\":1}\nnot json\n"))
	if !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestParquetCodec_Types(t *testing.T) {
	c, err := newParquetCodec([]Column{
		{Name: "i", Type: "int"},
		{Name: "b", Type: "bigint"},
		{Name: "f", Type: "double"},
		{Name: "s", Type: "varchar(10)"},
		{Name: "ok", Type: "boolean"},
		{Name: "ts", Type: "timestamp"},
		{Name: "d", Type: "date"},
	}, CompressionZstd)
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err = c.Encode(&buf, []Row{{"i": "3", "b": 4, "f": 1.25, "s": "x", "ok": true, "ts": ts, "d": ts}})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := (&parquetCodec{}).Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	want := Row{
		"i":  int32(3),
		"b":  int64(4),
		"f":  1.25,
		"s":  "x",
		"ok": true,
		"ts": ts.UnixMilli(),
		"d":  int32(ts.Unix() / secondsPerDay),
	}
	if len(rows) != 1 || !maps.Equal(rows[0], want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestParquetCodec_Errors(t *testing.T) {
	if _, err := newParquetCodec([]Column{{Name: "m", Type: "map<string,int>"}}, ""); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat for nested type, got %v", err)
	}
	if _, err := newParquetCodec([]Column{{Name: "a", Type: "int"}}, "lzo"); !errors.Is(err, ErrUnsupportedOption) {
		t.Errorf("expected ErrUnsupportedOption, got %v", err)
	}

	c, _ := newParquetCodec([]Column{{Name: "a", Type: "int"}}, "")
	if err := c.Encode(io.Discard, []Row{{"a": "not a number"}}); !errors.Is(err, ErrSchemaViolation) {
		t.Errorf("expected ErrSchemaViolation, got %v", err)
	}

	for _, data := range []string{"", "not parquet at all"} {
		if _, err := (&parquetCodec{}).Decode(strings.NewReader(data)); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Decode(%q): expected ErrInvalidFormat, got %v", data, err)
		}
	}
}

func TestCompressors_RoundTrip(t *testing.T) {
	for _, name := range []string{"", CompressionNone, CompressionGzip, CompressionZstd} {
		t.Run(name, func(t *testing.T) {
			comp, err := compressorFor(name)
			if err != nil {
				t.Fatal(err)
			}

			var buf bytes.Buffer
			w, err := comp.Compress(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := io.WriteString(w, "hello lake"); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			// Reading picks the compressor by key extension.
			r, err := compressorForKey("t/file.csv" + comp.Extension()).Decompress(&buf)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = r.Close() }()
			data, _ := io.ReadAll(r)
			if string(data) != "hello lake" {
				t.Errorf("round trip = %q", data)
			}
		})
	}

	if _, err := compressorFor("brotli"); !errors.Is(err, ErrUnsupportedOption) {
		t.Errorf("expected ErrUnsupportedOption, got %v", err)
	}
}

func TestCastValue(t *testing.T) {
	tests := []struct {
		typ  string
		in   any
		want any
	}{
		{"int", "42", int32(42)},
		{"BIGINT", 7.0, int64(7)},
		{"float", "1.5", float32(1.5)},
		{"decimal(10,2)", "2.25", 2.25},
		{"boolean", "true", true},
		{"varchar(5)", 12, "12"},
		{"binary", "ab", []byte("ab")},
		{"array<string>", []string{"x"}, []string{"x"}},
		{"string", nil, nil},
	}
	for _, tt := range tests {
		got, err := castValue(tt.in, tt.typ)
		if err != nil {
			t.Errorf("castValue(%v, %s): %v", tt.in, tt.typ, err)
			continue
		}
		if b, ok := tt.want.([]byte); ok {
			if !bytes.Equal(got.([]byte), b) {
				t.Errorf("castValue(%v, %s) = %v", tt.in, tt.typ, got)
			}
			continue
		}
		if s, ok := tt.want.([]string); ok {
			if gs, _ := got.([]string); len(gs) != len(s) || gs[0] != s[0] {
				t.Errorf("castValue(%v, %s) = %v", tt.in, tt.typ, got)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("castValue(%v, %s) = %#v, want %#v", tt.in, tt.typ, got, tt.want)
		}
	}

	if _, err := castValue("soon", "timestamp"); err == nil {
		t.Error("expected error for unparsable timestamp")
	}
}

func TestProperty_TextCodecRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	columns := []string{"a", "b"}
	toRows := func(values []string) []Row {
		rows := make([]Row, 0, len(values)/2)
		for i := 0; i+1 < len(values); i += 2 {
			rows = append(rows, Row{"a": values[i], "b": values[i+1]})
		}
		return rows
	}
	roundTrips := func(c codec, values []string) bool {
		rows := toRows(values)
		var buf bytes.Buffer
		if err := c.Encode(&buf, rows); err != nil {
			return false
		}
		got, err := c.Decode(&buf)
		if err != nil || len(got) != len(rows) {
			return false
		}
		for i := range rows {
			if !maps.Equal(got[i], rows[i]) {
				return false
			}
		}
		return true
	}

	// Values carry the delimiter and a quote so quoting is exercised.
	value := gen.AlphaString().Map(func(s string) string { return s + ",\"x" })

	properties.Property("csv rows survive encode and decode", prop.ForAll(
		func(values []string) bool {
			return roundTrips(&csvCodec{columns: columns, delim: ',', header: true}, values)
		},
		gen.SliceOf(value),
	))
	properties.Property("jsonl rows survive encode and decode", prop.ForAll(
		func(values []string) bool { return roundTrips(&jsonlCodec{}, values) },
		gen.SliceOf(value),
	))

	properties.TestingRun(t)
}
