package lakecat

import (
	"errors"
	"slices"
	"testing"
)

func TestClassifyKey(t *testing.T) {
	keys := []string{"year", "month"}
	dir := "db/events/"

	tests := []struct {
		key    string
		class  keyClass
		values []string
	}{
		{"db/events/year=2024/month=01/a.parquet", keyPartitioned, []string{"2024", "01"}},
		{"db/events/year=2024/month=01/sub/a.parquet", keyPartitioned, []string{"2024", "01"}},
		{"db/events/year=2024/month=/a.parquet", keyPartitioned, []string{"2024", ""}},
		{"db/events/_metadata", keyUnpartitioned, nil},
		{"db/events/year=2024/a.parquet", keyUnpartitioned, nil},
		{"db/other/year=2024/month=01/a.parquet", keyUnpartitioned, nil},
		{"db/events/month=01/year=2024/a.parquet", keyMalformed, nil},
		{"db/events/year=2024/bogus/a.parquet", keyMalformed, nil},
		{"db/events/year=2024/month=01/", keyMarker, nil},
		{"db/events/", keyMarker, nil},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			frag, class := classifyKey(tt.key, dir, keys)
			if class != tt.class {
				t.Fatalf("class = %d, want %d", class, tt.class)
			}
			if tt.values != nil && !slices.Equal(frag.Values(), tt.values) {
				t.Errorf("values = %v, want %v", frag.Values(), tt.values)
			}
		})
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		wantErr bool
	}{
		{raw: "s3://lake/db/events/", want: Location{Scheme: "s3", Bucket: "lake", Prefix: "db/events"}},
		{raw: "s3a://lake/db", want: Location{Scheme: "s3a", Bucket: "lake", Prefix: "db"}},
		{raw: " s3n://lake ", want: Location{Scheme: "s3n", Bucket: "lake"}},
		{raw: "s3://lake/db/t/year=a#b", want: Location{Scheme: "s3", Bucket: "lake", Prefix: "db/t/year=a#b"}},
		{raw: "s3://lake/db/t/q=a?b", want: Location{Scheme: "s3", Bucket: "lake", Prefix: "db/t/q=a?b"}},
		{raw: "s3://lake/db/t/ts=2024-01-01 00%3A00", want: Location{Scheme: "s3", Bucket: "lake", Prefix: "db/t/ts=2024-01-01 00%3A00"}},
		{raw: "s3://lake/db/t/p=100%", want: Location{Scheme: "s3", Bucket: "lake", Prefix: "db/t/p=100%"}},
		{raw: "S3://lake/db", want: Location{Scheme: "s3", Bucket: "lake", Prefix: "db"}},
		{raw: "file:///tmp/x", wantErr: true},
		{raw: "lake/db/events", wantErr: true},
		{raw: "s3:///nobucket", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLocation(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidLocation) {
				t.Errorf("ParseLocation(%q): expected ErrInvalidLocation, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseLocation(%q) = %+v, %v; want %+v", tt.raw, got, err, tt.want)
		}
	}
}

func TestLocation_Helpers(t *testing.T) {
	loc := Location{Scheme: "s3", Bucket: "lake", Prefix: "db/events"}

	if loc.String() != "s3://lake/db/events" {
		t.Errorf("String() = %q", loc.String())
	}
	if loc.Dir() != "db/events/" {
		t.Errorf("Dir() = %q", loc.Dir())
	}
	if (Location{Scheme: "s3", Bucket: "lake"}).Dir() != "" {
		t.Error("bucket root Dir() should be empty")
	}
	if got := loc.Join("/year=2024/").Prefix; got != "db/events/year=2024" {
		t.Errorf("Join() = %q", got)
	}

	contains := map[string]bool{
		"s3://lake/db/events/year=2024": true,
		"s3://lake/db/events":           false,
		"s3://lake/db/events_v2/x":      false,
		"s3://other/db/events/x":        false,
		"s3://lake/db":                  false,
	}
	for raw, want := range contains {
		other, _ := ParseLocation(raw)
		if got := loc.Contains(other); got != want {
			t.Errorf("Contains(%s) = %v, want %v", raw, got, want)
		}
	}
}

func TestTable_Derived(t *testing.T) {
	tbl := &Table{
		Database:      "db",
		Name:          "t",
		Location:      "s3://lake/db/t/",
		PartitionKeys: []Column{{Name: "year"}, {Name: "month"}},
		StorageDescriptor: StorageDescriptor{
			InputFormat: "org.apache.hadoop.mapred.TextInputFormat",
			Columns:     []Column{{Name: "id"}},
			SerDe:       SerDeInfo{Parameters: map[string]string{"field.delim": "\t", "skip.header.line.count": "1"}},
		},
	}

	if tbl.Format() != FormatCSV || tbl.Delimiter() != "\t" || !tbl.HasHeader() {
		t.Errorf("unexpected text settings: %s %q %v", tbl.Format(), tbl.Delimiter(), tbl.HasHeader())
	}
	if got := columnNames(tbl.AllColumns()); !slices.Equal(got, []string{"id", "year", "month"}) {
		t.Errorf("AllColumns() = %v", got)
	}

	tbl.StorageDescriptor.SerDe.SerializationLibrary = "org.openx.data.jsonserde.JsonSerDe"
	if tbl.Format() != FormatJSONL {
		t.Errorf("expected jsonl for JsonSerDe, got %s", tbl.Format())
	}

	p, err := tbl.Partition("/year=2024/month=01/")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "year=2024/month=01" || p.Location != "s3://lake/db/t/year=2024/month=01" {
		t.Errorf("unexpected partition %+v", p)
	}
	if _, err := tbl.Partition("month=01/year=2024"); !errors.Is(err, ErrMalformedPartitionPath) {
		t.Errorf("expected ErrMalformedPartitionPath, got %v", err)
	}
}

func TestStorageDescriptor_WithLocationDeepCopies(t *testing.T) {
	sd := StorageDescriptor{
		Location: "s3://lake/t",
		Columns:  []Column{{Name: "id"}},
		SerDe:    SerDeInfo{Parameters: map[string]string{"k": "v"}},
		Skewed:   &SkewedInfo{ColumnNames: []string{"id"}},
	}
	out := sd.WithLocation("s3://lake/t/p=1")
	out.Columns[0].Name = "changed"
	out.SerDe.Parameters["k"] = "changed"
	out.Skewed.ColumnNames[0] = "changed"

	if out.Location != "s3://lake/t/p=1" || sd.Location != "s3://lake/t" {
		t.Errorf("location not replaced independently")
	}
	if sd.Columns[0].Name != "id" || sd.SerDe.Parameters["k"] != "v" || sd.Skewed.ColumnNames[0] != "id" {
		t.Error("original descriptor was modified")
	}
}

func TestPartitionTargets(t *testing.T) {
	tbl := &Table{
		Database:      "db",
		Name:          "t",
		Location:      "s3://lake/db/t",
		PartitionKeys: []Column{{Name: "year"}},
	}

	targets, err := partitionTargets(tbl, []Partition{
		{Values: []string{"2024"}},
		{Values: []string{"2025"}, Location: "s3a://lake/db/t/custom/2025"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if targets[0].Prefix != "db/t/year=2024" || targets[1].Prefix != "db/t/custom/2025" {
		t.Errorf("unexpected targets %+v", targets)
	}

	_, err = partitionTargets(tbl, []Partition{{Values: []string{"2024"}, Location: "s3://lake/db/t"}})
	if !errors.Is(err, ErrUnsafeDeletion) {
		t.Errorf("expected ErrUnsafeDeletion, got %v", err)
	}
}
