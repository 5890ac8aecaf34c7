package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/alexeyco/simpletable"
	jsoniter "github.com/json-iterator/go"

	"github.com/pithecene-io/lakecat/lakecat"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func printTable(w io.Writer, header []string, rows [][]string) {
	table := simpletable.New()
	table.Header = &simpletable.Header{}
	for _, h := range header {
		table.Header.Cells = append(table.Header.Cells, &simpletable.Cell{Align: simpletable.AlignCenter, Text: h})
	}
	for _, row := range rows {
		cells := make([]*simpletable.Cell, len(row))
		for i, text := range row {
			cells[i] = &simpletable.Cell{Align: simpletable.AlignLeft, Text: text}
		}
		table.Body.Cells = append(table.Body.Cells, cells)
	}
	table.SetStyle(simpletable.StyleCompactLite)
	_, _ = fmt.Fprintln(w, table.String())
}

func printPartitions(w io.Writer, parts []lakecat.Partition) {
	rows := make([][]string, len(parts))
	for i, p := range parts {
		rows[i] = []string{p.Name, strings.Join(p.Values, ", "), p.Location}
	}
	printTable(w, []string{"Partition", "Values", "Location"}, rows)
}

func printRepairReport(w io.Writer, r *lakecat.RepairReport) {
	var rows [][]string
	for _, p := range r.Deleted {
		rows = append(rows, []string{"deleted", p.Name, p.Location})
	}
	for _, p := range r.Created {
		rows = append(rows, []string{"created", p.Name, p.Location})
	}
	if len(rows) > 0 {
		printTable(w, []string{"Action", "Partition", "Location"}, rows)
	}
	_, _ = fmt.Fprintf(w, "deleted %d, created %d partitions; scanned %d objects (%d unpartitioned, %d malformed); skipped %d malformed and %d foreign catalog entries; kept %d at non-Hive locations\n",
		len(r.Deleted), len(r.Created), r.ObjectsScanned, r.UnpartitionedObjects,
		r.MalformedObjects, r.MalformedCatalogEntries, r.ForeignLocations, r.OccupiedLocations)
}

// rowColumns returns the projected columns, or the sorted union of the
// rows' keys.
func rowColumns(rows []lakecat.Row, columns []string) []string {
	if len(columns) > 0 {
		return columns
	}
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func printRows(w io.Writer, rows []lakecat.Row, columns []string) {
	columns = rowColumns(rows, columns)
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(columns))
		for j, c := range columns {
			cells[i][j] = formatValue(row[c])
		}
	}
	printTable(w, columns, cells)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("%x", v)
	default:
		return fmt.Sprint(v)
	}
}

func writeJSONLines(w io.Writer, rows []lakecat.Row) error {
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}
