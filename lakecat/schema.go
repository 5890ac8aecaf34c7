package lakecat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// AdaptToTableSchema conforms rows to the table: every data and partition
// column is present (nil when missing), columns the table does not declare
// are dropped, and values are cast to the column's catalog type. A value
// that cannot be cast fails with ErrSchemaViolation.
func (c *Catalog) AdaptToTableSchema(ctx context.Context, rows []Row, database, table string) ([]Row, error) {
	t, err := c.Table(ctx, database, table)
	if err != nil {
		return nil, err
	}
	cols := t.AllColumns()

	out := make([]Row, len(rows))
	for i, row := range rows {
		adapted := make(Row, len(cols))
		for _, col := range cols {
			v, err := castValue(row[col.Name], col.Type)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q (%s): %w", ErrSchemaViolation, i, col.Name, col.Type, err)
			}
			adapted[col.Name] = v
		}
		out[i] = adapted
	}
	return out, nil
}

// baseType reduces a catalog type such as "varchar(20)" or "DECIMAL(10,2)"
// to its lower-case name without parameters.
func baseType(catalogType string) string {
	name := strings.ToLower(strings.TrimSpace(catalogType))
	if i := strings.IndexAny(name, "(<"); i >= 0 {
		name = name[:i]
	}
	return name
}

// castValue converts v to the Go type used for a catalog type. Nested types
// (array, map, struct) pass through unchanged.
func castValue(v any, catalogType string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch baseType(catalogType) {
	case "tinyint", "smallint", "int", "integer":
		return cast.ToInt32E(v)
	case "bigint":
		return cast.ToInt64E(v)
	case "float", "real":
		return cast.ToFloat32E(v)
	case "double", "decimal":
		return cast.ToFloat64E(v)
	case "boolean":
		return cast.ToBoolE(v)
	case "string", "varchar", "char":
		return cast.ToStringE(v)
	case "timestamp":
		return cast.ToTimeE(v)
	case "date":
		ts, err := cast.ToTimeE(v)
		if err != nil {
			return nil, err
		}
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case "binary":
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		s, err := cast.ToStringE(v)
		return []byte(s), err
	default:
		return v, nil
	}
}
