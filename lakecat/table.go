package lakecat

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/pithecene-io/lakecat/internal/partition"
	"github.com/samber/lo"
)

// ReadTable reads the rows of a table through the catalog's Reader.
func (c *Catalog) ReadTable(ctx context.Context, database, table string, opts ReadOptions) ([]Row, error) {
	t, loc, err := c.located(ctx, database, table)
	if err != nil {
		return nil, err
	}
	rows, err := c.reader.Read(ctx, Source{Table: t, Location: loc}, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", database, table, err)
	}
	return rows, nil
}

// ReadPartitionedTable reads only the partitions matching a metadata-store
// expression (for Glue, e.g. "year = '2024'"). It returns no rows when no
// partition matches.
func (c *Catalog) ReadPartitionedTable(ctx context.Context, database, table, expression string, opts ReadOptions) ([]Row, error) {
	t, loc, err := c.located(ctx, database, table)
	if err != nil {
		return nil, err
	}
	if !t.Partitioned() {
		return nil, fmt.Errorf("read %s.%s: %w", database, table, ErrNotPartitioned)
	}
	listing, err := c.listPartitions(ctx, t, expression)
	if err != nil {
		return nil, err
	}
	if len(listing.partitions) == 0 {
		return []Row{}, nil
	}
	rows, err := c.reader.Read(ctx, Source{Table: t, Location: loc, Partitions: listing.partitions}, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", database, table, err)
	}
	return rows, nil
}

// ReadBatches reads a table in batches of batchSize rows, advancing the
// offset until a read returns fewer rows than requested. opts.Offset is the
// starting offset and a positive opts.Limit caps the total.
//
// Every batch is a separate read, so a strategy without native offsets
// rescans the skipped rows each time.
func (c *Catalog) ReadBatches(ctx context.Context, database, table string, batchSize int, opts ReadOptions) iter.Seq2[[]Row, error] {
	return func(yield func([]Row, error) bool) {
		if batchSize <= 0 {
			yield(nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrUnsupportedOption, batchSize))
			return
		}
		offset, remaining := opts.Offset, opts.Limit
		for {
			batch := opts
			batch.Offset = offset
			batch.Limit = batchSize
			if opts.Limit > 0 {
				batch.Limit = min(batchSize, remaining)
			}

			rows, err := c.ReadTable(ctx, database, table, batch)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(rows) == 0 || !yield(rows, nil) || len(rows) < batch.Limit {
				return
			}
			offset += len(rows)
			if opts.Limit > 0 {
				if remaining -= len(rows); remaining == 0 {
					return
				}
			}
		}
	}
}

// WriteTable writes rows to a table through the catalog's Writer and
// returns the keys of the files written.
//
// An unpartitioned table receives one file at its location; with Overwrite
// the table is truncated first. A partitioned table receives one file per
// distinct partition value tuple, the partition columns being dropped from
// the rows. With Overwrite only the data of those partitions is replaced.
// The table is repaired afterwards so new partitions are registered.
func (c *Catalog) WriteTable(ctx context.Context, rows []Row, database, table string, opts WriteOptions) ([]string, error) {
	t, loc, err := c.located(ctx, database, table)
	if err != nil {
		return nil, err
	}
	log := c.tableLogger(database, table)

	if !t.Partitioned() {
		if opts.Overwrite {
			if err := c.TruncateTable(ctx, database, table); err != nil {
				return nil, err
			}
		}
		if len(rows) == 0 {
			return nil, nil
		}
		key, err := c.writer.Write(ctx, Target{Table: t, Location: loc}, rows, opts)
		if err != nil {
			return nil, fmt.Errorf("write %s.%s: %w", database, table, err)
		}
		log.Info("wrote table data", slog.String("key", key), slog.Int("rows", len(rows)))
		return []string{key}, nil
	}

	keys := t.PartitionKeyNames()
	order, groups, err := groupByPartition(rows, keys)
	if err != nil {
		return nil, fmt.Errorf("write %s.%s: %w", database, table, err)
	}
	parts := lo.Map(order, func(values []string, _ int) Partition { return t.partitionFor(values) })
	targets, err := partitionTargets(t, parts)
	if err != nil {
		return nil, fmt.Errorf("write %s.%s: %w", database, table, err)
	}

	if opts.Overwrite {
		for i, target := range targets {
			n, err := c.deletePartitionData(ctx, target)
			if err != nil {
				return nil, fmt.Errorf("overwrite partition %s: %w", parts[i].Name, err)
			}
			log.Debug("cleared partition for overwrite", slog.String("partition", parts[i].Name), slog.Int("objects", n))
		}
	}

	written := make([]string, 0, len(parts))
	for i, p := range parts {
		data := groups[partition.NewFragment(p.Values)]
		key, err := c.writer.Write(ctx, Target{Table: t, Location: targets[i]}, data, opts)
		if err != nil {
			return written, fmt.Errorf("write partition %s: %w", p.Name, err)
		}
		written = append(written, key)
		log.Debug("wrote partition data", slog.String("partition", p.Name), slog.Int("rows", len(data)))
	}
	log.Info("wrote table data", slog.Int("partitions", len(parts)), slog.Int("rows", len(rows)))

	if _, err := c.RepairTable(ctx, database, table); err != nil {
		return written, err
	}
	return written, nil
}

func (c *Catalog) located(ctx context.Context, database, table string) (*Table, Location, error) {
	t, err := c.Table(ctx, database, table)
	if err != nil {
		return nil, Location{}, err
	}
	loc, err := ParseLocation(t.Location)
	if err != nil {
		return nil, Location{}, fmt.Errorf("%s.%s: %w", database, table, err)
	}
	return t, loc, nil
}
