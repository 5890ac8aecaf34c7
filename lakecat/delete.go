package lakecat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

// DeletePartitions deletes the data files of each partition and then
// removes the partitions from the metadata store. A nil slice means every
// partition currently registered.
//
// Only objects under each partition's own location are deleted. Every
// partition is checked before any object is touched: a location equal to,
// or not under, the table location fails with ErrUnsafeDeletion, and a value
// tuple that does not match the partition keys fails with
// ErrMalformedPartitionPath. Files directly under the table location are
// never deleted.
func (c *Catalog) DeletePartitions(ctx context.Context, database, table string, partitions []Partition) error {
	t, err := c.Table(ctx, database, table)
	if err != nil {
		return err
	}
	if !t.Partitioned() {
		return fmt.Errorf("delete partitions %s.%s: %w", database, table, ErrNotPartitioned)
	}

	if partitions == nil {
		listing, err := c.listPartitions(ctx, t, "")
		if err != nil {
			return err
		}
		partitions = listing.partitions
	}
	if len(partitions) == 0 {
		return nil
	}

	targets, err := partitionTargets(t, partitions)
	if err != nil {
		return fmt.Errorf("delete partitions %s.%s: %w", database, table, err)
	}

	log := c.tableLogger(database, table)
	for i, loc := range targets {
		n, err := c.deletePartitionData(ctx, loc)
		if err != nil {
			return fmt.Errorf("delete data of partition %s: %w", partitions[i].Name, err)
		}
		log.Debug("deleted partition data", slog.String("partition", partitions[i].Name), slog.Int("objects", n))
	}

	values := lo.Map(partitions, func(p Partition, _ int) []string { return p.Values })
	if err := c.deleteBatch(ctx, t, values); err != nil {
		return fmt.Errorf("delete partitions %s.%s: %w", database, table, err)
	}
	log.Info("deleted partitions", slog.Int("count", len(partitions)))
	return nil
}

// partitionTargets validates every partition against the table and returns
// the locations whose objects may be deleted.
func partitionTargets(t *Table, partitions []Partition) ([]Location, error) {
	tableLoc, err := ParseLocation(t.Location)
	if err != nil {
		return nil, err
	}
	keys := t.PartitionKeyNames()

	targets := make([]Location, len(partitions))
	for i, p := range partitions {
		if len(p.Values) != len(keys) {
			return nil, fmt.Errorf("%w: partition %q has %d values, table declares %d keys",
				ErrMalformedPartitionPath, p.Name, len(p.Values), len(keys))
		}
		raw := p.Location
		if raw == "" {
			raw = t.partitionFor(p.Values).Location
		}
		if trimLocation(raw) == trimLocation(t.Location) {
			return nil, fmt.Errorf("%w: partition %q is located at the table root %s", ErrUnsafeDeletion, p.Name, raw)
		}
		loc, err := ParseLocation(raw)
		if err != nil {
			return nil, err
		}
		if !tableLoc.Contains(loc) {
			return nil, fmt.Errorf("%w: partition %q at %s", ErrUnsafeDeletion, p.Name, loc)
		}
		targets[i] = loc
	}
	return targets, nil
}

// deletePartitionData deletes every object strictly under loc and returns
// the number deleted. Callers must never pass a table location.
func (c *Catalog) deletePartitionData(ctx context.Context, loc Location) (int, error) {
	if loc.Prefix == "" {
		return 0, fmt.Errorf("%w: refusing to delete bucket root %s", ErrUnsafeDeletion, loc)
	}
	keys, err := c.listKeys(ctx, loc)
	if err != nil {
		return 0, err
	}
	if err := c.deleteObjects(ctx, loc.Bucket, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// TruncateTable deletes all partitions (data and metadata) and then every
// object under the table location. This is the only operation that deletes
// files at the table root.
func (c *Catalog) TruncateTable(ctx context.Context, database, table string) error {
	t, err := c.Table(ctx, database, table)
	if err != nil {
		return err
	}
	if t.Partitioned() {
		if err := c.DeletePartitions(ctx, database, table, nil); err != nil {
			return err
		}
	}

	loc, err := ParseLocation(t.Location)
	if err != nil {
		return err
	}
	if loc.Prefix == "" {
		return fmt.Errorf("truncate %s.%s: %w: table is located at bucket root %s", database, table, ErrUnsafeDeletion, loc)
	}
	keys, err := c.listKeys(ctx, loc)
	if err != nil {
		return err
	}
	if err := c.deleteObjects(ctx, loc.Bucket, keys); err != nil {
		return fmt.Errorf("truncate %s.%s: %w", database, table, err)
	}
	c.tableLogger(database, table).Info("truncated table", slog.Int("objects", len(keys)))
	return nil
}

// listKeys collects every key strictly under loc. Deletion starts only after
// the listing completes.
func (c *Catalog) listKeys(ctx context.Context, loc Location) ([]string, error) {
	var keys []string
	for page, err := range c.store.ListPages(ctx, loc.Bucket, loc.Dir()) {
		if err != nil {
			return nil, fmt.Errorf("list objects under %s: %w", loc, err)
		}
		keys = append(keys, page...)
	}
	return keys, nil
}
