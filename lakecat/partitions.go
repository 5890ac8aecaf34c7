package lakecat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/pithecene-io/lakecat/internal/partition"
)

// GetPartitions lists the table's registered partitions, optionally filtered
// by a metadata-store expression (for Glue, e.g. "year = '2024'").
//
// A partition whose location is not under the table location keeps its full
// location as Name and is logged as a warning.
func (c *Catalog) GetPartitions(ctx context.Context, database, table, expression string) ([]Partition, error) {
	t, err := c.Table(ctx, database, table)
	if err != nil {
		return nil, err
	}
	listing, err := c.listPartitions(ctx, t, expression)
	if err != nil {
		return nil, err
	}
	return listing.partitions, nil
}

// Partition builds the partition identified by a Hive fragment such as
// "year=2024/month=01". Returns ErrMalformedPartitionPath if the fragment
// does not match the declared partition keys.
func (t *Table) Partition(name string) (Partition, error) {
	if !t.Partitioned() {
		return Partition{}, fmt.Errorf("%s.%s: %w", t.Database, t.Name, ErrNotPartitioned)
	}
	name = strings.Trim(name, "/")
	values, ok := partition.Decode(name, t.PartitionKeyNames())
	if !ok {
		return Partition{}, fmt.Errorf("%w: %q does not match keys %v", ErrMalformedPartitionPath, name, t.PartitionKeyNames())
	}
	return t.partitionFor(values), nil
}

// partitionFor synthesizes the partition for a value tuple. The tuple must
// match the partition keys.
func (t *Table) partitionFor(values []string) Partition {
	name := partition.Encode(t.PartitionKeyNames(), values)
	return Partition{
		Name:     name,
		Values:   slices.Clone(values),
		Location: trimLocation(t.Location) + "/" + name,
	}
}

// partitionListing is the accessor's result together with the anomalies
// found while converting records.
type partitionListing struct {
	partitions []Partition

	// foreign holds the names of partitions located outside the table
	// location. Their Name is the full location.
	foreign map[string]struct{}
}

func (l partitionListing) isForeign(p Partition) bool {
	_, ok := l.foreign[p.Name]
	return ok
}

func (c *Catalog) listPartitions(ctx context.Context, t *Table, expression string) (partitionListing, error) {
	var (
		listing = partitionListing{foreign: map[string]struct{}{}}
		base    = trimLocation(t.Location)
		keys    = t.PartitionKeyNames()
		log     = c.tableLogger(t.Database, t.Name)
	)

	for page, err := range c.meta.ListPartitions(ctx, t.Database, t.Name, expression) {
		if err != nil {
			return partitionListing{}, fmt.Errorf("list partitions %s.%s: %w", t.Database, t.Name, err)
		}
		for i := range page {
			p, foreign := catalogPartition(base, keys, &page[i])
			if foreign {
				listing.foreign[p.Name] = struct{}{}
				log.Warn("partition location is outside the table location",
					slog.String("location", p.Location),
					slog.String("table_location", base))
			}
			listing.partitions = append(listing.partitions, p)
		}
	}
	return listing, nil
}

// catalogPartition converts a metadata record. It reports true when the
// record's location does not lie under base.
func catalogPartition(base string, keys []string, rec *PartitionRecord) (Partition, bool) {
	p := Partition{
		Values: slices.Clone(rec.Values),
		Record: rec,
	}

	loc := trimLocation(rec.Location)
	if loc == "" {
		// Registered without a storage descriptor: assume the Hive layout.
		p.Name = partition.Encode(keys, rec.Values)
		p.Location = base + "/" + p.Name
		return p, false
	}

	p.Location = loc
	name, ok := strings.CutPrefix(loc, base+"/")
	if !ok || strings.Trim(name, "/") == "" {
		p.Name = loc
		return p, true
	}
	p.Name = strings.Trim(name, "/")
	return p, false
}
