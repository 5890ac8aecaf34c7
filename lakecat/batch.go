package lakecat

import (
	"context"
	"log/slog"

	"github.com/samber/lo"
)

// deleteBatch removes partitions from the metadata store in chunks of at
// most partitionBatchSize value tuples. The first failing chunk aborts the
// operation; earlier chunks stay applied.
func (c *Catalog) deleteBatch(ctx context.Context, t *Table, values [][]string) error {
	chunks := lo.Chunk(values, c.partitionBatchSize)
	log := c.tableLogger(t.Database, t.Name)

	completed := 0
	for i, chunk := range chunks {
		if err := c.meta.BatchDeletePartitions(ctx, t.Database, t.Name, chunk); err != nil {
			return &BatchError{Op: "delete partitions", Chunk: i, Chunks: len(chunks), Completed: completed, Err: err}
		}
		completed += len(chunk)
		log.Debug("deleted partition batch", slog.Int("chunk", i), slog.Int("count", len(chunk)))
	}
	return nil
}

// createBatch registers partitions in chunks of at most partitionBatchSize.
// Each entry's storage descriptor is a copy of the table's with only the
// location replaced.
func (c *Catalog) createBatch(ctx context.Context, t *Table, partitions []Partition) error {
	entries := lo.Map(partitions, func(p Partition, _ int) PartitionInput {
		return PartitionInput{
			Values:            p.Values,
			StorageDescriptor: t.StorageDescriptor.WithLocation(p.Location),
		}
	})

	chunks := lo.Chunk(entries, c.partitionBatchSize)
	log := c.tableLogger(t.Database, t.Name)

	completed := 0
	for i, chunk := range chunks {
		if err := c.meta.BatchCreatePartitions(ctx, t.Database, t.Name, chunk); err != nil {
			return &BatchError{Op: "create partitions", Chunk: i, Chunks: len(chunks), Completed: completed, Err: err}
		}
		completed += len(chunk)
		log.Debug("created partition batch", slog.Int("chunk", i), slog.Int("count", len(chunk)))
	}
	return nil
}

// deleteObjects deletes keys in chunks of at most objectBatchSize.
func (c *Catalog) deleteObjects(ctx context.Context, bucket string, keys []string) error {
	chunks := lo.Chunk(keys, c.objectBatchSize)

	completed := 0
	for i, chunk := range chunks {
		if err := c.store.DeleteObjects(ctx, bucket, chunk); err != nil {
			return &BatchError{Op: "delete objects", Chunk: i, Chunks: len(chunks), Completed: completed, Err: err}
		}
		completed += len(chunk)
	}
	return nil
}
