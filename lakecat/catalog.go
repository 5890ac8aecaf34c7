package lakecat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Batch bounds of the AWS APIs.
const (
	// DefaultPartitionBatchSize is the BatchDeletePartition limit in Glue.
	DefaultPartitionBatchSize = 25

	// DefaultObjectBatchSize is the DeleteObjects limit in S3.
	DefaultObjectBatchSize = 1000
)

// Catalog is the data-lake facade over a metadata store and an object store.
type Catalog struct {
	meta   MetadataStore
	store  ObjectStore
	reader Reader
	writer Writer
	logger *slog.Logger

	partitionBatchSize int
	objectBatchSize    int
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger. The default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPartitionBatchSize bounds the partitions per metadata batch call.
func WithPartitionBatchSize(n int) Option {
	return func(c *Catalog) { c.partitionBatchSize = n }
}

// WithObjectBatchSize bounds the keys per object-store delete call.
func WithObjectBatchSize(n int) Option {
	return func(c *Catalog) { c.objectBatchSize = n }
}

// WithReader sets the read strategy. The default is a RecordEngine over
// the catalog's object store.
func WithReader(r Reader) Option {
	return func(c *Catalog) { c.reader = r }
}

// WithWriter sets the write strategy. The default is a RecordEngine over
// the catalog's object store.
func WithWriter(w Writer) Option {
	return func(c *Catalog) { c.writer = w }
}

// NewCatalog creates a catalog. Both stores are owned by the caller.
func NewCatalog(meta MetadataStore, store ObjectStore, opts ...Option) (*Catalog, error) {
	if meta == nil {
		return nil, errors.New("lakecat: metadata store is required")
	}
	if store == nil {
		return nil, errors.New("lakecat: object store is required")
	}

	c := &Catalog{
		meta:               meta,
		store:              store,
		logger:             slog.New(slog.DiscardHandler),
		partitionBatchSize: DefaultPartitionBatchSize,
		objectBatchSize:    DefaultObjectBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.partitionBatchSize <= 0 {
		return nil, fmt.Errorf("lakecat: partition batch size must be positive, got %d", c.partitionBatchSize)
	}
	if c.objectBatchSize <= 0 {
		return nil, fmt.Errorf("lakecat: object batch size must be positive, got %d", c.objectBatchSize)
	}

	if c.reader == nil || c.writer == nil {
		engine := NewRecordEngine(store)
		if c.reader == nil {
			c.reader = engine
		}
		if c.writer == nil {
			c.writer = engine
		}
	}
	return c, nil
}

// Table returns the table descriptor. It is fetched on every call.
func (c *Catalog) Table(ctx context.Context, database, table string) (*Table, error) {
	t, err := c.meta.GetTable(ctx, database, table)
	if err != nil {
		return nil, fmt.Errorf("get table %s.%s: %w", database, table, err)
	}
	return t, nil
}

// ListTables returns the table names of a database.
func (c *Catalog) ListTables(ctx context.Context, database string) ([]string, error) {
	names, err := c.meta.ListTables(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("list tables %s: %w", database, err)
	}
	return names, nil
}

// Location returns the table's base location without a trailing slash.
func (c *Catalog) Location(ctx context.Context, database, table string) (string, error) {
	t, err := c.Table(ctx, database, table)
	if err != nil {
		return "", err
	}
	return trimLocation(t.Location), nil
}

// PartitionColumns returns the table's partition key names in order.
func (c *Catalog) PartitionColumns(ctx context.Context, database, table string) ([]string, error) {
	t, err := c.Table(ctx, database, table)
	if err != nil {
		return nil, err
	}
	return t.PartitionKeyNames(), nil
}

func (c *Catalog) tableLogger(database, table string) *slog.Logger {
	return c.logger.With("database", database, "table", table)
}
