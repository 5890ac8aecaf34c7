// Package glue provides the AWS Glue Data Catalog adapter for lakecat.
//
// # Glue-Specific Limits
//
//   - BatchCreatePartition accepts at most 100 partitions per call.
//   - BatchDeletePartition accepts at most 25 partitions per call, which is
//     the catalog's default partition batch size.
//
// Batch calls report per-partition failures in the response rather than as
// an error; the store turns any reported failure into an error so the
// caller's chunk fails as a whole.
package glue

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"

	"github.com/pithecene-io/lakecat/internal/partition"
	"github.com/pithecene-io/lakecat/lakecat"
)

// Glue batch limits.
const (
	MaxCreateBatch = 100
	MaxDeleteBatch = 25
)

// API defines the subset of the Glue client interface used by the store.
// This enables testing with mock implementations.
type API interface {
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
	GetTables(ctx context.Context, params *glue.GetTablesInput, optFns ...func(*glue.Options)) (*glue.GetTablesOutput, error)
	GetPartitions(ctx context.Context, params *glue.GetPartitionsInput, optFns ...func(*glue.Options)) (*glue.GetPartitionsOutput, error)
	BatchCreatePartition(ctx context.Context, params *glue.BatchCreatePartitionInput, optFns ...func(*glue.Options)) (*glue.BatchCreatePartitionOutput, error)
	BatchDeletePartition(ctx context.Context, params *glue.BatchDeletePartitionInput, optFns ...func(*glue.Options)) (*glue.BatchDeletePartitionOutput, error)
}

// Config holds configuration for the Glue store.
type Config struct {
	// CatalogID selects a catalog other than the caller's account default.
	CatalogID string

	// PageSize caps the partitions per GetPartitions page. Zero uses the
	// service default.
	PageSize int32
}

// Store implements lakecat.MetadataStore over the Glue Data Catalog.
type Store struct {
	client    API
	catalogID *string
	pageSize  int32
}

var _ lakecat.MetadataStore = (*Store)(nil)

// New creates a Glue store with the given client and configuration.
//
// Example:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store, err := gluestore.New(glue.NewFromConfig(cfg), gluestore.Config{})
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("glue: client is required")
	}
	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("glue: page size must not be negative, got %d", cfg.PageSize)
	}
	s := &Store{client: client, pageSize: cfg.PageSize}
	if cfg.CatalogID != "" {
		s.catalogID = aws.String(cfg.CatalogID)
	}
	return s, nil
}

// GetTable returns the table descriptor.
// Returns lakecat.ErrNotFound if the database or table does not exist.
func (s *Store) GetTable(ctx context.Context, database, table string) (*lakecat.Table, error) {
	out, err := s.client.GetTable(ctx, &glue.GetTableInput{
		CatalogId:    s.catalogID,
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		return nil, wrap("get table", err)
	}
	if out.Table == nil {
		return nil, fmt.Errorf("glue: get table: %w", lakecat.ErrNotFound)
	}
	return fromTable(database, *out.Table), nil
}

// ListTables returns the table names of a database in catalog order.
func (s *Store) ListTables(ctx context.Context, database string) ([]string, error) {
	input := &glue.GetTablesInput{
		CatalogId:    s.catalogID,
		DatabaseName: aws.String(database),
	}
	var names []string
	for {
		resp, err := s.client.GetTables(ctx, input)
		if err != nil {
			return nil, wrap("get tables", err)
		}
		for _, t := range resp.TableList {
			names = append(names, aws.ToString(t.Name))
		}
		if resp.NextToken == nil {
			return names, nil
		}
		input.NextToken = resp.NextToken
	}
}

// ListPartitions yields GetPartitions pages. The expression uses Glue's
// partition predicate syntax, e.g. "year = '2024' AND month > '06'".
func (s *Store) ListPartitions(ctx context.Context, database, table, expression string) iter.Seq2[[]lakecat.PartitionRecord, error] {
	return func(yield func([]lakecat.PartitionRecord, error) bool) {
		input := &glue.GetPartitionsInput{
			CatalogId:    s.catalogID,
			DatabaseName: aws.String(database),
			TableName:    aws.String(table),
		}
		if expression != "" {
			input.Expression = aws.String(expression)
		}
		if s.pageSize > 0 {
			input.MaxResults = aws.Int32(s.pageSize)
		}
		for {
			resp, err := s.client.GetPartitions(ctx, input)
			if err != nil {
				yield(nil, wrap("get partitions", err))
				return
			}
			records := make([]lakecat.PartitionRecord, len(resp.Partitions))
			for i, p := range resp.Partitions {
				records[i] = fromPartition(p)
			}
			if len(records) > 0 && !yield(records, nil) {
				return
			}
			if resp.NextToken == nil {
				return
			}
			input.NextToken = resp.NextToken
		}
	}
}

// BatchCreatePartitions registers up to MaxCreateBatch partitions.
func (s *Store) BatchCreatePartitions(ctx context.Context, database, table string, entries []lakecat.PartitionInput) error {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > MaxCreateBatch {
		return fmt.Errorf("glue: batch create partition: %d partitions exceeds limit of %d", len(entries), MaxCreateBatch)
	}
	inputs := make([]types.PartitionInput, len(entries))
	for i, e := range entries {
		inputs[i] = types.PartitionInput{
			Values:            slices.Clone(e.Values),
			StorageDescriptor: toStorageDescriptor(e.StorageDescriptor),
		}
	}
	out, err := s.client.BatchCreatePartition(ctx, &glue.BatchCreatePartitionInput{
		CatalogId:          s.catalogID,
		DatabaseName:       aws.String(database),
		TableName:          aws.String(table),
		PartitionInputList: inputs,
	})
	if err != nil {
		return wrap("batch create partition", err)
	}
	return partitionErrors("batch create partition", out.Errors, len(entries))
}

// BatchDeletePartitions removes up to MaxDeleteBatch partitions.
func (s *Store) BatchDeletePartitions(ctx context.Context, database, table string, values [][]string) error {
	if len(values) == 0 {
		return nil
	}
	if len(values) > MaxDeleteBatch {
		return fmt.Errorf("glue: batch delete partition: %d partitions exceeds limit of %d", len(values), MaxDeleteBatch)
	}
	toDelete := make([]types.PartitionValueList, len(values))
	for i, v := range values {
		toDelete[i] = types.PartitionValueList{Values: slices.Clone(v)}
	}
	out, err := s.client.BatchDeletePartition(ctx, &glue.BatchDeletePartitionInput{
		CatalogId:          s.catalogID,
		DatabaseName:       aws.String(database),
		TableName:          aws.String(table),
		PartitionsToDelete: toDelete,
	})
	if err != nil {
		return wrap("batch delete partition", err)
	}
	return partitionErrors("batch delete partition", out.Errors, len(values))
}

// wrap prefixes an API error and maps EntityNotFoundException to
// lakecat.ErrNotFound.
func wrap(op string, err error) error {
	var notFound *types.EntityNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("glue: %s: %w: %s", op, lakecat.ErrNotFound, aws.ToString(notFound.Message))
	}
	return fmt.Errorf("glue: %s: %w", op, err)
}

func partitionErrors(op string, errs []types.PartitionError, total int) error {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	var code, msg string
	if first.ErrorDetail != nil {
		code = aws.ToString(first.ErrorDetail.ErrorCode)
		msg = aws.ToString(first.ErrorDetail.ErrorMessage)
	}
	return fmt.Errorf("glue: %s: %d of %d partitions failed, first %v: %s %s",
		op, len(errs), total, first.PartitionValues, code, msg)
}

// -----------------------------------------------------------------------------
// Conversions
// -----------------------------------------------------------------------------

func fromTable(database string, t types.Table) *lakecat.Table {
	out := &lakecat.Table{
		Database:      database,
		Name:          aws.ToString(t.Name),
		PartitionKeys: fromColumns(t.PartitionKeys),
		Parameters:    maps.Clone(t.Parameters),
	}
	if t.DatabaseName != nil {
		out.Database = aws.ToString(t.DatabaseName)
	}
	if t.StorageDescriptor != nil {
		out.StorageDescriptor = fromStorageDescriptor(*t.StorageDescriptor)
		out.Location = out.StorageDescriptor.Location
	}
	return out
}

func fromPartition(p types.Partition) lakecat.PartitionRecord {
	rec := lakecat.PartitionRecord{
		Values:     slices.Clone(p.Values),
		Parameters: maps.Clone(p.Parameters),
		CreatedAt:  aws.ToTime(p.CreationTime),
	}
	if p.StorageDescriptor != nil {
		sd := fromStorageDescriptor(*p.StorageDescriptor)
		rec.StorageDescriptor = &sd
		rec.Location = sd.Location
	}
	return rec
}

func fromColumns(cols []types.Column) []lakecat.Column {
	out := make([]lakecat.Column, len(cols))
	for i, c := range cols {
		out[i] = lakecat.Column{
			Name:    aws.ToString(c.Name),
			Type:    aws.ToString(c.Type),
			Comment: aws.ToString(c.Comment),
		}
	}
	return out
}

func fromStorageDescriptor(sd types.StorageDescriptor) lakecat.StorageDescriptor {
	out := lakecat.StorageDescriptor{
		Columns:                fromColumns(sd.Columns),
		Location:               aws.ToString(sd.Location),
		InputFormat:            aws.ToString(sd.InputFormat),
		OutputFormat:           aws.ToString(sd.OutputFormat),
		Compressed:             sd.Compressed,
		NumberOfBuckets:        sd.NumberOfBuckets,
		BucketColumns:          slices.Clone(sd.BucketColumns),
		Parameters:             maps.Clone(sd.Parameters),
		StoredAsSubDirectories: sd.StoredAsSubDirectories,
	}
	if sd.SerdeInfo != nil {
		out.SerDe = lakecat.SerDeInfo{
			Name:                 aws.ToString(sd.SerdeInfo.Name),
			SerializationLibrary: aws.ToString(sd.SerdeInfo.SerializationLibrary),
			Parameters:           maps.Clone(sd.SerdeInfo.Parameters),
		}
	}
	for _, o := range sd.SortColumns {
		out.SortColumns = append(out.SortColumns, lakecat.SortColumn{Column: aws.ToString(o.Column), Order: o.SortOrder})
	}
	if sd.SkewedInfo != nil {
		out.Skewed = &lakecat.SkewedInfo{
			ColumnNames:       slices.Clone(sd.SkewedInfo.SkewedColumnNames),
			ColumnValues:      slices.Clone(sd.SkewedInfo.SkewedColumnValues),
			ValueLocationMaps: maps.Clone(sd.SkewedInfo.SkewedColumnValueLocationMaps),
		}
	}
	return out
}

func toColumns(cols []lakecat.Column) []types.Column {
	if cols == nil {
		return nil
	}
	out := make([]types.Column, len(cols))
	for i, c := range cols {
		out[i] = types.Column{Name: aws.String(c.Name), Type: aws.String(c.Type)}
		if c.Comment != "" {
			out[i].Comment = aws.String(c.Comment)
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func toStorageDescriptor(sd lakecat.StorageDescriptor) *types.StorageDescriptor {
	out := &types.StorageDescriptor{
		Columns:                toColumns(sd.Columns),
		Location:               optional(sd.Location),
		InputFormat:            optional(sd.InputFormat),
		OutputFormat:           optional(sd.OutputFormat),
		Compressed:             sd.Compressed,
		NumberOfBuckets:        sd.NumberOfBuckets,
		BucketColumns:          slices.Clone(sd.BucketColumns),
		Parameters:             maps.Clone(sd.Parameters),
		StoredAsSubDirectories: sd.StoredAsSubDirectories,
		SerdeInfo: &types.SerDeInfo{
			Name:                 optional(sd.SerDe.Name),
			SerializationLibrary: optional(sd.SerDe.SerializationLibrary),
			Parameters:           maps.Clone(sd.SerDe.Parameters),
		},
	}
	for _, c := range sd.SortColumns {
		out.SortColumns = append(out.SortColumns, types.Order{Column: aws.String(c.Column), SortOrder: c.Order})
	}
	if sd.Skewed != nil {
		out.SkewedInfo = &types.SkewedInfo{
			SkewedColumnNames:             slices.Clone(sd.Skewed.ColumnNames),
			SkewedColumnValues:            slices.Clone(sd.Skewed.ColumnValues),
			SkewedColumnValueLocationMaps: maps.Clone(sd.Skewed.ValueLocationMaps),
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Mock Glue Client for Testing
// -----------------------------------------------------------------------------

// MockGlueClient is a test double for API. It holds tables and their
// partitions in memory; GetPartitions ignores Expression unless FilterFunc
// is set.
type MockGlueClient struct {
	mu         sync.Mutex
	tables     map[string]types.Table
	partitions map[string]map[partition.Fragment]types.Partition

	// FilterFunc, when set, decides which partitions match an expression.
	FilterFunc func(expression string, values []string) bool

	// Call counters for test assertions
	GetPartitionsCalls int

	// CreateBatches and DeleteBatches record the partition values of every
	// batch call in order.
	CreateBatches [][][]string
	DeleteBatches [][][]string

	// CreateFailOnCall and DeleteFailOnCall fail the Nth batch call with an
	// API error. Set to 0 to disable (default).
	CreateFailOnCall int
	DeleteFailOnCall int

	// RejectValues makes batch calls report these partitions (joined by
	// "/") as failed in the response.
	RejectValues map[string]bool
}

// NewMockGlueClient creates a new mock Glue client for testing.
func NewMockGlueClient() *MockGlueClient {
	return &MockGlueClient{
		tables:     make(map[string]types.Table),
		partitions: make(map[string]map[partition.Fragment]types.Partition),
	}
}

func tableKey(database, table string) string { return database + "." + table }

// AddTable registers a table.
func (m *MockGlueClient) AddTable(database string, t types.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.DatabaseName = aws.String(database)
	key := tableKey(database, aws.ToString(t.Name))
	m.tables[key] = t
	if m.partitions[key] == nil {
		m.partitions[key] = make(map[partition.Fragment]types.Partition)
	}
}

// AddPartition registers a partition with the given location. An empty
// location registers the partition without a storage descriptor.
func (m *MockGlueClient) AddPartition(database, table, location string, values ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := types.Partition{
		DatabaseName: aws.String(database),
		TableName:    aws.String(table),
		Values:       values,
		CreationTime: aws.Time(time.Unix(0, 0).UTC()),
	}
	if location != "" {
		p.StorageDescriptor = &types.StorageDescriptor{Location: aws.String(location)}
	}
	m.partitions[tableKey(database, table)][partition.NewFragment(values)] = p
}

// PartitionValues returns the registered value tuples of a table, sorted.
func (m *MockGlueClient) PartitionValues(database, table string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]string
	for _, frag := range slices.Sorted(maps.Keys(m.partitions[tableKey(database, table)])) {
		out = append(out, frag.Values())
	}
	return out
}

// Partition returns a registered partition.
func (m *MockGlueClient) Partition(database, table string, values ...string) (types.Partition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[tableKey(database, table)][partition.NewFragment(values)]
	return p, ok
}

// GetTable implements API.GetTable for testing.
func (m *MockGlueClient) GetTable(_ context.Context, params *glue.GetTableInput, _ ...func(*glue.Options)) (*glue.GetTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[tableKey(aws.ToString(params.DatabaseName), aws.ToString(params.Name))]
	if !ok {
		return nil, &types.EntityNotFoundException{Message: aws.String("Table not found")}
	}
	return &glue.GetTableOutput{Table: &t}, nil
}

// GetTables implements API.GetTables for testing. It returns one table per
// page to exercise pagination.
func (m *MockGlueClient) GetTables(_ context.Context, params *glue.GetTablesInput, _ ...func(*glue.Options)) (*glue.GetTablesOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := aws.ToString(params.DatabaseName) + "."
	var names []string
	for key := range m.tables {
		if name, ok := strings.CutPrefix(key, prefix); ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, &types.EntityNotFoundException{Message: aws.String("Database not found")}
	}
	slices.Sort(names)

	i := 0
	if params.NextToken != nil {
		i = slices.Index(names, aws.ToString(params.NextToken))
	}
	out := &glue.GetTablesOutput{TableList: []types.Table{m.tables[prefix+names[i]]}}
	if i+1 < len(names) {
		out.NextToken = aws.String(names[i+1])
	}
	return out, nil
}

// GetPartitions implements API.GetPartitions for testing. Partitions are
// returned sorted by values, paginated by MaxResults (default 1000).
func (m *MockGlueClient) GetPartitions(_ context.Context, params *glue.GetPartitionsInput, _ ...func(*glue.Options)) (*glue.GetPartitionsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetPartitionsCalls++

	key := tableKey(aws.ToString(params.DatabaseName), aws.ToString(params.TableName))
	parts, ok := m.partitions[key]
	if !ok {
		return nil, &types.EntityNotFoundException{Message: aws.String("Table not found")}
	}

	var matched []types.Partition
	for _, frag := range slices.Sorted(maps.Keys(parts)) {
		p := parts[frag]
		if params.Expression != nil && m.FilterFunc != nil && !m.FilterFunc(*params.Expression, p.Values) {
			continue
		}
		matched = append(matched, p)
	}

	start := 0
	if params.NextToken != nil {
		start, _ = strconv.Atoi(aws.ToString(params.NextToken))
	}
	size := int(aws.ToInt32(params.MaxResults))
	if size <= 0 {
		size = 1000
	}
	end := min(start+size, len(matched))
	out := &glue.GetPartitionsOutput{Partitions: matched[start:end]}
	if end < len(matched) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// BatchCreatePartition implements API.BatchCreatePartition for testing.
// Existing partitions are reported as AlreadyExistsException entries.
func (m *MockGlueClient) BatchCreatePartition(_ context.Context, params *glue.BatchCreatePartitionInput, _ ...func(*glue.Options)) (*glue.BatchCreatePartitionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := make([][]string, len(params.PartitionInputList))
	for i, in := range params.PartitionInputList {
		batch[i] = in.Values
	}
	m.CreateBatches = append(m.CreateBatches, batch)
	if m.CreateFailOnCall > 0 && len(m.CreateBatches) >= m.CreateFailOnCall {
		return nil, &types.InternalServiceException{Message: aws.String("simulated create failure")}
	}

	key := tableKey(aws.ToString(params.DatabaseName), aws.ToString(params.TableName))
	parts, ok := m.partitions[key]
	if !ok {
		return nil, &types.EntityNotFoundException{Message: aws.String("Table not found")}
	}
	out := &glue.BatchCreatePartitionOutput{}
	for _, in := range params.PartitionInputList {
		frag := partition.NewFragment(in.Values)
		if _, exists := parts[frag]; exists || m.RejectValues[strings.Join(in.Values, "/")] {
			out.Errors = append(out.Errors, types.PartitionError{
				PartitionValues: in.Values,
				ErrorDetail: &types.ErrorDetail{
					ErrorCode:    aws.String("AlreadyExistsException"),
					ErrorMessage: aws.String("Partition already exists."),
				},
			})
			continue
		}
		parts[frag] = types.Partition{
			DatabaseName:      params.DatabaseName,
			TableName:         params.TableName,
			Values:            in.Values,
			StorageDescriptor: in.StorageDescriptor,
			CreationTime:      aws.Time(time.Unix(0, 0).UTC()),
		}
	}
	return out, nil
}

// BatchDeletePartition implements API.BatchDeletePartition for testing.
// Missing partitions are reported as EntityNotFoundException entries.
func (m *MockGlueClient) BatchDeletePartition(_ context.Context, params *glue.BatchDeletePartitionInput, _ ...func(*glue.Options)) (*glue.BatchDeletePartitionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := make([][]string, len(params.PartitionsToDelete))
	for i, v := range params.PartitionsToDelete {
		batch[i] = v.Values
	}
	m.DeleteBatches = append(m.DeleteBatches, batch)
	if m.DeleteFailOnCall > 0 && len(m.DeleteBatches) >= m.DeleteFailOnCall {
		return nil, &types.InternalServiceException{Message: aws.String("simulated delete failure")}
	}

	parts := m.partitions[tableKey(aws.ToString(params.DatabaseName), aws.ToString(params.TableName))]
	out := &glue.BatchDeletePartitionOutput{}
	for _, v := range params.PartitionsToDelete {
		frag := partition.NewFragment(v.Values)
		if _, exists := parts[frag]; !exists || m.RejectValues[strings.Join(v.Values, "/")] {
			out.Errors = append(out.Errors, types.PartitionError{
				PartitionValues: v.Values,
				ErrorDetail: &types.ErrorDetail{
					ErrorCode:    aws.String("EntityNotFoundException"),
					ErrorMessage: aws.String("Partition not found."),
				},
			})
			continue
		}
		delete(parts, frag)
	}
	return out, nil
}
