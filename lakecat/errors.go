package lakecat

import (
	"errors"
	"fmt"
)

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a database, table or object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMalformedPartitionPath indicates a partition fragment or value
	// tuple that does not match the table's declared partition keys.
	ErrMalformedPartitionPath = errors.New("malformed partition path")

	// ErrUnsafeDeletion indicates an attempt to delete partition data at or
	// outside the table's base location.
	ErrUnsafeDeletion = errors.New("unsafe deletion: partition location is not under table location")

	// ErrBatchOperation matches every *BatchError.
	ErrBatchOperation = errors.New("batch operation failed")

	// ErrNotPartitioned indicates a partition operation on an unpartitioned table.
	ErrNotPartitioned = errors.New("table is not partitioned")

	// ErrInvalidLocation indicates a location that is not an object store URI.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrUnsupportedFormat indicates a file format no codec handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrUnsupportedOption indicates a read or write option the strategy
	// cannot honour.
	ErrUnsupportedOption = errors.New("unsupported option")

	// ErrSchemaViolation indicates a record that does not fit the table schema.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrInvalidFormat indicates a data file that cannot be decoded.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidPath indicates a path that would escape the storage root.
	ErrInvalidPath = errors.New("invalid path: escapes storage root")
)

// BatchError reports a chunked metadata or object-store call that failed.
// Chunks before Chunk were applied; Chunk and the ones after were not.
type BatchError struct {
	// Op names the batch call ("create partitions", "delete partitions",
	// "delete objects").
	Op string

	// Chunk is the zero-based index of the failing chunk.
	Chunk int

	// Chunks is the total number of chunks.
	Chunks int

	// Completed is the number of items applied before the failure.
	Completed int

	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: chunk %d/%d failed after %d items: %v", e.Op, e.Chunk+1, e.Chunks, e.Completed, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrBatchOperation) hold for every BatchError.
func (e *BatchError) Is(target error) bool { return target == ErrBatchOperation }
