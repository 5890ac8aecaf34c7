// Package s3 provides the S3 object store adapter for lakecat.
//
// This adapter supports AWS S3, MinIO, LocalStack and other S3-compatible
// object stores.
//
// # S3-Specific Limits
//
//   - ListObjectsV2 returns at most 1000 keys per page.
//   - DeleteObjects accepts at most 1000 keys per call; the catalog chunks
//     deletions to that bound.
//
// # Consistency
//
// AWS S3 provides strong read-after-write consistency (since Dec 2020), so a
// repair that follows a write sees the written objects. Other S3-compatible
// backends may differ.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/lakecat/lakecat"
)

// MaxDeleteKeys is the DeleteObjects limit in S3.
const MaxDeleteKeys = 1000

// API defines the subset of the S3 client interface used by the store.
// This enables testing with mock implementations.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds configuration for the S3 store.
type Config struct {
	// PageSize caps the keys per ListObjectsV2 page. Zero uses the service
	// default of 1000.
	PageSize int32
}

// Store implements lakecat.ObjectStore using an S3-compatible backend.
type Store struct {
	client     API
	pageSize   int32
	createTemp func() (*os.File, error) // temp file factory for Put spooling
}

var _ lakecat.ObjectStore = (*Store)(nil)

// New creates a new S3 store with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint.
// Use github.com/aws/aws-sdk-go-v2/config to load configuration.
//
// Example:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	store, err := s3store.New(client, s3store.Config{})
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.PageSize < 0 || cfg.PageSize > 1000 {
		return nil, fmt.Errorf("s3: page size must be between 1 and 1000, got %d", cfg.PageSize)
	}
	return &Store{
		client:     client,
		pageSize:   cfg.PageSize,
		createTemp: func() (*os.File, error) { return os.CreateTemp("", "lakecat-s3-*") },
	}, nil
}

// ListPages yields the keys under prefix one ListObjectsV2 page at a time.
// Each iteration of the sequence starts a new listing.
func (s *Store) ListPages(ctx context.Context, bucket, prefix string) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		var continuationToken *string
		for {
			in := &s3.ListObjectsV2Input{
				Bucket:            aws.String(bucket),
				Prefix:            aws.String(prefix),
				ContinuationToken: continuationToken,
			}
			if s.pageSize > 0 {
				in.MaxKeys = aws.Int32(s.pageSize)
			}
			out, err := s.client.ListObjectsV2(ctx, in)
			if err != nil {
				if isNotFound(err) {
					err = fmt.Errorf("%w: %w", lakecat.ErrNotFound, err)
				}
				yield(nil, fmt.Errorf("s3: list objects: %w", err))
				return
			}

			keys := make([]string, 0, len(out.Contents))
			for _, obj := range out.Contents {
				if obj.Key != nil {
					keys = append(keys, *obj.Key)
				}
			}
			if len(keys) > 0 && !yield(keys, nil) {
				return
			}

			if !aws.ToBool(out.IsTruncated) {
				return
			}
			continuationToken = out.NextContinuationToken
		}
	}
}

// DeleteObjects deletes up to MaxDeleteKeys keys in one call. Missing keys
// are not an error. Any key S3 reports as failed fails the whole call.
func (s *Store) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) > MaxDeleteKeys {
		return fmt.Errorf("s3: delete objects: %d keys exceeds limit of %d", len(keys), MaxDeleteKeys)
	}

	ids := make([]types.ObjectIdentifier, len(keys))
	for i, key := range keys {
		ids[i] = types.ObjectIdentifier{Key: aws.String(key)}
	}
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("s3: delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return fmt.Errorf("s3: delete objects: %d of %d keys failed, first %s: %s %s",
			len(out.Errors), len(keys), aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message))
	}
	return nil
}

// Get retrieves an object.
// Returns lakecat.ErrNotFound if the object does not exist.
func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, lakecat.ErrNotFound
		}
		return nil, fmt.Errorf("s3: get object: %w", err)
	}
	return out.Body, nil
}

// Put writes an object, replacing any existing one. The payload is spooled
// to a temp file so the upload body is seekable and memory use stays flat.
func (s *Store) Put(ctx context.Context, bucket, key string, r io.Reader) error {
	if key == "" || strings.HasSuffix(key, "/") {
		return lakecat.ErrInvalidPath
	}

	tmpFile, err := s.createTemp()
	if err != nil {
		return fmt.Errorf("s3: creating temp file: %w", err)
	}
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
	}()

	size, err := io.Copy(tmpFile, r)
	if err != nil {
		return fmt.Errorf("s3: writing temp file: %w", err)
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("s3: seeking temp file: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          tmpFile,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("s3: put object: %w", err)
	}
	return nil
}

// isNotFound checks if an error indicates the object or bucket was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "NoSuchBucket" || code == "404"
	}
	return false
}

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

// MockS3Client is a test double for API. Buckets are created on first put.
type MockS3Client struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte

	// Call counters for test assertions
	ListObjectsV2Calls int
	DeleteObjectsCalls int
	PutObjectCalls     int

	// DeleteBatches records the keys of every DeleteObjects call in order.
	DeleteBatches [][]string

	// FailKeys makes DeleteObjects report these keys as failed.
	FailKeys map[string]bool

	// DeleteObjectsFailOnCall fails the Nth DeleteObjects call.
	// Set to 0 to disable (default).
	DeleteObjectsFailOnCall int
}

// NewMockS3Client creates a new mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{buckets: make(map[string]map[string][]byte)}
}

// Seed creates the bucket and stores objects without counting calls. Keys
// ending in "/" model directory markers.
func (m *MockS3Client) Seed(bucket string, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(bucket)
	for _, key := range keys {
		b[key] = []byte(key)
	}
}

// Keys returns the sorted keys of a bucket.
func (m *MockS3Client) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for key := range m.buckets[bucket] {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func (m *MockS3Client) bucket(name string) map[string][]byte {
	b, ok := m.buckets[name]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[name] = b
	}
	return b
}

// PutObject implements API.PutObject for testing.
func (m *MockS3Client) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutObjectCalls++
	m.bucket(aws.ToString(params.Bucket))[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

// GetObject implements API.GetObject for testing.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.RLock()
	b, ok := m.buckets[aws.ToString(params.Bucket)]
	var data []byte
	var exists bool
	if ok {
		data, exists = b[aws.ToString(params.Key)]
	}
	m.mu.RUnlock()

	if !ok {
		return nil, &types.NoSuchBucket{}
	}
	if !exists {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

// DeleteObjects implements API.DeleteObjects for testing.
func (m *MockS3Client) DeleteObjects(_ context.Context, params *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteObjectsCalls++
	if m.DeleteObjectsFailOnCall > 0 && m.DeleteObjectsCalls >= m.DeleteObjectsFailOnCall {
		return nil, &smithyAPIError{code: "InternalError", message: "simulated delete failure"}
	}

	b := m.buckets[aws.ToString(params.Bucket)]
	var batch []string
	out := &s3.DeleteObjectsOutput{}
	for _, id := range params.Delete.Objects {
		key := aws.ToString(id.Key)
		batch = append(batch, key)
		if m.FailKeys[key] {
			out.Errors = append(out.Errors, types.Error{
				Key:     aws.String(key),
				Code:    aws.String("AccessDenied"),
				Message: aws.String("Access Denied"),
			})
			continue
		}
		delete(b, key)
		if !aws.ToBool(params.Delete.Quiet) {
			out.Deleted = append(out.Deleted, types.DeletedObject{Key: aws.String(key)})
		}
	}
	m.DeleteBatches = append(m.DeleteBatches, batch)
	return out, nil
}

// ListObjectsV2 implements API.ListObjectsV2 for testing. Keys are returned
// in lexical order, paginated by MaxKeys (default 1000); the continuation
// token is the last key of the previous page.
func (m *MockS3Client) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	after := aws.ToString(params.ContinuationToken)
	maxKeys := int(aws.ToInt32(params.MaxKeys))
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	m.mu.Lock()
	m.ListObjectsV2Calls++
	b, ok := m.buckets[aws.ToString(params.Bucket)]
	var keys []string
	for key := range b {
		if strings.HasPrefix(key, prefix) && key > after {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()

	if !ok {
		return nil, &types.NoSuchBucket{}
	}
	slices.Sort(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > maxKeys {
		keys = keys[:maxKeys]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	out.KeyCount = aws.Int32(int32(len(keys)))
	return out, nil
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}
