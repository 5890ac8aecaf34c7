package lakecat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

const storePageSize = 1000

// -----------------------------------------------------------------------------
// Filesystem Store
// -----------------------------------------------------------------------------

// fsStore implements ObjectStore on a local directory tree. Each bucket is a
// first-level directory of the root and keys are slash-separated paths
// below it.
type fsStore struct {
	root string
}

// NewFS creates a filesystem-backed ObjectStore rooted at the given
// directory. The directory must exist.
func NewFS(root string) (ObjectStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, os.ErrNotExist
	}
	return &fsStore{root: root}, nil
}

// ListPages lists files in key order. A bucket that does not exist lists
// nothing.
func (f *fsStore) ListPages(_ context.Context, bucket, prefix string) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		bucketDir, err := f.bucketDir(bucket)
		if err != nil {
			yield(nil, err)
			return
		}
		// Walk from the deepest directory the prefix names.
		start := bucketDir
		if i := strings.LastIndex(prefix, "/"); i >= 0 {
			if start, err = safeJoin(bucketDir, prefix[:i]); err != nil {
				yield(nil, err)
				return
			}
		}

		var keys []string
		err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(bucketDir, path)
			if err != nil {
				return err
			}
			if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
			return
		}
		slices.Sort(keys)
		pages(keys, yield)
	}
}

func (f *fsStore) DeleteObjects(_ context.Context, bucket string, keys []string) error {
	bucketDir, err := f.bucketDir(bucket)
	if err != nil {
		return err
	}
	for _, key := range keys {
		path, err := safeFile(bucketDir, key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		pruneEmptyDirs(bucketDir, filepath.Dir(path))
	}
	return nil
}

func (f *fsStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	bucketDir, err := f.bucketDir(bucket)
	if err != nil {
		return nil, err
	}
	path, err := safeFile(bucketDir, key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

// Put writes through a temporary file renamed into place, so readers never
// see a partial object.
func (f *fsStore) Put(_ context.Context, bucket, key string, r io.Reader) (err error) {
	bucketDir, err := f.bucketDir(bucket)
	if err != nil {
		return err
	}
	path, err := safeFile(bucketDir, key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *fsStore) bucketDir(bucket string) (string, error) {
	if bucket == "" || bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return "", ErrInvalidPath
	}
	return filepath.Join(f.root, bucket), nil
}

// safeJoin resolves a relative slash path under base, rejecting paths that
// would escape it.
func safeJoin(base, rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == "." {
		return base, nil
	}
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(base, cleaned), nil
}

// safeFile is safeJoin for an object key, which must name a file.
func safeFile(base, key string) (string, error) {
	if key == "" || strings.HasSuffix(key, "/") {
		return "", ErrInvalidPath
	}
	path, err := safeJoin(base, key)
	if err != nil {
		return "", err
	}
	if path == base {
		return "", ErrInvalidPath
	}
	return path, nil
}

// pruneEmptyDirs removes dir and its empty parents up to, not including, stop.
func pruneEmptyDirs(stop, dir string) {
	for dir != stop && strings.HasPrefix(dir, stop+string(filepath.Separator)) {
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

// memoryStore implements ObjectStore using an in-memory map.
type memoryStore struct {
	mu       sync.RWMutex
	buckets  map[string]map[string][]byte
	pageSize int
}

// NewMemory creates an in-memory ObjectStore that lists pageSize keys per
// page (1000 when pageSize is not positive). It is safe for concurrent use.
func NewMemory(pageSize int) ObjectStore {
	if pageSize <= 0 {
		pageSize = storePageSize
	}
	return &memoryStore{
		buckets:  make(map[string]map[string][]byte),
		pageSize: pageSize,
	}
}

func (m *memoryStore) ListPages(_ context.Context, bucket, prefix string) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		m.mu.RLock()
		var keys []string
		for key := range m.buckets[bucket] {
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
		m.mu.RUnlock()

		slices.Sort(keys)
		for page := range slices.Chunk(keys, m.pageSize) {
			if !yield(page, nil) {
				return
			}
		}
	}
}

func (m *memoryStore) DeleteObjects(_ context.Context, bucket string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.buckets[bucket], key)
	}
	return nil
}

func (m *memoryStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.buckets[bucket][key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (m *memoryStore) Put(_ context.Context, bucket, key string, r io.Reader) error {
	if bucket == "" || key == "" {
		return ErrInvalidPath
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string][]byte)
	}
	m.buckets[bucket][key] = data
	return nil
}

// pages yields keys in pages of storePageSize.
func pages(keys []string, yield func([]string, error) bool) {
	for page := range slices.Chunk(keys, storePageSize) {
		if !yield(page, nil) {
			return
		}
	}
}
