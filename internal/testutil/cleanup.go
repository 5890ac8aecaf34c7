// Package testutil provides helpers for examples and tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempLake creates a temporary root for the filesystem object store with one
// directory per bucket. The returned cleanup removes the root and ignores
// errors.
//
// Usage:
//
//	root, cleanup, err := testutil.TempLake("lake")
//	defer cleanup()
func TempLake(buckets ...string) (string, func(), error) {
	root, err := os.MkdirTemp("", "lakecat-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(root) }
	for _, b := range buckets {
		if err := os.Mkdir(filepath.Join(root, b), 0o755); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("failed to create bucket %q: %w", b, err)
		}
	}
	return root, cleanup, nil
}
