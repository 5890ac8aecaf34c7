package lakecat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/pithecene-io/lakecat/internal/partition"
)

// keyClass classifies an object key found under a table location.
type keyClass int

const (
	keyPartitioned   keyClass = iota // lies in a well-formed partition directory
	keyUnpartitioned                 // too shallow to carry a partition fragment
	keyMalformed                     // deep enough, but the fragment does not decode
	keyMarker                        // zero-length "directory" placeholder
)

// classifyKey reduces an object key to the partition fragment of the
// directory holding it. dir is the table's listing prefix (with trailing
// slash). Only the first len(keys) directory segments are considered; the
// final segment is the file name.
func classifyKey(key, dir string, keys []string) (partition.Fragment, keyClass) {
	rel, ok := strings.CutPrefix(key, dir)
	if !ok {
		return "", keyUnpartitioned
	}
	if rel == "" || strings.HasSuffix(rel, "/") {
		return "", keyMarker
	}

	segments := strings.Split(rel, "/")
	dirs := segments[:len(segments)-1]
	if len(dirs) < len(keys) {
		return "", keyUnpartitioned
	}

	values, ok := partition.DecodeSegments(dirs[:len(keys)], keys)
	if !ok {
		return "", keyMalformed
	}
	return partition.NewFragment(values), keyPartitioned
}

// storageScan is the partition view of a table's objects.
//
// Building it lists every object under the table, so its cost grows with the
// number of objects, not the number of partitions.
type storageScan struct {
	fragments partition.FragmentSet

	// strays are the sorted keys that belong to no well-formed partition.
	strays []string

	objects       int
	unpartitioned int
	malformed     int
}

// holds reports whether any stray object lies under loc.
func (s storageScan) holds(loc Location) bool {
	dir := loc.Dir()
	i, _ := slices.BinarySearch(s.strays, dir)
	return i < len(s.strays) && strings.HasPrefix(s.strays[i], dir)
}

func (c *Catalog) scanStorage(ctx context.Context, t *Table, loc Location) (storageScan, error) {
	var (
		scan = storageScan{fragments: partition.NewFragmentSet()}
		keys = t.PartitionKeyNames()
		dir  = loc.Dir()
		log  = c.tableLogger(t.Database, t.Name)
	)

	for page, err := range c.store.ListPages(ctx, loc.Bucket, dir) {
		if err != nil {
			return storageScan{}, fmt.Errorf("list objects under %s: %w", loc, err)
		}
		for _, key := range page {
			frag, class := classifyKey(key, dir, keys)
			switch class {
			case keyPartitioned:
				scan.objects++
				scan.fragments.Add(frag)
			case keyUnpartitioned:
				scan.objects++
				scan.unpartitioned++
				scan.strays = append(scan.strays, key)
			case keyMalformed:
				scan.objects++
				scan.malformed++
				scan.strays = append(scan.strays, key)
				log.Debug("skipping object outside a well-formed partition", slog.String("key", key))
			case keyMarker:
			}
		}
	}
	slices.Sort(scan.strays)
	return scan, nil
}
