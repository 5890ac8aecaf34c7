// Package reconcile diffs the partitions observed in storage against the
// partitions registered in a metadata catalog.
package reconcile

import "github.com/pithecene-io/lakecat/internal/partition"

// Result holds the two disjoint action sets of a reconciliation.
type Result struct {
	// Stale are registered in the catalog but have no data in storage.
	Stale partition.FragmentSet

	// New have data in storage but are not registered in the catalog.
	New partition.FragmentSet
}

// Empty reports whether no corrective action is needed.
func (r Result) Empty() bool {
	return len(r.Stale) == 0 && len(r.New) == 0
}

// Reconcile computes Stale = catalog - storage and New = storage - catalog.
// It performs no I/O and does not modify its inputs.
func Reconcile(storage, catalog partition.FragmentSet) Result {
	return Result{
		Stale: difference(catalog, storage),
		New:   difference(storage, catalog),
	}
}

func difference(a, b partition.FragmentSet) partition.FragmentSet {
	out := partition.NewFragmentSet()
	for f := range a {
		if !b.Has(f) {
			out.Add(f)
		}
	}
	return out
}
