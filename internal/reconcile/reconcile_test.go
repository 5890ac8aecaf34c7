package reconcile_test

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/pithecene-io/lakecat/internal/partition"
	"github.com/pithecene-io/lakecat/internal/reconcile"
)

func frags(tuples ...[]string) partition.FragmentSet {
	s := partition.NewFragmentSet()
	for _, t := range tuples {
		s.Add(partition.NewFragment(t))
	}
	return s
}

func TestReconcile_MixedDrift(t *testing.T) {
	storage := frags([]string{"2024", "01"}, []string{"2024", "02"}, []string{"2024", "03"})
	catalog := frags([]string{"2024", "01"}, []string{"2024", "02"}, []string{"2024", "04"})

	res := reconcile.Reconcile(storage, catalog)

	if len(res.Stale) != 1 || !res.Stale.Has(partition.NewFragment([]string{"2024", "04"})) {
		t.Errorf("Stale = %v, want {(2024,04)}", res.Stale.Sorted())
	}
	if len(res.New) != 1 || !res.New.Has(partition.NewFragment([]string{"2024", "03"})) {
		t.Errorf("New = %v, want {(2024,03)}", res.New.Sorted())
	}
}

func TestReconcile_EmptyStorage(t *testing.T) {
	catalog := frags([]string{"a"}, []string{"b"})

	res := reconcile.Reconcile(partition.NewFragmentSet(), catalog)

	if len(res.Stale) != 2 {
		t.Errorf("len(Stale) = %d, want 2", len(res.Stale))
	}
	if len(res.New) != 0 {
		t.Errorf("len(New) = %d, want 0", len(res.New))
	}
}

func TestReconcile_InSync(t *testing.T) {
	s := frags([]string{"a"}, []string{"b"})
	res := reconcile.Reconcile(s, frags([]string{"b"}, []string{"a"}))
	if !res.Empty() {
		t.Errorf("expected no actions, got stale=%v new=%v", res.Stale.Sorted(), res.New.Sorted())
	}
}

func TestReconcile_DoesNotMutateInputs(t *testing.T) {
	storage := frags([]string{"a"})
	catalog := frags([]string{"b"})
	_ = reconcile.Reconcile(storage, catalog)
	if len(storage) != 1 || len(catalog) != 1 {
		t.Error("inputs were modified")
	}
}

func TestProperty_ReconcileLaws(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	// Small alphabets force overlap between the two sides.
	value := gen.IntRange(2023, 2025).Map(func(v int) string { return strconv.Itoa(v) })
	tuple := gen.SliceOfN(2, value)
	toSet := func(tuples [][]string) partition.FragmentSet { return frags(tuples...) }

	properties.Property("stale and new follow the set-difference laws", prop.ForAll(
		func(s, c [][]string) bool {
			storage, catalog := toSet(s), toSet(c)
			res := reconcile.Reconcile(storage, catalog)

			for f := range res.Stale {
				// stale ⊆ C, stale ∩ S = ∅, stale ∩ new = ∅
				if !catalog.Has(f) || storage.Has(f) || res.New.Has(f) {
					return false
				}
			}
			for f := range res.New {
				// new ⊆ S, new ∩ C = ∅
				if !storage.Has(f) || catalog.Has(f) {
					return false
				}
			}
			// Every catalog member missing from storage is stale, and
			// every storage member missing from the catalog is new.
			for f := range catalog {
				if !storage.Has(f) && !res.Stale.Has(f) {
					return false
				}
			}
			for f := range storage {
				if !catalog.Has(f) && !res.New.Has(f) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(tuple),
		gen.SliceOf(tuple),
	))

	properties.Property("applying the result converges", prop.ForAll(
		func(s, c [][]string) bool {
			storage, catalog := toSet(s), toSet(c)
			res := reconcile.Reconcile(storage, catalog)

			repaired := partition.NewFragmentSet()
			for f := range catalog {
				if !res.Stale.Has(f) {
					repaired.Add(f)
				}
			}
			for f := range res.New {
				repaired.Add(f)
			}
			return reconcile.Reconcile(storage, repaired).Empty()
		},
		gen.SliceOf(tuple),
		gen.SliceOf(tuple),
	))

	properties.TestingRun(t)
}
