package lakecat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pithecene-io/lakecat/internal/partition"
	"github.com/pithecene-io/lakecat/internal/reconcile"
)

// RepairStage is a step of RepairTable.
type RepairStage int

// Repair stages in execution order.
const (
	StageScanningStorage RepairStage = iota
	StageScanningCatalog
	StageReconciling
	StageDeletingStale
	StageCreatingNew
	StageDone
)

var stageNames = [...]string{
	StageScanningStorage: "SCANNING_STORAGE",
	StageScanningCatalog: "SCANNING_CATALOG",
	StageReconciling:     "RECONCILING",
	StageDeletingStale:   "DELETING_STALE",
	StageCreatingNew:     "CREATING_NEW",
	StageDone:            "DONE",
}

func (s RepairStage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("RepairStage(%d)", int(s))
	}
	return stageNames[s]
}

// RepairReport describes what RepairTable observed and changed.
type RepairReport struct {
	// Deleted are the partitions removed from the catalog because no object
	// lies under them.
	Deleted []Partition

	// Created are the partitions registered because objects lie under them.
	Created []Partition

	// ObjectsScanned counts the data objects listed under the table
	// location. Directory markers are not counted.
	ObjectsScanned int

	// UnpartitionedObjects counts objects too shallow to belong to a
	// partition, such as files directly under the table location.
	UnpartitionedObjects int

	// MalformedObjects counts objects whose directories do not decode
	// against the partition keys. They were skipped.
	MalformedObjects int

	// MalformedCatalogEntries counts catalog partitions whose value tuple
	// does not match the partition keys. They were skipped.
	MalformedCatalogEntries int

	// ForeignLocations counts catalog partitions located outside the table
	// location. They are never deleted by a repair.
	ForeignLocations int

	// OccupiedLocations counts catalog partitions that have no Hive
	// directory with data but whose own location, outside the Hive layout,
	// holds objects. They are kept.
	OccupiedLocations int
}

// Changed reports whether the repair modified the catalog.
func (r *RepairReport) Changed() bool {
	return len(r.Deleted) > 0 || len(r.Created) > 0
}

// RepairTable makes the catalog's partitions match the partition
// directories holding data: registered partitions without objects are
// deleted and directories with objects are registered.
//
// The storage scan lists every object under the table location. There is no
// rollback: a failure while deleting or creating leaves the table partially
// repaired, and running RepairTable again completes the remaining work.
// Unpartitioned tables are left untouched.
func (c *Catalog) RepairTable(ctx context.Context, database, table string) (*RepairReport, error) {
	t, err := c.Table(ctx, database, table)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{}
	log := c.tableLogger(database, table)
	if !t.Partitioned() {
		log.Info("table has no partition keys, nothing to repair")
		return report, nil
	}

	loc, err := ParseLocation(t.Location)
	if err != nil {
		return nil, fmt.Errorf("repair %s.%s: %w", database, table, err)
	}
	fail := func(stage RepairStage, err error) (*RepairReport, error) {
		return report, fmt.Errorf("repair %s.%s: %s: %w", database, table, stage, err)
	}
	enter := func(stage RepairStage, attrs ...any) {
		log.Info("repair stage", append([]any{slog.String("stage", stage.String())}, attrs...)...)
	}

	enter(StageScanningStorage, slog.String("location", loc.String()))
	scan, err := c.scanStorage(ctx, t, loc)
	if err != nil {
		return fail(StageScanningStorage, err)
	}
	report.ObjectsScanned = scan.objects
	report.UnpartitionedObjects = scan.unpartitioned
	report.MalformedObjects = scan.malformed

	enter(StageScanningCatalog, slog.Int("storage_partitions", len(scan.fragments)))
	listing, err := c.listPartitions(ctx, t, "")
	if err != nil {
		return fail(StageScanningCatalog, err)
	}
	report.ForeignLocations = len(listing.foreign)

	keyCount := len(t.PartitionKeys)
	registered := partition.NewFragmentSet()
	byFragment := make(map[partition.Fragment]Partition, len(listing.partitions))
	for _, p := range listing.partitions {
		if len(p.Values) != keyCount {
			report.MalformedCatalogEntries++
			log.Debug("skipping catalog partition with mismatched values",
				slog.String("partition", p.Name), slog.Int("values", len(p.Values)))
			continue
		}
		frag := partition.NewFragment(p.Values)
		registered.Add(frag)
		if _, dup := byFragment[frag]; !dup {
			byFragment[frag] = p
		}
	}

	enter(StageReconciling, slog.Int("catalog_partitions", len(registered)))
	result := reconcile.Reconcile(scan.fragments, registered)

	if report.MalformedObjects > 0 || report.MalformedCatalogEntries > 0 {
		log.Warn("skipped malformed partitions",
			slog.Int("objects", report.MalformedObjects),
			slog.Int("catalog_entries", report.MalformedCatalogEntries))
	}

	var stale []Partition
	for _, frag := range result.Stale.Sorted() {
		p := byFragment[frag]
		if listing.isForeign(p) {
			continue
		}
		if ploc, err := ParseLocation(p.Location); err == nil && scan.holds(ploc) {
			report.OccupiedLocations++
			log.Debug("keeping partition whose location holds objects",
				slog.String("partition", p.Name), slog.String("location", p.Location))
			continue
		}
		stale = append(stale, p)
	}
	enter(StageDeletingStale, slog.Int("count", len(stale)))
	if len(stale) > 0 {
		values := make([][]string, len(stale))
		for i, p := range stale {
			values[i] = p.Values
		}
		if err := c.deleteBatch(ctx, t, values); err != nil {
			return fail(StageDeletingStale, err)
		}
		report.Deleted = stale
	}

	var fresh []Partition
	for _, frag := range result.New.Sorted() {
		fresh = append(fresh, t.partitionFor(frag.Values()))
	}
	enter(StageCreatingNew, slog.Int("count", len(fresh)))
	if len(fresh) > 0 {
		if err := c.createBatch(ctx, t, fresh); err != nil {
			return fail(StageCreatingNew, err)
		}
		report.Created = fresh
	}

	enter(StageDone,
		slog.Int("deleted", len(report.Deleted)),
		slog.Int("created", len(report.Created)))
	return report, nil
}
