package paimon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"paimon-mirror/metrics"
	"paimon-mirror/paimonerr"
	"paimon-mirror/predicate"
	"paimon-mirror/stats"
	"paimon-mirror/storage"
)

// Commit publishes files, as returned by Write, in a new snapshot and
// returns its id.
//
// The steps run in order: manifest, manifest lists, snapshot file, then the
// LATEST pointer. LATEST is only replaced after everything it leads to has
// been written, so a failure at any step leaves readers on the previous
// snapshot. Files written by a failed commit are unreferenced and are
// overwritten or ignored by later commits.
//
// The first commit is the exception: until LATEST exists, readers fall back
// to listing snapshot files, so a crash between writing snapshot-1 and
// writing LATEST publishes snapshot-1 to them. The next commit builds on it.
//
// A LATEST that names a missing snapshot fails the commit rather than
// restarting ids. Commits assume a single writer per table.
func (t *Table) Commit(ctx context.Context, files []ManifestEntry) (id int64, err error) {
	if len(files) == 0 {
		return 0, paimonerr.ErrEmptyCommit
	}

	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.CommitsTotal.WithLabelValues(t.name, result).Inc()
		metrics.CommitDuration.Observe(time.Since(start).Seconds())
	}()

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, err := t.latestSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading previous snapshot: %w", err)
	}
	id = 1
	var prevTotal int64
	var base []ManifestFileMeta
	if prev != nil {
		id = prev.ID + 1
		prevTotal = prev.TotalRecordCount.OrElse(0)
		if base, err = readSnapshotManifests(ctx, t.fsys, t.pf, prev); err != nil {
			return 0, fmt.Errorf("reading manifests of snapshot %d: %w", prev.ID, err)
		}
	}

	seq := t.nextSeq
	entries := make([]ManifestEntry, len(files))
	var batch int64
	for i, f := range files {
		f.Kind = FileKindAdd
		f.File.MinSequenceNumber = seq
		f.File.MaxSequenceNumber = seq
		f.File.Level = 0
		f.File.SchemaID = t.schema.ID
		f.File.FileSource = Some(FileSourceAppend)
		seq++
		batch += f.File.RowCount
		entries[i] = f
	}

	commitID := uuid.NewString()

	manifest, err := t.writeManifest(ctx, commitID, entries)
	if err != nil {
		return 0, err
	}
	baseName, baseSize, err := t.writeManifestList(ctx, commitID, 0, base)
	if err != nil {
		return 0, err
	}
	deltaName, deltaSize, err := t.writeManifestList(ctx, commitID, 1, []ManifestFileMeta{manifest})
	if err != nil {
		return 0, err
	}

	snap := &Snapshot{
		Version:               Some(int32(CurrentSnapshotVersion)),
		ID:                    id,
		SchemaID:              t.schema.ID,
		BaseManifestList:      Some(baseName),
		BaseManifestListSize:  Some(baseSize),
		DeltaManifestList:     Some(deltaName),
		DeltaManifestListSize: Some(deltaSize),
		ChangelogManifestList: Null[string](),
		IndexManifest:         Null[string](),
		CommitUser:            Some(t.user),
		CommitIdentifier:      Some(id),
		CommitKind:            Some(CommitKindAppend),
		TimeMillis:            Some(t.now().UnixMilli()),
		LogOffsets:            Some(map[int32]int64{}),
		TotalRecordCount:      Some(prevTotal + batch),
		DeltaRecordCount:      Some(batch),
		ChangelogRecordCount:  Some(int64(0)),
		Watermark:             Null[int64](),
	}
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return 0, fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := storage.WriteFile(ctx, t.fsys, t.pf.SnapshotFilePath(id), data); err != nil {
		return 0, fmt.Errorf("writing snapshot %d: %w", id, err)
	}

	if err := storage.WriteFile(ctx, t.fsys, t.pf.LatestPath(), []byte(strconv.FormatInt(id, 10))); err != nil {
		return 0, fmt.Errorf("updating LATEST: %w", err)
	}
	t.nextSeq = seq

	// EARLIEST is advisory; the snapshot is already published.
	if err := t.ensureEarliest(ctx, id); err != nil {
		t.logger.Warn("failed to write EARLIEST", "snapshot_id", id, "error", err)
	}

	metrics.RecordsCommitted.WithLabelValues(t.name).Add(float64(batch))
	t.logger.Info("committed snapshot", "snapshot_id", id, "files", len(entries),
		"records", batch, "total_records", prevTotal+batch)
	return id, nil
}

func (t *Table) writeManifest(ctx context.Context, commitID string, entries []ManifestEntry) (ManifestFileMeta, error) {
	data, err := EncodeManifest(entries, t.codec)
	if err != nil {
		return ManifestFileMeta{}, err
	}
	p := t.pf.ManifestFilePath(commitID, 0)
	if err := storage.WriteFile(ctx, t.fsys, p, data); err != nil {
		return ManifestFileMeta{}, fmt.Errorf("writing manifest %s: %w", p, err)
	}

	meta := ManifestFileMeta{
		FileName:       ManifestFileName(commitID, 0),
		FileSize:       int64(len(data)),
		NumAddedFiles:  int64(len(entries)),
		PartitionStats: t.partitionStats(entries),
		SchemaID:       t.schema.ID,
	}
	minBucket, maxBucket := entries[0].Bucket, entries[0].Bucket
	minLevel, maxLevel := entries[0].File.Level, entries[0].File.Level
	for _, e := range entries[1:] {
		minBucket, maxBucket = min(minBucket, e.Bucket), max(maxBucket, e.Bucket)
		minLevel, maxLevel = min(minLevel, e.File.Level), max(maxLevel, e.File.Level)
	}
	meta.MinBucket, meta.MaxBucket = Some(minBucket), Some(maxBucket)
	meta.MinLevel, meta.MaxLevel = Some(minLevel), Some(maxLevel)
	return meta, nil
}

func (t *Table) writeManifestList(ctx context.Context, commitID string, i int, metas []ManifestFileMeta) (string, int64, error) {
	data, err := EncodeManifestList(metas, t.codec)
	if err != nil {
		return "", 0, err
	}
	p := t.pf.ManifestListFilePath(commitID, i)
	if err := storage.WriteFile(ctx, t.fsys, p, data); err != nil {
		return "", 0, fmt.Errorf("writing manifest list %s: %w", p, err)
	}
	return ManifestListFileName(commitID, i), int64(len(data)), nil
}

// partitionStats bounds the partition values of entries, one column per
// partition key. A value that does not map back to the key's type is
// observed as NaN, which leaves that key without bounds.
func (t *Table) partitionStats(entries []ManifestEntry) SimpleStats {
	keys := t.schema.PartitionKeys
	collector := stats.NewCollector(keys...)
	for _, e := range entries {
		row := make(map[string]any, len(keys))
		for i, k := range keys {
			if i >= len(e.Partition) || e.Partition[i] == predicate.DefaultPartitionName {
				continue
			}
			f, _ := t.schema.Field(k)
			v, ok := CoerceLiteral(f.Type, e.Partition[i])
			if !ok || f.Type.Root == TypeBinary {
				v = math.NaN()
			}
			row[k] = v
		}
		collector.ObserveRow(row)
	}
	return toSimpleStats(collector.Stats())
}

// ensureEarliest records id as the first snapshot unless EARLIEST exists.
func (t *Table) ensureEarliest(ctx context.Context, id int64) error {
	_, err := storage.ReadFile(ctx, t.fsys, t.pf.EarliestPath())
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return storage.WriteFile(ctx, t.fsys, t.pf.EarliestPath(), []byte(strconv.FormatInt(id, 10)))
}
