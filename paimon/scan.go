package paimon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"paimon-mirror/metrics"
	"paimon-mirror/predicate"
	"paimon-mirror/stats"
	"paimon-mirror/storage"
)

// ScanFile is a live data file of a snapshot.
type ScanFile struct {
	// Path is the file's storage path.
	Path string
	ManifestEntry
}

// ListDataFiles returns the storage paths of the current snapshot's data
// files that may hold rows matching every filter.
func ListDataFiles(ctx context.Context, fsys storage.Storage, md *TableMetadata, filters []predicate.Filter) ([]string, error) {
	files, err := Scan(ctx, fsys, md, filters)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out, nil
}

// Scan plans a read of md.Current. Filters are conjuncts; a file is skipped
// only when its partition path or its statistics prove some filter cannot
// match. Snapshots without a readable manifest chain fall back to walking
// the bucket directories, where only partition pruning applies.
func Scan(ctx context.Context, fsys storage.Storage, md *TableMetadata, filters []predicate.Filter) ([]ScanFile, error) {
	pf := NewPathFactory(md.Location)
	filters = coerceFilters(md.Schema, filters)
	coerce := schemaCoercer(md.Schema)

	metas, err := readSnapshotManifests(ctx, fsys, pf, md.Current)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !hasManifestLists(md.Current)) {
		return walkDataFiles(ctx, fsys, md, filters, coerce)
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest lists of snapshot %d: %w", md.Current.ID, err)
	}

	kept := metas[:0:0]
	for _, m := range metas {
		if canEliminateManifest(md.Schema, m, filters) {
			metrics.FilesPruned.WithLabelValues("manifest").Inc()
			continue
		}
		kept = append(kept, m)
	}

	entries, err := readManifests(ctx, fsys, pf, kept)
	if err != nil {
		return nil, err
	}

	var out []ScanFile
	for _, e := range mergeEntries(entries) {
		metrics.FilesScanned.Inc()
		rel := e.RelPath(md.Schema.PartitionKeys)
		if canEliminatePath(rel, filters, coerce) {
			metrics.FilesPruned.WithLabelValues("partition").Inc()
			continue
		}
		if CanEliminateFile(md.Schema, e, filters) {
			metrics.FilesPruned.WithLabelValues("stats").Inc()
			continue
		}
		out = append(out, ScanFile{Path: path.Join(md.Location, rel), ManifestEntry: e})
	}
	return out, nil
}

// CanEliminateFile reports whether the value statistics of e prove that no
// row satisfies every filter. Filter constants must already be in the
// column's canonical form; Scan converts them.
func CanEliminateFile(schema *Schema, e ManifestEntry, filters []predicate.Filter) bool {
	if len(filters) == 0 {
		return false
	}
	src := e.File.ValueStats.StatsSource(schema, e.File.RowCount)
	for _, f := range filters {
		if predicate.CanEliminate(f, src) {
			return true
		}
	}
	return false
}

// canEliminateManifest uses partition statistics. Manifests that delete
// files are always read so deletions are never lost.
func canEliminateManifest(schema *Schema, m ManifestFileMeta, filters []predicate.Filter) bool {
	if len(filters) == 0 || len(schema.PartitionKeys) == 0 || m.NumDeletedFiles > 0 {
		return false
	}
	src := m.PartitionStats.StatsSource(schema, m.NumAddedFiles)
	for _, f := range filters {
		if predicate.CanEliminate(f, src) {
			return true
		}
	}
	return false
}

func canEliminatePath(rel string, filters []predicate.Filter, coerce predicate.Coercer) bool {
	for _, f := range filters {
		if predicate.CanEliminatePartition(rel, f, coerce) {
			return true
		}
	}
	return false
}

func schemaCoercer(schema *Schema) predicate.Coercer {
	return func(column, raw string) (any, bool) {
		f, ok := schema.Field(column)
		if !ok {
			return nil, false
		}
		return CoerceLiteral(f.Type, raw)
	}
}

// coerceFilters converts comparison constants to the canonical value of
// their column's type. Constants that do not convert are left alone; they
// compare as incomparable and never prune.
func coerceFilters(schema *Schema, filters []predicate.Filter) []predicate.Filter {
	out := make([]predicate.Filter, len(filters))
	for i, f := range filters {
		out[i] = coerceFilter(schema, f)
	}
	return out
}

func coerceFilter(schema *Schema, f predicate.Filter) predicate.Filter {
	switch x := f.(type) {
	case predicate.Comparison:
		field, ok := schema.Field(x.Column)
		if !ok {
			return x
		}
		if field.Type.Root == TypeFloat || field.Type.Root == TypeDouble {
			return coerceFloatComparison(field.Type, x)
		}
		if v, ok := CoerceLiteral(field.Type, x.Value); ok {
			x.Value = v
		}
		return x
	case predicate.And:
		return predicate.And{Children: coerceFilters(schema, x.Children)}
	case predicate.Or:
		return predicate.Or{Children: coerceFilters(schema, x.Children)}
	default:
		return f
	}
}

// coerceFloatComparison rewrites a comparison against a FLOAT or DOUBLE
// column so that it holds for every reading of its constant (see
// floatRange). An equality becomes a closed range.
func coerceFloatComparison(t DataType, c predicate.Comparison) predicate.Filter {
	lo, hi, ok := floatRange(t, c.Value)
	if !ok {
		return c
	}
	switch c.Op {
	case predicate.OpGt, predicate.OpGtEq:
		c.Value = lo
	case predicate.OpLt, predicate.OpLtEq:
		c.Value = hi
	case predicate.OpEq:
		if cmp, ok := stats.Compare(lo, hi); ok && cmp == 0 {
			c.Value = lo
			return c
		}
		return predicate.And{Children: []predicate.Filter{
			predicate.GtEq(c.Column, lo),
			predicate.LtEq(c.Column, hi),
		}}
	}
	return c
}

func hasManifestLists(snap *Snapshot) bool {
	return snap.BaseManifestList.IsSet() || snap.DeltaManifestList.IsSet()
}

// readSnapshotManifests returns the manifests of snap: its base list
// followed by its delta list.
func readSnapshotManifests(ctx context.Context, fsys storage.Storage, pf PathFactory, snap *Snapshot) ([]ManifestFileMeta, error) {
	var out []ManifestFileMeta
	for _, list := range []Optional[string]{snap.BaseManifestList, snap.DeltaManifestList} {
		name, ok := list.Get()
		if !ok || name == "" {
			continue
		}
		data, err := storage.ReadFile(ctx, fsys, pf.ManifestPath(name))
		if err != nil {
			return nil, err
		}
		metas, err := DecodeManifestList(data)
		if err != nil {
			return nil, fmt.Errorf("manifest list %s: %w", name, err)
		}
		out = append(out, metas...)
	}
	return out, nil
}

// SnapshotManifests returns the manifest files of md.Current, base list
// first.
func SnapshotManifests(ctx context.Context, fsys storage.Storage, md *TableMetadata) ([]ManifestFileMeta, error) {
	return readSnapshotManifests(ctx, fsys, NewPathFactory(md.Location), md.Current)
}

// ReadManifest decodes one manifest file of the table at md.Location.
func ReadManifest(ctx context.Context, fsys storage.Storage, md *TableMetadata, name string) ([]ManifestEntry, error) {
	entries, err := readManifests(ctx, fsys, NewPathFactory(md.Location), []ManifestFileMeta{{FileName: name}})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// readManifests reads manifests concurrently and returns their entries in
// manifest order.
func readManifests(ctx context.Context, fsys storage.Storage, pf PathFactory, metas []ManifestFileMeta) ([]ManifestEntry, error) {
	results := make([][]ManifestEntry, len(metas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, m := range metas {
		g.Go(func() error {
			data, err := storage.ReadFile(gctx, fsys, pf.ManifestPath(m.FileName))
			if err != nil {
				return fmt.Errorf("reading manifest %s: %w", m.FileName, err)
			}
			entries, err := DecodeManifest(data)
			if err != nil {
				return fmt.Errorf("manifest %s: %w", m.FileName, err)
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []ManifestEntry
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// readSnapshotEntries returns the live files of snap.
func readSnapshotEntries(ctx context.Context, fsys storage.Storage, pf PathFactory, snap *Snapshot) ([]ManifestEntry, error) {
	metas, err := readSnapshotManifests(ctx, fsys, pf, snap)
	if err != nil {
		return nil, err
	}
	entries, err := readManifests(ctx, fsys, pf, metas)
	if err != nil {
		return nil, err
	}
	return mergeEntries(entries), nil
}

// mergeEntries applies DELETE entries to earlier ADD entries of the same
// file and returns the surviving ADDs in first-seen order.
func mergeEntries(entries []ManifestEntry) []ManifestEntry {
	live := make(map[string]int, len(entries))
	var out []ManifestEntry
	for _, e := range entries {
		id := e.identifier()
		switch e.Kind {
		case FileKindAdd:
			live[id] = len(out)
			out = append(out, e)
		case FileKindDelete:
			if i, ok := live[id]; ok {
				out[i].Kind = FileKindDelete
				delete(live, id)
			}
		}
	}
	merged := out[:0]
	for _, e := range out {
		if e.Kind == FileKindAdd {
			merged = append(merged, e)
		}
	}
	return merged
}

// walkDataFiles lists data files directly under the bucket directories of
// the table, descending through "k=v" partition directories.
func walkDataFiles(ctx context.Context, fsys storage.Storage, md *TableMetadata, filters []predicate.Filter, coerce predicate.Coercer) ([]ScanFile, error) {
	var out []ScanFile
	var walk func(dir, rel string, depth int) error
	walk = func(dir, rel string, depth int) error {
		entries, err := fsys.List(ctx, dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, e := range entries {
			child := path.Join(rel, e.Name)
			switch {
			case e.IsDir && strings.HasPrefix(e.Name, bucketPrefix):
				if err := walk(path.Join(dir, e.Name), child, depth+1); err != nil {
					return err
				}
			case e.IsDir && strings.Contains(e.Name, "=") && depth <= len(md.Schema.PartitionKeys):
				if err := walk(path.Join(dir, e.Name), child, depth+1); err != nil {
					return err
				}
			case !e.IsDir && strings.HasPrefix(path.Base(rel), bucketPrefix):
				format, ok := DetectFileFormat(e.Name)
				if !ok || format == FormatAvro {
					continue
				}
				metrics.FilesScanned.Inc()
				if canEliminatePath(child, filters, coerce) {
					metrics.FilesPruned.WithLabelValues("partition").Inc()
					continue
				}
				out = append(out, ScanFile{
					Path:          path.Join(md.Location, child),
					ManifestEntry: ManifestEntry{Kind: FileKindAdd, File: DataFileMeta{FileName: e.Name}},
				})
			}
		}
		return nil
	}
	if err := walk(md.Location, "", 0); err != nil {
		return nil, err
	}
	return out, nil
}
