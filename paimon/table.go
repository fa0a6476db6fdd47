package paimon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hamba/avro/v2/ocf"

	"paimon-mirror/bucket"
	"paimon-mirror/paimonerr"
	"paimon-mirror/storage"
)

// TableOptions configure a Table handle.
type TableOptions struct {
	// Name labels metrics and logs; it defaults to the table root.
	Name string

	// Buckets is the bucket count the caller expects. Zero accepts the
	// stored count. A different non-zero count is refused because existing
	// rows would no longer hash to the buckets that hold them.
	Buckets int

	CommitUser          string
	ManifestCompression string
	Logger              *slog.Logger

	// Clock overrides time.Now for commit timestamps.
	Clock func() time.Time
}

// Table is a write handle on one table.
//
// A table has a single writer. Commits from two handles, in this process or
// another, race on the LATEST pointer and the loser's snapshot is silently
// replaced; callers must serialize writers themselves.
type Table struct {
	fsys    storage.Storage
	pf      PathFactory
	name    string
	schema  *Schema
	buckets *bucket.Manager
	format  FileFormat
	codec   ocf.CodecName
	user    string
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	nextSeq int64
}

// CreateTable writes schema-0 for a new table at root.
func CreateTable(ctx context.Context, fsys storage.Storage, root string, schema *Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	if _, err := schema.NumBuckets(); err != nil {
		return err
	}
	pf := NewPathFactory(root)
	ok, err := fsys.DirExists(ctx, pf.SchemaDir())
	if err != nil {
		return fmt.Errorf("checking %s: %w", pf.SchemaDir(), err)
	}
	if ok {
		return fmt.Errorf("%w: table %s", paimonerr.ErrAlreadyExists, root)
	}

	s := *schema
	s.ID = 0
	data, err := EncodeSchema(&s)
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	if err := fsys.MkdirAll(ctx, pf.SnapshotDir()); err != nil {
		return fmt.Errorf("creating %s: %w", pf.SnapshotDir(), err)
	}
	if err := storage.WriteFile(ctx, fsys, pf.SchemaFilePath(0), data); err != nil {
		return fmt.Errorf("writing schema: %w", err)
	}
	slog.Info("paimon: created table", "table", root, "fields", len(s.Fields),
		"partition_keys", s.PartitionKeys)
	return nil
}

// OpenTable opens root for writing with the latest schema.
func OpenTable(ctx context.Context, fsys storage.Storage, root string, opts TableOptions) (*Table, error) {
	schema, err := LatestSchema(ctx, fsys, root)
	if err != nil {
		return nil, err
	}
	n, err := schema.NumBuckets()
	if err != nil {
		return nil, err
	}
	if opts.Buckets != 0 && opts.Buckets != n {
		return nil, paimonerr.Unsupported("table %s has %d buckets, cannot reopen with %d", root, n, opts.Buckets)
	}
	bm, err := bucket.New(n)
	if err != nil {
		return nil, err
	}

	format := FormatParquet
	if v, ok := schema.Options[OptionFileFormat]; ok && v != "" {
		if format, err = ParseFileFormat(v); err != nil {
			return nil, err
		}
	}

	t := &Table{
		fsys:    fsys,
		pf:      NewPathFactory(root),
		name:    opts.Name,
		schema:  schema,
		buckets: bm,
		format:  format,
		codec:   ManifestCodec(opts.ManifestCompression),
		user:    opts.CommitUser,
		logger:  opts.Logger,
		now:     opts.Clock,
	}
	if t.name == "" {
		t.name = root
	}
	if t.user == "" {
		t.user = "paimon-mirror"
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("component", "paimon", "table", t.name)
	if t.now == nil {
		t.now = time.Now
	}

	if err := t.initSequence(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) Name() string { return t.name }
func (t *Table) Root() string { return t.pf.Root() }
func (t *Table) Schema() *Schema { return t.schema }
func (t *Table) Buckets() *bucket.Manager { return t.buckets }
func (t *Table) PathFactory() PathFactory { return t.pf }
func (t *Table) Storage() storage.Storage { return t.fsys }
func (t *Table) FileFormat() FileFormat { return t.format }

// Insert writes rows and commits them as one snapshot.
func (t *Table) Insert(ctx context.Context, rows []map[string]any) (int64, error) {
	files, err := t.Write(ctx, rows)
	if err != nil {
		return 0, err
	}
	return t.Commit(ctx, files)
}

// initSequence continues the sequence after the highest number recorded in
// the current snapshot's manifests.
func (t *Table) initSequence(ctx context.Context) error {
	snap, err := t.latestSnapshot(ctx)
	if err != nil || snap == nil {
		return err
	}
	entries, err := readSnapshotEntries(ctx, t.fsys, t.pf, snap)
	if err != nil {
		return fmt.Errorf("reading manifests of snapshot %d: %w", snap.ID, err)
	}
	for _, e := range entries {
		if e.File.MaxSequenceNumber >= t.nextSeq {
			t.nextSeq = e.File.MaxSequenceNumber + 1
		}
	}
	return nil
}

// latestSnapshot returns the snapshot LATEST names, or nil for a table
// without commits. A table counts as empty only when its snapshot directory
// is missing or holds neither LATEST nor snapshot files; a LATEST naming a
// missing snapshot is an error, since committing past it would reuse ids.
func (t *Table) latestSnapshot(ctx context.Context) (*Snapshot, error) {
	p, err := ResolveCurrentPath(ctx, t.fsys, t.pf.Root(), DefaultReadOptions())
	if errors.Is(err, paimonerr.ErrNotFound) {
		empty, emptyErr := t.hasNoSnapshots(ctx)
		if emptyErr != nil {
			return nil, emptyErr
		}
		if empty {
			return nil, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return readSnapshot(ctx, t.fsys, p)
}

func (t *Table) hasNoSnapshots(ctx context.Context) (bool, error) {
	dir := t.pf.SnapshotDir()
	ok, err := t.fsys.DirExists(ctx, dir)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	_, hasLatest, err := readPointer(ctx, t.fsys, t.pf.LatestPath())
	if err != nil || hasLatest {
		return false, err
	}
	ids, err := listSnapshotIDs(ctx, t.fsys, dir)
	if err != nil {
		return false, err
	}
	return len(ids) == 0, nil
}
