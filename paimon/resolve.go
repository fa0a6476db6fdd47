package paimon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"paimon-mirror/metrics"
	"paimon-mirror/paimonerr"
	"paimon-mirror/storage"
)

// ResolveCurrentPath returns the path of the snapshot file a read should
// start from.
//
// For version "latest" the LATEST pointer is used when present; otherwise
// the snapshot directory is listed and the highest snapshot id wins. An
// explicit version must name an existing snapshot file.
func ResolveCurrentPath(ctx context.Context, fsys storage.Storage, tableRoot string, opts ReadOptions) (string, error) {
	pf := NewPathFactory(tableRoot)
	dir := pf.SnapshotDir()

	ok, err := fsys.DirExists(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", dir, err)
	}
	if !ok {
		return "", &paimonerr.NotFoundError{What: "snapshot directory", Path: dir}
	}

	if v := opts.version(); !strings.EqualFold(v, "latest") {
		name := v
		if !strings.HasPrefix(name, snapshotPrefix) {
			name = snapshotPrefix + name
		}
		p := path.Join(dir, name)
		exists, err := fsys.Exists(ctx, p)
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", p, err)
		}
		if !exists {
			return "", &paimonerr.NotFoundError{What: "snapshot version " + v, Path: p}
		}
		return p, nil
	}

	name, ok, err := readPointer(ctx, fsys, pf.LatestPath())
	if err != nil {
		return "", err
	}
	if ok {
		p := path.Join(dir, name)
		exists, err := fsys.Exists(ctx, p)
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", p, err)
		}
		if !exists {
			return "", &paimonerr.NotFoundError{What: "snapshot named by LATEST", Path: p}
		}
		return p, nil
	}

	ids, err := listSnapshotIDs(ctx, fsys, dir)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", &paimonerr.NotFoundError{What: "snapshot file", Path: dir}
	}
	return pf.SnapshotFilePath(ids[len(ids)-1]), nil
}

// readPointer reads a LATEST/EARLIEST pointer. The content is either a
// snapshot file name or a bare snapshot id.
func readPointer(ctx context.Context, fsys storage.Storage, p string) (string, bool, error) {
	data, err := storage.ReadFile(ctx, fsys, p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", p, err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", false, nil
	}
	if isDigits(name) {
		name = snapshotPrefix + name
	}
	return name, true, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// listSnapshotIDs returns the ids of snapshot files in dir, ascending.
func listSnapshotIDs(ctx context.Context, fsys storage.Storage, dir string) ([]int64, error) {
	entries, err := fsys.List(ctx, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var ids []int64
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if id, ok := ParseSnapshotID(e.Name); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// DecodeSnapshot decodes a snapshot document. The root must be an object
// carrying an id.
func DecodeSnapshot(p string, data []byte) (*Snapshot, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, &paimonerr.ParseError{Path: p, Err: err}
	}
	if root == nil {
		return nil, &paimonerr.ParseError{Path: p, Err: errors.New("missing root object")}
	}
	if id, ok := root["id"]; !ok || bytes.Equal(bytes.TrimSpace(id), []byte("null")) {
		return nil, &paimonerr.ParseError{Path: p, Err: errors.New("missing required field id")}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &paimonerr.ParseError{Path: p, Err: err}
	}
	return &snap, nil
}

// EncodeSnapshot renders a snapshot document.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func readSnapshot(ctx context.Context, fsys storage.Storage, p string) (*Snapshot, error) {
	data, err := storage.ReadFile(ctx, fsys, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &paimonerr.NotFoundError{What: "snapshot file", Path: p}
	}
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(p, data)
}

// Parse reads the snapshot at p and builds TableMetadata holding just that
// snapshot. The schema comes from the embedded schema object, else the
// schema file named by schemaId, else DefaultSchema.
func Parse(ctx context.Context, fsys storage.Storage, p string, opts ReadOptions) (*TableMetadata, error) {
	snap, err := readSnapshot(ctx, fsys, p)
	if err != nil {
		return nil, err
	}

	root := path.Dir(path.Dir(p))
	schema, fromDefault, err := loadSnapshotSchema(ctx, fsys, NewPathFactory(root), snap)
	if err != nil {
		return nil, err
	}

	md := &TableMetadata{
		Location:          root,
		FormatVersion:     "1",
		Schema:            schema,
		Snapshots:         map[int64]*Snapshot{snap.ID: snap},
		Properties:        map[string]string{},
		Current:           snap,
		SchemaFromDefault: fromDefault,
		precedence:        opts.SequencePrecedence,
	}
	if v, ok := snap.Version.Get(); ok {
		md.FormatVersion = fmt.Sprint(v)
	}
	if props, ok := snap.Properties.Get(); ok {
		for k, v := range props {
			md.Properties[k] = v
		}
	}
	md.Properties["metadata.compression-codec"] = opts.codec()
	return md, nil
}

func loadSnapshotSchema(ctx context.Context, fsys storage.Storage, pf PathFactory, snap *Snapshot) (*Schema, bool, error) {
	if len(snap.Schema) > 0 && !bytes.Equal(bytes.TrimSpace(snap.Schema), []byte("null")) {
		s, err := DecodeSchema(snap.Schema)
		if err != nil {
			return nil, false, &paimonerr.ParseError{Path: pf.SnapshotFilePath(snap.ID), Err: fmt.Errorf("embedded schema: %w", err)}
		}
		return s, false, nil
	}

	p := pf.SchemaFilePath(snap.SchemaID)
	data, err := storage.ReadFile(ctx, fsys, p)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("paimon: schema file missing, using default schema",
			"schema_id", snap.SchemaID, "path", p)
		s := DefaultSchema()
		s.ID = snap.SchemaID
		return s, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	s, err := DecodeSchema(data)
	if err != nil {
		return nil, false, &paimonerr.ParseError{Path: p, Err: err}
	}
	return s, false, nil
}

// LatestSchema reads the schema file with the highest id.
func LatestSchema(ctx context.Context, fsys storage.Storage, tableRoot string) (*Schema, error) {
	pf := NewPathFactory(tableRoot)
	entries, err := fsys.List(ctx, pf.SchemaDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &paimonerr.NotFoundError{What: "schema directory", Path: pf.SchemaDir()}
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", pf.SchemaDir(), err)
	}
	latest := int64(-1)
	for _, e := range entries {
		if id, ok := parseSchemaID(e.Name); ok && !e.IsDir && id > latest {
			latest = id
		}
	}
	if latest < 0 {
		return nil, &paimonerr.NotFoundError{What: "schema file", Path: pf.SchemaDir()}
	}
	p := pf.SchemaFilePath(latest)
	data, err := storage.ReadFile(ctx, fsys, p)
	if err != nil {
		return nil, err
	}
	s, err := DecodeSchema(data)
	if err != nil {
		return nil, &paimonerr.ParseError{Path: p, Err: err}
	}
	return s, nil
}

// ResolveCurrent resolves the table's current snapshot, loads every
// committed snapshot into the store and applies the lookup mode of opts.
//
// Snapshot files with an id above the resolved one were never published by
// the pointer (for example after a crashed commit) and are ignored.
func ResolveCurrent(ctx context.Context, fsys storage.Storage, tableRoot string, opts ReadOptions) (*TableMetadata, error) {
	start := time.Now()
	defer func() { metrics.ResolveDuration.Observe(time.Since(start).Seconds()) }()

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	format, err := DetectFormat(ctx, fsys, tableRoot)
	if err != nil {
		return nil, err
	}
	if format == TableFormatIceberg {
		return nil, paimonerr.Unsupported("table %s is an Iceberg table", tableRoot)
	}

	// an id or timestamp lookup searches everything LATEST has published
	pathOpts := opts
	if opts.Mode() != LookupLatest {
		pathOpts.Version = "latest"
	}
	p, err := ResolveCurrentPath(ctx, fsys, tableRoot, pathOpts)
	if err != nil {
		return nil, err
	}
	md, err := Parse(ctx, fsys, p, opts)
	if err != nil {
		return nil, err
	}
	if err := loadSnapshotStore(ctx, fsys, md); err != nil {
		return nil, err
	}

	if opts.Mode() != LookupLatest {
		cur, err := md.GetCurrentSnapshot(opts)
		if err != nil {
			return nil, err
		}
		if cur.SchemaID != md.Current.SchemaID || len(cur.Schema) > 0 {
			schema, fromDefault, err := loadSnapshotSchema(ctx, fsys, NewPathFactory(md.Location), cur)
			if err != nil {
				return nil, err
			}
			md.Schema, md.SchemaFromDefault = schema, fromDefault
		}
		md.Current = cur
	}

	slog.Debug("paimon: resolved snapshot",
		"table", tableRoot, "snapshot_id", md.Current.ID, "mode", opts.Mode().String(),
		"snapshots", len(md.Snapshots))
	return md, nil
}

func loadSnapshotStore(ctx context.Context, fsys storage.Storage, md *TableMetadata) error {
	pf := NewPathFactory(md.Location)
	ids, err := listSnapshotIDs(ctx, fsys, pf.SnapshotDir())
	if err != nil {
		return err
	}

	var want []int64
	for _, id := range ids {
		if id < md.Current.ID {
			want = append(want, id)
		}
	}
	loaded := make([]*Snapshot, len(want))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range want {
		g.Go(func() error {
			snap, err := readSnapshot(gctx, fsys, pf.SnapshotFilePath(id))
			if err != nil {
				return err
			}
			loaded[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("loading snapshots: %w", err)
	}
	for _, s := range loaded {
		md.Snapshots[s.ID] = s
	}
	return nil
}
