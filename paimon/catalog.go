package paimon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"paimon-mirror/storage"
)

const databaseSuffix = ".db"

// TableInfo describes a table found in a warehouse.
type TableInfo struct {
	Database    string
	Name        string
	Path        string
	Format      TableFormat
	HasSnapshot bool
	HasManifest bool
	HasData     bool
}

// QualifiedName is "database.table".
func (t TableInfo) QualifiedName() string { return t.Database + "." + t.Name }

// Catalog is the set of tables under a warehouse root, laid out as
// "<database>.db/<table>". Tables are discovered once, when the catalog is
// built.
type Catalog struct {
	fsys      storage.Storage
	warehouse string
	tables    []TableInfo
}

func NewCatalog(ctx context.Context, fsys storage.Storage, warehouse string) (*Catalog, error) {
	c := &Catalog{fsys: fsys, warehouse: strings.Trim(warehouse, "/")}
	if err := c.discover(ctx); err != nil {
		return nil, err
	}
	slog.Debug("paimon: attached warehouse", "warehouse", warehouse, "tables", len(c.tables))
	return c, nil
}

func (c *Catalog) Tables() []TableInfo { return c.tables }

// Table looks a table up by database and name.
func (c *Catalog) Table(database, name string) (TableInfo, bool) {
	for _, t := range c.tables {
		if t.Database == database && t.Name == name {
			return t, true
		}
	}
	return TableInfo{}, false
}

// TablePath is where a table named database.name lives in the warehouse,
// whether or not it exists yet.
func (c *Catalog) TablePath(database, name string) string {
	return path.Join(c.warehouse, database+databaseSuffix, name)
}

func (c *Catalog) discover(ctx context.Context) error {
	dbs, err := c.fsys.List(ctx, c.warehouse)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("listing warehouse %s: %w", c.warehouse, err)
	}
	for _, db := range dbs {
		if !db.IsDir || !strings.HasSuffix(db.Name, databaseSuffix) {
			continue
		}
		dbName := strings.TrimSuffix(db.Name, databaseSuffix)
		tables, err := c.fsys.List(ctx, path.Join(c.warehouse, db.Name))
		if err != nil {
			return fmt.Errorf("listing database %s: %w", dbName, err)
		}
		for _, t := range tables {
			if !t.IsDir {
				continue
			}
			info, ok, err := c.inspect(ctx, dbName, t.Name)
			if err != nil {
				return err
			}
			if ok {
				c.tables = append(c.tables, info)
			}
		}
	}
	sort.Slice(c.tables, func(i, j int) bool {
		return c.tables[i].QualifiedName() < c.tables[j].QualifiedName()
	})
	return nil
}

func (c *Catalog) inspect(ctx context.Context, db, name string) (TableInfo, bool, error) {
	root := c.TablePath(db, name)
	format, err := DetectFormat(ctx, c.fsys, root)
	if err != nil {
		return TableInfo{}, false, err
	}
	if format == TableFormatUnknown {
		return TableInfo{}, false, nil
	}
	pf := NewPathFactory(root)
	info := TableInfo{Database: db, Name: name, Path: root, Format: format}
	if info.HasSnapshot, err = c.fsys.DirExists(ctx, pf.SnapshotDir()); err != nil {
		return TableInfo{}, false, err
	}
	if info.HasManifest, err = c.fsys.DirExists(ctx, pf.ManifestDir()); err != nil {
		return TableInfo{}, false, err
	}
	entries, err := c.fsys.List(ctx, root)
	if err != nil {
		return TableInfo{}, false, err
	}
	for _, e := range entries {
		if e.IsDir && (strings.HasPrefix(e.Name, bucketPrefix) || strings.Contains(e.Name, "=")) {
			info.HasData = true
			break
		}
	}
	return info, true, nil
}
