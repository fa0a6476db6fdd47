package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paimon-mirror/paimon"
	"paimon-mirror/paimonerr"
	"paimon-mirror/predicate"
)

// duckDBType is the column type DuckDB reads a Paimon column back as.
// Decimals are stored as their text form.
func duckDBType(t paimon.DataType) string {
	switch t.Root {
	case paimon.TypeBoolean:
		return "BOOLEAN"
	case paimon.TypeInt:
		return "INTEGER"
	case paimon.TypeLong:
		return "BIGINT"
	case paimon.TypeFloat:
		return "REAL"
	case paimon.TypeDouble:
		return "DOUBLE"
	case paimon.TypeDate:
		return "DATE"
	case paimon.TypeTimestamp:
		return "TIMESTAMP"
	case paimon.TypeBinary:
		return "BLOB"
	default:
		return "VARCHAR"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// sourceSQL is a relation over the given data files. A table without files
// still yields its typed columns, with no rows.
func sourceSQL(uris []string, s *paimon.Schema) string {
	if len(uris) == 0 {
		cols := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			cols[i] = fmt.Sprintf("CAST(NULL AS %s) AS %s", duckDBType(f.Type), quoteIdent(f.Name))
		}
		return "(SELECT " + strings.Join(cols, ", ") + " WHERE false)"
	}
	quoted := make([]string, len(uris))
	for i, u := range uris {
		quoted[i] = quoteLiteral(u)
	}
	return "read_parquet([" + strings.Join(quoted, ", ") + "], union_by_name = true)"
}

func viewSQL(database, table string, uris []string, s *paimon.Schema) string {
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s.%s AS SELECT * FROM %s",
		quoteIdent(database), quoteIdent(table), sourceSQL(uris, s))
}

// tableFiles resolves a table and lists the URIs of the data files that may
// match filters.
func (p *DuckDBProxy) tableFiles(ctx context.Context, root string, filters []predicate.Filter) ([]string, *paimon.Schema, error) {
	md, err := paimon.ResolveCurrent(ctx, p.fsys, root, p.readOpts)
	if errors.Is(err, paimonerr.ErrNotFound) {
		// created, never committed
		s, serr := paimon.LatestSchema(ctx, p.fsys, root)
		if serr != nil {
			return nil, nil, serr
		}
		return nil, s, nil
	}
	if err != nil {
		return nil, nil, err
	}

	paths, err := paimon.ListDataFiles(ctx, p.fsys, md, filters)
	if err != nil {
		return nil, nil, err
	}
	uris := make([]string, len(paths))
	for i, fp := range paths {
		uris[i] = p.fsys.URI(fp)
	}
	return uris, md.Schema, nil
}

// RefreshViews registers one view per Paimon table in the warehouse, named
// after its database and table, over the files of its current snapshot.
func (p *DuckDBProxy) RefreshViews(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	catalog, err := paimon.NewCatalog(ctx, p.fsys, "")
	if err != nil {
		return err
	}

	schemas := map[string]bool{}
	for _, info := range catalog.Tables() {
		if info.Format != paimon.TableFormatPaimon {
			continue
		}
		uris, s, err := p.tableFiles(ctx, info.Path, nil)
		if err != nil {
			p.logger.Warn("skipping table", "table", info.QualifiedName(), "err", err)
			continue
		}
		if !schemas[info.Database] {
			if _, err := p.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(info.Database)); err != nil {
				return fmt.Errorf("creating schema %s: %w", info.Database, err)
			}
			schemas[info.Database] = true
		}
		if _, err := p.db.ExecContext(ctx, viewSQL(info.Database, info.Name, uris, s)); err != nil {
			return fmt.Errorf("creating view %s: %w", info.QualifiedName(), err)
		}
	}
	return nil
}
