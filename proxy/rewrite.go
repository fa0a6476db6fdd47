package proxy

import (
	"context"
	"regexp"

	"paimon-mirror/paimon"
	"paimon-mirror/predicate"
)

// pushdownQuery matches a single-table select whose WHERE clause ends the
// statement. Anything else (joins, aliases, ORDER BY) runs against the views.
var pushdownQuery = regexp.MustCompile(
	`(?is)^\s*select\s+(.+?)\s+from\s+([a-z_][a-z0-9_]*)\.([a-z_][a-z0-9_]*)\s+where\s+(.+?)\s*;?\s*$`)

// fileLister returns the data file URIs of database.table that may match the
// filters, and the table's schema.
type fileLister func(ctx context.Context, database, table string, filters []predicate.Filter) ([]string, *paimon.Schema, error)

// rewriteQuery replaces the table of a pushdown-eligible query with a scan
// of only the files its WHERE clause cannot rule out. The WHERE clause is
// kept, so rows are still filtered exactly. It reports false, with the query
// unchanged, when the query is not eligible.
func rewriteQuery(ctx context.Context, query string, list fileLister) (string, bool, error) {
	m := pushdownQuery.FindStringSubmatch(query)
	if m == nil {
		return query, false, nil
	}
	projection, database, table, where := m[1], m[2], m[3], m[4]

	filter, err := predicate.Parse(where)
	if err != nil {
		return query, false, nil
	}

	uris, s, err := list(ctx, database, table, []predicate.Filter{filter})
	if err != nil {
		return query, false, err
	}
	return "SELECT " + projection + " FROM " + sourceSQL(uris, s) + " AS " + quoteIdent(table) +
		" WHERE " + where, true, nil
}
