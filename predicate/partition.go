package predicate

import (
	"net/url"
	"strings"
)

// DefaultPartitionName stands in for a null partition value in paths.
const DefaultPartitionName = "__DEFAULT_PARTITION__"

// EscapePartitionValue makes v safe to use as a single "k=v" path segment.
func EscapePartitionValue(v string) string {
	return strings.ReplaceAll(url.PathEscape(v), "=", "%3D")
}

func UnescapePartitionValue(v string) string {
	u, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return u
}

// PartitionValue extracts column's value from a "/column=value/" directory
// segment of p. The file name itself is never considered.
func PartitionValue(p, column string) (string, bool) {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if len(segs) > 0 {
		segs = segs[:len(segs)-1]
	}
	prefix := column + "="
	for _, s := range segs {
		if strings.HasPrefix(s, prefix) {
			return UnescapePartitionValue(s[len(prefix):]), true
		}
	}
	return "", false
}

// Coercer converts a raw partition string to the column's typed value. It
// returns false when the column is unknown or the value does not parse, in
// which case the raw string is compared instead.
type Coercer func(column, raw string) (any, bool)

type pathStats struct {
	path   string
	coerce Coercer
}

func (p pathStats) ColumnStats(column string) (ColumnStats, bool) {
	raw, ok := PartitionValue(p.path, column)
	if !ok {
		return ColumnStats{}, false
	}
	if raw == DefaultPartitionName {
		return ColumnStats{HasNull: true}, true
	}
	var v any = raw
	if p.coerce != nil {
		if typed, ok := p.coerce(column, raw); ok {
			v = typed
		}
	}
	return ColumnStats{Lower: v, Upper: v, HasNotNull: true}, true
}

// CanEliminatePartition reports whether f is unsatisfiable for the partition
// values encoded in p. Columns that are not in the path are unknown.
func CanEliminatePartition(p string, f Filter, coerce Coercer) bool {
	return CanEliminate(f, pathStats{path: p, coerce: coerce})
}

// PrunePartitions drops the paths whose partition values cannot satisfy
// every filter. Order is preserved.
func PrunePartitions(paths []string, filters []Filter, coerce Coercer) []string {
	if len(filters) == 0 {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !CanEliminatePartition(p, AllOf(filters...), coerce) {
			out = append(out, p)
		}
	}
	return out
}
