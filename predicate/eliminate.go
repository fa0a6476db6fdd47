package predicate

import "paimon-mirror/stats"

// ColumnStats is what a file's metadata says about one column. A nil bound
// is unknown. HasNull and HasNotNull must be true whenever the count behind
// them is unknown.
type ColumnStats struct {
	Lower      any
	Upper      any
	HasNull    bool
	HasNotNull bool
}

// Unknown returns stats that rule nothing out.
func Unknown() ColumnStats {
	return ColumnStats{HasNull: true, HasNotNull: true}
}

// FromCounts builds ColumnStats from stored bounds and counts. A nil count is
// unknown.
func FromCounts(lower, upper any, nullCount, rowCount *int64) ColumnStats {
	s := ColumnStats{Lower: lower, Upper: upper, HasNull: true, HasNotNull: true}
	if nullCount != nil {
		s.HasNull = *nullCount > 0
		if rowCount != nil {
			s.HasNotNull = *nullCount < *rowCount
		}
	}
	return s
}

// StatsSource looks up statistics by column name.
type StatsSource interface {
	ColumnStats(column string) (ColumnStats, bool)
}

// StatsMap is a StatsSource backed by a map.
type StatsMap map[string]ColumnStats

func (m StatsMap) ColumnStats(column string) (ColumnStats, bool) {
	s, ok := m[column]
	return s, ok
}

type single ColumnStats

func (s single) ColumnStats(string) (ColumnStats, bool) { return ColumnStats(s), true }

// Single answers every column with s. It suits filters over one column.
func Single(s ColumnStats) StatsSource { return single(s) }

// CanEliminate reports whether no row described by src can satisfy f.
func CanEliminate(f Filter, src StatsSource) bool {
	switch x := f.(type) {
	case Comparison:
		s, ok := src.ColumnStats(x.Column)
		if !ok {
			return false
		}
		return comparisonEliminates(x.Op, x.Value, s)

	case IsNull:
		s, ok := src.ColumnStats(x.Column)
		return ok && !s.HasNull

	case IsNotNull:
		s, ok := src.ColumnStats(x.Column)
		return ok && !s.HasNotNull

	case And:
		for _, c := range x.Children {
			if CanEliminate(c, src) {
				return true
			}
		}
		return false

	case Or:
		if len(x.Children) == 0 {
			return false
		}
		for _, c := range x.Children {
			if !CanEliminate(c, src) {
				return false
			}
		}
		return true

	default:
		return false
	}
}

func comparisonEliminates(op Op, c any, s ColumnStats) bool {
	if c == nil {
		return false
	}
	// cmp(bound, c); ok is false when the bound is unknown or incomparable.
	cmp := func(bound any) (int, bool) {
		if bound == nil {
			return 0, false
		}
		return stats.Compare(bound, c)
	}

	switch op {
	case OpEq:
		if r, ok := cmp(s.Lower); ok && r > 0 {
			return true
		}
		if r, ok := cmp(s.Upper); ok && r < 0 {
			return true
		}
		return false
	case OpGt:
		r, ok := cmp(s.Upper)
		return ok && r <= 0
	case OpGtEq:
		r, ok := cmp(s.Upper)
		return ok && r < 0
	case OpLt:
		r, ok := cmp(s.Lower)
		return ok && r >= 0
	case OpLtEq:
		r, ok := cmp(s.Lower)
		return ok && r > 0
	default:
		// != excludes a single value; a file is never provably empty for it.
		return false
	}
}
