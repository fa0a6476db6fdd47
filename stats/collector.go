package stats

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const (
	// SampleCap is the number of values a column retains.
	SampleCap = 10000

	// SamplingThreshold is the non-null value count past which a column
	// switches to reservoir-style sampling.
	SamplingThreshold = 10 * SampleCap

	// acceptRate is the fixed probability that a value seen after the
	// threshold replaces a retained one.
	acceptRate = float64(SampleCap) / float64(SamplingThreshold)
)

// ColumnStats is a point-in-time view of one column's statistics.
type ColumnStats struct {
	Name       string
	Min        any
	Max        any
	NullCount  int64
	TotalCount int64

	// BoundsValid is false when no bound can be stated: the column holds no
	// non-null values, saw NaN, or saw values of mixed kinds.
	BoundsValid bool

	// Sampled reports that the retained values are a sample, so
	// ColumnCollector.SampleBounds is an approximation. Min and Max above are
	// never affected by sampling.
	Sampled bool
}

// ColumnCollector accumulates statistics for a single column.
//
// Two intervals are maintained. The envelope (Bounds) is the exact running
// min/max over every value observed and is what gets persisted for pruning.
// The sample interval (SampleBounds) is computed over the retained values
// only; once sampling is active it can be narrower than the truth, and it is
// always contained in the envelope.
type ColumnCollector struct {
	name       string
	min, max   any
	nullCount  int64
	totalCount int64
	nonNull    int64
	invalid    bool
	samples    []any
	sampling   bool
	rng        *rand.Rand
}

func newColumnCollector(name string, seed uint64) *ColumnCollector {
	return &ColumnCollector{
		name: name,
		rng:  rand.New(rand.NewPCG(seed, uint64(len(name)))),
	}
}

func (c *ColumnCollector) Observe(v any) {
	c.totalCount++
	if v == nil {
		c.nullCount++
		return
	}
	v = Normalize(v)
	c.nonNull++

	if f, ok := v.(float64); ok && math.IsNaN(f) {
		c.invalid = true
		return
	}
	if !c.invalid {
		c.widen(v)
	}
	c.retain(v)
}

func (c *ColumnCollector) widen(v any) {
	if c.min == nil {
		c.min, c.max = v, v
		return
	}
	lo, ok1 := Compare(v, c.min)
	hi, ok2 := Compare(v, c.max)
	if !ok1 || !ok2 {
		c.invalid = true
		return
	}
	if lo < 0 {
		c.min = v
	}
	if hi > 0 {
		c.max = v
	}
}

func (c *ColumnCollector) retain(v any) {
	if c.nonNull <= SamplingThreshold {
		if len(c.samples) < SampleCap {
			c.samples = append(c.samples, v)
		}
		return
	}
	c.sampling = true
	if c.rng.Float64() < acceptRate {
		c.samples[c.rng.IntN(len(c.samples))] = v
	}
}

// Bounds returns the exact envelope of all observed non-null values.
func (c *ColumnCollector) Bounds() (min, max any, ok bool) {
	if c.invalid || c.min == nil {
		return nil, nil, false
	}
	return c.min, c.max, true
}

// SampleBounds returns min/max over the retained values only. It is exact
// until sampling activates and approximate afterwards.
func (c *ColumnCollector) SampleBounds() (min, max any, ok bool) {
	if c.invalid || len(c.samples) == 0 {
		return nil, nil, false
	}
	min, max = c.samples[0], c.samples[0]
	for _, v := range c.samples[1:] {
		if r, ok := Compare(v, min); !ok {
			return nil, nil, false
		} else if r < 0 {
			min = v
		}
		if r, ok := Compare(v, max); !ok {
			return nil, nil, false
		} else if r > 0 {
			max = v
		}
	}
	return min, max, true
}

// Sampling reports whether the retained values are a sample.
func (c *ColumnCollector) Sampling() bool { return c.sampling }

// Samples returns the retained values.
func (c *ColumnCollector) Samples() []any { return c.samples }

func (c *ColumnCollector) Stats() ColumnStats {
	min, max, ok := c.Bounds()
	return ColumnStats{
		Name:        c.name,
		Min:         min,
		Max:         max,
		NullCount:   c.nullCount,
		TotalCount:  c.totalCount,
		BoundsValid: ok,
		Sampled:     c.sampling,
	}
}

func (c *ColumnCollector) merge(o *ColumnCollector) {
	c.totalCount += o.totalCount
	c.nullCount += o.nullCount
	c.nonNull += o.nonNull
	if o.invalid {
		c.invalid = true
	} else if o.min != nil && !c.invalid {
		c.widen(o.min)
		c.widen(o.max)
	}

	c.samples = append(c.samples, o.samples...)
	if len(c.samples) > SampleCap {
		c.rng.Shuffle(len(c.samples), func(i, j int) {
			c.samples[i], c.samples[j] = c.samples[j], c.samples[i]
		})
		c.samples = c.samples[:SampleCap]
		c.sampling = true
	}
	c.sampling = c.sampling || o.sampling
}

// Collector tracks statistics for a fixed, ordered set of columns. It is not
// safe for concurrent use; concurrent writers each own a Collector and merge
// them afterwards.
type Collector struct {
	columns []*ColumnCollector
	index   map[string]int
	rows    int64
}

func NewCollector(columns ...string) *Collector {
	c := &Collector{
		columns: make([]*ColumnCollector, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, name := range columns {
		c.columns[i] = newColumnCollector(name, uint64(i)+1)
		c.index[name] = i
	}
	return c
}

// ObserveRow records one row. Columns missing from row count as null.
func (c *Collector) ObserveRow(row map[string]any) {
	c.rows++
	for _, col := range c.columns {
		col.Observe(row[col.name])
	}
}

func (c *Collector) RowCount() int64 { return c.rows }

func (c *Collector) Column(name string) (*ColumnCollector, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.columns[i], true
}

// Stats returns one entry per column in declaration order.
func (c *Collector) Stats() []ColumnStats {
	out := make([]ColumnStats, len(c.columns))
	for i, col := range c.columns {
		out[i] = col.Stats()
	}
	return out
}

// Merge folds other into c. Both collectors must track the same columns.
// The merged envelope covers both inputs.
func (c *Collector) Merge(other *Collector) error {
	if len(other.columns) != len(c.columns) {
		return fmt.Errorf("stats: merging %d columns into %d", len(other.columns), len(c.columns))
	}
	for i, col := range c.columns {
		if other.columns[i].name != col.name {
			return fmt.Errorf("stats: column %d is %q, want %q", i, other.columns[i].name, col.name)
		}
		col.merge(other.columns[i])
	}
	c.rows += other.rows
	return nil
}
