// Package bucket assigns rows to hash buckets.
//
// Placement is a pure function of the partition values, the key and the
// bucket count. The count is fixed when a table is opened; changing it after
// data exists would move keys to different buckets, and no rehashing is
// performed. Tables refuse to open with a different count instead.
package bucket

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

type Manager struct {
	numBuckets int
}

func New(numBuckets int) (*Manager, error) {
	if numBuckets < 1 {
		return nil, fmt.Errorf("bucket: numBuckets must be >= 1, got %d", numBuckets)
	}
	return &Manager{numBuckets: numBuckets}, nil
}

func (m *Manager) NumBuckets() int { return m.numBuckets }

// Assign returns the bucket for key within the partition identified by
// partitionValues, in [0, NumBuckets()).
func (m *Manager) Assign(partitionValues []string, key any) int {
	h := xxhash.Sum64String(strings.Join(partitionValues, "|") + "|" + KeyString(key))
	return int(h % uint64(m.numBuckets))
}

// All returns every bucket id.
func (m *Manager) All() []int {
	out := make([]int, m.numBuckets)
	for i := range out {
		out[i] = i
	}
	return out
}

// KeyString renders a key the same way on every call and in every process.
func KeyString(key any) string {
	switch v := key.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return hex.EncodeToString(v)
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case []any:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = KeyString(p)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
