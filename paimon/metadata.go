package paimon

import (
	"sort"
	"strconv"
	"time"

	"paimon-mirror/paimonerr"
)

// TableMetadata is the resolved state of a table. A fresh value is built on
// every resolution and never mutated afterwards.
type TableMetadata struct {
	Location      string
	FormatVersion string
	Schema        *Schema
	Snapshots     map[int64]*Snapshot
	Properties    map[string]string

	// Current is the snapshot selected by the read options.
	Current *Snapshot

	// SchemaFromDefault is set when neither an embedded schema nor the
	// schema file was available and DefaultSchema was substituted.
	SchemaFromDefault bool

	precedence SequencePrecedence
}

func (m *TableMetadata) FindSnapshotByID(id int64) (*Snapshot, error) {
	s, ok := m.Snapshots[id]
	if !ok {
		return nil, &paimonerr.NotFoundError{What: "snapshot " + strconv.FormatInt(id, 10)}
	}
	return s, nil
}

// FindSnapshotByTimestamp returns the snapshot as of t: the one with the
// greatest commit time not after t. Ties go to the higher id.
func (m *TableMetadata) FindSnapshotByTimestamp(t time.Time) (*Snapshot, error) {
	limit := t.UnixMilli()
	var best *Snapshot
	var bestMs int64
	for _, s := range m.Snapshots {
		ms, ok := s.Millis()
		if !ok || ms > limit {
			continue
		}
		if best == nil || ms > bestMs || (ms == bestMs && s.ID > best.ID) {
			best, bestMs = s, ms
		}
	}
	if best == nil {
		return nil, &paimonerr.NotFoundError{What: "snapshot as of " + t.UTC().Format(time.RFC3339Nano)}
	}
	return best, nil
}

// LatestSnapshot returns the snapshot with the highest id.
func (m *TableMetadata) LatestSnapshot() (*Snapshot, error) {
	var best *Snapshot
	for _, s := range m.Snapshots {
		if best == nil || s.ID > best.ID {
			best = s
		}
	}
	if best == nil {
		return nil, &paimonerr.NotFoundError{What: "snapshot", Path: m.Location}
	}
	return best, nil
}

// GetCurrentSnapshot dispatches on the lookup mode carried by opts.
func (m *TableMetadata) GetCurrentSnapshot(opts ReadOptions) (*Snapshot, error) {
	switch opts.Mode() {
	case LookupByID:
		return m.FindSnapshotByID(*opts.SnapshotFromID)
	case LookupByTimestamp:
		return m.FindSnapshotByTimestamp(*opts.SnapshotFromTimestamp)
	default:
		return m.LatestSnapshot()
	}
}

// SnapshotInfo is one row of a snapshot listing.
type SnapshotInfo struct {
	SnapshotID     int64
	SequenceNumber int64
	TimestampMs    int64
	ManifestList   string
	CommitKind     CommitKind
	TotalRecords   int64
}

// ListSnapshots returns every known snapshot ordered by id.
func (m *TableMetadata) ListSnapshots() []SnapshotInfo {
	out := make([]SnapshotInfo, 0, len(m.Snapshots))
	for _, s := range m.Snapshots {
		seq, _ := s.Sequence(m.precedence)
		ms, _ := s.Millis()
		out = append(out, SnapshotInfo{
			SnapshotID:     s.ID,
			SequenceNumber: seq,
			TimestampMs:    ms,
			ManifestList:   s.DeltaManifestList.OrElse(""),
			CommitKind:     s.CommitKind.OrElse(""),
			TotalRecords:   s.TotalRecordCount.OrElse(0),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotID < out[j].SnapshotID })
	return out
}
