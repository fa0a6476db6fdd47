package paimon

import (
	"encoding/json"
	"time"
)

type CommitKind string

const (
	CommitKindAppend    CommitKind = "APPEND"
	CommitKindCompact   CommitKind = "COMPACT"
	CommitKindOverwrite CommitKind = "OVERWRITE"
	CommitKindAnalyze   CommitKind = "ANALYZE"
)

// CurrentSnapshotVersion is the snapshot document version written by the
// commit writer.
const CurrentSnapshotVersion = 3

// Snapshot is one snapshot document. ID is required; every other member
// keeps its absent/null/set distinction.
type Snapshot struct {
	Version                   Optional[int32]             `json:"version,omitzero"`
	ID                        int64                       `json:"id"`
	SchemaID                  int64                       `json:"schemaId"`
	BaseManifestList          Optional[string]            `json:"baseManifestList,omitzero"`
	BaseManifestListSize      Optional[int64]             `json:"baseManifestListSize,omitzero"`
	DeltaManifestList         Optional[string]            `json:"deltaManifestList,omitzero"`
	DeltaManifestListSize     Optional[int64]             `json:"deltaManifestListSize,omitzero"`
	ChangelogManifestList     Optional[string]            `json:"changelogManifestList,omitzero"`
	ChangelogManifestListSize Optional[int64]             `json:"changelogManifestListSize,omitzero"`
	IndexManifest             Optional[string]            `json:"indexManifest,omitzero"`
	CommitUser                Optional[string]            `json:"commitUser,omitzero"`
	CommitIdentifier          Optional[int64]             `json:"commitIdentifier,omitzero"`
	CommitKind                Optional[CommitKind]        `json:"commitKind,omitzero"`
	TimeMillis                Optional[int64]             `json:"timeMillis,omitzero"`
	LogOffsets                Optional[map[int32]int64]   `json:"logOffsets,omitzero"`
	TotalRecordCount          Optional[int64]             `json:"totalRecordCount,omitzero"`
	DeltaRecordCount          Optional[int64]             `json:"deltaRecordCount,omitzero"`
	ChangelogRecordCount      Optional[int64]             `json:"changelogRecordCount,omitzero"`
	Watermark                 Optional[int64]             `json:"watermark,omitzero"`
	Statistics                Optional[string]            `json:"statistics,omitzero"`
	Properties                Optional[map[string]string] `json:"properties,omitzero"`
	NextRowID                 Optional[int64]             `json:"nextRowId,omitzero"`

	// Legacy members written by older writers.
	SequenceNumber Optional[int64] `json:"sequenceNumber,omitzero"`
	TimestampMs    Optional[int64] `json:"timestampMs,omitzero"`

	// Schema is an embedded schema object, when the writer included one.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// SequencePrecedence chooses which member orders commits when a snapshot
// carries both the v3 commitIdentifier and the legacy sequenceNumber.
type SequencePrecedence int

const (
	PreferCommitIdentifier SequencePrecedence = iota
	PreferSequenceNumber
)

// ParseSequencePrecedence accepts the configuration names
// "commit_identifier" and "sequence_number".
func ParseSequencePrecedence(s string) (SequencePrecedence, bool) {
	switch s {
	case "", "commit_identifier":
		return PreferCommitIdentifier, true
	case "sequence_number":
		return PreferSequenceNumber, true
	}
	return 0, false
}

// Sequence returns the commit ordering value. The preferred member wins when
// set; otherwise the other member is used.
func (s *Snapshot) Sequence(p SequencePrecedence) (int64, bool) {
	first, second := s.CommitIdentifier, s.SequenceNumber
	if p == PreferSequenceNumber {
		first, second = second, first
	}
	if v, ok := first.Get(); ok {
		return v, true
	}
	return second.Get()
}

// Millis returns the commit time, falling back to the legacy timestampMs.
func (s *Snapshot) Millis() (int64, bool) {
	if v, ok := s.TimeMillis.Get(); ok {
		return v, true
	}
	return s.TimestampMs.Get()
}

func (s *Snapshot) Time() (time.Time, bool) {
	ms, ok := s.Millis()
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
