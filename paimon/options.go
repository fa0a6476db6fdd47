package paimon

import (
	"time"

	"paimon-mirror/config"
	"paimon-mirror/paimonerr"
)

// LookupMode selects which snapshot of a table a read sees.
type LookupMode int

const (
	LookupLatest LookupMode = iota
	LookupByID
	LookupByTimestamp
)

func (m LookupMode) String() string {
	switch m {
	case LookupByID:
		return "by-id"
	case LookupByTimestamp:
		return "by-timestamp"
	default:
		return "latest"
	}
}

// ReadOptions control snapshot resolution. SnapshotFromID and
// SnapshotFromTimestamp are mutually exclusive and either one overrides
// Version.
type ReadOptions struct {
	// Version is "latest" or an explicit snapshot id.
	Version               string
	SnapshotFromID        *int64
	SnapshotFromTimestamp *time.Time

	// MetadataCompressionCodec is recorded for metadata written alongside
	// reads; "gzip" when empty.
	MetadataCompressionCodec string

	SequencePrecedence SequencePrecedence
}

func DefaultReadOptions() ReadOptions {
	return ReadOptions{Version: "latest", MetadataCompressionCodec: "gzip"}
}

// ReadOptionsFromConfig converts the read section of the configuration.
func ReadOptionsFromConfig(c config.ReadConfig) (ReadOptions, error) {
	prec, ok := ParseSequencePrecedence(c.SequencePrecedence)
	if !ok {
		return ReadOptions{}, paimonerr.InvalidArgument("sequence precedence %q", c.SequencePrecedence)
	}
	o := ReadOptions{
		Version:                  c.Version,
		SnapshotFromID:           c.SnapshotFromID,
		SnapshotFromTimestamp:    c.SnapshotFromTimestamp,
		MetadataCompressionCodec: c.MetadataCompressionCodec,
		SequencePrecedence:       prec,
	}
	return o, o.Validate()
}

func (o ReadOptions) Validate() error {
	if o.SnapshotFromID != nil && o.SnapshotFromTimestamp != nil {
		return paimonerr.InvalidArgument("snapshot_from_id and snapshot_from_timestamp are mutually exclusive")
	}
	return nil
}

// Mode derives the lookup mode from the options.
func (o ReadOptions) Mode() LookupMode {
	switch {
	case o.SnapshotFromID != nil:
		return LookupByID
	case o.SnapshotFromTimestamp != nil:
		return LookupByTimestamp
	default:
		return LookupLatest
	}
}

func (o ReadOptions) version() string {
	if o.Version == "" {
		return "latest"
	}
	return o.Version
}

func (o ReadOptions) codec() string {
	if o.MetadataCompressionCodec == "" {
		return "gzip"
	}
	return o.MetadataCompressionCodec
}
