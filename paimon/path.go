package paimon

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"paimon-mirror/paimonerr"
	"paimon-mirror/predicate"
)

const (
	schemaDir   = "schema"
	snapshotDir = "snapshot"
	manifestDir = "manifest"

	latestFile   = "LATEST"
	earliestFile = "EARLIEST"

	snapshotPrefix = "snapshot-"
	schemaPrefix   = "schema-"
	bucketPrefix   = "bucket-"
	dataPrefix     = "data-"
	deletePrefix   = "delete-"
)

// FileFormat is a data file encoding.
type FileFormat string

const (
	FormatParquet FileFormat = "PARQUET"
	FormatORC     FileFormat = "ORC"
	FormatAvro    FileFormat = "AVRO"
)

func ParseFileFormat(s string) (FileFormat, error) {
	switch f := FileFormat(strings.ToUpper(s)); f {
	case FormatParquet, FormatORC, FormatAvro:
		return f, nil
	}
	return "", paimonerr.InvalidArgument("file format %q", s)
}

// Extension returns the file name extension, including the dot.
func (f FileFormat) Extension() string {
	switch f {
	case FormatORC:
		return ".orc"
	case FormatAvro:
		return ".avro"
	default:
		return ".parquet"
	}
}

// PathFactory derives every path of a table from its root. All methods are
// pure: equal inputs give equal paths.
type PathFactory struct {
	root string
}

func NewPathFactory(root string) PathFactory {
	return PathFactory{root: strings.TrimSuffix(root, "/")}
}

func (p PathFactory) Root() string { return p.root }

func (p PathFactory) SchemaDir() string   { return path.Join(p.root, schemaDir) }
func (p PathFactory) SnapshotDir() string { return path.Join(p.root, snapshotDir) }
func (p PathFactory) ManifestDir() string { return path.Join(p.root, manifestDir) }

func (p PathFactory) SchemaFilePath(id int64) string {
	return path.Join(p.root, schemaDir, schemaPrefix+strconv.FormatInt(id, 10))
}

func (p PathFactory) SnapshotFilePath(id int64) string {
	return path.Join(p.root, snapshotDir, SnapshotFileName(id))
}

func (p PathFactory) LatestPath() string   { return path.Join(p.root, snapshotDir, latestFile) }
func (p PathFactory) EarliestPath() string { return path.Join(p.root, snapshotDir, earliestFile) }

// ManifestFileName is the name stored in manifest lists.
func ManifestFileName(uuid string, i int) string {
	return fmt.Sprintf("manifest-%s-%d.avro", uuid, i)
}

func ManifestListFileName(uuid string, i int) string {
	return fmt.Sprintf("manifest-list-%s-%d.avro", uuid, i)
}

func SnapshotFileName(id int64) string {
	return snapshotPrefix + strconv.FormatInt(id, 10)
}

func DataFileName(uuid string, counter int, format FileFormat) string {
	return fmt.Sprintf("%s%s-%d%s", dataPrefix, uuid, counter, format.Extension())
}

func DeleteFileName(uuid string, counter int, format FileFormat) string {
	return fmt.Sprintf("%s%s-%d%s", deletePrefix, uuid, counter, format.Extension())
}

func (p PathFactory) ManifestFilePath(uuid string, i int) string {
	return path.Join(p.root, manifestDir, ManifestFileName(uuid, i))
}

func (p PathFactory) ManifestListFilePath(uuid string, i int) string {
	return path.Join(p.root, manifestDir, ManifestListFileName(uuid, i))
}

// ManifestPath resolves a manifest or manifest list name from metadata.
func (p PathFactory) ManifestPath(name string) string {
	return path.Join(p.root, manifestDir, name)
}

func (p PathFactory) BucketPath(bucket int) string {
	return path.Join(p.root, BucketDirName(bucket))
}

func BucketDirName(bucket int) string {
	return bucketPrefix + strconv.Itoa(bucket)
}

func (p PathFactory) DataFilePath(bucket int, uuid string, counter int, format FileFormat) string {
	return path.Join(p.BucketPath(bucket), DataFileName(uuid, counter, format))
}

func (p PathFactory) DeleteFilePath(bucket int, uuid string, counter int, format FileFormat) string {
	return path.Join(p.BucketPath(bucket), DeleteFileName(uuid, counter, format))
}

// PartitionPath renders "k1=v1/k2=v2" for the partition keys and their
// path values, in key order. It is empty for an unpartitioned table.
func PartitionPath(keys, values []string) string {
	segs := make([]string, len(keys))
	for i, k := range keys {
		v := predicate.DefaultPartitionName
		if i < len(values) {
			v = values[i]
		}
		segs[i] = k + "=" + predicate.EscapePartitionValue(v)
	}
	return strings.Join(segs, "/")
}

// BucketRelPath is the directory of a bucket relative to the table root.
func BucketRelPath(keys, values []string, bucket int) string {
	return path.Join(PartitionPath(keys, values), BucketDirName(bucket))
}

func (p PathFactory) PartitionBucketPath(keys, values []string, bucket int) string {
	return path.Join(p.root, BucketRelPath(keys, values, bucket))
}

func (p PathFactory) PartitionedDataFilePath(keys, values []string, bucket int, uuid string, counter int, format FileFormat) string {
	return path.Join(p.PartitionBucketPath(keys, values, bucket), DataFileName(uuid, counter, format))
}

func (p PathFactory) PartitionedDeleteFilePath(keys, values []string, bucket int, uuid string, counter int, format FileFormat) string {
	return path.Join(p.PartitionBucketPath(keys, values, bucket), DeleteFileName(uuid, counter, format))
}

// ParseSnapshotID extracts the id from a "snapshot-<id>" file name.
func ParseSnapshotID(name string) (int64, bool) {
	if !strings.HasPrefix(name, snapshotPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(name[len(snapshotPrefix):], 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func parseSchemaID(name string) (int64, bool) {
	if !strings.HasPrefix(name, schemaPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(name[len(schemaPrefix):], 10, 64)
	return id, err == nil && id >= 0
}
