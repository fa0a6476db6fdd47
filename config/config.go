package config

import (
	"fmt"
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Warehouse struct {
		// Path is the warehouse root: a local directory, or the key prefix
		// inside the bucket when storage.type is s3.
		Path string `yaml:"path"`
	} `yaml:"warehouse"`

	Storage struct {
		Type string `yaml:"type"`
		S3   struct {
			Bucket          string `yaml:"bucket"`
			Region          string `yaml:"region"`
			Endpoint        string `yaml:"endpoint"`
			AccessKeyID     string `yaml:"access_key_id"`
			SecretAccessKey string `yaml:"secret_access_key"`
			UsePathStyle    bool   `yaml:"use_path_style"`
		} `yaml:"s3"`
	} `yaml:"storage"`

	Postgres struct {
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		User        string `yaml:"user"`
		Password    string `yaml:"password"`
		Database    string `yaml:"database"`
		Slot        string `yaml:"slot"`
		Publication string `yaml:"publication"`
	} `yaml:"postgres"`

	Tables []Table `yaml:"tables"`

	Read ReadConfig `yaml:"read"`

	Commit struct {
		User       string `yaml:"user"`
		FileFormat string `yaml:"file_format"`
	} `yaml:"commit"`

	Proxy struct {
		Port int `yaml:"port"`
	} `yaml:"proxy"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Table is a mirrored table. Schema is both the Postgres namespace and the
// Paimon database name.
type Table struct {
	Schema        string   `yaml:"schema"`
	Name          string   `yaml:"name"`
	Buckets       int      `yaml:"buckets"`
	PartitionKeys []string `yaml:"partition_keys"`
	PrimaryKeys   []string `yaml:"primary_keys"`
}

// Path is the table root relative to the warehouse.
func (t Table) Path() string {
	return path.Join(t.Schema+".db", t.Name)
}

// ReadConfig carries the snapshot selection options for readers.
type ReadConfig struct {
	Version                  string     `yaml:"version"`
	SnapshotFromID           *int64     `yaml:"snapshot_from_id"`
	SnapshotFromTimestamp    *time.Time `yaml:"snapshot_from_timestamp"`
	MetadataCompressionCodec string     `yaml:"metadata_compression_codec"`

	// SequencePrecedence picks the snapshot field that orders commits when
	// both the legacy sequenceNumber and commitIdentifier are present:
	// "commit_identifier" or "sequence_number".
	SequencePrecedence string `yaml:"sequence_precedence"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New returns the default configuration for a local warehouse.
func New(warehouse string) *Config {
	cfg := &Config{}
	cfg.Warehouse.Path = warehouse
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Storage.Type == "" {
		c.Storage.Type = "local"
	}
	if c.Read.Version == "" {
		c.Read.Version = "latest"
	}
	if c.Read.MetadataCompressionCodec == "" {
		c.Read.MetadataCompressionCodec = "gzip"
	}
	if c.Read.SequencePrecedence == "" {
		c.Read.SequencePrecedence = "commit_identifier"
	}
	if c.Commit.User == "" {
		c.Commit.User = "paimon-mirror"
	}
	if c.Commit.FileFormat == "" {
		c.Commit.FileFormat = "parquet"
	}
	if c.Proxy.Port == 0 {
		c.Proxy.Port = 5433
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for i := range c.Tables {
		if c.Tables[i].Schema == "" {
			c.Tables[i].Schema = "public"
		}
		if c.Tables[i].Buckets == 0 {
			c.Tables[i].Buckets = 1
		}
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "local":
		if c.Warehouse.Path == "" {
			return fmt.Errorf("warehouse.path is required for local storage")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}

	if c.Read.SnapshotFromID != nil && c.Read.SnapshotFromTimestamp != nil {
		return fmt.Errorf("read.snapshot_from_id and read.snapshot_from_timestamp are mutually exclusive")
	}
	switch c.Read.SequencePrecedence {
	case "commit_identifier", "sequence_number":
	default:
		return fmt.Errorf("unknown read.sequence_precedence %q", c.Read.SequencePrecedence)
	}

	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("table name is required")
		}
		if t.Buckets < 1 {
			return fmt.Errorf("table %s.%s: buckets must be >= 1", t.Schema, t.Name)
		}
		key := t.Schema + "." + t.Name
		if seen[key] {
			return fmt.Errorf("table %s configured twice", key)
		}
		seen[key] = true
	}
	return nil
}

// FindTable returns the configured table for a Postgres relation.
func (c *Config) FindTable(schema, name string) (Table, bool) {
	for _, t := range c.Tables {
		if t.Schema == schema && t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}
