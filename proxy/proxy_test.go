package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"paimon-mirror/config"
	"paimon-mirror/paimon"
)

func TestMapDataTypeToOID(t *testing.T) {
	tests := map[string]uint32{
		"BOOLEAN":   16,
		"BLOB":      17,
		"BIGINT":    20,
		"INT8":      20,
		"SMALLINT":  21,
		"INTEGER":   23,
		"REAL":      700,
		"DOUBLE":    701,
		"VARCHAR":   25,
		"DATE":      1082,
		"TIMESTAMP": 1114,
		"UUID":      2950,
		"STRUCT":    25,
	}
	for name, want := range tests {
		assert.Equal(t, want, mapDataTypeToOID(name), name)
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 13, 4, 5, 250_000_000, time.UTC)

	assert.Nil(t, formatValue(nil, 25))
	assert.Equal(t, "t", string(formatValue(true, 16)))
	assert.Equal(t, "42", string(formatValue(int64(42), 20)))
	assert.Equal(t, `\x0aff`, string(formatValue([]byte{0x0a, 0xff}, 17)))
	assert.Equal(t, "2024-05-01", string(formatValue(ts, 1082)))
	assert.Equal(t, "2024-05-01 13:04:05.25", string(formatValue(ts, 1114)))
}

func TestViewSQL(t *testing.T) {
	got := viewSQL("default", "users", []string{"s3://bucket/wh/it's.parquet"}, usersSchema())
	assert.Equal(t,
		`CREATE OR REPLACE VIEW "default"."users" AS SELECT * FROM read_parquet(['s3://bucket/wh/it''s.parquet'], union_by_name = true)`,
		got)
}

func TestDuckDBType(t *testing.T) {
	assert.Equal(t, "VARCHAR", duckDBType(paimon.DataType{Root: paimon.TypeDecimal, Precision: 10, Scale: 2}))
	assert.Equal(t, "TIMESTAMP", duckDBType(paimon.DataType{Root: paimon.TypeTimestamp}))
	assert.Equal(t, "BLOB", duckDBType(paimon.DataType{Root: paimon.TypeBinary}))
}

func TestS3SecretSQL(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Type = "s3"
	cfg.Storage.S3.Region = "eu-west-1"
	assert.Equal(t,
		"CREATE OR REPLACE SECRET paimon_warehouse (TYPE S3, PROVIDER CREDENTIAL_CHAIN, REGION 'eu-west-1')",
		s3SecretSQL(cfg))

	cfg.Storage.S3.AccessKeyID = "AK"
	cfg.Storage.S3.SecretAccessKey = "SK"
	cfg.Storage.S3.Endpoint = "localhost:9000"
	cfg.Storage.S3.UsePathStyle = true
	assert.Equal(t,
		"CREATE OR REPLACE SECRET paimon_warehouse (TYPE S3, KEY_ID 'AK', SECRET 'SK', REGION 'eu-west-1', ENDPOINT 'localhost:9000', URL_STYLE 'path')",
		s3SecretSQL(cfg))
}
