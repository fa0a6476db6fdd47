package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paimon-mirror/paimon"
)

func TestParseTableName(t *testing.T) {
	db, table, err := parseTableName("public.users")
	require.NoError(t, err)
	assert.Equal(t, "public", db)
	assert.Equal(t, "users", table)

	for _, bad := range []string{"users", ".users", "public.", "a.b.c"} {
		_, _, err := parseTableName(bad)
		assert.Error(t, err, bad)
	}

	root, err := tableRoot("public.users")
	require.NoError(t, err)
	assert.Equal(t, "public.db/users", root)
}

func TestParseColumn(t *testing.T) {
	f, err := parseColumn("id BIGINT NOT NULL")
	require.NoError(t, err)
	assert.Equal(t, "id", f.Name)
	assert.Equal(t, paimon.TypeLong, f.Type.Root)
	assert.False(t, f.Nullable)

	f, err = parseColumn("price DECIMAL(10, 2)")
	require.NoError(t, err)
	assert.Equal(t, "DECIMAL(10, 2)", f.Type.String())
	assert.True(t, f.Nullable)

	_, err = parseColumn("id")
	assert.Error(t, err)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCreateAndInspect(t *testing.T) {
	wh := t.TempDir()

	out, err := run(t, "create", "public.users", "--warehouse", wh,
		"--column", "id BIGINT NOT NULL", "--column", "name STRING",
		"--primary-key", "id", "--buckets", "2")
	require.NoError(t, err)
	assert.Equal(t, "created public.users\n", out)

	_, err = run(t, "create", "public.users", "--warehouse", wh, "--column", "id BIGINT")
	assert.Error(t, err)

	out, err = run(t, "tables", "--warehouse", wh)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "public.users"))
	assert.Contains(t, lines[1], "paimon")

	// no snapshot committed yet
	_, err = run(t, "snapshots", "public.users", "--warehouse", wh)
	assert.Error(t, err)
}
