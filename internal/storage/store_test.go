package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(context.Background(), path, `CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v BLOB)`)
	require.NoError(t, err)
	defer db.Close()

	blob := EncodeFloats([]float64{1.5, -2, math.Inf(1)})
	_, err = db.Exec(`INSERT INTO kv (k, v) VALUES (?, ?)`, "a", blob)
	require.NoError(t, err)

	var got []byte
	require.NoError(t, db.QueryRow(`SELECT v FROM kv WHERE k = ?`, "a").Scan(&got))
	values, err := DecodeFloats(got)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2, math.Inf(1)}, values)
}

func TestOpenBadSchema(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), `CREATE NONSENSE`)
	assert.Error(t, err)
}

func TestDecodeFloatsTruncated(t *testing.T) {
	_, err := DecodeFloats(make([]byte, 12))
	assert.Error(t, err)

	values, err := DecodeFloats(nil)
	require.NoError(t, err)
	assert.Empty(t, values)
}
