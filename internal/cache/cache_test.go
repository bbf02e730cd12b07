package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStrikeSet_RoundTrips(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.PutStrikeSet("NIFTY|NFO|2024-06-27", []float64{18000, 18100, 18200}))

	got, ok, err := db.StrikeSet("NIFTY|NFO|2024-06-27")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{18000, 18100, 18200}, got)
}

func TestStrikeSet_MissingKey_ReturnsNotOk(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.StrikeSet("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLegTokens_RoundTrips(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.PutLegPair("key", 18000, 101, 102))

	call, put, ok, err := db.LegTokens("key", 18000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(101), call)
	assert.Equal(t, uint64(102), put)
}

func TestClear_RemovesStrikeSetsAndLegPairs(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.PutStrikeSet("key", []float64{1}))
	require.NoError(t, db.PutLegPair("key", 1, 1, 2))

	require.NoError(t, db.Clear())

	_, ok, err := db.StrikeSet("key")
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, ok, err = db.LegTokens("key", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuoteSnapshot_RoundTrips(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.PutQuoteSnapshot(101, 150.5))

	got, ok, err := db.QuoteSnapshot(101)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 150.5, got)
}
