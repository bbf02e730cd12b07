package auth

import (
	"path/filepath"
	"testing"
	"time"

	"boxscan/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a fresh internal/cache database so auth tests reuse its
// migrated credential table through the exported DB.SQL accessor.
func newTestStore(t *testing.T) (*Store, *cache.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.db")
	db, err := cache.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db.SQL()), db
}

func TestToken_NoCredentialSaved_ReturnsErrAuthInvalid(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Token()
	assert.ErrorIs(t, err, ErrAuthInvalid)
}

func TestSaveThenToken_RoundTrips(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(Credential{AccessToken: "abc123", ExpiresAt: time.Now().Add(time.Hour)}))

	token, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestInvalidate_MakesTokenReturnErrAuthInvalid(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(Credential{AccessToken: "abc123", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Invalidate())

	_, err := store.Token()
	assert.ErrorIs(t, err, ErrAuthInvalid)
}
