package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore()
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Close())
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore()

	_, _, err := store.Get("k")
	assert.EqualError(t, err, "database not opened")
	assert.EqualError(t, store.Set("k", nil), "database not opened")
	assert.EqualError(t, store.Remove("k"), "database not opened")
	assert.EqualError(t, store.Migrate(), "database not opened")
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// idempotent
	require.NoError(t, store.Migrate())
}

func TestSQLiteStore_GetSetRemove(t *testing.T) {
	store := setupTestStore(t)

	_, found, err := store.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set("a", []byte(`{"x":1}`)))
	require.NoError(t, store.Set("b", []byte("two")))
	require.NoError(t, store.Set("a", []byte(`{"x":2}`)))

	v, found, err := store.Get("a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"x":2}`, string(v))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, store.Remove("a"))
	require.NoError(t, store.Remove("a"))
	_, found, err = store.Get("a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(Key("w1"), []byte("blob")))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	v, found, err := reopened.Get(Key("w1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "blob", string(v))
	assert.Equal(t, path, reopened.Path())
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, m.Set("k", buf))
	buf[0] = 'z'

	v, found, err := m.Get("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc", string(v))

	require.NoError(t, m.Remove("k"))
	_, found, _ = m.Get("k")
	assert.False(t, found)
}
