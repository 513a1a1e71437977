package claim

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/require"

	"github.com/avivsinai/signalbox/internal/storage"
)

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLiteDB(filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLite(db)
}

func TestClaimers(t *testing.T) {
	tests := []struct {
		name string
		make func(t *testing.T) Claimer
	}{
		{"marker", func(t *testing.T) Claimer {
			store := storage.NewMemory()
			require.NoError(t, store.MkdirAll("/mb/received/alice"))
			return NewMarker(store)
		}},
		{"sqlite", func(t *testing.T) Claimer { return newSQLite(t) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.make(t)
			key := "/mb/received/alice/1700000000000"

			ok, err := c.TryClaim(key)
			require.NoError(t, err)
			require.True(t, ok, "first claim should succeed")

			ok, err = c.TryClaim(key)
			require.NoError(t, err)
			require.False(t, ok, "second claim should be refused")

			require.NoError(t, c.Release(key))
			require.NoError(t, c.Release(key), "double release is not an error")

			ok, err = c.TryClaim(key)
			require.NoError(t, err)
			require.True(t, ok, "claim after release should succeed")
		})
	}
}

func TestMarkerCreatesLockFile(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.MkdirAll("/mb"))
	m := NewMarker(store)

	ok, err := m.TryClaim("/mb/42")
	require.NoError(t, err)
	require.True(t, ok)

	exists, err := store.Exists("/mb/42.lock")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, m.Release("/mb/42"))
	exists, err = store.Exists("/mb/42.lock")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestMarkerConcurrentClaims(t *testing.T) {
	dir := t.TempDir()
	m := NewMarker(storage.NewOS())
	key := filepath.Join(dir, "1700000000000")

	var won atomic.Int32
	var wg conc.WaitGroup
	for range 16 {
		wg.Go(func() {
			ok, err := m.TryClaim(key)
			if err == nil && ok {
				won.Add(1)
			}
		})
	}
	wg.Wait()
	require.Equal(t, int32(1), won.Load())
}

func TestSQLiteOwnership(t *testing.T) {
	db, err := OpenSQLiteDB(filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a := NewSQLite(db)
	b := NewSQLite(db)
	require.NotEqual(t, a.Owner(), b.Owner())

	ok, err := a.TryClaim("k")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryClaim("k")
	require.NoError(t, err)
	require.False(t, ok)

	// b cannot release a's claim.
	require.NoError(t, b.Release("k"))
	held, err := a.Held("k")
	require.NoError(t, err)
	require.True(t, held)

	stale, err := a.ClaimedBefore(time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"k"}, stale)

	require.NoError(t, b.ForceRelease("k"))
	held, err = a.Held("k")
	require.NoError(t, err)
	require.False(t, held)
}
