package cli

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avivsinai/signalbox/internal/claim"
	"github.com/avivsinai/signalbox/internal/lock"
)

func writeStaleMarker(t *testing.T, root, side, client, stem string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(root, side, client)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, stem+".lock")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
	return path
}

func TestCleanupRequiresDuration(t *testing.T) {
	root := isolate(t)
	_, err := runCLI(t, "", "--root", root, "cleanup")
	require.Equal(t, ExitUsage, GetExitCode(err))
}

func TestCleanupMissingRoot(t *testing.T) {
	root := isolate(t)
	_, err := runCLI(t, "", "--root", filepath.Join(root, "nope"), "cleanup", "--older-than", "1m")
	require.Equal(t, ExitNotFound, GetExitCode(err))
}

func TestCleanupDryRunAndRemove(t *testing.T) {
	root := isolate(t)
	stale := writeStaleMarker(t, root, "received", "alice", "1", time.Hour)
	fresh := writeStaleMarker(t, root, "to-send", "bob", "2", 0)
	writeReceived(t, root, "alice", "1", "guarded")

	out, err := runCLI(t, "", "--root", root, "--json", "cleanup", "--older-than", "10m", "--dry-run")
	require.NoError(t, err)
	res := decodeJSON[cleanupResult](t, out)
	require.True(t, res.DryRun)
	require.Len(t, res.Stale, 1)
	require.Equal(t, stale, res.Stale[0].Path)
	require.Equal(t, "alice", res.Stale[0].Client)
	require.True(t, res.Stale[0].HasPayload)
	require.FileExists(t, stale)

	out, err = runCLI(t, "", "--root", root, "--json", "cleanup", "--older-than", "10m", "--yes")
	require.NoError(t, err)
	res = decodeJSON[cleanupResult](t, out)
	require.Equal(t, 1, res.Removed)
	require.NoFileExists(t, stale)
	require.FileExists(t, fresh)

	// The guarded message is drainable again.
	out, err = runCLI(t, "", "--root", root, "--client", "alice", "drain")
	require.NoError(t, err)
	require.Contains(t, out, "guarded")
}

func TestCleanupDiscardsPartialOutgoingPayload(t *testing.T) {
	root := isolate(t)
	marker := writeStaleMarker(t, root, "to-send", "alice", "1700000000000", time.Hour)
	partial := filepath.Join(root, "to-send", "alice", "1700000000000.signalmessage")
	require.NoError(t, os.WriteFile(partial, []byte("Meet at 5 beh"), 0o644))

	out, err := runCLI(t, "", "--root", root, "--json", "cleanup", "--older-than", "10m", "--yes")
	require.NoError(t, err)
	res := decodeJSON[cleanupResult](t, out)
	require.Equal(t, 1, res.Removed)
	require.Equal(t, 1, res.Discarded)
	require.NoFileExists(t, marker)
	require.NoFileExists(t, partial)

	// Nothing truncated is left for the bridge to send.
	out, err = runCLI(t, "", "--root", root, "--client", "alice", "--json", "pending")
	require.NoError(t, err)
	require.Empty(t, decodeJSON[pendingResult](t, out).Pending)
}

func TestCleanupPrompt(t *testing.T) {
	root := isolate(t)
	stale := writeStaleMarker(t, root, "to-send", "alice", "1", time.Hour)

	out, err := runCLI(t, "n\n", "--root", root, "cleanup", "--older-than", "10m")
	require.NoError(t, err)
	require.Contains(t, out, "Remove 1 stale marker(s)? [y/N]: ")
	require.Contains(t, out, "Aborted.")
	require.FileExists(t, stale)

	out, err = runCLI(t, "yes\n", "--root", root, "cleanup", "--older-than", "10m")
	require.NoError(t, err)
	require.Contains(t, out, "Removed 1 stale marker(s).")
	require.NoFileExists(t, stale)
}

func TestCleanupReleasesSQLiteClaims(t *testing.T) {
	root := isolate(t)
	dbPath := filepath.Join(root, "claims.db")
	db, err := claim.OpenSQLiteDB(dbPath)
	require.NoError(t, err)
	key := filepath.Join(root, "received", "alice", "1")
	ok, err := claim.NewSQLite(db).TryClaim(key)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = db.Exec("UPDATE claims SET claimed_at = ?", time.Now().Add(-time.Hour).UTC())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	args := []string{"--root", root, "--claims", "sqlite", "--claims-db", dbPath, "--json"}
	out, err := runCLI(t, "", append(args, "cleanup", "--older-than", "10m", "--yes")...)
	require.NoError(t, err)
	res := decodeJSON[cleanupResult](t, out)
	require.Equal(t, []string{key}, res.StaleClaims)
	require.Equal(t, 1, res.ReleasedClaims)

	db, err = claim.OpenSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	held, err := claim.NewSQLite(db).Held(key)
	require.NoError(t, err)
	require.False(t, held)
}

func TestCleanupRefusesConcurrentRun(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("advisory locks are a no-op on " + runtime.GOOS)
	}
	root := isolate(t)
	writeStaleMarker(t, root, "to-send", "alice", "1", time.Hour)

	err := lock.WithExclusiveFileLock(filepath.Join(root, cleanupLockName), func() error {
		_, err := runCLI(t, "", "--root", root, "cleanup", "--older-than", "10m", "--yes")
		require.ErrorIs(t, err, lock.ErrLocked)
		require.Contains(t, err.Error(), "another cleanup is running")
		return nil
	})
	require.NoError(t, err)
}
