package mailbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/require"

	"github.com/avivsinai/signalbox/internal/claim"
	"github.com/avivsinai/signalbox/internal/fsq"
	"github.com/avivsinai/signalbox/internal/storage"
)

func TestConcurrentDrainsNeverShareItems(t *testing.T) {
	root := t.TempDir()
	seed, err := New(root, "alice")
	require.NoError(t, err)

	const total = 60
	dir := seed.IncomingDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i := range total {
		name := fmt.Sprintf("%d.signalmessage", 1700000000000+i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(fmt.Sprintf("msg %d", i)), 0o644))
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg conc.WaitGroup
	for range 8 {
		wg.Go(func() {
			// Each goroutine plays a separate consumer process.
			mb, err := New(root, "alice")
			if err != nil {
				t.Errorf("New: %v", err)
				return
			}
			for {
				items, err := mb.DrainIncoming("")
				if err != nil {
					t.Errorf("DrainIncoming: %v", err)
					return
				}
				if len(items) == 0 {
					return
				}
				mu.Lock()
				for _, item := range items {
					seen[item.Timestamp]++
				}
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	require.Len(t, seen, total)
	for ts, n := range seen {
		require.Equal(t, 1, n, "item %s returned %d times", ts, n)
	}
	require.Empty(t, dirNames(t, dir))
}

func TestDrainWithSQLiteClaimer(t *testing.T) {
	root := t.TempDir()
	db, err := claim.OpenSQLiteDB(filepath.Join(root, "claims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	claimer := claim.NewSQLite(db)
	mb, err := New(root, "alice", WithClaimer(claimer))
	require.NoError(t, err)

	writeIncoming(t, storage.NewOS(), mb, "1", "one")
	writeIncoming(t, storage.NewOS(), mb, "2", "two")

	// Another consumer sharing the database holds item 2.
	other := claim.NewSQLite(db)
	ok, err := other.TryClaim(filepath.Join(mb.IncomingDir(), "2"))
	require.NoError(t, err)
	require.True(t, ok)

	report, err := mb.Drain("")
	require.NoError(t, err)
	require.Equal(t, []Incoming{{Timestamp: "1", Body: "one"}}, report.Accepted())
	require.Equal(t, 1, report.Count(OutcomeDeferred))

	// No marker files are written with the SQLite backend.
	require.Equal(t, []string{"2.signalmessage"}, dirNames(t, mb.IncomingDir()))

	held, err := claimer.Held(filepath.Join(mb.IncomingDir(), "1"))
	require.NoError(t, err)
	require.False(t, held, "claim is released after acceptance")

	// Outgoing still uses marker files and leaves none behind.
	stem, err := mb.EnqueueMessage("out")
	require.NoError(t, err)
	require.Equal(t, []string{stem + ".signalmessage"}, dirNames(t, mb.OutgoingDir()))
}

// faultyStorage fails reads and removes of selected file names.
type faultyStorage struct {
	*storage.FS
	failRead   string
	failRemove string
}

var errInjected = errors.New("injected failure")

func (f *faultyStorage) ReadFile(path string) ([]byte, error) {
	if filepath.Base(path) == f.failRead {
		return nil, errInjected
	}
	return f.FS.ReadFile(path)
}

func (f *faultyStorage) Remove(path string) error {
	if filepath.Base(path) == f.failRemove {
		return errInjected
	}
	return f.FS.Remove(path)
}

func TestDrainContinuesPastUnreadableEntry(t *testing.T) {
	store := &faultyStorage{FS: storage.NewMemory(), failRead: "2.signalmessage"}
	mb, err := New("/mb", "alice", WithStorage(store))
	require.NoError(t, err)
	for _, stem := range []string{"1", "2", "3"} {
		writeIncoming(t, store, mb, stem, "m"+stem)
	}

	report, err := mb.Drain("")
	require.NoError(t, err)
	require.Len(t, report.Accepted(), 2)
	require.Equal(t, 1, report.Count(OutcomeMalformed))

	bad := report.Results[1]
	require.Equal(t, "2", bad.Timestamp)
	require.Equal(t, OutcomeMalformed, bad.Outcome)
	require.True(t, strings.Contains(bad.Reason, "injected"), bad.Reason)

	// The unreadable item is released and left for a later attempt.
	exists, err := store.Exists(filepath.Join(mb.IncomingDir(), "2.lock"))
	require.NoError(t, err)
	require.False(t, exists)
	exists, err = store.Exists(filepath.Join(mb.IncomingDir(), "2.signalmessage"))
	require.NoError(t, err)
	require.True(t, exists)
}

func TestDrainKeepsClaimWhenPayloadCannotBeRemoved(t *testing.T) {
	store := &faultyStorage{FS: storage.NewMemory(), failRemove: "1.signalmessage"}
	mb, err := New("/mb", "alice", WithStorage(store))
	require.NoError(t, err)
	writeIncoming(t, store, mb, "1", "stuck")

	report, err := mb.Drain("")
	require.NoError(t, err)
	require.Empty(t, report.Accepted())
	require.Equal(t, OutcomeMalformed, report.Results[0].Outcome)

	// The marker stays so the item cannot be handed out a second time.
	items, err := mb.DrainIncoming("")
	require.NoError(t, err)
	require.Empty(t, items)
	exists, err := store.Exists(filepath.Join(mb.IncomingDir(), "1.lock"))
	require.NoError(t, err)
	require.True(t, exists)
}

func TestPending(t *testing.T) {
	mb, store := newMemMailbox(t, "alice", WithClock(fixedClock))

	msgStem, err := mb.EnqueueMessage("hi")
	require.NoError(t, err)
	replyStem, err := mb.EnqueueReply("thanks", "1699999999999")
	require.NoError(t, err)

	// Simulate an enqueue still in flight.
	dir := mb.OutgoingDir()
	require.NoError(t, store.CreateExclusive(filepath.Join(dir, "1800000000000.lock"), nil))
	require.NoError(t, store.CreateExclusive(filepath.Join(dir, "1800000000000.signalattachment"), []byte("/partial")))

	pending, err := mb.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 3)

	require.Equal(t, msgStem, pending[0].Timestamp)
	require.Equal(t, fsq.KindMessage, pending[0].Kind)
	require.True(t, pending[0].Ready)
	require.Equal(t, "hi", pending[0].Payload)

	require.Equal(t, replyStem, pending[1].Timestamp)
	require.Equal(t, fsq.KindReply, pending[1].Kind)
	require.Equal(t, "1699999999999", pending[1].QuotedTimestamp)
	require.Equal(t, "thanks", pending[1].ReplyBody)

	require.Equal(t, "1800000000000", pending[2].Timestamp)
	require.False(t, pending[2].Ready)
	require.Empty(t, pending[2].Payload, "in-flight payloads are not read")
}

func TestPendingMissingDirectory(t *testing.T) {
	mb, _ := newMemMailbox(t, "alice")
	pending, err := mb.Pending()
	require.NoError(t, err)
	require.Empty(t, pending)
}
