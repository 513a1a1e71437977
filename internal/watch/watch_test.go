package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countCalls returns a callback that reports each call on the returned channel.
func countCalls() (func(context.Context) error, <-chan struct{}) {
	calls := make(chan struct{}, 64)
	return func(context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil
	}, calls
}

func waitCall(t *testing.T, calls <-chan struct{}) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func startRun(t *testing.T, cfg Config, fn func(context.Context) error) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, fn) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestRunFsnotifyCallsOnNewFile(t *testing.T) {
	dir := t.TempDir()
	fn, calls := countCalls()
	cancel, done := startRun(t, Config{Dir: dir, Debounce: 10 * time.Millisecond}, fn)

	waitCall(t, calls)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.signalmessage"), []byte("hi"), 0o644))
	waitCall(t, calls)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRunPollingCallsRepeatedly(t *testing.T) {
	dir := t.TempDir()
	fn, calls := countCalls()
	cancel, done := startRun(t, Config{Dir: dir, Poll: true, PollInterval: 10 * time.Millisecond}, fn)

	for range 3 {
		waitCall(t, calls)
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRunMissingDirFallsBackWithoutCreating(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "received", "alice")
	fn, calls := countCalls()
	cancel, done := startRun(t, Config{Dir: dir, PollInterval: 10 * time.Millisecond}, fn)

	// Polling keeps firing even though nothing can be watched.
	waitCall(t, calls)
	waitCall(t, calls)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err), "watch must not create %s", dir)
}

func TestRunStopsOnCallbackError(t *testing.T) {
	boom := errors.New("boom")
	for _, poll := range []bool{false, true} {
		err := Run(context.Background(), Config{Dir: t.TempDir(), Poll: poll}, func(context.Context) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
	}
}
