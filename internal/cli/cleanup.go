package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/avivsinai/signalbox/internal/claim"
	"github.com/avivsinai/signalbox/internal/config"
	"github.com/avivsinai/signalbox/internal/fsq"
	"github.com/avivsinai/signalbox/internal/lock"
	"github.com/avivsinai/signalbox/internal/storage"
)

const cleanupLockName = ".cleanup.lock"

type cleanupResult struct {
	Stale          []fsq.StaleMarker `json:"stale"`
	StaleClaims    []string          `json:"stale_claims,omitempty"`
	Removed        int               `json:"removed"`
	Discarded      int               `json:"discarded,omitempty"`
	ReleasedClaims int               `json:"released_claims,omitempty"`
	DryRun         bool              `json:"dry_run"`
}

func (a *app) cleanupCmd() *cobra.Command {
	var olderThan time.Duration
	var dryRun, yes bool

	cmd := &cobra.Command{
		Use:   "cleanup --older-than <duration>",
		Short: "Remove .lock markers left behind by crashed processes",
		Long: `Find .lock markers under every client of to-send/ and received/ that are
older than --older-than and remove them, so the items they guard can be
drained again. A stale to-send marker next to a payload means the enqueue
died mid-write: the payload may be truncated, so it is deleted along with
the marker instead of being released to the bridge. With the sqlite claim
backend, stale claim rows are released too.

Only one cleanup runs at a time per root.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return UsageError("--older-than must be > 0")
			}
			root := a.cfg.Root
			if !dirExists(root) {
				return NotFoundError("messages root not found: %s", root)
			}

			err := lock.TryExclusiveFileLock(filepath.Join(root, cleanupLockName), func() error {
				return a.cleanup(root, time.Now().Add(-olderThan), dryRun, yes)
			})
			if errors.Is(err, lock.ErrLocked) {
				return fmt.Errorf("another cleanup is running: %w", err)
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum marker age, e.g. 10m")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be removed without removing it")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

func (a *app) cleanup(root string, cutoff time.Time, dryRun, yes bool) error {
	store := storage.NewOS()
	stale, err := fsq.FindStaleMarkers(store, root, cutoff)
	if err != nil {
		return err
	}

	var claims *claim.SQLite
	var staleClaims []string
	if a.cfg.Claims.Backend == config.BackendSQLite && fileExists(a.cfg.ClaimsDBPath()) {
		db, err := claim.OpenSQLiteDB(a.cfg.ClaimsDBPath())
		if err != nil {
			return err
		}
		defer closeDB(db, a.logger)
		claims = claim.NewSQLite(db)
		if staleClaims, err = claims.ClaimedBefore(cutoff); err != nil {
			return err
		}
	}

	res := cleanupResult{Stale: stale, StaleClaims: staleClaims, DryRun: dryRun}
	total := len(stale) + len(staleClaims)
	if total == 0 {
		if a.jsonOut {
			return writeJSON(a.out, res)
		}
		return a.println("No stale markers.")
	}

	if dryRun {
		if a.jsonOut {
			return writeJSON(a.out, res)
		}
		if err := a.printf("Would remove %d stale marker(s).\n", total); err != nil {
			return err
		}
		return a.listStale(stale, staleClaims)
	}

	if !yes {
		if err := a.listStale(stale, staleClaims); err != nil {
			return err
		}
		ok, err := a.confirm(fmt.Sprintf("Remove %d stale marker(s)?", total))
		if err != nil {
			return err
		}
		if !ok {
			return a.println("Aborted.")
		}
	}

	for _, m := range stale {
		if m.Partial() {
			// The payload goes first; the marker keeps guarding it until then.
			for _, path := range m.Payloads {
				if err := store.Remove(path); err != nil && !storage.IsNotExist(err) {
					return err
				}
				a.logger.Warn("discarded partial payload", "path", path)
				res.Discarded++
			}
		}
		if err := store.Remove(m.Path); err != nil {
			if storage.IsNotExist(err) {
				continue // released by its owner since the scan
			}
			return err
		}
		a.logger.Info("removed stale marker", "path", m.Path, "has_payload", m.HasPayload)
		res.Removed++
	}
	for _, key := range staleClaims {
		if err := claims.ForceRelease(key); err != nil {
			return err
		}
		a.logger.Info("released stale claim", "key", key)
		res.ReleasedClaims++
	}

	if a.jsonOut {
		return writeJSON(a.out, res)
	}
	if err := a.printf("Removed %d stale marker(s).\n", res.Removed+res.ReleasedClaims); err != nil {
		return err
	}
	if res.Discarded > 0 {
		return a.printf("Discarded %d partially written outgoing payload(s).\n", res.Discarded)
	}
	return nil
}

func (a *app) listStale(stale []fsq.StaleMarker, staleClaims []string) error {
	for _, m := range stale {
		state := "orphan"
		switch {
		case m.Partial():
			state = "partial payload"
		case m.HasPayload:
			state = "guards payload"
		}
		age := time.Since(m.ModTime).Round(time.Second)
		if err := a.printf("%s\t%s\t%s\n", m.Path, yellow.Sprint(state), faint.Sprint(age)); err != nil {
			return err
		}
	}
	for _, key := range staleClaims {
		if err := a.printf("%s\t%s\n", key, yellow.Sprint("sqlite claim")); err != nil {
			return err
		}
	}
	return nil
}
