// Package watch runs a callback whenever new files land in a directory.
package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultDebounce     = 50 * time.Millisecond
)

// Config controls Run.
type Config struct {
	Dir          string
	Poll         bool          // force polling instead of fsnotify
	PollInterval time.Duration // tick for polling mode
	Debounce     time.Duration // coalesce bursts of fsnotify events
	Logger       *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Run calls fn once and then again each time a file is created in or renamed
// into cfg.Dir. It uses fsnotify unless cfg.Poll is set, and falls back to
// polling when the watcher cannot be created or Dir cannot be watched (for
// example because it does not exist yet). Run never creates Dir.
//
// Run returns ctx.Err() on cancellation, or the first error fn returns.
func Run(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()
	if cfg.Poll {
		return runPolling(ctx, cfg, fn)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cfg.Logger.Warn("fsnotify unavailable, falling back to polling", "error", err)
		return runPolling(ctx, cfg, fn)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(cfg.Dir); err != nil {
		cfg.Logger.Info("cannot watch directory, falling back to polling", "dir", cfg.Dir, "error", err)
		return runPolling(ctx, cfg, fn)
	}
	cfg.Logger.Debug("watching", "dir", cfg.Dir, "mode", "fsnotify")

	// Files that arrived before Add produce no event.
	if err := fn(ctx); err != nil {
		return err
	}

	trigger := make(chan struct{}, 1)
	var mu sync.Mutex
	var timer *time.Timer
	resetDebounce := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(cfg.Debounce, func() {
			select {
			case trigger <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) != 0 {
				resetDebounce()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			cfg.Logger.Warn("watcher error", "error", err)

		case <-trigger:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}

func runPolling(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	cfg.Logger.Debug("watching", "dir", cfg.Dir, "mode", "polling", "interval", cfg.PollInterval)
	if err := fn(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}
