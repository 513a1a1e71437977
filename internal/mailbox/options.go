package mailbox

import (
	"log/slog"
	"time"

	"github.com/avivsinai/signalbox/internal/claim"
	"github.com/avivsinai/signalbox/internal/storage"
)

// DefaultMaxCollisionRetries is how many later milliseconds an enqueue tries
// after its first stem is taken.
const DefaultMaxCollisionRetries = 8

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithStorage replaces the default OS-backed storage.
func WithStorage(store storage.Storage) Option {
	return func(m *Mailbox) {
		if store != nil {
			m.store = store
		}
	}
}

// WithClaimer sets the claimer used for incoming items. Outgoing items always
// use marker files because the bridge watches for them.
//
// Claims only exclude consumers using the same claimer. A claim.SQLite claimer
// writes no .lock files, so every consumer of the received directory must
// share its database; a marker-based consumer on the same directory is not
// excluded and may take the same item.
func WithClaimer(c claim.Claimer) Option {
	return func(m *Mailbox) {
		if c != nil {
			m.inbound = c
		}
	}
}

// WithClock overrides the time source used to stamp outgoing items.
func WithClock(now func() time.Time) Option {
	return func(m *Mailbox) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMaxCollisionRetries bounds stem re-sampling on collision. Zero makes a
// collision fail immediately. Negative values are ignored.
func WithMaxCollisionRetries(n int) Option {
	return func(m *Mailbox) {
		if n >= 0 {
			m.maxRetries = n
		}
	}
}

// WithDirectoryOrder returns drained items in directory enumeration order
// instead of sorting them by timestamp.
func WithDirectoryOrder() Option {
	return func(m *Mailbox) {
		m.sortByStem = false
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mailbox) {
		if logger != nil {
			m.logger = logger
		}
	}
}
