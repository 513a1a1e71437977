package mailbox

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/avivsinai/signalbox/internal/claim"
	"github.com/avivsinai/signalbox/internal/fsq"
	"github.com/avivsinai/signalbox/internal/storage"
)

// Mailbox is one client's view of the messages folder.
type Mailbox struct {
	root   string
	client string

	store      storage.Storage
	outbound   claim.Claimer
	inbound    claim.Claimer
	now        func() time.Time
	maxRetries int
	sortByStem bool
	logger     *slog.Logger
}

// New returns a Mailbox for client under root. Nothing is created on disk
// until the first enqueue.
func New(root, client string, opts ...Option) (*Mailbox, error) {
	if err := fsq.ValidateClient(client); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClient, err)
	}
	if root == "" {
		return nil, fmt.Errorf("mailbox: messages root is required")
	}
	m := &Mailbox{
		root:       root,
		client:     client,
		store:      storage.NewOS(),
		now:        time.Now,
		maxRetries: DefaultMaxCollisionRetries,
		sortByStem: true,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.outbound = claim.NewMarker(m.store)
	if m.inbound == nil {
		m.inbound = m.outbound
	}
	m.logger = m.logger.With("component", "mailbox", "client", client)
	return m, nil
}

// Root returns the messages root.
func (m *Mailbox) Root() string {
	return m.root
}

// Client returns the client id.
func (m *Mailbox) Client() string {
	return m.client
}

// OutgoingDir returns <root>/to-send/<client>.
func (m *Mailbox) OutgoingDir() string {
	return fsq.ToSendDir(m.root, m.client)
}

// IncomingDir returns <root>/received/<client>.
func (m *Mailbox) IncomingDir() string {
	return fsq.ReceivedDir(m.root, m.client)
}
