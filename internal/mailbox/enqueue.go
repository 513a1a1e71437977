package mailbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/avivsinai/signalbox/internal/fsq"
	"github.com/avivsinai/signalbox/internal/storage"
)

// EnqueueMessage queues text for sending and returns the timestamp stem used.
func (m *Mailbox) EnqueueMessage(text string) (string, error) {
	return m.enqueue(fsq.KindMessage, []byte(text))
}

// EnqueueAttachment queues the file at path for sending. Only the path is
// stored; the bridge reads the file itself.
func (m *Mailbox) EnqueueAttachment(path string) (string, error) {
	return m.enqueue(fsq.KindAttachment, []byte(path))
}

// EnqueueReply queues reply as a quote of the message stamped quotedTimestamp.
func (m *Mailbox) EnqueueReply(reply, quotedTimestamp string) (string, error) {
	return m.enqueue(fsq.KindReply, []byte(FormatReply(reply, quotedTimestamp)))
}

func (m *Mailbox) enqueue(kind fsq.Kind, payload []byte) (string, error) {
	dir := m.OutgoingDir()
	if err := m.store.MkdirAll(dir); err != nil {
		return "", fmt.Errorf("create outgoing dir: %w", err)
	}

	base := m.now().UnixMilli()
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		stem := strconv.FormatInt(base+int64(attempt), 10)
		err := m.write(dir, stem, kind, payload)
		if err == nil {
			m.logger.Debug("enqueued", "kind", kind.String(), "timestamp", stem, "bytes", len(payload))
			return stem, nil
		}
		if !errors.Is(err, ErrCollision) {
			return "", err
		}
		m.logger.Debug("timestamp collision", "kind", kind.String(), "timestamp", stem, "attempt", attempt)
	}
	return "", fmt.Errorf("%w: %d stems from %d taken in %s", ErrCollision, m.maxRetries+1, base, dir)
}

// write performs one marker -> payload -> unmarker cycle for stem.
func (m *Mailbox) write(dir, stem string, kind fsq.Kind, payload []byte) error {
	key := filepath.Join(dir, stem)
	ok, err := m.outbound.TryClaim(key)
	if err != nil {
		return fmt.Errorf("claim %s: %w", stem, err)
	}
	if !ok {
		return ErrCollision
	}

	taken, err := m.stemTaken(dir, stem)
	if err != nil {
		return m.abort(key, fmt.Errorf("check %s: %w", stem, err))
	}
	if taken {
		return m.abort(key, ErrCollision)
	}

	path := filepath.Join(dir, fsq.PayloadName(stem, kind))
	if err := m.store.CreateExclusive(path, payload); err != nil {
		if storage.IsExist(err) {
			return m.abort(key, ErrCollision)
		}
		return m.abort(key, fmt.Errorf("write %s: %w", filepath.Base(path), err))
	}

	if err := m.outbound.Release(key); err != nil {
		return fmt.Errorf("release %s: %w", stem, err)
	}
	return nil
}

// abort releases the marker for key and returns primary, joined with any
// release failure.
func (m *Mailbox) abort(key string, primary error) error {
	if err := m.outbound.Release(key); err != nil {
		return errors.Join(primary, err)
	}
	return primary
}

// stemTaken reports whether a payload of any kind already uses stem. Callers
// hold the stem's marker, so no other enqueue can race the check.
func (m *Mailbox) stemTaken(dir, stem string) (bool, error) {
	for _, kind := range []fsq.Kind{fsq.KindMessage, fsq.KindAttachment, fsq.KindReply} {
		ok, err := m.store.Exists(filepath.Join(dir, fsq.PayloadName(stem, kind)))
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
