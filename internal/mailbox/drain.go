package mailbox

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/avivsinai/signalbox/internal/fsq"
	"github.com/avivsinai/signalbox/internal/storage"
)

// DrainIncoming consumes every received message addressed to prefix and
// returns them. An empty prefix accepts every message. A missing received
// directory yields no items and is not created.
func (m *Mailbox) DrainIncoming(prefix string) ([]Incoming, error) {
	report, err := m.Drain(prefix)
	if err != nil {
		return nil, err
	}
	return report.Accepted(), nil
}

// Drain is DrainIncoming with a per-entry account of what happened. Failures
// on single entries are recorded as malformed and do not stop the drain; only
// a failure to list the directory is returned as an error.
func (m *Mailbox) Drain(prefix string) (DrainReport, error) {
	dir := m.IncomingDir()
	entries, err := m.store.List(dir)
	if err != nil {
		if storage.IsNotExist(err) {
			return DrainReport{Results: []EntryResult{}}, nil
		}
		return DrainReport{}, fmt.Errorf("list %s: %w", dir, err)
	}

	results := make([]EntryResult, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		stem, ext := fsq.SplitName(entry.Name)
		if ext != fsq.ExtMessage {
			continue
		}
		res := m.drainEntry(dir, entry.Name, stem, prefix)
		m.logResult(res)
		results = append(results, res)
	}

	if m.sortByStem {
		sort.SliceStable(results, func(i, j int) bool {
			return lessStem(results[i].Timestamp, results[j].Timestamp)
		})
	}
	return DrainReport{Results: results}, nil
}

func (m *Mailbox) drainEntry(dir, name, stem, prefix string) EntryResult {
	res := EntryResult{Name: name, Timestamp: stem}
	if stem == "" {
		res.Outcome = OutcomeMalformed
		res.Reason = "empty timestamp"
		return res
	}

	key := filepath.Join(dir, stem)
	ok, err := m.inbound.TryClaim(key)
	if err != nil {
		res.Outcome = OutcomeMalformed
		res.Reason = err.Error()
		return res
	}
	if !ok {
		res.Outcome = OutcomeDeferred
		res.Reason = ReasonClaimed
		return res
	}

	path := filepath.Join(dir, name)
	data, err := m.store.ReadFile(path)
	if err != nil {
		m.release(key)
		if storage.IsNotExist(err) {
			// Consumed by another drain between our listing and our claim.
			res.Outcome = OutcomeDeferred
			res.Reason = ReasonGone
			return res
		}
		res.Outcome = OutcomeMalformed
		res.Reason = fmt.Sprintf("read: %v", err)
		return res
	}
	body := string(data)

	if !MatchesPrefix(body, prefix) {
		m.release(key)
		res.Outcome = OutcomeDeferred
		res.Reason = ReasonPrefixMismatch
		return res
	}

	if err := m.store.Remove(path); err != nil {
		// Keep the claim: releasing it would let the item be consumed twice.
		res.Outcome = OutcomeMalformed
		res.Reason = fmt.Sprintf("remove payload: %v", err)
		return res
	}
	m.release(key)

	res.Outcome = OutcomeAccepted
	res.Item = &Incoming{Timestamp: stem, Body: body}
	return res
}

func (m *Mailbox) release(key string) {
	if err := m.inbound.Release(key); err != nil {
		m.logger.Warn("release claim failed", "key", key, "error", err)
	}
}

func (m *Mailbox) logResult(res EntryResult) {
	switch res.Outcome {
	case OutcomeAccepted:
		m.logger.Debug("drained", "timestamp", res.Timestamp)
	case OutcomeDeferred:
		m.logger.Debug("deferred", "timestamp", res.Timestamp, "reason", res.Reason)
	case OutcomeMalformed:
		m.logger.Warn("skipped malformed entry", "name", res.Name, "reason", res.Reason)
	}
}
