package mailbox

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/avivsinai/signalbox/internal/fsq"
	"github.com/avivsinai/signalbox/internal/storage"
)

// Pending lists the items in to-send/<client>/ that the bridge has not picked
// up yet, oldest first. Items whose marker is still present are reported with
// Ready false and must not be sent.
func (m *Mailbox) Pending() ([]Outgoing, error) {
	dir := m.OutgoingDir()
	entries, err := m.store.List(dir)
	if err != nil {
		if storage.IsNotExist(err) {
			return []Outgoing{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	markers := make(map[string]struct{})
	for _, entry := range entries {
		if stem, ext := fsq.SplitName(entry.Name); ext == fsq.ExtLock {
			markers[stem] = struct{}{}
		}
	}

	out := make([]Outgoing, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		stem, ext := fsq.SplitName(entry.Name)
		kind := fsq.KindForExt(ext)
		if kind == fsq.KindUnknown {
			continue
		}
		_, locked := markers[stem]
		item := Outgoing{
			Timestamp: stem,
			Kind:      kind,
			Path:      filepath.Join(dir, entry.Name),
			Ready:     !locked,
		}
		if item.Ready {
			data, err := m.store.ReadFile(item.Path)
			if err != nil {
				if storage.IsNotExist(err) {
					continue // picked up while we were listing
				}
				return nil, fmt.Errorf("read %s: %w", entry.Name, err)
			}
			item.Payload = string(data)
			if kind == fsq.KindReply {
				item.QuotedTimestamp, item.ReplyBody = ParseReply(item.Payload)
			}
		}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return lessStem(out[i].Timestamp, out[j].Timestamp)
	})
	return out, nil
}
