package fsq

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/avivsinai/signalbox/internal/storage"
)

// StaleMarker is a lock marker left behind longer than a cleanup cutoff,
// usually by a process that died between claiming and releasing.
type StaleMarker struct {
	Path       string    `json:"path"`
	Side       string    `json:"side"`
	Client     string    `json:"client"`
	Stem       string    `json:"stem"`
	HasPayload bool      `json:"has_payload"`
	Payloads   []string  `json:"payloads,omitempty"`
	ModTime    time.Time `json:"mod_time"`
}

// Partial reports whether the marker guards a payload that may be incomplete.
// On the to-send side the marker is only removed once the payload is fully
// written, so a payload next to a stale marker there is from a crashed enqueue.
func (m StaleMarker) Partial() bool {
	return m.Side == DirToSend && m.HasPayload
}

// ListClients returns the client directories present under root/<side>.
func ListClients(store storage.Storage, root, side string) ([]string, error) {
	entries, err := store.List(filepath.Join(root, side))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir {
			out = append(out, entry.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FindStaleMarkers scans every client directory on both sides for .lock files
// last modified before cutoff.
func FindStaleMarkers(store storage.Storage, root string, cutoff time.Time) ([]StaleMarker, error) {
	matches := []StaleMarker{}
	for _, side := range []string{DirToSend, DirReceived} {
		clients, err := ListClients(store, root, side)
		if err != nil {
			if storage.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, client := range clients {
			dir := filepath.Join(root, side, client)
			found, err := scanMarkers(store, dir, side, client, cutoff)
			if err != nil {
				return nil, err
			}
			matches = append(matches, found...)
		}
	}
	return matches, nil
}

func scanMarkers(store storage.Storage, dir, side, client string, cutoff time.Time) ([]StaleMarker, error) {
	entries, err := store.List(dir)
	if err != nil {
		if storage.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		names[entry.Name] = struct{}{}
	}

	var out []StaleMarker
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		stem, ext := SplitName(entry.Name)
		if ext != ExtLock || !entry.ModTime.Before(cutoff) {
			continue
		}
		payloads := payloadsFor(names, dir, stem)
		out = append(out, StaleMarker{
			Path:       filepath.Join(dir, entry.Name),
			Side:       side,
			Client:     client,
			Stem:       stem,
			HasPayload: len(payloads) > 0,
			Payloads:   payloads,
			ModTime:    entry.ModTime,
		})
	}
	return out, nil
}

func payloadsFor(names map[string]struct{}, dir, stem string) []string {
	var out []string
	for _, kind := range []Kind{KindMessage, KindAttachment, KindReply} {
		name := PayloadName(stem, kind)
		if _, ok := names[name]; ok {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}
