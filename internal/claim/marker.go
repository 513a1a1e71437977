package claim

import (
	"fmt"

	"github.com/avivsinai/signalbox/internal/fsq"
	"github.com/avivsinai/signalbox/internal/storage"
)

// Marker claims keys by atomically creating an empty "<key>.lock" file.
type Marker struct {
	store storage.Storage
}

// NewMarker returns a Marker claimer writing through store.
func NewMarker(store storage.Storage) *Marker {
	return &Marker{store: store}
}

// MarkerPath returns the marker file guarding key.
func MarkerPath(key string) string {
	return fsq.MarkerName(key)
}

func (m *Marker) TryClaim(key string) (bool, error) {
	if err := m.store.CreateExclusive(MarkerPath(key), nil); err != nil {
		if storage.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("create marker: %w", err)
	}
	return true, nil
}

func (m *Marker) Release(key string) error {
	if err := m.store.Remove(MarkerPath(key)); err != nil && !storage.IsNotExist(err) {
		return fmt.Errorf("remove marker: %w", err)
	}
	return nil
}
