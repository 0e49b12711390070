package crdt

import (
	"encoding/json"
	"fmt"
)

const snapshotVersion = 1

type snapshot struct {
	Version    int         `json:"version"`
	Site       uint32      `json:"site"`
	Clock      uint64      `json:"clock"`
	Characters []Character `json:"characters"`
}

// Snapshot serializes the full replica state, tombstones included, so durable
// positions taken before the snapshot still resolve after Restore.
func (d *Document) Snapshot() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, err := json.Marshal(snapshot{
		Version:    snapshotVersion,
		Site:       d.site,
		Clock:      d.clock,
		Characters: d.chars,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Restore rebuilds a replica from Snapshot output.
func Restore(data []byte) (*Document, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}

	doc := &Document{site: snap.Site, clock: snap.Clock, chars: make([]Character, 0, len(snap.Characters))}
	seen := make(map[ID]struct{}, len(snap.Characters))
	for i, char := range snap.Characters {
		if char.ID.IsZero() {
			return nil, fmt.Errorf("%w: character %d has no id", ErrInvalidSnapshot, i)
		}
		if _, dup := seen[char.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidSnapshot, char.ID)
		}
		seen[char.ID] = struct{}{}
		if char.ID.Clock > doc.clock {
			doc.clock = char.ID.Clock
		}
		if !char.Deleted {
			doc.visible++
		}
		doc.chars = append(doc.chars, char)
	}
	return doc, nil
}
