// Package crdt implements a replicated character sequence in which every character
// keeps a stable identity across edits. Deleted characters stay in the sequence as
// tombstones so positions bound to them can still be located.
//
// Offsets are counted in runes over visible characters.
package crdt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrOutOfRange       = errors.New("crdt: offset out of range")
	ErrUnknownCharacter = errors.New("crdt: unknown character")
	ErrInvalidOp        = errors.New("crdt: invalid operation")
	ErrInvalidSnapshot  = errors.New("crdt: invalid snapshot")
)

// ID identifies a character across all replicas.
type ID struct {
	Site  uint32 `json:"site"`
	Clock uint64 `json:"clock"`
}

// IsZero reports whether id is the document-start reference.
func (id ID) IsZero() bool {
	return id.Clock == 0
}

// Less orders IDs by clock, then site.
func (id ID) Less(other ID) bool {
	if id.Clock != other.Clock {
		return id.Clock < other.Clock
	}
	return id.Site < other.Site
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Site, id.Clock)
}

// Character is one unit of content. Origin is the character it was inserted
// after (zero for the document start).
type Character struct {
	ID      ID   `json:"id"`
	Origin  ID   `json:"origin"`
	Value   rune `json:"value"`
	Deleted bool `json:"deleted,omitempty"`
}

// Document is a replica of a shared text. Every mutation batch runs under the
// write lock, so readers never observe a half-applied batch.
type Document struct {
	mu      sync.RWMutex
	site    uint32
	clock   uint64
	chars   []Character
	visible int
}

// New returns an empty document for replica site.
func New(site uint32) *Document {
	return &Document{site: site}
}

// NewFromText returns a document for replica site holding text.
func NewFromText(site uint32, text string) *Document {
	doc := New(site)
	if text != "" {
		_, _ = doc.Insert(0, text)
	}
	return doc
}

// Site returns the replica identifier used for local inserts.
func (d *Document) Site() uint32 {
	return d.site
}

// Clock returns the replica's Lamport clock.
func (d *Document) Clock() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.clock
}

// Length returns the number of visible characters.
func (d *Document) Length() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.visible
}

// Text returns the visible content.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var b strings.Builder
	b.Grow(d.visible)
	for _, char := range d.chars {
		if !char.Deleted {
			b.WriteRune(char.Value)
		}
	}
	return b.String()
}

// Slice returns the visible content in [from, to).
func (d *Document) Slice(from, to int) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if from < 0 || to < from || to > d.visible {
		return "", fmt.Errorf("%w: [%d, %d) in length %d", ErrOutOfRange, from, to, d.visible)
	}
	var b strings.Builder
	offset := 0
	for _, char := range d.chars {
		if char.Deleted {
			continue
		}
		if offset >= to {
			break
		}
		if offset >= from {
			b.WriteRune(char.Value)
		}
		offset++
	}
	return b.String(), nil
}

// Clone returns an independent replica of d that inserts as site.
func (d *Document) Clone(site uint32) *Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	chars := make([]Character, len(d.chars))
	copy(chars, d.chars)
	return &Document{site: site, clock: d.clock, chars: chars, visible: d.visible}
}

// Compact drops tombstones. Positions bound to dropped characters become
// unresolvable and remote operations referring to them are rejected.
func (d *Document) Compact() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.chars[:0]
	dropped := 0
	for _, char := range d.chars {
		if char.Deleted {
			dropped++
			continue
		}
		kept = append(kept, char)
	}
	d.chars = kept
	return dropped
}

// indexOf returns the sequence index of id or -1.
func (d *Document) indexOf(id ID) int {
	for i := range d.chars {
		if d.chars[i].ID == id {
			return i
		}
	}
	return -1
}

// visibleAt returns the sequence index of the visible character at offset, or
// len(d.chars) when offset equals the visible length.
func (d *Document) visibleAt(offset int) int {
	count := 0
	for i := range d.chars {
		if d.chars[i].Deleted {
			continue
		}
		if count == offset {
			return i
		}
		count++
	}
	return len(d.chars)
}

// visibleBefore counts visible characters before sequence index idx.
func (d *Document) visibleBefore(idx int) int {
	count := 0
	for i := 0; i < idx && i < len(d.chars); i++ {
		if !d.chars[i].Deleted {
			count++
		}
	}
	return count
}
