package crdt

import (
	"fmt"

	"marginalia/api/internal/anchor"
)

var (
	_ anchor.Tracked       = (*Document)(nil)
	_ anchor.RangeResolver = (*Document)(nil)
)

// ToDurablePosition binds offset to a character. Right-sticky positions bind to
// the character at offset and follow it; left-sticky ones bind to the character
// before offset. Offsets at the document edges bind to the edge itself.
func (d *Document) ToDurablePosition(offset int, assoc anchor.Assoc) (anchor.DurablePosition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if offset < 0 || offset > d.visible {
		return anchor.DurablePosition{}, fmt.Errorf("%w: position %d in length %d", ErrOutOfRange, offset, d.visible)
	}
	if assoc == anchor.StickLeft {
		if offset == 0 {
			return anchor.StartPosition(assoc), nil
		}
		id := d.chars[d.visibleAt(offset-1)].ID
		return anchor.CharacterPosition(id.Site, id.Clock, assoc), nil
	}
	if offset == d.visible {
		return anchor.EndPosition(assoc), nil
	}
	id := d.chars[d.visibleAt(offset)].ID
	return anchor.CharacterPosition(id.Site, id.Clock, assoc), nil
}

// ResolveDurablePosition returns the current offset of pos. A deleted character
// resolves to where it used to sit. Characters this replica has never seen, or
// has compacted away, are not found.
func (d *Document) ResolveDurablePosition(pos anchor.DurablePosition) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.resolvePosition(pos)
}

// ResolveRange resolves both ends of a range and reads the length under one
// read lock, so the result always reflects a single document state.
func (d *Document) ResolveRange(from, to anchor.DurablePosition) (int, int, int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	fromOffset, ok := d.resolvePosition(from)
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: from %s", anchor.ErrUnresolvable, from)
	}
	toOffset, ok := d.resolvePosition(to)
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: to %s", anchor.ErrUnresolvable, to)
	}
	return fromOffset, toOffset, d.visible, nil
}

func (d *Document) resolvePosition(pos anchor.DurablePosition) (int, bool) {
	switch pos.Kind {
	case anchor.KindStart:
		return 0, true
	case anchor.KindEnd:
		return d.visible, true
	case anchor.KindCharacter:
	default:
		return 0, false
	}

	idx := d.indexOf(ID{Site: pos.Site, Clock: pos.Clock})
	if idx < 0 {
		return 0, false
	}
	offset := d.visibleBefore(idx)
	if pos.Assoc == anchor.StickLeft && !d.chars[idx].Deleted {
		offset++
	}
	return offset, true
}
