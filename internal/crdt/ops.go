package crdt

import (
	"fmt"
	"unicode/utf8"
)

type OpKind string

const (
	OpInsert OpKind = "insert"
	OpDelete OpKind = "delete"
)

// Op is a replicated edit. Inserts carry the new character's ID, its origin and
// its value; deletes carry the ID of the removed character.
type Op struct {
	Kind   OpKind `json:"kind"`
	ID     ID     `json:"id"`
	Origin ID     `json:"origin"`
	Value  string `json:"value,omitempty"`
}

// Tx is a batch of local edits applied atomically by Document.Batch.
type Tx struct {
	doc *Document
	ops []Op
}

// Length returns the visible length including edits made so far in the batch.
func (tx *Tx) Length() int {
	return tx.doc.visible
}

// Insert inserts text before the visible character at offset.
func (tx *Tx) Insert(offset int, text string) error {
	d := tx.doc
	if offset < 0 || offset > d.visible {
		return fmt.Errorf("%w: insert at %d in length %d", ErrOutOfRange, offset, d.visible)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidOp)
	}
	var origin ID
	if offset > 0 {
		origin = d.chars[d.visibleAt(offset-1)].ID
	}
	for _, r := range text {
		d.clock++
		op := Op{Kind: OpInsert, ID: ID{Site: d.site, Clock: d.clock}, Origin: origin, Value: string(r)}
		if err := d.integrate(op); err != nil {
			return err
		}
		tx.ops = append(tx.ops, op)
		origin = op.ID
	}
	return nil
}

// Delete removes count visible characters starting at offset.
func (tx *Tx) Delete(offset, count int) error {
	d := tx.doc
	if offset < 0 || count < 0 || offset+count > d.visible {
		return fmt.Errorf("%w: delete [%d, %d) in length %d", ErrOutOfRange, offset, offset+count, d.visible)
	}
	for i := 0; i < count; i++ {
		idx := d.visibleAt(offset)
		op := Op{Kind: OpDelete, ID: d.chars[idx].ID}
		d.chars[idx].Deleted = true
		d.visible--
		tx.ops = append(tx.ops, op)
	}
	return nil
}

// Batch runs fn as one atomic edit. If fn fails, every edit it made is rolled
// back and no operations are returned.
func (d *Document) Batch(fn func(tx *Tx) error) ([]Op, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	restore := d.checkpoint()
	tx := &Tx{doc: d}
	if err := fn(tx); err != nil {
		restore()
		return nil, err
	}
	return tx.ops, nil
}

// Insert inserts text at offset and returns the operations to replicate.
func (d *Document) Insert(offset int, text string) ([]Op, error) {
	return d.Batch(func(tx *Tx) error {
		return tx.Insert(offset, text)
	})
}

// Delete removes count characters at offset and returns the operations to replicate.
func (d *Document) Delete(offset, count int) ([]Op, error) {
	return d.Batch(func(tx *Tx) error {
		return tx.Delete(offset, count)
	})
}

// Apply merges remote operations. Operations already seen are ignored, so
// delivery may repeat. Inserts must arrive after their origin. The whole call is
// atomic: on error nothing is applied.
func (d *Document) Apply(ops ...Op) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	restore := d.checkpoint()
	for i, op := range ops {
		var err error
		switch op.Kind {
		case OpInsert:
			err = d.integrate(op)
		case OpDelete:
			err = d.tombstone(op.ID)
		default:
			err = fmt.Errorf("%w: kind %q", ErrInvalidOp, op.Kind)
		}
		if err != nil {
			restore()
			return fmt.Errorf("apply op %d: %w", i, err)
		}
	}
	return nil
}

func (d *Document) checkpoint() func() {
	chars := make([]Character, len(d.chars))
	copy(chars, d.chars)
	clock, visible := d.clock, d.visible
	return func() {
		d.chars, d.clock, d.visible = chars, clock, visible
	}
}

// integrate places an insert right after its origin, skipping concurrent
// siblings with a greater ID so every replica converges on the same order.
func (d *Document) integrate(op Op) error {
	if op.ID.IsZero() {
		return fmt.Errorf("%w: insert without id", ErrInvalidOp)
	}
	if !utf8.ValidString(op.Value) || utf8.RuneCountInString(op.Value) != 1 {
		return fmt.Errorf("%w: insert value must be one character", ErrInvalidOp)
	}
	value, _ := utf8.DecodeRuneInString(op.Value)
	if d.indexOf(op.ID) >= 0 {
		return nil
	}

	pos := 0
	if !op.Origin.IsZero() {
		originIdx := d.indexOf(op.Origin)
		if originIdx < 0 {
			return fmt.Errorf("%w: origin %s", ErrUnknownCharacter, op.Origin)
		}
		pos = originIdx + 1
	}
	for pos < len(d.chars) && op.ID.Less(d.chars[pos].ID) {
		pos++
	}

	d.chars = append(d.chars, Character{})
	copy(d.chars[pos+1:], d.chars[pos:])
	d.chars[pos] = Character{ID: op.ID, Origin: op.Origin, Value: value}
	d.visible++
	if op.ID.Clock > d.clock {
		d.clock = op.ID.Clock
	}
	return nil
}

func (d *Document) tombstone(id ID) error {
	idx := d.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: delete %s", ErrUnknownCharacter, id)
	}
	if !d.chars[idx].Deleted {
		d.chars[idx].Deleted = true
		d.visible--
	}
	return nil
}
