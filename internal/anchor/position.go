// Package anchor keeps comment ranges attached to document content.
//
// A range is stored as a pair of durable positions produced by a mutation-tracked
// document (see Tracked). Each position names a character rather than an offset, so
// resolving it later against an edited document yields the offset where that
// character lives now. Documents that cannot provide tracking use fallback anchors,
// which store plain offsets and never drift-correct.
package anchor

import "fmt"

// Kind identifies what a durable position is bound to.
type Kind uint8

const (
	// KindCharacter binds to a single character identified by (Site, Clock).
	KindCharacter Kind = iota
	// KindStart binds to the start of the document.
	KindStart
	// KindEnd binds to the end of the document.
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindCharacter:
		return "character"
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Assoc is the associativity bias of a position: which neighbour it follows when
// text is inserted exactly at its offset.
type Assoc int8

const (
	// StickRight positions sit immediately before the character at the offset.
	// Insertions at the offset land before that character and push the position.
	StickRight Assoc = 0
	// StickLeft positions sit immediately after the character before the offset.
	// Insertions at the offset land after that character and leave the position.
	StickLeft Assoc = -1
)

func (a Assoc) String() string {
	if a < 0 {
		return "left"
	}
	return "right"
}

// DurablePosition binds a logical offset to document content. It is immutable;
// callers re-resolve it instead of updating it.
type DurablePosition struct {
	Kind  Kind
	Site  uint32
	Clock uint64
	Assoc Assoc
}

// CharacterPosition returns a position bound to the character (site, clock).
func CharacterPosition(site uint32, clock uint64, assoc Assoc) DurablePosition {
	return DurablePosition{Kind: KindCharacter, Site: site, Clock: clock, Assoc: normalizeAssoc(assoc)}
}

// StartPosition returns a position bound to the start of the document.
func StartPosition(assoc Assoc) DurablePosition {
	return DurablePosition{Kind: KindStart, Assoc: normalizeAssoc(assoc)}
}

// EndPosition returns a position bound to the end of the document.
func EndPosition(assoc Assoc) DurablePosition {
	return DurablePosition{Kind: KindEnd, Assoc: normalizeAssoc(assoc)}
}

func (p DurablePosition) String() string {
	if p.Kind == KindCharacter {
		return fmt.Sprintf("%s(%d:%d,%s)", p.Kind, p.Site, p.Clock, p.Assoc)
	}
	return fmt.Sprintf("%s(%s)", p.Kind, p.Assoc)
}

func normalizeAssoc(a Assoc) Assoc {
	if a < 0 {
		return StickLeft
	}
	return StickRight
}

// Tracked is the mutation-tracked document the anchoring code resolves against.
//
// Implementations must give every unit of content an identity that survives edits
// elsewhere, must accept every offset in [0, Length()] and must make each mutation
// batch visible atomically to concurrent readers.
type Tracked interface {
	// ToDurablePosition returns the durable position for offset.
	ToDurablePosition(offset int, assoc Assoc) (DurablePosition, error)
	// ResolveDurablePosition returns the current offset of pos, or false when the
	// content it is bound to is unknown to the document.
	ResolveDurablePosition(pos DurablePosition) (int, bool)
	// Length reports the current document length in characters.
	Length() int
}

// RangeResolver is implemented by documents that can resolve both ends of a
// range and report their length from one consistent state. Resolve uses it when
// available so a concurrent batch cannot land between the two lookups.
type RangeResolver interface {
	ResolveRange(from, to DurablePosition) (fromOffset, toOffset, length int, err error)
}
