package anchor

import "fmt"

// Mode distinguishes tracked anchors from fallback anchors.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeCRDT
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeCRDT:
		return "crdt"
	case ModeFallback:
		return "absolute"
	default:
		return "none"
	}
}

// Anchor is the persisted description of a comment's range. CRDT anchors use
// From and To; fallback anchors use FromAbsolute and ToAbsolute.
type Anchor struct {
	Mode         Mode
	From         DurablePosition
	To           DurablePosition
	FromAbsolute int
	ToAbsolute   int
}

// IsFallback reports whether a stores raw offsets.
func (a Anchor) IsFallback() bool {
	return a.Mode == ModeFallback
}

// Build anchors [from, to) to the current content of doc. It does not mutate doc.
func Build(doc Tracked, from, to int) (Anchor, error) {
	if doc == nil {
		return Anchor{}, ErrNoDocument
	}
	if from < 0 || from > to || to > doc.Length() {
		return Anchor{}, fmt.Errorf("%w: [%d, %d) in length %d", ErrOutOfBounds, from, to, doc.Length())
	}
	toPos, err := doc.ToDurablePosition(to, StickRight)
	if err != nil {
		return Anchor{}, fmt.Errorf("build to position: %w", err)
	}
	// A caret binds both ends to one position so it stays empty.
	if from == to {
		return Anchor{Mode: ModeCRDT, From: toPos, To: toPos}, nil
	}
	fromPos, err := doc.ToDurablePosition(from, fromAssoc(from))
	if err != nil {
		return Anchor{}, fmt.Errorf("build from position: %w", err)
	}
	return Anchor{Mode: ModeCRDT, From: fromPos, To: toPos}, nil
}

// fromAssoc binds the start of a range to the character before it, so text
// typed at the start edge joins the range. A range starting at offset 0 binds
// to its own first character instead and moves with it when text is prepended.
func fromAssoc(from int) Assoc {
	if from == 0 {
		return StickRight
	}
	return StickLeft
}
