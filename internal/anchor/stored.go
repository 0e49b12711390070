package anchor

import (
	"errors"
	"fmt"
)

// Stored is the persisted form of an anchor: two nullable text fields. Both nil
// means the comment has no anchor.
type Stored struct {
	FromRelative *string `json:"fromRelative"`
	ToRelative   *string `json:"toRelative"`
}

// Empty reports whether no anchor is stored.
func (s Stored) Empty() bool {
	return s.FromRelative == nil && s.ToRelative == nil
}

// IsFallback reports whether both fields carry tagged fallback payloads.
func (s Stored) IsFallback() bool {
	if s.FromRelative == nil || s.ToRelative == nil {
		return false
	}
	return IsFallbackPayload(*s.FromRelative) && IsFallbackPayload(*s.ToRelative)
}

// Encode returns the persisted form of a.
func Encode(a Anchor) (Stored, error) {
	var from, to string
	switch a.Mode {
	case ModeCRDT:
		from, to = EncodePosition(a.From), EncodePosition(a.To)
	case ModeFallback:
		if a.FromAbsolute < 0 || a.ToAbsolute < 0 {
			return Stored{}, fmt.Errorf("%w: negative offset", ErrOutOfBounds)
		}
		from, to = FallbackPayload(a.FromAbsolute), FallbackPayload(a.ToAbsolute)
	default:
		return Stored{}, fmt.Errorf("encode anchor: unknown mode %d", a.Mode)
	}
	return Stored{FromRelative: &from, ToRelative: &to}, nil
}

// Decode parses a persisted anchor. The mode is chosen at runtime: a pair of
// tagged fallback payloads is a fallback anchor, anything else must decode as
// durable positions.
func Decode(s Stored) (Anchor, error) {
	if s.Empty() {
		return Anchor{}, errors.New("decode anchor: no anchor stored")
	}
	if s.FromRelative == nil || s.ToRelative == nil {
		return Anchor{}, codecError("", "half of the anchor is missing", nil)
	}
	if s.IsFallback() {
		from, _ := ParseFallback(*s.FromRelative)
		to, _ := ParseFallback(*s.ToRelative)
		return Anchor{Mode: ModeFallback, FromAbsolute: from, ToAbsolute: to}, nil
	}
	from, err := DecodePosition(*s.FromRelative)
	if err != nil {
		return Anchor{}, err
	}
	to, err := DecodePosition(*s.ToRelative)
	if err != nil {
		return Anchor{}, err
	}
	return Anchor{Mode: ModeCRDT, From: from, To: to}, nil
}

// ResolveStored decodes and resolves a persisted anchor. It is total: malformed
// data or a missing document produce an invalid range, never an error or panic.
func ResolveStored(doc Tracked, s Stored) ResolvedRange {
	a, err := Decode(s)
	if err != nil {
		return invalid(StatusMalformed, err)
	}
	return Resolve(doc, a)
}

// Range returns the current range of a comment. Comments without an anchor use
// their stored selection verbatim and skip resolution.
func (s Stored) Range(doc Tracked, selectionFrom, selectionTo int) ResolvedRange {
	if !s.Empty() {
		return ResolveStored(doc, s)
	}
	if selectionFrom < 0 || selectionTo < selectionFrom {
		return invalid(StatusOutOfRange, fmt.Errorf("%w: selection [%d, %d)", ErrOutOfRange, selectionFrom, selectionTo))
	}
	return ResolvedRange{From: selectionFrom, To: selectionTo, Valid: true, Status: StatusResolved}
}
