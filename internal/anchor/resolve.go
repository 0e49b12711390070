package anchor

import "fmt"

// Status is the typed outcome of a resolution.
type Status uint8

const (
	StatusResolved Status = iota
	StatusUnresolvable
	StatusMalformed
	StatusOutOfRange
	StatusShapeMismatch
)

func (s Status) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusUnresolvable:
		return "unresolvable"
	case StatusMalformed:
		return "malformed"
	case StatusOutOfRange:
		return "out_of_range"
	case StatusShapeMismatch:
		return "shape_mismatch"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ResolvedRange is a range recomputed against the current document. When Valid,
// 0 <= From <= To <= length. It is never persisted.
type ResolvedRange struct {
	From   int
	To     int
	Valid  bool
	Status Status
	Err    error
}

func invalid(status Status, err error) ResolvedRange {
	return ResolvedRange{Status: status, Err: err}
}

// Resolve recomputes the range of a against doc. Both positions must resolve;
// there is no partial result. Resolve never panics: collaborator failures come
// back as an invalid range.
func Resolve(doc Tracked, a Anchor) (result ResolvedRange) {
	defer func() {
		if r := recover(); r != nil {
			result = invalid(StatusUnresolvable, fmt.Errorf("%w: %v", ErrUnresolvable, r))
		}
	}()

	switch a.Mode {
	case ModeFallback:
		resolved := ResolveFallback(a)
		if !resolved.Valid || doc == nil {
			return resolved
		}
		resolved.From, resolved.To = Normalize(resolved.From, resolved.To, doc.Length())
		return resolved
	case ModeCRDT:
	default:
		return invalid(StatusMalformed, fmt.Errorf("%w: unknown anchor mode %d", ErrCodec, a.Mode))
	}

	if doc == nil {
		return invalid(StatusUnresolvable, ErrNoDocument)
	}

	from, to, length, err := resolvePair(doc, a)
	if err != nil {
		return invalid(StatusUnresolvable, err)
	}
	if from < 0 || to < 0 {
		return invalid(StatusOutOfRange, fmt.Errorf("%w: [%d, %d)", ErrOutOfRange, from, to))
	}

	// Independent resolution can invert the pair under concurrent edits; order is
	// restored here. This picks an ordered range, not necessarily the original text.
	from, to = Normalize(from, to, length)

	if from == to && a.From != a.To {
		return invalid(StatusUnresolvable, ErrContentDeleted)
	}
	return ResolvedRange{From: from, To: to, Valid: true, Status: StatusResolved}
}

func resolvePair(doc Tracked, a Anchor) (from, to, length int, err error) {
	if rr, ok := doc.(RangeResolver); ok {
		return rr.ResolveRange(a.From, a.To)
	}
	from, ok := doc.ResolveDurablePosition(a.From)
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: from %s", ErrUnresolvable, a.From)
	}
	to, ok = doc.ResolveDurablePosition(a.To)
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: to %s", ErrUnresolvable, a.To)
	}
	return from, to, doc.Length(), nil
}
