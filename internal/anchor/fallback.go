package anchor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type fallbackPayload struct {
	Absolute json.RawMessage `json:"absolute"`
}

// BuildFallback returns an anchor that stores raw offsets. It performs no drift
// correction and exists for callers without a tracked document.
func BuildFallback(from, to int) (Anchor, error) {
	if from < 0 || to < from {
		return Anchor{}, fmt.Errorf("%w: [%d, %d)", ErrOutOfBounds, from, to)
	}
	return Anchor{Mode: ModeFallback, FromAbsolute: from, ToAbsolute: to}, nil
}

// ResolveFallback returns the stored offsets of a fallback anchor verbatim.
func ResolveFallback(a Anchor) ResolvedRange {
	if a.Mode != ModeFallback || a.FromAbsolute < 0 || a.ToAbsolute < 0 {
		return invalid(StatusShapeMismatch, ErrShapeMismatch)
	}
	from, to := a.FromAbsolute, a.ToAbsolute
	if from > to {
		from, to = to, from
	}
	return ResolvedRange{From: from, To: to, Valid: true, Status: StatusResolved}
}

// FallbackPayload returns the tagged JSON form of an absolute offset.
func FallbackPayload(offset int) string {
	return `{"absolute":` + strconv.Itoa(offset) + `}`
}

// ParseFallback decodes a tagged fallback payload. Anything other than a single
// object with one non-negative integer "absolute" field is a shape mismatch.
func ParseFallback(s string) (int, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()

	var payload fallbackPayload
	if err := dec.Decode(&payload); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: trailing data", ErrShapeMismatch)
	}
	if len(payload.Absolute) == 0 {
		return 0, fmt.Errorf("%w: missing absolute", ErrShapeMismatch)
	}
	value, err := strconv.ParseInt(string(payload.Absolute), 10, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: absolute is not an integer", ErrShapeMismatch)
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: negative absolute", ErrShapeMismatch)
	}
	return int(value), nil
}

// IsFallbackPayload reports whether s is a tagged fallback payload.
func IsFallbackPayload(s string) bool {
	_, err := ParseFallback(s)
	return err == nil
}
