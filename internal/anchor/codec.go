package anchor

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
)

const codecVersion byte = 1

const (
	assocRightByte byte = 0
	assocLeftByte  byte = 1
)

// EncodePosition returns the storage form of p: a base64 string of
// version | kind | assoc [| uvarint site | uvarint clock].
func EncodePosition(p DurablePosition) string {
	buf := make([]byte, 0, 3+2*binary.MaxVarintLen64)
	buf = append(buf, codecVersion, byte(p.Kind))
	if p.Assoc < 0 {
		buf = append(buf, assocLeftByte)
	} else {
		buf = append(buf, assocRightByte)
	}
	if p.Kind == KindCharacter {
		buf = binary.AppendUvarint(buf, uint64(p.Site))
		buf = binary.AppendUvarint(buf, p.Clock)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodePosition parses a string produced by EncodePosition. Any malformed input
// yields a *CodecError.
func DecodePosition(s string) (DurablePosition, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return DurablePosition{}, codecError(s, "empty input", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return DurablePosition{}, codecError(s, "invalid base64", err)
	}
	if len(raw) < 3 {
		return DurablePosition{}, codecError(s, "truncated header", nil)
	}
	if raw[0] != codecVersion {
		return DurablePosition{}, codecError(s, "unsupported version", nil)
	}

	var pos DurablePosition
	switch Kind(raw[1]) {
	case KindCharacter, KindStart, KindEnd:
		pos.Kind = Kind(raw[1])
	default:
		return DurablePosition{}, codecError(s, "unknown kind", nil)
	}
	switch raw[2] {
	case assocRightByte:
		pos.Assoc = StickRight
	case assocLeftByte:
		pos.Assoc = StickLeft
	default:
		return DurablePosition{}, codecError(s, "unknown assoc", nil)
	}

	rest := raw[3:]
	if pos.Kind == KindCharacter {
		site, n := binary.Uvarint(rest)
		if n <= 0 || site > uint64(^uint32(0)) {
			return DurablePosition{}, codecError(s, "invalid site", nil)
		}
		rest = rest[n:]
		clock, n := binary.Uvarint(rest)
		if n <= 0 {
			return DurablePosition{}, codecError(s, "invalid clock", nil)
		}
		rest = rest[n:]
		pos.Site = uint32(site)
		pos.Clock = clock
	}
	if len(rest) != 0 {
		return DurablePosition{}, codecError(s, "trailing bytes", nil)
	}
	return pos, nil
}
