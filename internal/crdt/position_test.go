package crdt

import (
	"errors"
	"testing"

	"marginalia/api/internal/anchor"
)

func TestDurablePositionFollowsCharacter(t *testing.T) {
	doc := NewFromText(1, "hello world")
	pos, err := doc.ToDurablePosition(6, anchor.StickRight)
	if err != nil {
		t.Fatalf("to durable: %v", err)
	}
	if pos.Kind != anchor.KindCharacter || pos.Site != 1 || pos.Clock != 7 {
		t.Fatalf("unexpected position %s", pos)
	}

	if _, err := doc.Insert(0, ">> "); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, ok := doc.ResolveDurablePosition(pos)
	if !ok || got != 9 {
		t.Fatalf("expected 9, got %d (ok=%v)", got, ok)
	}

	if _, err := doc.Delete(9, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, ok = doc.ResolveDurablePosition(pos)
	if !ok || got != 9 {
		t.Fatalf("deleted character should resolve where it sat, got %d (ok=%v)", got, ok)
	}
}

func TestDurablePositionEdges(t *testing.T) {
	doc := NewFromText(1, "abc")

	end, err := doc.ToDurablePosition(3, anchor.StickRight)
	if err != nil {
		t.Fatalf("to durable: %v", err)
	}
	if end.Kind != anchor.KindEnd {
		t.Fatalf("expected end position, got %s", end)
	}
	start, err := doc.ToDurablePosition(0, anchor.StickLeft)
	if err != nil {
		t.Fatalf("to durable: %v", err)
	}
	if start.Kind != anchor.KindStart {
		t.Fatalf("expected start position, got %s", start)
	}

	if _, err := doc.Insert(3, "de"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got, _ := doc.ResolveDurablePosition(end); got != 5 {
		t.Fatalf("end should track document length, got %d", got)
	}
	if got, _ := doc.ResolveDurablePosition(start); got != 0 {
		t.Fatalf("start should stay at 0, got %d", got)
	}

	if _, err := doc.ToDurablePosition(6, anchor.StickRight); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestAssociativityAtInsertionPoint(t *testing.T) {
	doc := NewFromText(1, "abcd")
	right, _ := doc.ToDurablePosition(2, anchor.StickRight)
	left, _ := doc.ToDurablePosition(2, anchor.StickLeft)

	if _, err := doc.Insert(2, "XY"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got, _ := doc.ResolveDurablePosition(right); got != 4 {
		t.Fatalf("right-sticky position should move past the insert, got %d", got)
	}
	if got, _ := doc.ResolveDurablePosition(left); got != 2 {
		t.Fatalf("left-sticky position should stay before the insert, got %d", got)
	}

	if _, err := doc.Delete(1, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := doc.ResolveDurablePosition(left); got != 1 {
		t.Fatalf("left-sticky position on deleted character should collapse to 1, got %d", got)
	}
}

func TestUnknownCharacterDoesNotResolve(t *testing.T) {
	doc := NewFromText(1, "abc")
	other := NewFromText(2, "xyz")
	pos, _ := other.ToDurablePosition(1, anchor.StickRight)
	if _, ok := doc.ResolveDurablePosition(pos); ok {
		t.Fatalf("position from another document must not resolve")
	}

	pos, _ = doc.ToDurablePosition(1, anchor.StickRight)
	if _, err := doc.Delete(1, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	doc.Compact()
	if _, ok := doc.ResolveDurablePosition(pos); ok {
		t.Fatalf("compacted character must not resolve")
	}
}

func TestResolveRangeReadsOneState(t *testing.T) {
	doc := NewFromText(1, "hello world")
	from, _ := doc.ToDurablePosition(6, anchor.StickLeft)
	to, _ := doc.ToDurablePosition(11, anchor.StickRight)

	if _, err := doc.Insert(0, ">> "); err != nil {
		t.Fatalf("insert: %v", err)
	}
	gotFrom, gotTo, length, err := doc.ResolveRange(from, to)
	if err != nil {
		t.Fatalf("resolve range: %v", err)
	}
	if gotFrom != 9 || gotTo != 14 || length != 14 {
		t.Fatalf("expected [9, 14) in 14, got [%d, %d) in %d", gotFrom, gotTo, length)
	}

	missing := anchor.CharacterPosition(9, 99, anchor.StickRight)
	if _, _, _, err := doc.ResolveRange(missing, to); !errors.Is(err, anchor.ErrUnresolvable) {
		t.Fatalf("expected ErrUnresolvable for from, got %v", err)
	}
	if _, _, _, err := doc.ResolveRange(from, missing); !errors.Is(err, anchor.ErrUnresolvable) {
		t.Fatalf("expected ErrUnresolvable for to, got %v", err)
	}
}
