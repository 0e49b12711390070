package anchor

import (
	"errors"
	"testing"
)

type fakeDoc struct {
	length      int
	toDurableFn func(int, Assoc) (DurablePosition, error)
	resolveFn   func(DurablePosition) (int, bool)
}

func (f *fakeDoc) ToDurablePosition(offset int, assoc Assoc) (DurablePosition, error) {
	if f.toDurableFn != nil {
		return f.toDurableFn(offset, assoc)
	}
	return CharacterPosition(1, uint64(offset)+1, assoc), nil
}

func (f *fakeDoc) ResolveDurablePosition(pos DurablePosition) (int, bool) {
	if f.resolveFn != nil {
		return f.resolveFn(pos)
	}
	if pos.Kind != KindCharacter {
		return 0, false
	}
	return int(pos.Clock) - 1, true
}

func (f *fakeDoc) Length() int { return f.length }

func TestBuildRejectsInvalidRanges(t *testing.T) {
	doc := &fakeDoc{length: 5}
	cases := [][2]int{{-1, 2}, {3, 2}, {0, 6}}
	for _, c := range cases {
		if _, err := Build(doc, c[0], c[1]); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("Build(%d, %d): expected ErrOutOfBounds, got %v", c[0], c[1], err)
		}
	}
	if _, err := Build(nil, 0, 0); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
}

func TestBuildAssociativity(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     []Assoc
	}{
		{"inner range", 1, 3, []Assoc{StickRight, StickLeft}},
		{"range at start", 0, 3, []Assoc{StickRight, StickRight}},
		{"caret", 2, 2, []Assoc{StickRight}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen []Assoc
			doc := &fakeDoc{length: 5, toDurableFn: func(offset int, assoc Assoc) (DurablePosition, error) {
				seen = append(seen, assoc)
				return CharacterPosition(1, uint64(offset)+1, assoc), nil
			}}
			a, err := Build(doc, tc.from, tc.to)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if a.Mode != ModeCRDT || a.IsFallback() {
				t.Fatalf("expected crdt mode, got %s", a.Mode)
			}
			if len(seen) != len(tc.want) {
				t.Fatalf("expected associativities %v, got %v", tc.want, seen)
			}
			for i := range seen {
				if seen[i] != tc.want[i] {
					t.Fatalf("expected associativities %v, got %v", tc.want, seen)
				}
			}
			if (tc.from == tc.to) != (a.From == a.To) {
				t.Fatalf("caret anchors share one position: %+v", a)
			}
		})
	}
}

func TestBuildPropagatesDocumentErrors(t *testing.T) {
	boom := errors.New("boom")
	doc := &fakeDoc{length: 5, toDurableFn: func(int, Assoc) (DurablePosition, error) {
		return DurablePosition{}, boom
	}}
	if _, err := Build(doc, 0, 1); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped document error, got %v", err)
	}
}

func TestResolveIdentity(t *testing.T) {
	doc := &fakeDoc{length: 10}
	a, err := Build(doc, 2, 7)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := Resolve(doc, a)
	if !got.Valid || got.From != 2 || got.To != 7 || got.Status != StatusResolved {
		t.Fatalf("expected [2, 7), got %+v", got)
	}
}

func TestResolveStatuses(t *testing.T) {
	pos := CharacterPosition(1, 1, StickRight)
	other := CharacterPosition(1, 4, StickRight)
	crdt := Anchor{Mode: ModeCRDT, From: pos, To: other}

	tests := []struct {
		name   string
		doc    Tracked
		anchor Anchor
		status Status
		err    error
	}{
		{
			name:   "no document",
			doc:    nil,
			anchor: crdt,
			status: StatusUnresolvable,
			err:    ErrNoDocument,
		},
		{
			name:   "unknown mode",
			doc:    &fakeDoc{length: 5},
			anchor: Anchor{Mode: ModeNone},
			status: StatusMalformed,
			err:    ErrCodec,
		},
		{
			name: "from not found",
			doc: &fakeDoc{length: 5, resolveFn: func(p DurablePosition) (int, bool) {
				return 0, p != pos
			}},
			anchor: crdt,
			status: StatusUnresolvable,
			err:    ErrUnresolvable,
		},
		{
			name: "to not found",
			doc: &fakeDoc{length: 5, resolveFn: func(p DurablePosition) (int, bool) {
				return 0, p != other
			}},
			anchor: crdt,
			status: StatusUnresolvable,
			err:    ErrUnresolvable,
		},
		{
			name: "negative offset",
			doc: &fakeDoc{length: 5, resolveFn: func(DurablePosition) (int, bool) {
				return -3, true
			}},
			anchor: crdt,
			status: StatusOutOfRange,
			err:    ErrOutOfRange,
		},
		{
			name: "collapsed range",
			doc: &fakeDoc{length: 5, resolveFn: func(DurablePosition) (int, bool) {
				return 2, true
			}},
			anchor: crdt,
			status: StatusUnresolvable,
			err:    ErrContentDeleted,
		},
		{
			name: "panicking document",
			doc: &fakeDoc{length: 5, resolveFn: func(DurablePosition) (int, bool) {
				panic("corrupt state")
			}},
			anchor: crdt,
			status: StatusUnresolvable,
			err:    ErrUnresolvable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.doc, tc.anchor)
			if got.Valid {
				t.Fatalf("expected invalid result, got %+v", got)
			}
			if got.Status != tc.status {
				t.Fatalf("expected status %s, got %s", tc.status, got.Status)
			}
			if !errors.Is(got.Err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, got.Err)
			}
		})
	}
}

func TestResolveOrdersInvertedOffsets(t *testing.T) {
	from := CharacterPosition(1, 1, StickRight)
	to := CharacterPosition(1, 2, StickRight)
	doc := &fakeDoc{length: 10, resolveFn: func(p DurablePosition) (int, bool) {
		if p == from {
			return 8, true
		}
		return 3, true
	}}
	got := Resolve(doc, Anchor{Mode: ModeCRDT, From: from, To: to})
	if !got.Valid || got.From != 3 || got.To != 8 {
		t.Fatalf("expected [3, 8), got %+v", got)
	}
}

func TestResolveClampsToLength(t *testing.T) {
	doc := &fakeDoc{length: 4, resolveFn: func(p DurablePosition) (int, bool) {
		return int(p.Clock) * 3, true
	}}
	got := Resolve(doc, Anchor{Mode: ModeCRDT, From: CharacterPosition(1, 1, StickRight), To: CharacterPosition(1, 2, StickRight)})
	if !got.Valid || got.From != 3 || got.To != 4 {
		t.Fatalf("expected [3, 4), got %+v", got)
	}
}

func TestResolveCollapsedAnchorStaysValid(t *testing.T) {
	pos := CharacterPosition(1, 3, StickRight)
	doc := &fakeDoc{length: 5}
	got := Resolve(doc, Anchor{Mode: ModeCRDT, From: pos, To: pos})
	if !got.Valid || got.From != 2 || got.To != 2 {
		t.Fatalf("expected empty valid range at 2, got %+v", got)
	}
}

func TestResolveFallbackThroughResolve(t *testing.T) {
	a, err := BuildFallback(2, 9)
	if err != nil {
		t.Fatalf("build fallback: %v", err)
	}
	got := Resolve(nil, a)
	if !got.Valid || got.From != 2 || got.To != 9 {
		t.Fatalf("expected verbatim [2, 9) without a document, got %+v", got)
	}
	got = Resolve(&fakeDoc{length: 5}, a)
	if !got.Valid || got.From != 2 || got.To != 5 {
		t.Fatalf("expected [2, 5) clamped to the document, got %+v", got)
	}
}

func TestStatusString(t *testing.T) {
	if StatusShapeMismatch.String() != "shape_mismatch" || Status(42).String() != "status(42)" {
		t.Fatalf("unexpected status names: %s %s", StatusShapeMismatch, Status(42))
	}
}

type rangeDoc struct {
	fakeDoc
	rangeFn func(from, to DurablePosition) (int, int, int, error)
}

func (r *rangeDoc) ResolveRange(from, to DurablePosition) (int, int, int, error) {
	return r.rangeFn(from, to)
}

func TestResolvePrefersSingleStateRange(t *testing.T) {
	a := Anchor{Mode: ModeCRDT, From: CharacterPosition(1, 1, StickLeft), To: CharacterPosition(1, 5, StickRight)}
	doc := &rangeDoc{
		fakeDoc: fakeDoc{length: 3, resolveFn: func(DurablePosition) (int, bool) {
			panic("per-position lookup used")
		}},
		rangeFn: func(from, to DurablePosition) (int, int, int, error) {
			return 2, 9, 12, nil
		},
	}
	got := Resolve(doc, a)
	if !got.Valid || got.From != 2 || got.To != 9 {
		t.Fatalf("expected [2, 9) clamped to the reported length, got %+v", got)
	}

	boom := errors.New("gone")
	doc.rangeFn = func(DurablePosition, DurablePosition) (int, int, int, error) {
		return 0, 0, 0, boom
	}
	got = Resolve(doc, a)
	if got.Valid || got.Status != StatusUnresolvable || !errors.Is(got.Err, boom) {
		t.Fatalf("expected unresolvable result, got %+v", got)
	}
}
