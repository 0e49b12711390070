package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("cmt")
	if !strings.HasPrefix(id, "cmt_") || len(id) != len("cmt_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("cmt") == id {
		t.Fatalf("ids should be unique")
	}
	if bare := NewID(""); len(bare) != 32 || strings.Contains(bare, "_") {
		t.Fatalf("unexpected bare id %q", bare)
	}
}
