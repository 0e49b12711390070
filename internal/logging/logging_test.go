package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewSplitsStreamsByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, err := New("debug", "json", &out, &errOut)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.WithField("document_id", "doc-1").Info("opened")
	logger.Warn("slow snapshot")
	logger.Trace("hidden")

	var entry map[string]any
	if err := json.Unmarshal(out.Bytes(), &entry); err != nil {
		t.Fatalf("decode info line %q: %v", out.String(), err)
	}
	if entry["msg"] != "opened" || entry["document_id"] != "doc-1" {
		t.Fatalf("unexpected info entry %v", entry)
	}
	if !strings.Contains(errOut.String(), "slow snapshot") || strings.Contains(out.String(), "slow snapshot") {
		t.Fatalf("warning routed wrong: out=%q err=%q", out.String(), errOut.String())
	}
	if strings.Contains(out.String(), "hidden") {
		t.Fatalf("trace should be filtered at debug level")
	}
}

func TestNewTextFormat(t *testing.T) {
	var out bytes.Buffer
	logger, err := New("info", "text", &out, &out)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("ready")
	if !strings.Contains(out.String(), `msg=ready`) {
		t.Fatalf("expected text output, got %q", out.String())
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New("loud", "json", nil, nil); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New("info", "xml", nil, nil); err == nil {
		t.Fatalf("expected format error")
	}
}
