package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	SetLevel(WARN)
	defer SetLevel(INFO)

	DebugC("test", "debug line")
	InfoC("test", "info line")
	WarnC("test", "warn line")
	ErrorC("test", "error line")

	got := buf.String()
	if strings.Contains(got, "debug line") || strings.Contains(got, "info line") {
		t.Fatalf("below-threshold lines were written: %q", got)
	}
	if !strings.Contains(got, "warn line") || !strings.Contains(got, "error line") {
		t.Fatalf("expected warn and error lines, got: %q", got)
	}
}

func TestFieldsAreSortedAndTagged(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetLevel(DEBUG)
	defer SetLevel(INFO)

	InfoCF("webhook", "inbound", map[string]any{
		"user":  "15551234567",
		"event": "evt_42",
	})

	line := buf.String()
	if !strings.Contains(line, "[webhook]") {
		t.Fatalf("missing component tag: %q", line)
	}
	eventIdx := strings.Index(line, "event=evt_42")
	userIdx := strings.Index(line, "user=15551234567")
	if eventIdx < 0 || userIdx < 0 {
		t.Fatalf("missing fields: %q", line)
	}
	if eventIdx > userIdx {
		t.Fatalf("fields not sorted by key: %q", line)
	}
}
