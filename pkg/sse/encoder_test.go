package sse

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatFrameJSONPayload(t *testing.T) {
	frame, err := FormatFrame("damage", map[string]int{"amount": 42})
	if err != nil {
		t.Fatalf("FormatFrame: %v", err)
	}
	want := "event: damage\ndata: {\"amount\":42}\n\n"
	if frame != want {
		t.Errorf("frame = %q, want %q", frame, want)
	}
}

func TestFormatFrameStringPassthrough(t *testing.T) {
	frame, err := FormatFrame("note", "plain text")
	if err != nil {
		t.Fatalf("FormatFrame: %v", err)
	}
	if !strings.Contains(frame, "data: plain text\n") {
		t.Errorf("string payload not passed through: %q", frame)
	}
}

func TestFormatFrameRawMessagePassthrough(t *testing.T) {
	frame, err := FormatFrame("evt", json.RawMessage(`{"k":1}`))
	if err != nil {
		t.Fatalf("FormatFrame: %v", err)
	}
	if !strings.Contains(frame, `data: {"k":1}`) {
		t.Errorf("raw payload not passed through: %q", frame)
	}
}

func TestFormatFrameMultilinePayload(t *testing.T) {
	frame, err := FormatFrame("evt", "line one\nline two")
	if err != nil {
		t.Fatalf("FormatFrame: %v", err)
	}
	want := "event: evt\ndata: line one\ndata: line two\n\n"
	if frame != want {
		t.Errorf("frame = %q, want %q", frame, want)
	}
}

func TestFormatFrameRejectsNewlineEventType(t *testing.T) {
	if _, err := FormatFrame("evil\nevent", nil); err == nil {
		t.Error("expected error for event type containing newline")
	}
}

func TestFormatFrameEmptyEventType(t *testing.T) {
	frame, err := FormatFrame("", "x")
	if err != nil {
		t.Fatalf("FormatFrame: %v", err)
	}
	if strings.Contains(frame, "event:") {
		t.Errorf("empty event type must omit the event field: %q", frame)
	}
}

func TestFormatFrameUnmarshalableData(t *testing.T) {
	if _, err := FormatFrame("evt", func() {}); err == nil {
		t.Error("expected marshal error")
	}
}
