package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNew_StampsIDAndTimestamp(t *testing.T) {
	e := New(KindUserMessage, "hello", map[string]any{"messageLength": 5})

	if !strings.HasPrefix(e.ID, "user_message_") {
		t.Errorf("expected ID prefixed with kind, got %q", e.ID)
	}
	if e.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}
	if e.Content != "hello" {
		t.Errorf("expected content preserved, got %q", e.Content)
	}
	if e.MetadataMap()["messageLength"] != float64(5) {
		t.Errorf("expected metadata round-trip, got %v", e.MetadataMap())
	}
}

func TestNew_UniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		e := New(KindAIResponse, "x", nil)
		if seen[e.ID] {
			t.Fatalf("duplicate ID generated: %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestIsMessage(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindUserMessage, true},
		{KindAIResponse, true},
		{KindQuickPrompt, false},
		{KindNudgeShown, false},
		{KindNudgeDismissed, false},
		{KindSessionStart, false},
		{KindSessionEnd, false},
	}
	for _, c := range cases {
		if got := (Event{Kind: c.kind}).IsMessage(); got != c.want {
			t.Errorf("IsMessage(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestNormalize_FillsDefaults(t *testing.T) {
	raw := []byte(`{"type":"user_message","content":"hi"}`)
	e, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected filled timestamp")
	}
	if e.Kind != KindUserMessage {
		t.Errorf("expected user_message, got %s", e.Kind)
	}
}

func TestNormalize_ParsesISOTimestamp(t *testing.T) {
	raw := []byte(`{"id":"ai_response_1_abc","type":"ai_response","content":"hello","timestamp":"2025-03-01T12:00:00Z"}`)
	e, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if !e.Timestamp.Equal(want) {
		t.Errorf("expected %v, got %v", want, e.Timestamp)
	}
	if e.ID != "ai_response_1_abc" {
		t.Errorf("expected ID preserved, got %s", e.ID)
	}
}

func TestNormalize_RejectsMissingKind(t *testing.T) {
	if _, err := Normalize([]byte(`{"content":"hi"}`)); err == nil {
		t.Error("expected error for event without type")
	}
}

func TestNormalize_RejectsMalformedJSON(t *testing.T) {
	if _, err := Normalize([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestMetadataField(t *testing.T) {
	e := Event{Metadata: json.RawMessage(`{"promptText":"What if this could____?","n":3}`)}
	if got := e.MetadataField("promptText"); got != "What if this could____?" {
		t.Errorf("unexpected field value: %q", got)
	}
	if got := e.MetadataField("n"); got != "" {
		t.Errorf("expected empty string for non-string field, got %q", got)
	}
	if got := e.MetadataField("missing"); got != "" {
		t.Errorf("expected empty string for missing field, got %q", got)
	}
}
