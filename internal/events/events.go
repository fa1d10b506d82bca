package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates what happened in a chat session.
type Kind string

const (
	KindUserMessage    Kind = "user_message"
	KindAIResponse     Kind = "ai_response"
	KindQuickPrompt    Kind = "quick_prompt_selection"
	KindNudgeShown     Kind = "nudge_shown"
	KindNudgeDismissed Kind = "nudge_dismissed"
	KindSessionStart   Kind = "session_start"
	KindSessionEnd     Kind = "session_end"
)

// Event is a single timestamped entry in a session's log. Events are
// immutable once appended; the session log is the sole owner.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      Kind            `json:"type"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// IsMessage reports whether the event is a rendered chat turn. Only
// message events count toward flush thresholds.
func (e Event) IsMessage() bool {
	return e.Kind == KindUserMessage || e.Kind == KindAIResponse
}

// New builds an event with a fresh ID stamped from the kind, the current
// time, and a short random suffix. IDs are unique within a session, not
// globally.
func New(kind Kind, content string, metadata map[string]any) Event {
	now := time.Now().UTC()
	var meta json.RawMessage
	if len(metadata) > 0 {
		meta, _ = json.Marshal(metadata)
	}
	return Event{
		ID:        NewID(kind, now),
		Timestamp: now,
		Kind:      kind,
		Content:   content,
		Metadata:  meta,
	}
}

// NewID generates "<kind>_<unix-ms>_<suffix>".
func NewID(kind Kind, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("%s_%d_%s", kind, at.UnixMilli(), suffix)
}

// Normalize fills in missing fields of a raw event with sensible defaults.
// It never drops an event — always returns a usable Event. Used when
// rehydrating events handed back by the host, where IDs or timestamps may
// be absent or serialized as ISO-8601 strings.
func Normalize(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, err
	}

	if e.Kind == "" {
		return Event{}, fmt.Errorf("event missing type")
	}

	if e.Timestamp.IsZero() {
		slog.Warn("event missing timestamp, using current time", "id", e.ID)
		e.Timestamp = time.Now().UTC()
	}

	if e.ID == "" {
		e.ID = NewID(e.Kind, e.Timestamp)
	}

	return e, nil
}

// MetadataField extracts a string field from the metadata JSON.
func (e *Event) MetadataField(key string) string {
	var m map[string]any
	if err := json.Unmarshal(e.Metadata, &m); err != nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// MetadataMap returns metadata as a generic map.
func (e *Event) MetadataMap() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(e.Metadata, &m); err != nil {
		return nil
	}
	return m
}
