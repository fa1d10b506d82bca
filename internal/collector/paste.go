package collector

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kapa-moon/creativity-ai/internal/fieldsink"
	"github.com/kapa-moon/creativity-ai/internal/trigger"
)

// settleDelay is how long after a paste the element content is read
// back, letting the control apply the pasted text first.
const settleDelay = 10 * time.Millisecond

// ElementInfo describes the pasted-into control.
type ElementInfo struct {
	Tag     string `json:"tag"`
	ID      string `json:"id,omitempty"`
	Classes string `json:"classes,omitempty"`
}

// PasteEvent is one observed paste, flushed immediately and then
// backfilled with the element's settled content.
type PasteEvent struct {
	FieldName     string      `json:"fieldName"`
	FieldIndex    int         `json:"fieldIndex"`
	ElementInfo   ElementInfo `json:"elementInfo"`
	Content       string      `json:"content"`
	ContentLength int         `json:"contentLength"`
	FinalContent  string      `json:"finalContent,omitempty"`
	Timestamp     string      `json:"timestamp"`
}

// PasteRecorder captures paste activity across the page's fields and
// keeps the sink's paste summary current. Field interactions (focus and
// paste counts per field) ride along in the same summary.
type PasteRecorder struct {
	sink    fieldsink.Sink
	matcher *Matcher
	clock   trigger.Clock

	mu           sync.Mutex
	sessionID    string
	pastes       []PasteEvent
	interactions map[string]int
	fieldOrder   map[string]int
}

func NewPasteRecorder(sessionID string, sink fieldsink.Sink, matcher *Matcher, clock trigger.Clock) *PasteRecorder {
	if matcher == nil {
		matcher = NewMatcher(nil)
	}
	if clock == nil {
		clock = trigger.RealClock()
	}
	return &PasteRecorder{
		sessionID:    sessionID,
		sink:         sink,
		matcher:      matcher,
		clock:        clock,
		interactions: make(map[string]int),
		fieldOrder:   make(map[string]int),
	}
}

// SetSession retargets the recorder once the chat session is known, so
// later flushes land on the same row as the chat fields.
func (r *PasteRecorder) SetSession(sessionID string) {
	if sessionID == "" {
		return
	}
	r.mu.Lock()
	r.sessionID = sessionID
	r.mu.Unlock()
}

// RecordPaste logs a paste into the element, flushes the summary with
// the raw pasted text, and schedules the settled-content backfill.
func (r *PasteRecorder) RecordPaste(ctx context.Context, el Element, pasted string) {
	field := r.matcher.FieldName(el)

	r.mu.Lock()
	idx := len(r.pastes)
	r.pastes = append(r.pastes, PasteEvent{
		FieldName:  field,
		FieldIndex: r.fieldIndexLocked(field),
		ElementInfo: ElementInfo{
			Tag:     el.Tag,
			ID:      el.ID,
			Classes: strings.Join(el.Classes, " "),
		},
		Content:       pasted,
		ContentLength: len(pasted),
		Timestamp:     r.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	})
	r.interactions[field]++
	r.mu.Unlock()

	r.flush(ctx)

	read := el.Value
	if read == nil {
		return
	}
	r.clock.AfterFunc(settleDelay, func() {
		content := read()
		r.mu.Lock()
		r.pastes[idx].FinalContent = content
		r.mu.Unlock()
		r.flush(context.Background())
	})
}

// fieldIndexLocked numbers fields in encounter order. Callers hold the
// mutex.
func (r *PasteRecorder) fieldIndexLocked(field string) int {
	idx, ok := r.fieldOrder[field]
	if !ok {
		idx = len(r.fieldOrder)
		r.fieldOrder[field] = idx
	}
	return idx
}

// RecordInteraction counts a focus on a field.
func (r *PasteRecorder) RecordInteraction(ctx context.Context, el Element) {
	field := r.matcher.FieldName(el)
	r.mu.Lock()
	r.fieldIndexLocked(field)
	r.interactions[field]++
	r.mu.Unlock()
	r.flush(ctx)
}

// Pastes returns a copy of the recorded events.
func (r *PasteRecorder) Pastes() []PasteEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PasteEvent(nil), r.pastes...)
}

// Flush writes the current paste summary even when nothing was
// recorded, so the paste fields are always present on the row.
func (r *PasteRecorder) Flush(ctx context.Context) {
	r.flush(ctx)
}

func (r *PasteRecorder) flush(ctx context.Context) {
	r.mu.Lock()
	sessionID := r.sessionID
	pastes := append([]PasteEvent(nil), r.pastes...)
	interactions := make(map[string]int, len(r.interactions))
	for k, v := range r.interactions {
		interactions[k] = v
	}
	r.mu.Unlock()

	if pastes == nil {
		pastes = []PasteEvent{}
	}

	pasteJSON, err := json.MarshalIndent(pastes, "", "  ")
	if err != nil {
		slog.Error("marshal paste events", "error", err)
		return
	}
	interJSON, err := json.Marshal(interactions)
	if err != nil {
		slog.Error("marshal field interactions", "error", err)
		return
	}

	fields := map[string]string{
		fieldsink.FieldPasteEvents:      string(pasteJSON),
		fieldsink.FieldTotalPasteEvents: strconv.Itoa(len(pastes)),
		fieldsink.FieldInteractions:     string(interJSON),
	}
	if err := r.sink.SetAll(ctx, sessionID, fields); err != nil {
		slog.Error("store paste summary", "error", err)
	}
}
