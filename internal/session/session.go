// Package session owns the append-only event log for one chat widget
// instance. Every append persists the full session to the local store so
// a page reload can pick up where it left off. In-memory state is
// authoritative for the current page life; persistence failures are
// logged and swallowed.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kapa-moon/creativity-ai/internal/events"
	"github.com/kapa-moon/creativity-ai/internal/localstore"
)

// PageMetadata captures where the widget was running.
type PageMetadata struct {
	UserAgent string `json:"userAgent"`
	Referrer  string `json:"referrer"`
	URL       string `json:"url"`
}

// Snapshot is a value copy of the session state, safe to hand to the
// summary builders and to serialize into the local store.
type Snapshot struct {
	SessionID     string         `json:"sessionId"`
	ParticipantID string         `json:"participantId,omitempty"`
	Events        []events.Event `json:"events"`
	StartTime     time.Time      `json:"startTime"`
	LastActivity  time.Time      `json:"lastActivity"`
	Metadata      PageMetadata   `json:"metadata"`
}

// Log is the event log plus session identity. One Log per widget instance.
type Log struct {
	mu    sync.Mutex
	snap  Snapshot
	store localstore.Store
	key   string
}

// Config for a new Log. Store and StorageKey are required; ParticipantID
// is generated when empty and WithParticipant is set.
type Config struct {
	Store           localstore.Store
	StorageKey      string
	ParticipantID   string
	WithParticipant bool
	Metadata        PageMetadata
}

// New creates a session log, loading any previously persisted session for
// the storage key. A persisted session replaces the fresh identity
// wholesale, exactly as a reloaded page resumes its prior session.
func New(cfg Config) *Log {
	now := time.Now().UTC()
	l := &Log{
		store: cfg.Store,
		key:   cfg.StorageKey,
		snap: Snapshot{
			SessionID:    newSessionID(),
			StartTime:    now,
			LastActivity: now,
			Metadata:     cfg.Metadata,
		},
	}
	if cfg.WithParticipant {
		l.snap.ParticipantID = cfg.ParticipantID
		if l.snap.ParticipantID == "" {
			l.snap.ParticipantID = newParticipantID()
		}
	}
	l.loadFromStore()
	return l
}

// Begin records the session_start event. Callers that wait for a host
// handshake delay this until the host answers with restore or fresh.
func (l *Log) Begin() {
	l.Append(events.KindSessionStart, "Chat session started", nil)
}

// Append adds an event to the log, bumps lastActivity, and persists the
// whole session. The event log is strictly append-only.
func (l *Log) Append(kind events.Kind, content string, metadata map[string]any) events.Event {
	e := events.New(kind, content, metadata)
	l.mu.Lock()
	l.snap.Events = append(l.snap.Events, e)
	l.snap.LastActivity = e.Timestamp
	l.persistLocked()
	l.mu.Unlock()

	slog.Debug("event logged",
		"session_id", l.snap.SessionID,
		"type", kind,
		"content", truncate(content, 100),
	)
	return e
}

// Query returns the events matching the predicate, in append order.
func (l *Log) Query(pred func(events.Event) bool) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.snap.Events {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot returns a defensive copy of the full session state.
func (l *Log) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copyLocked()
}

func (l *Log) copyLocked() Snapshot {
	cp := l.snap
	cp.Events = make([]events.Event, len(l.snap.Events))
	copy(cp.Events, l.snap.Events)
	return cp
}

func (l *Log) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap.SessionID
}

func (l *Log) ParticipantID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap.ParticipantID
}

// MessageCount counts rendered chat turns only.
func (l *Log) MessageCount() int {
	return len(l.Query(events.Event.IsMessage))
}

// Duration is lastActivity − startTime.
func (l *Log) Duration() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap.LastActivity.Sub(l.snap.StartTime)
}

// Clear ends the current session: a session_end event is recorded, the
// event list and clock are reset, and the emptied session is persisted.
// Identity is kept — used when moving to the next prompt in a sequence.
func (l *Log) Clear() {
	l.Append(events.KindSessionEnd, "Chat session cleared", nil)
	l.mu.Lock()
	now := time.Now().UTC()
	l.snap.Events = nil
	l.snap.StartTime = now
	l.snap.LastActivity = now
	l.persistLocked()
	l.mu.Unlock()
}

// StartFresh discards all state including the persisted record and
// replaces the session identity. A new session_start is recorded.
func (l *Log) StartFresh() {
	l.mu.Lock()
	if err := l.store.Delete(l.key); err != nil {
		slog.Error("error clearing persisted session", "key", l.key, "error", err)
	}
	now := time.Now().UTC()
	l.snap.SessionID = newSessionID()
	l.snap.Events = nil
	l.snap.StartTime = now
	l.snap.LastActivity = now
	l.mu.Unlock()

	l.Begin()
}

// Restore replaces the session wholesale from host-supplied state. The
// stale persisted record is removed first so a reload cannot resurrect
// pre-restore events. The restored event list must exactly match what the
// host handed back.
func (l *Log) Restore(sessionID, participantID string, evts []events.Event, start, last time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Delete(l.key); err != nil {
		slog.Error("error clearing stale persisted session before restore", "key", l.key, "error", err)
	}

	if sessionID != "" {
		l.snap.SessionID = sessionID
	}
	if participantID != "" {
		l.snap.ParticipantID = participantID
	}
	l.snap.Events = make([]events.Event, len(evts))
	copy(l.snap.Events, evts)
	if !start.IsZero() {
		l.snap.StartTime = start
	}
	if !last.IsZero() {
		l.snap.LastActivity = last
	}
	l.persistLocked()

	slog.Info("session restored",
		"session_id", l.snap.SessionID,
		"events", len(evts),
	)
}

func (l *Log) persistLocked() {
	data, err := json.Marshal(l.copyLocked())
	if err != nil {
		slog.Error("error serializing session", "error", err)
		return
	}
	if err := l.store.Save(l.key, data); err != nil {
		// Quota exceeded or storage disabled. The in-memory session
		// stays authoritative for this page life.
		slog.Error("error saving session to local store", "key", l.key, "error", err)
	}
}

func (l *Log) loadFromStore() {
	data, err := l.store.Load(l.key)
	if err != nil {
		slog.Error("error loading session from local store", "key", l.key, "error", err)
		return
	}
	if data == nil {
		return
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Error("error parsing persisted session", "key", l.key, "error", err)
		return
	}
	l.snap = snap
}

func newSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), randSuffix(9))
}

func newParticipantID() string {
	return fmt.Sprintf("participant_%d_%s", time.Now().UnixMilli(), randSuffix(6))
}

func randSuffix(n int) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
