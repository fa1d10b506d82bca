// Package collector is the host-page side of the bridge: it receives
// the widget's submissions, flattens them into survey fields, answers
// the initial-state handshake, and force-collects on page unload.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/kapa-moon/creativity-ai/internal/bridge"
	"github.com/kapa-moon/creativity-ai/internal/fieldsink"
	"github.com/kapa-moon/creativity-ai/internal/summary"
)

// unloadGrace bounds how long Finalize waits for the widget to answer
// the forced submission before falling back to placeholders.
const unloadGrace = 500 * time.Millisecond

// Config wires a collector.
type Config struct {
	Sink      fieldsink.Sink
	Transport bridge.Transport

	// Recorder captures paste activity on the hosting page. Nil gets a
	// recorder with the default matcher.
	Recorder *PasteRecorder

	// Grace overrides the unload wait. Zero means the default.
	Grace time.Duration
}

// Collector is one hosting page's instance.
type Collector struct {
	sink     fieldsink.Sink
	bridge   bridge.Transport
	recorder *PasteRecorder
	grace    time.Duration

	mu        sync.Mutex
	sessionID string
	lastData  *summary.Compact
	finalized bool
	waiters   []chan struct{}
}

func New(cfg Config) *Collector {
	grace := cfg.Grace
	if grace == 0 {
		grace = unloadGrace
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = NewPasteRecorder("", cfg.Sink, nil, nil)
	}
	c := &Collector{
		sink:     cfg.Sink,
		bridge:   cfg.Transport,
		recorder: recorder,
		grace:    grace,
	}
	c.bridge.OnMessage(c.dispatch)
	return c
}

// Recorder exposes the paste recorder so the hosting page can feed it
// paste and focus events.
func (c *Collector) Recorder() *PasteRecorder {
	return c.recorder
}

// Received reports whether any chat data has arrived.
func (c *Collector) Received() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastData != nil
}

func (c *Collector) dispatch(m bridge.Message) {
	switch m.Type {
	case bridge.TypeChatDataSubmitted:
		c.handleSubmission(m)

	case bridge.TypeChatUpdate:
		slog.Debug("chat update",
			"session_id", m.SessionID,
			"message_count", m.MessageCount,
		)
		c.mu.Lock()
		c.sessionID = m.SessionID
		c.mu.Unlock()
		c.recorder.SetSession(m.SessionID)

	case bridge.TypeRequestInitialState:
		c.handleInitialState(m)
	}
}

func (c *Collector) handleSubmission(m bridge.Message) {
	var compact summary.Compact
	if err := json.Unmarshal(m.Data, &compact); err != nil {
		slog.Warn("malformed chat data dropped", "error", err)
		return
	}

	c.mu.Lock()
	c.sessionID = compact.SessionID
	c.lastData = &compact
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	c.recorder.SetSession(compact.SessionID)
	c.storeFields(compact)

	for _, w := range waiters {
		close(w)
	}
}

// handleInitialState answers the widget's startup handshake: previously
// captured data is replayed so a reloaded widget resumes its session,
// otherwise the widget is told to start fresh.
func (c *Collector) handleInitialState(m bridge.Message) {
	c.mu.Lock()
	last := c.lastData
	c.mu.Unlock()

	if last == nil {
		c.post(bridge.Message{Type: bridge.TypeStartFresh})
		return
	}

	data, err := json.Marshal(map[string]any{
		"sessionId":       last.SessionID,
		"participantId":   last.ParticipantID,
		"conversationLog": last.ConversationLog,
		"startTime":       last.StartTime,
		"lastActivity":    last.EndTime,
	})
	if err != nil {
		slog.Error("marshal restore payload", "error", err)
		return
	}
	c.post(bridge.Message{
		Type:      bridge.TypeRestoreChatState,
		SessionID: last.SessionID,
		Data:      data,
	})
}

func (c *Collector) storeFields(compact summary.Compact) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := StoreCompact(ctx, c.sink, compact); err != nil {
		slog.Error("store chat fields", "error", err)
		return
	}

	slog.Info("chat fields stored",
		"session_id", compact.SessionID,
		"message_count", compact.MessageCount,
	)
}

// StoreCompact flattens a compact summary into the survey fields. The
// API server and the collector share this mapping so a session looks
// the same whether it arrived over the bridge or over HTTP.
func StoreCompact(ctx context.Context, sink fieldsink.Sink, compact summary.Compact) error {
	logJSON, err := json.Marshal(compact.ConversationLog)
	if err != nil {
		return fmt.Errorf("marshal conversation log: %w", err)
	}

	fields := map[string]string{
		fieldsink.FieldSessionID:         compact.SessionID,
		fieldsink.FieldMessageCount:      strconv.Itoa(compact.MessageCount),
		fieldsink.FieldUserMessageCount:  strconv.Itoa(compact.UserMessageCount),
		fieldsink.FieldAIMessageCount:    strconv.Itoa(compact.AIMessageCount),
		fieldsink.FieldSessionDurationMs: strconv.FormatInt(compact.SessionDurationMs, 10),
		fieldsink.FieldStartTime:         compact.StartTime,
		fieldsink.FieldEndTime:           compact.EndTime,
		fieldsink.FieldConversationLog:   string(logJSON),
	}
	if compact.ParticipantID != "" {
		fields[fieldsink.FieldParticipantID] = compact.ParticipantID
	}

	return sink.SetAll(ctx, compact.SessionID, fields)
}

// Finalize runs once, when the page is unloading: it forces the widget
// to submit, waits briefly for the data, and writes placeholders when
// nothing ever arrived so the survey row is never silently empty.
func (c *Collector) Finalize(ctx context.Context) {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return
	}
	c.finalized = true
	arrived := make(chan struct{})
	c.waiters = append(c.waiters, arrived)
	sessionID := c.sessionID
	c.mu.Unlock()

	c.post(bridge.Message{Type: bridge.TypeForceSubmitData})

	c.mu.Lock()
	have := c.lastData != nil
	c.mu.Unlock()

	if !have {
		select {
		case <-arrived:
		case <-time.After(c.grace):
		case <-ctx.Done():
		}
	}

	c.mu.Lock()
	have = c.lastData != nil
	if c.sessionID != "" {
		sessionID = c.sessionID
	}
	c.mu.Unlock()

	if !have {
		if sessionID == "" {
			sessionID = fieldsink.NoChatData
		}
		placeholders := map[string]string{
			fieldsink.FieldSessionID:         fieldsink.NoChatData,
			fieldsink.FieldParticipantID:     fieldsink.NoChatData,
			fieldsink.FieldMessageCount:      "0",
			fieldsink.FieldUserMessageCount:  "0",
			fieldsink.FieldAIMessageCount:    "0",
			fieldsink.FieldSessionDurationMs: "0",
			fieldsink.FieldStartTime:         fieldsink.NoChatData,
			fieldsink.FieldEndTime:           fieldsink.NoChatData,
			fieldsink.FieldConversationLog:   fieldsink.NoChatData,
		}
		if err := c.sink.SetAll(ctx, sessionID, placeholders); err != nil {
			slog.Error("store placeholder fields", "error", err)
		}
		slog.Warn("no chat data collected, placeholders stored")
	}

	// Paste data is stored unconditionally so the row always carries the
	// paste fields, empty or not.
	c.recorder.SetSession(sessionID)
	c.recorder.Flush(ctx)

	if err := c.sink.Set(ctx, sessionID, fieldsink.FieldFinalDataStored, "true"); err != nil {
		slog.Error("store final marker", "error", err)
	}
}

func (c *Collector) post(m bridge.Message) {
	if err := c.bridge.Post(m); err != nil {
		slog.Warn("bridge post failed", "type", m.Type, "error", err)
	}
}
