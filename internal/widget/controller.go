// Package widget is the widget-side controller: it owns the session log,
// drives the trigger controller, talks to the completion service, and
// speaks the bridge protocol with the hosting page.
package widget

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kapa-moon/creativity-ai/internal/bridge"
	"github.com/kapa-moon/creativity-ai/internal/completion"
	"github.com/kapa-moon/creativity-ai/internal/events"
	"github.com/kapa-moon/creativity-ai/internal/session"
	"github.com/kapa-moon/creativity-ai/internal/submission"
	"github.com/kapa-moon/creativity-ai/internal/summary"
	"github.com/kapa-moon/creativity-ai/internal/trigger"
)

// Config wires a controller. Session and Transport are required;
// Completion and Poster are optional (a widget without them still logs
// and syncs). Detailed switches the endpoint payload to the full event
// log variant.
type Config struct {
	Session    *session.Log
	Transport  bridge.Transport
	Completion completion.Client
	Poster     submission.Poster
	Trigger    trigger.Config
	Detailed   bool
}

// Controller is one live widget instance.
type Controller struct {
	cfg     Config
	log     *session.Log
	bridge  bridge.Transport
	trigger *trigger.Controller
}

// New builds the controller, registers the inbound dispatcher, and asks
// the host for any previously captured state.
func New(cfg Config) *Controller {
	c := &Controller{
		cfg:    cfg,
		log:    cfg.Session,
		bridge: cfg.Transport,
	}
	c.trigger = trigger.New(cfg.Trigger, c.flush)

	c.bridge.OnMessage(c.dispatch)
	c.post(bridge.Message{
		Type:      bridge.TypeRequestInitialState,
		SessionID: c.log.SessionID(),
	})
	return c
}

// Begin records the session start event unless the handshake already
// produced one (a startFresh reply begins the session itself, and a
// restored session keeps its original start).
func (c *Controller) Begin() {
	started := c.log.Query(func(e events.Event) bool {
		return e.Kind == events.KindSessionStart
	})
	if len(started) == 0 && c.log.MessageCount() == 0 {
		c.log.Begin()
	}
}

// HandleUserMessage logs the user's message, obtains a reply, and logs
// it. When the completion service fails the reply is the classified
// apology text, logged like any other bot message, and the error is
// returned alongside it.
func (c *Controller) HandleUserMessage(ctx context.Context, text string) (string, error) {
	c.log.Append(events.KindUserMessage, text, nil)
	c.afterMessage()

	reply, usage, err := c.complete(ctx, text)
	if err != nil {
		ce := completion.Classify(err)
		slog.Error("completion failed", "kind", ce.Kind, "error", err)
		reply = ce.UserMessage()
		c.log.Append(events.KindAIResponse, reply, map[string]any{"error": true})
		c.afterMessage()
		return reply, ce
	}

	meta := map[string]any{}
	if usage.TotalTokens > 0 {
		meta["totalTokens"] = usage.TotalTokens
	}
	c.log.Append(events.KindAIResponse, reply, meta)
	c.afterMessage()
	return reply, nil
}

func (c *Controller) complete(ctx context.Context, text string) (string, completion.Usage, error) {
	if c.cfg.Completion == nil {
		return "", completion.Usage{}, &completion.Error{Kind: completion.FailureGeneric}
	}

	// History excludes the message just appended.
	msgs := c.log.Query(events.Event.IsMessage)
	history := make([]completion.Turn, 0, len(msgs))
	for _, e := range msgs[:len(msgs)-1] {
		role := "bot"
		if e.Kind == events.KindUserMessage {
			role = "user"
		}
		history = append(history, completion.Turn{Role: role, Content: e.Content})
	}
	return c.cfg.Completion.Complete(ctx, history, text)
}

// QuickPrompts returns two sentence stems for the current conversation.
func (c *Controller) QuickPrompts(ctx context.Context) []string {
	if c.cfg.Completion == nil {
		return completion.FallbackQuickPrompts()
	}
	msgs := c.log.Query(events.Event.IsMessage)
	history := make([]completion.Turn, 0, len(msgs))
	for _, e := range msgs {
		role := "bot"
		if e.Kind == events.KindUserMessage {
			role = "user"
		}
		history = append(history, completion.Turn{Role: role, Content: e.Content})
	}
	prompts, err := c.cfg.Completion.QuickPrompts(ctx, history)
	if err != nil || len(prompts) == 0 {
		return completion.FallbackQuickPrompts()
	}
	return prompts
}

// SelectQuickPrompt records that the participant picked a stem. The
// selection itself is not a message and does not advance the triggers.
func (c *Controller) SelectQuickPrompt(text string) {
	c.log.Append(events.KindQuickPrompt, text, nil)
}

// NudgeShown and NudgeDismissed record nudge lifecycle events.
func (c *Controller) NudgeShown(text string) {
	c.log.Append(events.KindNudgeShown, text, nil)
}

func (c *Controller) NudgeDismissed(text string) {
	c.log.Append(events.KindNudgeDismissed, text, nil)
}

// PageHidden flushes immediately; the page may be going away.
func (c *Controller) PageHidden() {
	c.trigger.PageHidden(c.log.MessageCount())
}

// Submitted reports whether the first submission has happened.
func (c *Controller) Submitted() bool {
	return c.trigger.Submitted()
}

// Close tears the widget down without flushing.
func (c *Controller) Close() {
	c.trigger.Close()
}

func (c *Controller) afterMessage() {
	count := c.log.MessageCount()
	c.postUpdate(count)
	c.trigger.MessageLogged(count)
}

// restoreState is the payload of a restoreChatState command. A payload
// without a conversation log is ignored: the host had nothing to
// restore and the fresh session stands.
type restoreState struct {
	SessionID       string            `json:"sessionId"`
	ParticipantID   string            `json:"participantId,omitempty"`
	ConversationLog []json.RawMessage `json:"conversationLog"`
	StartTime       string            `json:"startTime,omitempty"`
	LastActivity    string            `json:"lastActivity,omitempty"`
}

func (c *Controller) dispatch(m bridge.Message) {
	switch m.Type {
	case bridge.TypeForceSubmitData:
		c.trigger.ForceFlush(c.log.MessageCount())

	case bridge.TypeRestoreChatState:
		var st restoreState
		if err := json.Unmarshal(m.Data, &st); err != nil {
			slog.Warn("malformed restore payload dropped", "error", err)
			return
		}
		if st.ConversationLog == nil {
			slog.Info("restore payload without conversation log, keeping fresh session")
			return
		}
		restored := make([]events.Event, 0, len(st.ConversationLog))
		for _, raw := range st.ConversationLog {
			ev, err := events.Normalize(raw)
			if err != nil {
				slog.Warn("restore entry dropped", "error", err)
				continue
			}
			restored = append(restored, ev)
		}
		start := parseTimestamp(st.StartTime)
		last := parseTimestamp(st.LastActivity)
		c.log.Restore(st.SessionID, st.ParticipantID, restored, start, last)
		// The host already captured this session once.
		c.trigger.MarkSubmitted()
		slog.Info("session restored",
			"session_id", st.SessionID,
			"events", len(restored),
		)

	case bridge.TypeStartFresh:
		c.log.StartFresh()
		c.trigger.Reset()
		slog.Info("started fresh session", "session_id", c.log.SessionID())

	case bridge.TypeClearChatStorage:
		c.log.Clear()
		c.trigger.Reset()
	}
}

// flush is the single delivery path for every trigger reason. The bridge
// message always goes out; the logging endpoint is hit only on the first
// submission. Either leg failing leaves the other intact.
func (c *Controller) flush(reason trigger.Reason, first bool) {
	snap := c.log.Snapshot()
	compact := summary.BuildCompact(snap)

	data, err := json.Marshal(compact)
	if err != nil {
		slog.Error("marshal flush payload", "error", err)
		return
	}

	c.post(bridge.Message{
		Type:         bridge.TypeChatDataSubmitted,
		SessionID:    snap.SessionID,
		MessageCount: compact.MessageCount,
		Data:         data,
	})

	slog.Info("chat data flushed",
		"reason", reason,
		"first", first,
		"session_id", snap.SessionID,
		"message_count", compact.MessageCount,
	)

	if !first || c.cfg.Poster == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var payload any = compact
	if c.cfg.Detailed {
		payload = summary.BuildDetailed(snap)
	}
	if err := c.cfg.Poster.SubmitChatData(ctx, snap.SessionID, payload); err != nil {
		slog.Error("logging endpoint submission failed", "error", err)
	}
}

func (c *Controller) postUpdate(count int) {
	c.post(bridge.Message{
		Type:         bridge.TypeChatUpdate,
		SessionID:    c.log.SessionID(),
		MessageCount: count,
	})
}

func (c *Controller) post(m bridge.Message) {
	if err := c.bridge.Post(m); err != nil {
		slog.Warn("bridge post failed", "type", m.Type, "error", err)
	}
}

// parseTimestamp returns the zero time for empty or malformed input,
// which Restore treats as "keep the current value".
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02T15:04:05.000Z", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
