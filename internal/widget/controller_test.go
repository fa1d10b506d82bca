package widget

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/kapa-moon/creativity-ai/internal/bridge"
	"github.com/kapa-moon/creativity-ai/internal/events"
	"github.com/kapa-moon/creativity-ai/internal/localstore"
	"github.com/kapa-moon/creativity-ai/internal/session"
	"github.com/kapa-moon/creativity-ai/internal/summary"
	"github.com/kapa-moon/creativity-ai/internal/testutil"
	"github.com/kapa-moon/creativity-ai/internal/trigger"
)

// recorder collects every message the widget posts to the host side.
type recorder struct {
	mu   sync.Mutex
	msgs []bridge.Message
}

func (r *recorder) record(m bridge.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) all() []bridge.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bridge.Message(nil), r.msgs...)
}

func (r *recorder) byType(t bridge.Type) []bridge.Message {
	var out []bridge.Message
	for _, m := range r.all() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type harness struct {
	ctrl    *Controller
	host    bridge.Transport
	rec     *recorder
	clock   *testutil.FakeClock
	mock    *testutil.MockCompletion
	session *session.Log
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	widgetEnd, hostEnd := bridge.NewPair()
	rec := &recorder{}
	hostEnd.OnMessage(rec.record)

	clock := testutil.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	mock := &testutil.MockCompletion{Reply: "hello there"}

	log := session.New(session.Config{
		Store:      localstore.NewMemory(),
		StorageKey: localstore.KeyChatLogs,
	})

	ctrl := New(Config{
		Session:    log,
		Transport:  widgetEnd,
		Completion: mock,
		Trigger:    trigger.Config{Clock: clock},
	})
	t.Cleanup(ctrl.Close)

	return &harness{ctrl: ctrl, host: hostEnd, rec: rec, clock: clock, mock: mock, session: log}
}

func TestNewRequestsInitialState(t *testing.T) {
	h := newHarness(t)

	msgs := h.rec.byType(bridge.TypeRequestInitialState)
	if len(msgs) != 1 {
		t.Fatalf("requestInitialState sent %d times, want 1", len(msgs))
	}
	if msgs[0].SessionID != h.session.SessionID() {
		t.Errorf("sessionId = %q, want %q", msgs[0].SessionID, h.session.SessionID())
	}
}

func TestHandleUserMessageLogsBothSides(t *testing.T) {
	h := newHarness(t)

	reply, err := h.ctrl.HandleUserMessage(context.Background(), "hi")
	if err != nil {
		t.Fatalf("HandleUserMessage: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q", reply)
	}

	msgs := h.session.Query(events.Event.IsMessage)
	if len(msgs) != 2 {
		t.Fatalf("logged %d messages, want 2", len(msgs))
	}
	if msgs[0].Kind != events.KindUserMessage || msgs[1].Kind != events.KindAIResponse {
		t.Errorf("kinds = %s, %s", msgs[0].Kind, msgs[1].Kind)
	}

	updates := h.rec.byType(bridge.TypeChatUpdate)
	if len(updates) != 2 {
		t.Fatalf("chatUpdate sent %d times, want 2", len(updates))
	}
	if updates[0].MessageCount != 1 || updates[1].MessageCount != 2 {
		t.Errorf("update counts = %d, %d", updates[0].MessageCount, updates[1].MessageCount)
	}
}

func TestHandleUserMessageApologyOnFailure(t *testing.T) {
	h := newHarness(t)
	h.mock.Err = &openai.APIError{Type: "insufficient_quota", Message: "quota"}

	reply, err := h.ctrl.HandleUserMessage(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected classified error")
	}
	if reply != "OpenAI API quota exceeded. Please check your OpenAI billing and usage." {
		t.Errorf("reply = %q", reply)
	}

	// The apology is a real logged message and advances the count.
	if got := h.session.MessageCount(); got != 2 {
		t.Errorf("message count = %d, want 2", got)
	}
}

func TestCompletionReceivesPriorHistoryOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.HandleUserMessage(ctx, "first")
	h.ctrl.HandleUserMessage(ctx, "second")

	if len(h.mock.Calls) != 2 {
		t.Fatalf("completion called %d times", len(h.mock.Calls))
	}
	if len(h.mock.Calls[0]) != 0 {
		t.Errorf("first call history = %d turns, want 0", len(h.mock.Calls[0]))
	}
	if len(h.mock.Calls[1]) != 2 {
		t.Errorf("second call history = %d turns, want 2", len(h.mock.Calls[1]))
	}
}

func TestThresholdFlushDeliversChatData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.ctrl.HandleUserMessage(ctx, "msg")
	}
	if len(h.rec.byType(bridge.TypeChatDataSubmitted)) != 0 {
		t.Fatal("flushed before settle delay")
	}

	h.clock.Advance(2 * time.Second)

	submitted := h.rec.byType(bridge.TypeChatDataSubmitted)
	if len(submitted) != 1 {
		t.Fatalf("chatDataSubmitted sent %d times, want 1", len(submitted))
	}

	var compact summary.Compact
	if err := json.Unmarshal(submitted[0].Data, &compact); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if compact.MessageCount != 6 {
		t.Errorf("messageCount = %d, want 6", compact.MessageCount)
	}
	if !h.ctrl.Submitted() {
		t.Error("done-flag not set after threshold flush")
	}
}

func TestForceSubmitCommand(t *testing.T) {
	h := newHarness(t)
	h.ctrl.HandleUserMessage(context.Background(), "hi")

	if err := h.host.Post(bridge.Message{Type: bridge.TypeForceSubmitData}); err != nil {
		t.Fatalf("post: %v", err)
	}

	if len(h.rec.byType(bridge.TypeChatDataSubmitted)) != 1 {
		t.Fatal("forced flush did not deliver")
	}
	if !h.ctrl.Submitted() {
		t.Error("forced flush should set the done-flag")
	}

	// A second force re-delivers without resetting anything.
	h.host.Post(bridge.Message{Type: bridge.TypeForceSubmitData})
	if len(h.rec.byType(bridge.TypeChatDataSubmitted)) != 2 {
		t.Error("second forced flush did not re-deliver")
	}
}

func TestRestoreChatState(t *testing.T) {
	h := newHarness(t)

	evts := []events.Event{
		events.New(events.KindUserMessage, "restored question", nil),
		events.New(events.KindAIResponse, "restored answer", nil),
	}
	data, _ := json.Marshal(map[string]any{
		"sessionId":       "session_1700000000000_restored1",
		"conversationLog": evts,
		"startTime":       "2025-02-28T09:00:00.000Z",
		"lastActivity":    "2025-02-28T09:05:00.000Z",
	})
	if err := h.host.Post(bridge.Message{Type: bridge.TypeRestoreChatState, Data: data}); err != nil {
		t.Fatalf("post: %v", err)
	}

	if got := h.session.SessionID(); got != "session_1700000000000_restored1" {
		t.Errorf("session id = %q", got)
	}
	if got := h.session.MessageCount(); got != 2 {
		t.Errorf("message count = %d, want 2", got)
	}
	if !h.ctrl.Submitted() {
		t.Error("restored session must start with the done-flag set")
	}
}

func TestRestoreNormalizesBareEvents(t *testing.T) {
	h := newHarness(t)

	// Entries straight off the wire: no ids, no timestamps, and one
	// with no type at all.
	data, _ := json.Marshal(map[string]any{
		"sessionId": "session_1700000000000_restored2",
		"conversationLog": []map[string]any{
			{"type": "user_message", "content": "hi"},
			{"type": "ai_response", "content": "hello"},
			{"content": "stray"},
		},
	})
	if err := h.host.Post(bridge.Message{Type: bridge.TypeRestoreChatState, Data: data}); err != nil {
		t.Fatalf("post: %v", err)
	}

	snap := h.session.Snapshot()
	if len(snap.Events) != 2 {
		t.Fatalf("restored %d events, want 2", len(snap.Events))
	}
	for i, ev := range snap.Events {
		if ev.ID == "" {
			t.Errorf("restored event %d has empty id", i)
		}
		if ev.Timestamp.IsZero() {
			t.Errorf("restored event %d has zero timestamp", i)
		}
	}
}

func TestRestoreWithoutTimestampsKeepsSessionTimes(t *testing.T) {
	h := newHarness(t)
	before := h.session.Snapshot()

	data, _ := json.Marshal(map[string]any{
		"sessionId":       "session_1700000000000_restored3",
		"conversationLog": []map[string]any{{"type": "user_message", "content": "hi"}},
		"startTime":       "not-a-timestamp",
	})
	if err := h.host.Post(bridge.Message{Type: bridge.TypeRestoreChatState, Data: data}); err != nil {
		t.Fatalf("post: %v", err)
	}

	snap := h.session.Snapshot()
	if !snap.StartTime.Equal(before.StartTime) {
		t.Errorf("start time changed by unparseable restore timestamp: %v", snap.StartTime)
	}
	if snap.LastActivity.IsZero() {
		t.Error("last activity zeroed by absent restore timestamp")
	}
}

func TestRestoreWithoutConversationLogIsIgnored(t *testing.T) {
	h := newHarness(t)
	orig := h.session.SessionID()

	data, _ := json.Marshal(map[string]any{"sessionId": "session_1_x"})
	h.host.Post(bridge.Message{Type: bridge.TypeRestoreChatState, Data: data})

	if got := h.session.SessionID(); got != orig {
		t.Errorf("session replaced by empty restore: %q", got)
	}
	if h.ctrl.Submitted() {
		t.Error("done-flag set by ignored restore")
	}
}

func TestStartFreshCommand(t *testing.T) {
	h := newHarness(t)
	h.ctrl.HandleUserMessage(context.Background(), "hi")
	orig := h.session.SessionID()

	h.host.Post(bridge.Message{Type: bridge.TypeStartFresh})

	if h.session.SessionID() == orig {
		t.Error("startFresh kept the old session id")
	}
	if h.session.MessageCount() != 0 {
		t.Errorf("message count = %d after startFresh", h.session.MessageCount())
	}
	if h.ctrl.Submitted() {
		t.Error("done-flag survived startFresh")
	}
}

func TestPageHiddenFlushes(t *testing.T) {
	h := newHarness(t)
	h.ctrl.HandleUserMessage(context.Background(), "hi")

	h.ctrl.PageHidden()

	if len(h.rec.byType(bridge.TypeChatDataSubmitted)) != 1 {
		t.Fatal("page hide did not flush")
	}
}

func TestPageHiddenWithNoMessagesIsSilent(t *testing.T) {
	h := newHarness(t)
	h.ctrl.PageHidden()
	if len(h.rec.byType(bridge.TypeChatDataSubmitted)) != 0 {
		t.Fatal("empty session flushed on page hide")
	}
}

func TestQuickPromptsFallBack(t *testing.T) {
	h := newHarness(t)
	h.mock.Err = &openai.APIError{Type: "rate_limit_exceeded"}

	prompts := h.ctrl.QuickPrompts(context.Background())
	if len(prompts) != 2 {
		t.Fatalf("got %d prompts", len(prompts))
	}
	if prompts[0] != "What if this could____?" {
		t.Errorf("fallback prompt = %q", prompts[0])
	}
}

func TestSelectQuickPromptDoesNotAdvanceTriggers(t *testing.T) {
	h := newHarness(t)
	h.ctrl.SelectQuickPrompt("What if this could fly?")

	if got := h.session.MessageCount(); got != 0 {
		t.Errorf("message count = %d, want 0", got)
	}
	if len(h.rec.byType(bridge.TypeChatUpdate)) != 0 {
		t.Error("quick prompt selection posted a chatUpdate")
	}
}

func TestNudgerRotationAndAutoHide(t *testing.T) {
	h := newHarness(t)
	h.ctrl.HandleUserMessage(context.Background(), "one")
	h.ctrl.HandleUserMessage(context.Background(), "two")

	n := NewNudger(h.ctrl, []string{"nudge one", "nudge two"}, h.clock)
	n.Start()
	defer n.Stop()

	h.clock.Advance(10 * time.Second)
	if got := n.Current(); got != "nudge one" {
		t.Fatalf("current = %q, want first nudge", got)
	}

	h.clock.Advance(8 * time.Second)
	if got := n.Current(); got != "" {
		t.Errorf("nudge still visible after auto-hide: %q", got)
	}

	h.clock.Advance(2 * time.Second)
	if got := n.Current(); got != "nudge two" {
		t.Errorf("current = %q, want second nudge", got)
	}

	shown := h.session.Query(func(e events.Event) bool { return e.Kind == events.KindNudgeShown })
	if len(shown) != 2 {
		t.Errorf("nudge_shown logged %d times, want 2", len(shown))
	}
	// Auto-hide is not a participant action.
	dismissed := h.session.Query(func(e events.Event) bool { return e.Kind == events.KindNudgeDismissed })
	if len(dismissed) != 0 {
		t.Errorf("nudge_dismissed logged %d times, want 0", len(dismissed))
	}
}

func TestNudgerManualDismiss(t *testing.T) {
	h := newHarness(t)
	h.ctrl.HandleUserMessage(context.Background(), "one")
	h.ctrl.HandleUserMessage(context.Background(), "two")

	n := NewNudger(h.ctrl, []string{"nudge one"}, h.clock)
	n.Start()
	defer n.Stop()

	h.clock.Advance(10 * time.Second)
	n.Dismiss()

	if got := n.Current(); got != "" {
		t.Errorf("nudge visible after dismiss: %q", got)
	}
	dismissed := h.session.Query(func(e events.Event) bool { return e.Kind == events.KindNudgeDismissed })
	if len(dismissed) != 1 {
		t.Errorf("nudge_dismissed logged %d times, want 1", len(dismissed))
	}
}

func TestNudgerWaitsForConversation(t *testing.T) {
	h := newHarness(t)
	n := NewNudger(h.ctrl, []string{"nudge one"}, h.clock)
	n.Start()
	defer n.Stop()

	h.clock.Advance(10 * time.Second)
	if got := n.Current(); got != "" {
		t.Fatalf("nudge shown before the conversation warmed up: %q", got)
	}

	h.ctrl.HandleUserMessage(context.Background(), "one")
	h.ctrl.HandleUserMessage(context.Background(), "two")
	h.clock.Advance(10 * time.Second)
	if got := n.Current(); got != "nudge one" {
		t.Errorf("current = %q, want nudge after warm-up", got)
	}
}
