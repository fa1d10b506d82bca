// Package summary derives the two payload shapes handed to the survey
// host from a session snapshot. Builders are pure: they never mutate the
// log and may be invoked any number of times.
package summary

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mssola/useragent"

	"github.com/kapa-moon/creativity-ai/internal/events"
	"github.com/kapa-moon/creativity-ai/internal/session"
)

// Compact is the field-map written into the host's embedded-data slots,
// one slot per field, plus the full conversation log for restore.
type Compact struct {
	SessionID           string         `json:"sessionId"`
	ParticipantID       string         `json:"participantId,omitempty"`
	MessageCount        int            `json:"messageCount"`
	UserMessageCount    int            `json:"userMessageCount"`
	AIMessageCount      int            `json:"aiMessageCount"`
	SessionDurationMs   int64          `json:"sessionDurationMs"`
	StartTime           string         `json:"startTime"`
	EndTime             string         `json:"endTime"`
	FirstMessage        string         `json:"firstMessage,omitempty"`
	LastMessage         string         `json:"lastMessage,omitempty"`
	ConversationSummary string         `json:"conversationSummary"`
	ConversationLog     []events.Event `json:"conversationLog"`
}

// Detailed carries the full event array plus auxiliary interaction counts,
// submitted to the logging endpoint by the full widget variant.
type Detailed struct {
	SessionID         string `json:"sessionId"`
	SessionDuration   int64  `json:"sessionDuration"`
	TotalEvents       int    `json:"totalEvents"`
	UserMessages      int    `json:"userMessages"`
	AIResponses       int    `json:"aiResponses"`
	QuickPromptUsage  int    `json:"quickPromptUsage"`
	NudgeInteractions int    `json:"nudgeInteractions"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
	UserAgent         string `json:"userAgent"`
	Referrer          string `json:"referrer"`
	URL               string `json:"url"`
	Browser           string `json:"browser,omitempty"`
	BrowserVersion    string `json:"browserVersion,omitempty"`
	OS                string `json:"os,omitempty"`
	// DetailedEvents is the full event log serialized as a JSON string,
	// ISO-8601 timestamps, ready for a single text field.
	DetailedEvents string `json:"detailedEvents"`
}

// BuildCompact derives the compact view. Messages are sorted by timestamp
// before the transcript is flattened, so the payload is order-stable even
// when the underlying append order diverges from message time.
func BuildCompact(snap session.Snapshot) Compact {
	msgs := messageEvents(snap)

	var first, last string
	for _, e := range msgs {
		if e.Kind == events.KindUserMessage && first == "" {
			first = e.Content
		}
		if e.Kind == events.KindAIResponse {
			last = e.Content
		}
	}

	parts := make([]string, len(msgs))
	for i, e := range msgs {
		role := "bot"
		if e.Kind == events.KindUserMessage {
			role = "user"
		}
		parts[i] = fmt.Sprintf("%s: %s", role, e.Content)
	}

	var userCount, aiCount int
	for _, e := range msgs {
		if e.Kind == events.KindUserMessage {
			userCount++
		} else {
			aiCount++
		}
	}

	log := make([]events.Event, len(snap.Events))
	copy(log, snap.Events)

	return Compact{
		SessionID:           snap.SessionID,
		ParticipantID:       snap.ParticipantID,
		MessageCount:        len(msgs),
		UserMessageCount:    userCount,
		AIMessageCount:      aiCount,
		SessionDurationMs:   snap.LastActivity.Sub(snap.StartTime).Milliseconds(),
		StartTime:           snap.StartTime.UTC().Format("2006-01-02T15:04:05.000Z"),
		EndTime:             snap.LastActivity.UTC().Format("2006-01-02T15:04:05.000Z"),
		FirstMessage:        first,
		LastMessage:         last,
		ConversationSummary: strings.Join(parts, " | "),
		ConversationLog:     log,
	}
}

// BuildDetailed derives the detailed view. The user agent from the page
// metadata is parsed into browser and OS fields when present.
func BuildDetailed(snap session.Snapshot) Detailed {
	var userCount, aiCount, promptCount, nudgeCount int
	for _, e := range snap.Events {
		switch e.Kind {
		case events.KindUserMessage:
			userCount++
		case events.KindAIResponse:
			aiCount++
		case events.KindQuickPrompt:
			promptCount++
		case events.KindNudgeShown, events.KindNudgeDismissed:
			nudgeCount++
		}
	}

	serialized, _ := json.Marshal(snap.Events)

	d := Detailed{
		SessionID:         snap.SessionID,
		SessionDuration:   snap.LastActivity.Sub(snap.StartTime).Milliseconds(),
		TotalEvents:       len(snap.Events),
		UserMessages:      userCount,
		AIResponses:       aiCount,
		QuickPromptUsage:  promptCount,
		NudgeInteractions: nudgeCount,
		StartTime:         snap.StartTime.UTC().Format("2006-01-02T15:04:05.000Z"),
		EndTime:           snap.LastActivity.UTC().Format("2006-01-02T15:04:05.000Z"),
		UserAgent:         snap.Metadata.UserAgent,
		Referrer:          snap.Metadata.Referrer,
		URL:               snap.Metadata.URL,
		DetailedEvents:    string(serialized),
	}

	if snap.Metadata.UserAgent != "" {
		ua := useragent.New(snap.Metadata.UserAgent)
		name, version := ua.Browser()
		d.Browser = name
		d.BrowserVersion = version
		d.OS = ua.OS()
	}

	return d
}

func messageEvents(snap session.Snapshot) []events.Event {
	var msgs []events.Event
	for _, e := range snap.Events {
		if e.IsMessage() {
			msgs = append(msgs, e)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs
}
