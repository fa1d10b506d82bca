// Package fieldsink persists the flat survey fields the collector
// derives from submitted chat data. Implementations share one contract:
// writes are keyed by session and field name, and the last write wins.
package fieldsink

import "context"

// Well-known field names written by the collector.
const (
	FieldSessionID         = "chatSessionId"
	FieldParticipantID     = "chatParticipantId"
	FieldMessageCount      = "chatMessageCount"
	FieldUserMessageCount  = "chatUserMessageCount"
	FieldAIMessageCount    = "chatAiMessageCount"
	FieldSessionDurationMs = "chatSessionDurationMs"
	FieldStartTime         = "chatStartTime"
	FieldEndTime           = "chatEndTime"
	FieldConversationLog   = "chatConversationLog"
	FieldPasteEvents       = "pasteEvents"
	FieldTotalPasteEvents  = "totalPasteEvents"
	FieldInteractions      = "fieldInteractions"
	FieldFinalDataStored   = "finalDataStored"
)

// NoChatData is the placeholder written when a session ends before any
// chat data can be collected.
const NoChatData = "NO_CHAT_DATA"

// Sink is the interface consumed by the collector and the API.
type Sink interface {
	Set(ctx context.Context, sessionID, field, value string) error
	SetAll(ctx context.Context, sessionID string, fields map[string]string) error
	Get(ctx context.Context, sessionID, field string) (string, bool, error)
	GetAll(ctx context.Context, sessionID string) (map[string]string, error)
	Close()
}
