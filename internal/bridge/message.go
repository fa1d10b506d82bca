// Package bridge defines the message contract between the embedded chat
// widget and its hosting page, and the transports that carry it. The
// contract is a tagged union validated structurally on receipt: unknown
// or untyped messages are ignored, never an error for the session. Origin
// checking is deliberately absent — the protocol is same-trust,
// intra-survey-platform only.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the message discriminator.
type Type string

// Widget → host.
const (
	TypeChatDataSubmitted   Type = "chatDataSubmitted"
	TypeChatUpdate          Type = "chatUpdate"
	TypeRequestInitialState Type = "requestInitialState"
)

// Host → widget.
const (
	TypeForceSubmitData  Type = "forceSubmitData"
	TypeRestoreChatState Type = "restoreChatState"
	TypeStartFresh       Type = "startFresh"
	TypeClearChatStorage Type = "clearChatStorage"
)

// Message is the wire shape. Only the fields relevant to a given Type are
// populated; Data carries the payload for chatDataSubmitted and
// restoreChatState. There is no version field — compatibility across
// host/widget versions is implicit.
type Message struct {
	Type         Type            `json:"type"`
	SessionID    string          `json:"sessionId,omitempty"`
	MessageCount int             `json:"messageCount,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

var (
	ErrMissingType = errors.New("bridge: message missing type")
	ErrUnknownType = errors.New("bridge: unknown message type")
)

var knownTypes = map[Type]bool{
	TypeChatDataSubmitted:   true,
	TypeChatUpdate:          true,
	TypeRequestInitialState: true,
	TypeForceSubmitData:     true,
	TypeRestoreChatState:    true,
	TypeStartFresh:          true,
	TypeClearChatStorage:    true,
}

// Decode parses and structurally validates a raw bridge message.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("bridge: decode message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks the discriminator and per-type required fields.
func (m Message) Validate() error {
	if m.Type == "" {
		return ErrMissingType
	}
	if !knownTypes[m.Type] {
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	switch m.Type {
	case TypeChatDataSubmitted, TypeRestoreChatState:
		if len(m.Data) == 0 {
			return fmt.Errorf("bridge: %s message missing data", m.Type)
		}
	}
	return nil
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
