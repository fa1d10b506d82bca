// Package completion wraps the external text-completion service used to
// produce bot replies and quick prompts. It is a collaborator, not part
// of the synchronization core: callers consume request→text and a
// classified error taxonomy.
package completion

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// Turn is one prior message in the conversation, oldest first.
type Turn struct {
	Role    string // "user" or "bot"
	Content string
}

// Usage echoes the provider's token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client produces bot replies and quick prompts.
type Client interface {
	Complete(ctx context.Context, history []Turn, message string) (string, Usage, error)
	QuickPrompts(ctx context.Context, history []Turn) ([]string, error)
}

const defaultSystemPrompt = "You are a helpful AI assistant in a chat interface. " +
	"Be conversational, friendly, and helpful. Keep responses concise but informative."

// historyWindow bounds how many prior turns are sent for context.
const historyWindow = 10

// OpenAIClient is the production Client.
type OpenAIClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

// NewOpenAIClient builds a client. Model defaults to gpt-3.5-turbo and
// baseURL is optional (for proxied deployments).
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(cfg),
		model:        model,
		systemPrompt: defaultSystemPrompt,
	}
}

// Complete sends the system role, the last 10 prior turns, and the
// latest user message, and returns the completion text. Failures come
// back classified.
func (c *OpenAIClient) Complete(ctx context.Context, history []Turn, message string) (string, Usage, error) {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: c.systemPrompt,
	})
	for _, t := range history {
		role := openai.ChatMessageRoleAssistant
		if t.Role == "user" {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	temp := float32(0.7)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            c.model,
		Messages:         msgs,
		MaxTokens:        500,
		Temperature:      &temp,
		PresencePenalty:  0.1,
		FrequencyPenalty: 0.1,
	})
	if err != nil {
		return "", Usage{}, Classify(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", Usage{}, &Error{
			Kind: FailureNoResponse,
			Err:  fmt.Errorf("empty completion for model %s", c.model),
		}
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}
