package completion

import (
	"context"
	"strings"
)

// fallbackPrompts is served whenever generation fails or returns
// unusable output, so the widget always has two stems to show.
var fallbackPrompts = []string{
	"What if this could____?",
	"How might a child____?",
}

const quickPromptSystem = "You generate short, open-ended sentence stems that spark creative " +
	"thinking about the topic of a conversation. Each stem ends with a blank written as four " +
	"underscores. Respond with exactly two stems, one per line, no numbering."

// quickPromptWindow bounds how many recent turns seed generation.
const quickPromptWindow = 6

// FallbackQuickPrompts returns a copy of the static stems.
func FallbackQuickPrompts() []string {
	out := make([]string, len(fallbackPrompts))
	copy(out, fallbackPrompts)
	return out
}

// QuickPrompts asks the model for two sentence stems seeded by the last
// few turns. On any failure it returns the static fallback pair and a
// nil error; quick prompts are decorative and must never surface a
// provider failure to the caller.
func (c *OpenAIClient) QuickPrompts(ctx context.Context, history []Turn) ([]string, error) {
	if len(history) > quickPromptWindow {
		history = history[len(history)-quickPromptWindow:]
	}

	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, t := range history {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nGenerate two creative sentence stems about this topic.")

	sub := &OpenAIClient{client: c.client, model: c.model, systemPrompt: quickPromptSystem}
	text, _, err := sub.Complete(ctx, nil, b.String())
	if err != nil {
		return FallbackQuickPrompts(), nil
	}

	prompts := parseQuickPrompts(text)
	if len(prompts) < 2 {
		return FallbackQuickPrompts(), nil
	}
	return prompts[:2], nil
}

// parseQuickPrompts extracts stem lines containing the blank marker.
func parseQuickPrompts(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*1234567890. ")
		line = strings.Trim(line, `"`)
		if line == "" || !strings.Contains(line, "____") {
			continue
		}
		out = append(out, line)
	}
	return out
}
