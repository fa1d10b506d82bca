package completion

import (
	"errors"
	"net/http"
	"testing"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

func TestClassifyAPIErrorTypes(t *testing.T) {
	cases := []struct {
		name    string
		errType string
		want    FailureKind
		status  int
	}{
		{"quota", "insufficient_quota", FailureQuota, http.StatusTooManyRequests},
		{"auth", "invalid_api_key", FailureAuth, http.StatusUnauthorized},
		{"rate limit", "rate_limit_exceeded", FailureRateLimit, http.StatusTooManyRequests},
		{"unknown type", "server_error", FailureGeneric, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify(&openai.APIError{Type: tc.errType, Message: "upstream"})
			if err.Kind != tc.want {
				t.Fatalf("kind = %s, want %s", err.Kind, tc.want)
			}
			if got := err.HTTPStatus(); got != tc.status {
				t.Errorf("status = %d, want %d", got, tc.status)
			}
		})
	}
}

func TestClassifyStringFallback(t *testing.T) {
	cases := []struct {
		msg  string
		want FailureKind
	}{
		{"You exceeded your current quota", FailureQuota},
		{"Incorrect API key provided", FailureAuth},
		{"Rate limit reached for requests", FailureRateLimit},
		{"connection reset by peer", FailureGeneric},
	}

	for _, tc := range cases {
		got := Classify(errors.New(tc.msg))
		if got.Kind != tc.want {
			t.Errorf("Classify(%q).Kind = %s, want %s", tc.msg, got.Kind, tc.want)
		}
	}
}

func TestClassifyPassThrough(t *testing.T) {
	orig := &Error{Kind: FailureNoResponse, Err: errors.New("empty")}
	if got := Classify(orig); got != orig {
		t.Fatalf("already classified error was rewrapped")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := Classify(inner)
	if !errors.Is(err, inner) {
		t.Fatal("wrapped error lost its cause")
	}
}

func TestParseQuickPrompts(t *testing.T) {
	text := "1. What if this could____?\n2. \"How might a child____?\"\nThanks for asking!\n"
	got := parseQuickPrompts(text)
	if len(got) != 2 {
		t.Fatalf("parsed %d prompts, want 2: %v", len(got), got)
	}
	if got[0] != "What if this could____?" {
		t.Errorf("first prompt = %q", got[0])
	}
	if got[1] != "How might a child____?" {
		t.Errorf("second prompt = %q", got[1])
	}
}

func TestParseQuickPromptsRejectsLinesWithoutBlank(t *testing.T) {
	if got := parseQuickPrompts("Here are some ideas:\nBe creative!"); len(got) != 0 {
		t.Fatalf("expected no prompts, got %v", got)
	}
}

func TestFallbackQuickPromptsIsACopy(t *testing.T) {
	a := FallbackQuickPrompts()
	a[0] = "mutated"
	if b := FallbackQuickPrompts(); b[0] == "mutated" {
		t.Fatal("fallback slice was shared between calls")
	}
}
