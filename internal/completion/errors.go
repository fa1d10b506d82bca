package completion

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// FailureKind classifies an upstream completion failure. Each kind maps
// to a distinct user-visible message and HTTP status.
type FailureKind string

const (
	FailureQuota      FailureKind = "quota_exceeded"
	FailureAuth       FailureKind = "invalid_credential"
	FailureRateLimit  FailureKind = "rate_limited"
	FailureNoResponse FailureKind = "no_response"
	FailureGeneric    FailureKind = "generic"
)

// Error wraps an upstream failure with its classification.
type Error struct {
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("completion %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the classification to the status the API surface
// returns.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case FailureQuota, FailureRateLimit:
		return http.StatusTooManyRequests
	case FailureAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the message surfaced to the participant.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case FailureQuota:
		return "OpenAI API quota exceeded. Please check your OpenAI billing and usage."
	case FailureAuth:
		return "Invalid OpenAI API key. Please check your OPENAI_API_KEY environment variable."
	case FailureRateLimit:
		return "OpenAI API rate limit exceeded. Please try again in a moment."
	case FailureNoResponse:
		return "No response generated from OpenAI"
	default:
		return "Failed to get response from AI"
	}
}

// Classify wraps an upstream error into a classified Error. Already
// classified errors pass through unchanged.
func Classify(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	kind := FailureGeneric

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case "insufficient_quota":
			kind = FailureQuota
		case "invalid_api_key":
			kind = FailureAuth
		case "rate_limit_exceeded":
			kind = FailureRateLimit
		}
	}

	if kind == FailureGeneric {
		s := strings.ToLower(err.Error())
		switch {
		case strings.Contains(s, "insufficient_quota") || strings.Contains(s, "quota"):
			kind = FailureQuota
		case strings.Contains(s, "invalid_api_key") || strings.Contains(s, "incorrect api key") || strings.Contains(s, "401"):
			kind = FailureAuth
		case strings.Contains(s, "rate limit") || strings.Contains(s, "429") || strings.Contains(s, "too many requests"):
			kind = FailureRateLimit
		}
	}

	return &Error{Kind: kind, Err: err}
}
