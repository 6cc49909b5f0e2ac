package domain

import "errors"

// ErrMissingCredential is returned by LLM integrations when no API key is configured.
var ErrMissingCredential = errors.New("missing API credential")

// ChatMessage is the provider-agnostic chat message shape used by the relay
// and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is everything an LLM client needs for one completion call.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatRequest is the inbound body of the chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

type ResultType string

const (
	ResultAI    ResultType = "ai"
	ResultError ResultType = "error"
)

// ChatResult is the outcome of a single relay call. Failures are encoded in
// Type rather than returned as errors.
type ChatResult struct {
	Response  string     `json:"response"`
	Type      ResultType `json:"type"`
	Timestamp string     `json:"timestamp"`
}
