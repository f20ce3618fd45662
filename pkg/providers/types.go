// Package providers contains the LLM client layer: a provider interface,
// auth strategies, and an OpenAI-compatible chat-completions client shared
// by the registered providers.
package providers

import "context"

// Message is one role-tagged turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UsageInfo is the token accounting block providers return.
type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResponse is a completed (non-streamed) model reply.
type LLMResponse struct {
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Usage        *UsageInfo `json:"usage,omitempty"`
}

// LLMProvider is a stateless inference adapter: every call carries the full
// context, nothing is remembered between calls.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, model string, options map[string]interface{}) (*LLMResponse, error)
	GetDefaultModel() string
}
