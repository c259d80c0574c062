package providers

import "encoding/json"

// openRouterRequest is the request body for /chat/completions.
type openRouterRequest struct {
	Model          string                    `json:"model"`
	Messages       []openRouterMessage       `json:"messages"`
	Temperature    float64                   `json:"temperature,omitempty"`
	MaxTokens      int                       `json:"max_tokens,omitempty"`
	ResponseFormat *openRouterResponseFormat `json:"response_format,omitempty"`
}

// openRouterMessage is a single chat message on the wire.
type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openRouterResponseFormat requests structured output.
type openRouterResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// openRouterResponse is the response body for /chat/completions.
type openRouterResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []openRouterChoice `json:"choices"`
	Usage   *openRouterUsage   `json:"usage,omitempty"`
	Error   *openRouterError   `json:"error,omitempty"`
}

type openRouterChoice struct {
	Message      openRouterChoiceMessage `json:"message"`
	FinishReason string                  `json:"finish_reason"`
}

type openRouterChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openRouterError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}
