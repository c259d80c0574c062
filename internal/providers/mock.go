package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string
	ResponseJSON json.RawMessage

	// ResponseFunc, when set, overrides ResponseText per-request.
	ResponseFunc func(req *ChatRequest) string

	// State
	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// RequestCount returns the number of Chat calls made so far.
func (c *MockClient) RequestCount() int {
	return int(c.requestCount.Load())
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.ShouldFail {
		result.Success = false
		result.ErrorType = "mock_failure"
		result.ErrorMessage = "mock client configured to fail"
		result.TotalTime = time.Since(start)
		return result, fmt.Errorf("mock client configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		result.Success = false
		result.ErrorType = "mock_failure"
		result.ErrorMessage = fmt.Sprintf("mock client failed after %d requests", c.FailAfter)
		result.TotalTime = time.Since(start)
		return result, fmt.Errorf("mock client failed after %d requests", c.FailAfter)
	}

	select {
	case <-ctx.Done():
		result.Success = false
		result.ErrorType = "cancelled"
		result.ErrorMessage = ctx.Err().Error()
		return result, ctx.Err()
	case <-time.After(c.Latency):
	}

	content := c.ResponseText
	if c.ResponseFunc != nil {
		content = c.ResponseFunc(req)
	}
	result.Content = content

	if req.ResponseFormat != nil {
		if c.ResponseJSON != nil {
			result.ParsedJSON = c.ResponseJSON
		} else {
			parsed, err := ParseStructuredJSON(content)
			if err != nil {
				result.Success = false
				result.ErrorType = "structured_parse_error"
				result.ErrorMessage = err.Error()
				result.TotalTime = time.Since(start)
				return result, err
			}
			result.ParsedJSON = parsed
		}
	}

	result.Success = true
	result.TotalTime = time.Since(start)
	return result, nil
}

var _ LLMClient = (*MockClient)(nil)
