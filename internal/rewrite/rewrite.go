// Package rewrite asks an LLM to adjust block coordinates in page markup so
// that detected overlaps go away.
package rewrite

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/astrofix/astrofix/internal/geometry"
	"github.com/astrofix/astrofix/internal/markup"
	"github.com/astrofix/astrofix/internal/providers"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 4000
)

// Rewriter produces corrected markup from detection results.
type Rewriter struct {
	llm         providers.LLMClient
	model       string
	temperature float64
	maxTokens   int
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(r *Rewriter) { r.model = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(r *Rewriter) { r.temperature = temp }
}

// NewRewriter creates a Rewriter on top of an LLM client.
func NewRewriter(llm providers.LLMClient, opts ...Option) *Rewriter {
	r := &Rewriter{
		llm:         llm,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request holds one rewrite invocation.
type Request struct {
	// Markup is the current page HTML.
	Markup string
	// Detections is the overlap analysis for the rendered markup.
	Detections *geometry.Result
	// PageID identifies the page, used for logging and request tracing.
	PageID string
	// PreserveBlocks keeps existing blocks and only moves them; when false
	// the model may add blocks for all detected objects.
	PreserveBlocks bool
	// RequestID propagates the caller's request ID to the provider.
	RequestID string
}

// Result is the outcome of a rewrite.
type Result struct {
	// Markup is the corrected page HTML.
	Markup string
	// Corrections describes what the rewrite changed.
	Corrections []string
	// Tokens is the total token usage for the LLM call.
	Tokens int
}

// Rewrite asks the LLM for corrected markup. On provider failure the original
// markup is NOT returned; callers keep their own last-good copy.
func (r *Rewriter) Rewrite(ctx context.Context, req *Request) (*Result, error) {
	if req.Markup == "" {
		return nil, fmt.Errorf("empty markup")
	}
	if req.Detections == nil {
		return nil, fmt.Errorf("missing detections")
	}

	chatReq := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: UserPrompt(req.Markup, req.Detections, req.PreserveBlocks)},
		},
		Model:       r.model,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
		RequestID:   req.RequestID,
	}

	chatResult, err := r.llm.Chat(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("rewrite failed for page %s: %w", req.PageID, err)
	}

	corrected := ExtractHTML(chatResult.Content)
	if corrected == "" {
		return nil, fmt.Errorf("rewrite for page %s returned no HTML", req.PageID)
	}

	if req.PreserveBlocks {
		if err := checkBlocksPreserved(req.Markup, corrected); err != nil {
			return nil, fmt.Errorf("rewrite for page %s: %w", req.PageID, err)
		}
	}

	return &Result{
		Markup:      corrected,
		Corrections: describeCorrections(corrected),
		Tokens:      chatResult.TotalTokens,
	}, nil
}

// checkBlocksPreserved rejects rewrites that dropped content blocks. The
// model is told to only move blocks, but it sometimes deletes one instead;
// callers keep their last-good markup when that happens.
func checkBlocksPreserved(before, after string) error {
	countBefore, err := markup.CountBlocks(before)
	if err != nil {
		return err
	}
	countAfter, err := markup.CountBlocks(after)
	if err != nil {
		return err
	}
	if countAfter < countBefore {
		return fmt.Errorf("rewrite dropped blocks: had %d, got %d", countBefore, countAfter)
	}
	return nil
}

var (
	fencePattern = regexp.MustCompile("(?s)```(?:html)?\\s*(.*?)```")
	htmlPattern  = regexp.MustCompile(`(?is)<html.*?>.*</html>`)
	bodyPattern  = regexp.MustCompile(`(?is)<body.*?>.*</body>`)
)

// ExtractHTML pulls page markup out of an LLM response. It strips code
// fences first, then falls back to locating an <html> or <body> element in
// surrounding prose. Returns "" when no markup can be found.
func ExtractHTML(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	if m := fencePattern.FindStringSubmatch(content); m != nil {
		candidate := strings.TrimSpace(m[1])
		if candidate != "" {
			content = candidate
		}
	}

	if strings.HasPrefix(content, "<") {
		return content
	}
	if m := htmlPattern.FindString(content); m != "" {
		return m
	}
	if m := bodyPattern.FindString(content); m != "" {
		return m
	}
	return ""
}

// describeCorrections summarizes what the corrected markup contains.
func describeCorrections(page string) []string {
	var corrections []string
	compact := strings.ReplaceAll(page, " ", "")
	if strings.Contains(compact, "position:absolute") {
		corrections = append(corrections, "Updated block coordinates")
	}
	if strings.Contains(page, "vw") && strings.Contains(page, "vh") {
		corrections = append(corrections, "Converted pixels to viewport units")
	}
	return corrections
}
