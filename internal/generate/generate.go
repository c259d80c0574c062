// Package generate creates multi-page site markup from a text description.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/astrofix/astrofix/internal/providers"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 8000

	// MaxPages caps how many pages one request may generate.
	MaxPages = 10
)

// Generator produces site pages from a description.
type Generator struct {
	llm         providers.LLMClient
	model       string
	temperature float64
	maxTokens   int
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(g *Generator) { g.model = model }
}

// NewGenerator creates a Generator on top of an LLM client.
func NewGenerator(llm providers.LLMClient, opts ...Option) *Generator {
	g := &Generator{
		llm:         llm,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request describes the site to generate.
type Request struct {
	Description string
	Style       string
	NumPages    int
	RequestID   string
}

// Page is one generated page.
type Page struct {
	ID     string `json:"page_id"`
	Markup string `json:"html"`
}

// Result holds the generated pages in ascending page-ID order.
type Result struct {
	Pages  []Page
	Tokens int
}

// pagesSchema builds a JSON schema requiring page_1..page_N string keys.
// Used for structured-output validation on multi-page generations.
func pagesSchema(numPages int) json.RawMessage {
	props := make(map[string]any, numPages)
	required := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		key := fmt.Sprintf("page_%d", i)
		props[key] = map[string]any{"type": "string"}
		required = append(required, key)
	}
	raw, err := json.Marshal(map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	})
	if err != nil {
		return nil
	}
	return raw
}

// Generate asks the LLM for site markup. NumPages must be in [1, MaxPages].
func (g *Generator) Generate(ctx context.Context, req *Request) (*Result, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("empty description")
	}
	if req.NumPages < 1 || req.NumPages > MaxPages {
		return nil, fmt.Errorf("num_pages must be between 1 and %d, got %d", MaxPages, req.NumPages)
	}

	chatReq := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: UserPrompt(req.Description, req.Style, req.NumPages)},
		},
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		RequestID:   req.RequestID,
	}
	if req.NumPages > 1 {
		chatReq.ResponseFormat = &providers.ResponseFormat{
			Type:       "json_object",
			JSONSchema: pagesSchema(req.NumPages),
		}
	}

	chatResult, err := g.llm.Chat(ctx, chatReq)
	if err != nil {
		// A structured-output parse failure still carries usable text;
		// fall through to the looser recovery paths in that case.
		if chatResult == nil || chatResult.Content == "" {
			return nil, fmt.Errorf("generation failed: %w", err)
		}
	}

	pages := parsePages(chatResult, req)

	return &Result{
		Pages:  pages,
		Tokens: chatResult.TotalTokens,
	}, nil
}

var (
	pagesJSONPattern = regexp.MustCompile(`(?s)\{[^{}]*"page_\d+"[^{}]*\}`)
	htmlBlockPattern = regexp.MustCompile(`(?is)<html[^>]*>.*?</html>`)
	bodyPattern      = regexp.MustCompile(`(?is)<body[^>]*>.*?</body>`)
)

// parsePages extracts pages from the LLM response, falling back through
// progressively looser recovery strategies.
func parsePages(chatResult *providers.ChatResult, req *Request) []Page {
	content := chatResult.Content

	if req.NumPages == 1 {
		if markup := extractSingleHTML(content); markup != "" {
			return []Page{{ID: "page_1", Markup: markup}}
		}
		return []Page{{ID: "page_1", Markup: FallbackPage(req.Description)}}
	}

	// Schema-validated structured output first
	if len(chatResult.ParsedJSON) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(chatResult.ParsedJSON, &raw); err == nil {
			if pages := pagesFromMap(raw); len(pages) > 0 {
				return pages
			}
		}
	}

	// Inline JSON object with page_N keys
	if m := pagesJSONPattern.FindString(content); m != "" {
		var raw map[string]string
		if err := json.Unmarshal([]byte(m), &raw); err == nil {
			anyMap := make(map[string]any, len(raw))
			for k, v := range raw {
				anyMap[k] = v
			}
			if pages := pagesFromMap(anyMap); len(pages) > 0 {
				return pages
			}
		}
	}

	// Bare HTML documents in order
	if blocks := htmlBlockPattern.FindAllString(content, req.NumPages); len(blocks) > 0 {
		pages := make([]Page, 0, len(blocks))
		for i, markup := range blocks {
			pages = append(pages, Page{ID: fmt.Sprintf("page_%d", i+1), Markup: markup})
		}
		return pages
	}

	return []Page{{ID: "page_1", Markup: FallbackPage(req.Description)}}
}

// pagesFromMap converts a page_N-keyed map into sorted pages.
func pagesFromMap(m map[string]any) []Page {
	var pages []Page
	for key, val := range m {
		if !strings.HasPrefix(key, "page_") {
			continue
		}
		markup, ok := val.(string)
		if !ok || strings.TrimSpace(markup) == "" {
			continue
		}
		pages = append(pages, Page{ID: key, Markup: markup})
	}
	sort.Slice(pages, func(i, j int) bool { return pageLess(pages[i].ID, pages[j].ID) })
	return pages
}

// pageLess orders page IDs numerically when both carry a numeric suffix,
// lexically otherwise.
func pageLess(a, b string) bool {
	var na, nb int
	_, errA := fmt.Sscanf(a, "page_%d", &na)
	_, errB := fmt.Sscanf(b, "page_%d", &nb)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// extractSingleHTML pulls one HTML document out of an LLM response.
func extractSingleHTML(content string) string {
	if m := htmlBlockPattern.FindString(content); m != "" {
		return m
	}
	if m := bodyPattern.FindString(content); m != "" {
		return "<!DOCTYPE html><html><head><meta charset='UTF-8'><title>Generated Site</title></head>" + m + "</html>"
	}
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "<") {
		return trimmed
	}
	return ""
}

// FallbackPage builds a minimal valid page when generation yields no usable
// markup. The description is embedded truncated.
func FallbackPage(description string) string {
	if len(description) > 200 {
		description = description[:200]
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Generated Site</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%);
            min-height: 100vh;
            position: relative;
        }
        .block {
            position: absolute;
            background: rgba(255, 255, 255, 0.95);
            border-radius: 12px;
            padding: 2vw;
            box-shadow: 0 8px 32px rgba(0, 0, 0, 0.1);
        }
    </style>
</head>
<body>
    <div class="block" style="left: 10vw; top: 10vh; width: 80vw; height: auto; padding: 3vw;">
        <h1 style="font-size: 4vw; margin-bottom: 2vh; color: #333;">Generated Site</h1>
        <p style="font-size: 2vw; line-height: 1.6; color: #666;">%s</p>
    </div>
</body>
</html>`, description)
}
