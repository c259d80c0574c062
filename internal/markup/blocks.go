// Package markup parses page markup for positioned content blocks.
// Pages use absolutely-positioned elements carrying the "block" class; the
// rewriter uses the inventory here to build correction prompts and to verify
// that a rewrite preserved existing blocks.
package markup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Block is one positioned content element extracted from markup.
type Block struct {
	Index  int
	Style  string
	Top    string
	Left   string
	Width  string
	Height string
	ZIndex string
}

// Position is a block's placement in viewport units.
type Position struct {
	Left   string
	Top    string
	Width  string
	Height string
}

// ExtractBlocks returns every element with the "block" class, in document
// order, with its positional style fields parsed out.
func ExtractBlocks(html string) ([]Block, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	var blocks []Block
	doc.Find(".block").Each(func(i int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		styles := ParseStyle(style)
		blocks = append(blocks, Block{
			Index:  i,
			Style:  style,
			Top:    styleOr(styles, "top", "0vh"),
			Left:   styleOr(styles, "left", "0vw"),
			Width:  styleOr(styles, "width", "0vw"),
			Height: styleOr(styles, "height", "0vh"),
			ZIndex: styleOr(styles, "z-index", "0"),
		})
	})

	return blocks, nil
}

// CountBlocks returns the number of "block" elements in the markup.
// Used to check that a rewrite did not drop blocks.
func CountBlocks(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("parse markup: %w", err)
	}
	return doc.Find(".block").Length(), nil
}

// ParseStyle splits an inline style attribute into key/value pairs.
func ParseStyle(style string) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		key, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// UpdateBlockPositions rewrites the positional styles of "block" elements by
// document-order index. Updates beyond the number of blocks present are
// ignored. Returns the serialized document.
func UpdateBlockPositions(html string, updates []Position) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}

	doc.Find(".block").Each(func(i int, sel *goquery.Selection) {
		if i >= len(updates) {
			return
		}
		up := updates[i]
		style, _ := sel.Attr("style")
		styles := ParseStyle(style)
		if up.Top != "" {
			styles["top"] = up.Top
		}
		if up.Left != "" {
			styles["left"] = up.Left
		}
		if up.Width != "" {
			styles["width"] = up.Width
		}
		if up.Height != "" {
			styles["height"] = up.Height
		}
		sel.SetAttr("style", joinStyle(styles))
	})

	return doc.Html()
}

// PixelsToViewport converts a pixel-space rectangle into vw/vh units relative
// to the rendered image dimensions.
func PixelsToViewport(x, y, width, height float64, imgWidth, imgHeight int) Position {
	return Position{
		Left:   fmt.Sprintf("%.1fvw", x/float64(imgWidth)*100),
		Top:    fmt.Sprintf("%.1fvh", y/float64(imgHeight)*100),
		Width:  fmt.Sprintf("%.1fvw", width/float64(imgWidth)*100),
		Height: fmt.Sprintf("%.1fvh", height/float64(imgHeight)*100),
	}
}

func styleOr(styles map[string]string, key, fallback string) string {
	if v, ok := styles[key]; ok {
		return v
	}
	return fallback
}

// joinStyle serializes style pairs with position keys first so diffs of
// rewritten markup stay readable.
func joinStyle(styles map[string]string) string {
	order := []string{"position", "left", "top", "width", "height", "z-index"}
	var parts []string
	seen := make(map[string]bool)
	for _, key := range order {
		if v, ok := styles[key]; ok {
			parts = append(parts, key+":"+v)
			seen[key] = true
		}
	}
	// Remaining keys sorted for determinism.
	var rest []string
	for key := range styles {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		parts = append(parts, key+":"+styles[key])
	}
	return strings.Join(parts, ";")
}
