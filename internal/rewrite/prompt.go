package rewrite

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/astrofix/astrofix/internal/geometry"
	"github.com/astrofix/astrofix/internal/markup"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

var userTemplate = template.Must(template.New("user").Parse(userPromptTmpl))

// SystemPrompt returns the system prompt for layout correction.
func SystemPrompt() string {
	return systemPrompt
}

// UserPrompt builds the correction prompt from the page markup and the
// detection result.
func UserPrompt(page string, detections *geometry.Result, preserveBlocks bool) string {
	objects := make([]string, 0, len(detections.Objects))
	for _, obj := range detections.Objects {
		objects = append(objects, fmt.Sprintf(
			"Object %d: BBox=[%.1f, %.1f, %.1f, %.1f], Size=%.1fx%.1fpx, Score=%.3f",
			obj.ID,
			obj.Box.X1, obj.Box.Y1, obj.Box.X2, obj.Box.Y2,
			obj.Box.Width(), obj.Box.Height(),
			obj.Score,
		))
	}

	// A parse failure just omits the inventory; the full markup is in the
	// prompt regardless.
	var blocks []string
	if parsed, err := markup.ExtractBlocks(page); err == nil {
		for _, b := range parsed {
			blocks = append(blocks, fmt.Sprintf(
				"Block %d: left=%s, top=%s, width=%s, height=%s, z-index=%s",
				b.Index, b.Left, b.Top, b.Width, b.Height, b.ZIndex,
			))
		}
	}

	data := struct {
		Markup         string
		TotalObjects   int
		TotalOverlaps  int
		ImageWidth     int
		ImageHeight    int
		Objects        []string
		Blocks         []string
		PreserveBlocks bool
	}{
		Markup:         page,
		TotalObjects:   detections.TotalObjects(),
		TotalOverlaps:  detections.TotalOverlaps(),
		ImageWidth:     detections.ImageWidth,
		ImageHeight:    detections.ImageHeight,
		Objects:        objects,
		Blocks:         blocks,
		PreserveBlocks: preserveBlocks,
	}

	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		// Fallback to raw template on error
		return userPromptTmpl
	}
	return buf.String()
}
