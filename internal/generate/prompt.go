package generate

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

var userTemplate = template.Must(template.New("user").Parse(userPromptTmpl))

// SystemPrompt returns the system prompt for site generation.
func SystemPrompt() string {
	return systemPrompt
}

// UserPrompt builds the generation prompt.
func UserPrompt(description, style string, numPages int) string {
	data := struct {
		Description string
		Style       string
		NumPages    int
		MultiPage   bool
	}{
		Description: description,
		Style:       style,
		NumPages:    numPages,
		MultiPage:   numPages > 1,
	}

	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		// Fallback to raw template on error
		return userPromptTmpl
	}
	return buf.String()
}
