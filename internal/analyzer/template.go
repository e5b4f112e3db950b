package analyzer

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

// Placeholders recognised in prompt templates
const (
	CodePlaceholder     = "{CODE_PLACEHOLDER}"
	FileNamePlaceholder = "{FILE_NAME_PLACEHOLDER}"
)

//go:embed prompt.md
var defaultPrompt string

// Template is a prompt with placeholders for the document text and name
type Template struct {
	text string
}

// DefaultTemplate returns the built-in prompt
func DefaultTemplate() *Template {
	return &Template{text: defaultPrompt}
}

// NewTemplate wraps text. It must contain the code placeholder.
func NewTemplate(text string) (*Template, error) {
	if !strings.Contains(text, CodePlaceholder) {
		return nil, fmt.Errorf("%w: template has no %s", ErrInvalidInput, CodePlaceholder)
	}
	return &Template{text: text}, nil
}

// LoadTemplate reads a template file. An empty path returns the default.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}
	return NewTemplate(string(data))
}

// Text returns the raw template
func (t *Template) Text() string {
	return t.text
}

// Render fills in the template. Every file name placeholder is replaced, then
// the first code placeholder. Placeholders inside code are left alone.
func (t *Template) Render(code, fileName string) string {
	if t == nil {
		t = DefaultTemplate()
	}
	out := strings.ReplaceAll(t.text, FileNamePlaceholder, fileName)
	return strings.Replace(out, CodePlaceholder, code, 1)
}
