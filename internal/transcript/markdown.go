// Package transcript exports a conversation as a standalone HTML page.
package transcript

import (
	"bytes"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Converter turns message text into sanitized HTML. Chat text is treated as
// markdown, so "- " lines become bullet lists.
type Converter struct {
	md        goldmark.Markdown
	sanitizer *bluemonday.Policy
}

// Option configures the Converter.
type Option func(*Converter)

// WithSanitization sets the HTML sanitization policy. A nil policy disables
// sanitization.
func WithSanitization(policy *bluemonday.Policy) Option {
	return func(c *Converter) {
		c.sanitizer = policy
	}
}

// NewConverter creates a Converter. Output is sanitized with CreateSanitizer
// unless overridden.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.Linkify,
				extension.Strikethrough,
			),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		),
		sanitizer: CreateSanitizer(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateSanitizer returns the policy applied to message HTML. Message text
// comes from remote peers, so only basic formatting survives.
func CreateSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Convert converts markdown text to HTML.
func (c *Converter) Convert(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}

	result := buf.String()
	if c.sanitizer != nil {
		result = c.sanitizer.Sanitize(result)
	}
	return result, nil
}

// ConvertToSafeHTML converts markdown and falls back to escaped text on error.
func (c *Converter) ConvertToSafeHTML(markdown string) string {
	result, err := c.Convert(markdown)
	if err != nil {
		return "<pre>" + template.HTMLEscapeString(markdown) + "</pre>"
	}
	return result
}
