package utils

import (
	"html/template"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.UGCPolicy()

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// SafeHTML sanitizes operator supplied HTML (the demo page notice) for
// direct use in a template.
func SafeHTML(input string) template.HTML {
	return template.HTML(Sanitize(input))
}
