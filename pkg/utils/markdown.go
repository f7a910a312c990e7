package utils

import (
	"regexp"
	"strings"
)

var (
	boldRe    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	linkRe    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// SanitizeMarkdown converts LLM markdown to the flavor chat channels render:
// double asterisks become single, headings become bold lines, and inline
// links are flattened to "label: url".
func SanitizeMarkdown(text string) string {
	if text == "" {
		return text
	}
	out := boldRe.ReplaceAllString(text, "*$1*")
	out = headingRe.ReplaceAllString(out, "*$1*")
	out = linkRe.ReplaceAllString(out, "$1: $2")
	return strings.TrimSpace(out)
}
