package merge

import (
	"regexp"
	"strings"
)

var (
	markdownImagePattern = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	markdownLinkPattern  = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	htmlTagPattern       = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern    = regexp.MustCompile(`\s+`)
)

// CleanSnippet strips markdown images, markdown links (keeping the link
// text), and HTML tags from a raw web snippet, collapses whitespace, and
// truncates at a word boundary with an ellipsis when the result exceeds
// maxLen. A non-positive maxLen disables truncation.
func CleanSnippet(s string, maxLen int) string {
	s = markdownImagePattern.ReplaceAllString(s, "")
	s = markdownLinkPattern.ReplaceAllString(s, "$1")
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))

	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}

	truncated := s[:maxLen]
	if idx := strings.LastIndex(truncated, " "); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}
