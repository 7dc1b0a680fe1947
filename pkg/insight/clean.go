package insight

import (
	"regexp"
	"strings"
)

var (
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	toolCallRe   = regexp.MustCompile(`(?m)^.*Calling tool:.*$`)
	toolResultRe = regexp.MustCompile(`(?m)^.*Tool.*returned:.*$`)
	blankLinesRe = regexp.MustCompile(`\n\s*\n`)
)

// CleanDescription removes code blocks and tool chatter from model text.
func CleanDescription(text string) string {
	text = codeBlockRe.ReplaceAllString(text, "")
	text = toolCallRe.ReplaceAllString(text, "")
	text = toolResultRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
