package slack

import (
	"regexp"
	"strings"
)

var (
	boldRe    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	linkRe    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	bulletRe  = regexp.MustCompile(`(?m)^(\s*)[-*]\s+`)
)

// FormatMarkdown переводит обычный markdown в slack mrkdwn:
// **bold** -> *bold*, [t](u) -> <u|t>, заголовки -> жирные строки.
// Содержимое fenced-блоков не трогается.
func FormatMarkdown(text string) string {
	parts := strings.Split(text, "```")
	for i := 0; i < len(parts); i += 2 {
		parts[i] = formatSegment(parts[i])
	}
	return strings.Join(parts, "```")
}

func formatSegment(s string) string {
	s = headingRe.ReplaceAllString(s, "*$1*")
	s = boldRe.ReplaceAllString(s, "*$1*")
	s = linkRe.ReplaceAllString(s, "<$2|$1>")
	s = bulletRe.ReplaceAllString(s, "$1• ")
	return s
}
