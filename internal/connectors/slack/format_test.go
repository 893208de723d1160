package slack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold", "**important**", "*important*"},
		{"link", "see [docs](https://example.com)", "see <https://example.com|docs>"},
		{"heading", "## Results\ntext", "*Results*\ntext"},
		{"bullet", "- one\n- two", "• one\n• two"},
		{"star bullet", "* one", "• one"},
		{
			"code block untouched",
			"before\n```\n**not bold** [no](link)\n```\nafter **bold**",
			"before\n```\n**not bold** [no](link)\n```\nafter *bold*",
		},
		{"plain", "nothing to do", "nothing to do"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMarkdown(tt.in))
		})
	}
}

func TestStripMentions(t *testing.T) {
	assert.Equal(t, " hello", StripMentions("<@U12345> hello"))
	assert.Equal(t, "a  b", StripMentions("a <@U1> b"))
	assert.Equal(t, "no mentions", StripMentions("no mentions"))
	assert.Equal(t, "broken <@U1", StripMentions("broken <@U1"))
}
