package markup_test

import (
	"testing"

	"mewefeed/markup"

	"github.com/stretchr/testify/assert"
)

func TestResolveMentions(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		mentions markup.MentionTable
		expected string
		found    []string
	}{
		{
			name:     "full mention with inline name",
			text:     "Hi @{{u_5c4a1b2c3d}Alice}!",
			expected: `Hi <a href="/userfeed/5c4a1b2c3d" class="user-mention">Alice</a>!`,
			found:    []string{"5c4a1b2c3d"},
		},
		{
			name:     "full mention with empty name falls back to table",
			text:     "Hi @{{u_5c4a1b2c3d}}!",
			mentions: markup.MentionTable{"5c4a1b2c3d": "Alice"},
			expected: `Hi <a href="/userfeed/5c4a1b2c3d" class="user-mention">Alice</a>!`,
			found:    []string{"5c4a1b2c3d"},
		},
		{
			name:     "full mention with no name anywhere uses the id",
			text:     "Hi @{{u_5c4a1b2c3d}}!",
			expected: `Hi <a href="/userfeed/5c4a1b2c3d" class="user-mention">@5c4a1b2c3d</a>!`,
			found:    []string{"5c4a1b2c3d"},
		},
		{
			name:     "bare mention resolved from table",
			text:     "Hi @{u_5c4a1b2c3d}",
			mentions: markup.MentionTable{"5c4a1b2c3d": "Alice"},
			expected: `Hi <a href="/userfeed/5c4a1b2c3d" class="user-mention">Alice</a>`,
			found:    []string{"5c4a1b2c3d"},
		},
		{
			name:     "bare mention without table entry stays literal",
			text:     "Hi @{u_5c4a1b2c3d}",
			expected: "Hi @{u_5c4a1b2c3d}",
		},
		{
			name:     "malformed mention stays literal",
			text:     "Hi @{{u_5c4a1b2c3d}Alice",
			expected: "Hi @{{u_5c4a1b2c3d}Alice",
		},
		{
			name:     "mention name is escaped",
			text:     "@{{u_1}<b>Alice</b>}",
			expected: `<a href="/userfeed/1" class="user-mention">&lt;b&gt;Alice&lt;/b&gt;</a>`,
			found:    []string{"1"},
		},
		{
			name: "repeated mention recorded once",
			text: "@{{u_1}Alice} and @{{u_1}Alice} again",
			expected: `<a href="/userfeed/1" class="user-mention">Alice</a> and ` +
				`<a href="/userfeed/1" class="user-mention">Alice</a> again`,
			found: []string{"1"},
		},
		{
			name:     "mentions recorded in order of first appearance",
			text:     "@{{u_2}Bob} met @{{u_1}Alice}",
			expected: `<a href="/userfeed/2" class="user-mention">Bob</a> met <a href="/userfeed/1" class="user-mention">Alice</a>`,
			found:    []string{"2", "1"},
		},
	}

	resolver := markup.NewResolver(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := resolver.Resolve(tt.text, tt.mentions)
			assert.Equal(t, tt.expected, result.Html)
			assert.Equal(t, tt.found, result.Mentions)
		})
	}
}

func TestResolveEmoji(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "known shortcode becomes an image",
			text:     "hello :smile:",
			expected: `hello <img class="mewe-emoji" alt=":smile:" src="https://cdn.mewe.com/assets/emoji/smile.png"/>`,
		},
		{
			name:     "unknown shortcode stays literal",
			text:     "hello :not_a_real_emoji:",
			expected: "hello :not_a_real_emoji:",
		},
		{
			name:     "unterminated shortcode stays literal",
			text:     "hello :smile",
			expected: "hello :smile",
		},
		{
			name: "adjacent shortcodes",
			text: ":smile::wave:",
			expected: `<img class="mewe-emoji" alt=":smile:" src="https://cdn.mewe.com/assets/emoji/smile.png"/>` +
				`<img class="mewe-emoji" alt=":wave:" src="https://cdn.mewe.com/assets/emoji/wave.png"/>`,
		},
		{
			name:     "plain colon usage untouched",
			text:     "note: this is fine",
			expected: "note: this is fine",
		},
	}

	resolver := markup.NewResolver(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := resolver.Resolve(tt.text, nil)
			assert.Equal(t, tt.expected, result.Html)
		})
	}
}

func TestResolveEmojiCustomIndex(t *testing.T) {
	index := markup.DefaultEmojiIndex()
	index["custom"] = "https://example.com/custom.png"

	resolver := markup.NewResolver(index)
	result := resolver.Resolve(":custom:", nil)

	assert.Equal(t, `<img class="mewe-emoji" alt=":custom:" src="https://example.com/custom.png"/>`, result.Html)
}

func TestResolveMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "strong",
			text:     "**bold** text",
			expected: "<strong>bold</strong> text",
		},
		{
			name:     "emphasis with stars",
			text:     "*em* text",
			expected: "<em>em</em> text",
		},
		{
			name:     "emphasis with underscores",
			text:     "_em_ text",
			expected: "<em>em</em> text",
		},
		{
			name:     "strong wins over emphasis at the same offset",
			text:     "**both**",
			expected: "<strong>both</strong>",
		},
		{
			name:     "nested emphasis inside strong",
			text:     "**bold _and em_**",
			expected: "<strong>bold <em>and em</em></strong>",
		},
		{
			name:     "unterminated strong stays literal",
			text:     "**dangling",
			expected: "**dangling",
		},
		{
			name:     "unterminated emphasis stays literal",
			text:     "*dangling",
			expected: "*dangling",
		},
		{
			name:     "explicit link",
			text:     "see [the docs](https://example.com/docs)",
			expected: `see <a href="https://example.com/docs">the docs</a>`,
		},
		{
			name:     "link with empty text uses the url",
			text:     "[](https://example.com)",
			expected: `<a href="https://example.com">https://example.com</a>`,
		},
		{
			name:     "link with markdown in text",
			text:     "[**bold**](https://example.com)",
			expected: `<a href="https://example.com"><strong>bold</strong></a>`,
		},
		{
			name:     "malformed link stays literal",
			text:     "[dangling](https://",
			expected: "[dangling](https://",
		},
		{
			name:     "autolink",
			text:     "visit https://example.com/page today",
			expected: `visit <a href="https://example.com/page">https://example.com/page</a> today`,
		},
		{
			name:     "autolink drops trailing punctuation",
			text:     "visit https://example.com.",
			expected: `visit <a href="https://example.com">https://example.com</a>.`,
		},
		{
			name:     "newline becomes a break",
			text:     "one\ntwo",
			expected: "one<br/>\ntwo",
		},
		{
			name:     "literal html is escaped",
			text:     `<script>alert("x")</script>`,
			expected: "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;",
		},
	}

	resolver := markup.NewResolver(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := resolver.Resolve(tt.text, nil)
			assert.Equal(t, tt.expected, result.Html)
		})
	}
}

func TestResolveMixedContent(t *testing.T) {
	resolver := markup.NewResolver(nil)

	text := "Hello @{{u_u1}Alice}! :smile:\nCheck [this](https://example.com/a) out."
	result := resolver.Resolve(text, nil)

	expected := `Hello <a href="/userfeed/u1" class="user-mention">Alice</a>! ` +
		`<img class="mewe-emoji" alt=":smile:" src="https://cdn.mewe.com/assets/emoji/smile.png"/>` +
		"<br/>\n" +
		`Check <a href="https://example.com/a">this</a> out.`
	assert.Equal(t, expected, result.Html)
	assert.Equal(t, []string{"u1"}, result.Mentions)
}

func TestResolveIsDeterministic(t *testing.T) {
	resolver := markup.NewResolver(nil)
	text := "@{{u_1}Alice} **bold** :smile: https://example.com"

	first := resolver.Resolve(text, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, resolver.Resolve(text, nil))
	}
}
