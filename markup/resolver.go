// Package markup decodes the upstream inline text grammar (mentions, emoji
// shortcodes, a markdown subset) into renderable HTML. Unknown or malformed
// tokens degrade to literal text, they never fail the post.
package markup

import (
	"html"
	"regexp"
	"strings"
)

// MentionTable maps user ids to display names, harvested from the same raw
// object the text came from. Resolution is purely local to text plus table.
type MentionTable map[string]string

// Resolved is the output of a resolver pass
type Resolved struct {
	Html string

	// User ids referenced by mention tokens, in order of first appearance
	Mentions []string
}

// Resolver decodes one text at a time. Safe for concurrent use, all state
// is per call.
type Resolver struct {
	emojis EmojiIndex
	rules  []rule
}

// A rule matches one token class at the current offset. It reports the
// number of input bytes consumed and the HTML produced; ok is false when
// the grammar does not match here and the next rule should be tried.
type rule struct {
	name  string
	match func(st *state, src string, pos int) (consumed int, out string, ok bool)
}

type state struct {
	resolver *Resolver
	mentions MentionTable
	seen     map[string]bool
	found    []string
	depth    int
}

// Token grammars. Mentions come in the classic double-brace form carrying
// the display anchor inline, and a bare form that relies on the mention
// table for the name.
var (
	mentionFullRe = regexp.MustCompile(`^@\{\{u_([0-9a-zA-Z]+)\}(.*?)\}`)
	mentionBareRe = regexp.MustCompile(`^@\{u_([0-9a-zA-Z]+)\}`)
	emojiRe       = regexp.MustCompile(`^:([0-9a-z_+-]+):`)
	strongRe      = regexp.MustCompile(`^\*\*([^*\n]+)\*\*`)
	emStarRe      = regexp.MustCompile(`^\*([^*\n]+)\*`)
	emUnderRe     = regexp.MustCompile(`^_([^_\n]+)_`)
	linkRe        = regexp.MustCompile(`^\[([^\]\n]*)\]\((https?://[^)\s]+)\)`)
	autolinkRe    = regexp.MustCompile(`^https?://[^\s<>"]+`)
)

const maxEmphasisDepth = 4

func NewResolver(emojis EmojiIndex) *Resolver {
	if emojis == nil {
		emojis = DefaultEmojiIndex()
	}
	r := &Resolver{emojis: emojis}
	r.rules = []rule{
		{name: "mention", match: matchMention},
		{name: "emoji", match: matchEmoji},
		{name: "strong", match: matchStrong},
		{name: "em", match: matchEm},
		{name: "link", match: matchLink},
		{name: "autolink", match: matchAutolink},
		{name: "newline", match: matchNewline},
	}
	return r
}

// Resolve runs a single left-to-right pass over raw. At every offset each
// rule is tried and the longest match wins; anything unmatched is escaped
// and kept as literal text.
func (r *Resolver) Resolve(raw string, mentions MentionTable) Resolved {
	st := &state{resolver: r, mentions: mentions, seen: make(map[string]bool)}
	html := r.resolve(st, raw)
	return Resolved{Html: html, Mentions: st.found}
}

func (r *Resolver) resolve(st *state, src string) string {
	var b strings.Builder
	var literal strings.Builder

	flush := func() {
		if literal.Len() > 0 {
			b.WriteString(html.EscapeString(literal.String()))
			literal.Reset()
		}
	}

	pos := 0
	for pos < len(src) {
		consumed, out, ok := r.longestMatch(st, src, pos)
		if !ok {
			literal.WriteByte(src[pos])
			pos++
			continue
		}
		flush()
		b.WriteString(out)
		pos += consumed
	}
	flush()
	return b.String()
}

func (r *Resolver) longestMatch(st *state, src string, pos int) (int, string, bool) {
	bestLen := 0
	bestOut := ""
	found := false
	for _, rule := range r.rules {
		consumed, out, ok := rule.match(st, src, pos)
		if ok && consumed > bestLen {
			bestLen, bestOut, found = consumed, out, true
		}
	}
	return bestLen, bestOut, found
}

func matchMention(st *state, src string, pos int) (int, string, bool) {
	rest := src[pos:]

	if m := mentionFullRe.FindStringSubmatch(rest); m != nil {
		id, name := m[1], m[2]
		if name == "" {
			name = st.mentions[id]
		}
		if name == "" {
			name = "@" + id
		}
		st.recordMention(id)
		return len(m[0]), mentionAnchor(id, name), true
	}

	if m := mentionBareRe.FindStringSubmatch(rest); m != nil {
		id := m[1]
		name, known := st.mentions[id]
		if !known {
			// Without a display name we cannot render the anchor, keep literal
			return 0, "", false
		}
		st.recordMention(id)
		return len(m[0]), mentionAnchor(id, name), true
	}

	return 0, "", false
}

func mentionAnchor(id, name string) string {
	return `<a href="/userfeed/` + html.EscapeString(id) + `" class="user-mention">` +
		html.EscapeString(name) + `</a>`
}

func (st *state) recordMention(id string) {
	if !st.seen[id] {
		st.seen[id] = true
		st.found = append(st.found, id)
	}
}

func matchEmoji(st *state, src string, pos int) (int, string, bool) {
	m := emojiRe.FindStringSubmatch(src[pos:])
	if m == nil {
		return 0, "", false
	}
	url, known := st.resolver.emojis[m[1]]
	if !known {
		// Unknown shortcodes fall back to the literal text
		return 0, "", false
	}
	out := `<img class="mewe-emoji" alt=":` + m[1] + `:" src="` + html.EscapeString(url) + `"/>`
	return len(m[0]), out, true
}

func matchStrong(st *state, src string, pos int) (int, string, bool) {
	m := strongRe.FindStringSubmatch(src[pos:])
	if m == nil {
		return 0, "", false
	}
	return len(m[0]), "<strong>" + st.inner(m[1]) + "</strong>", true
}

func matchEm(st *state, src string, pos int) (int, string, bool) {
	m := emStarRe.FindStringSubmatch(src[pos:])
	if m == nil {
		m = emUnderRe.FindStringSubmatch(src[pos:])
	}
	if m == nil {
		return 0, "", false
	}
	return len(m[0]), "<em>" + st.inner(m[1]) + "</em>", true
}

func matchLink(st *state, src string, pos int) (int, string, bool) {
	m := linkRe.FindStringSubmatch(src[pos:])
	if m == nil {
		return 0, "", false
	}
	text := m[1]
	if text == "" {
		text = m[2]
	}
	out := `<a href="` + html.EscapeString(m[2]) + `">` + st.inner(text) + `</a>`
	return len(m[0]), out, true
}

func matchAutolink(st *state, src string, pos int) (int, string, bool) {
	m := autolinkRe.FindString(src[pos:])
	if m == "" {
		return 0, "", false
	}
	// Trailing punctuation belongs to the sentence, not the URL
	trimmed := strings.TrimRight(m, ".,;!?")
	escaped := html.EscapeString(trimmed)
	return len(trimmed), `<a href="` + escaped + `">` + escaped + `</a>`, true
}

func matchNewline(st *state, src string, pos int) (int, string, bool) {
	if src[pos] == '\n' {
		return 1, "<br/>\n", true
	}
	return 0, "", false
}

// inner resolves the content of an emphasis or link token. Nesting is
// bounded so corrupted input cannot recurse unboundedly.
func (st *state) inner(src string) string {
	if st.depth >= maxEmphasisDepth {
		return html.EscapeString(src)
	}
	st.depth++
	out := st.resolver.resolve(st, src)
	st.depth--
	return out
}
