// Package feeds turns normalized posts into syndication documents.
// Assembly is pure: same posts in, byte-identical document out, so feed
// readers relying on URL and content identity can dedup and cache.
package feeds

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/feeds"
	"github.com/samber/lo"

	"mewefeed/models"
)

// Metadata is the document-level feed description
type Metadata struct {
	Title       string
	Link        string
	Description string
	AvatarUrl   string

	// Public base URL used for per-post permalinks
	Hostname string
}

// Assemble produces an RSS 2.0 document from normalized posts, newest
// first. The document's last-updated is the newest post's creation time,
// never the wall clock, to keep re-assembly idempotent.
func Assemble(posts []models.Post, meta Metadata) (string, error) {
	ordered := make([]models.Post, len(posts))
	copy(ordered, posts)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].Id > ordered[j].Id
		}
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	feed := &feeds.Feed{
		Title:       meta.Title,
		Link:        &feeds.Link{Href: meta.Link},
		Description: meta.Description,
	}
	if meta.AvatarUrl != "" {
		feed.Image = &feeds.Image{Url: meta.AvatarUrl, Title: meta.Title, Link: meta.Link}
	}
	if len(ordered) > 0 {
		feed.Updated = ordered[0].CreatedAt
	}

	feed.Items = lo.Map(ordered, func(post models.Post, _ int) *feeds.Item {
		permalink := strings.TrimRight(meta.Hostname, "/") + "/viewpost/" + post.Id

		item := &feeds.Item{
			Title:   post.Title,
			Link:    &feeds.Link{Href: permalink},
			Id:      permalink,
			Author:  &feeds.Author{Name: post.Author.DisplayName()},
			Created: post.CreatedAt,
			Content: renderContent(post),
		}
		if len(post.Media) > 0 {
			length := "0"
			if post.Media[0].Bytes > 0 {
				length = strconv.FormatInt(post.Media[0].Bytes, 10)
			}
			item.Enclosure = &feeds.Enclosure{
				Url:    post.Media[0].ProxyUrl,
				Type:   post.Media[0].Mime,
				Length: length,
			}
		}
		return item
	})

	rss := (&feeds.Rss{Feed: feed}).RssFeed()
	for i, item := range rss.Items {
		if categories := categoriesFor(ordered[i]); categories != "" {
			item.Category = categories
		}
	}

	xml, err := feeds.ToXML(rss)
	if err != nil {
		return "", fmt.Errorf("could not serialize feed: %w", err)
	}
	return xml, nil
}

func categoriesFor(post models.Post) string {
	var categories []string
	if post.Album != "" {
		categories = append(categories, post.Album)
	}
	categories = append(categories, post.HashTags...)
	return strings.Join(categories, ",")
}

// renderContent builds the entry HTML: resolved body followed by link
// preview, poll results, repost and media references pointing at the proxy
func renderContent(post models.Post) string {
	var b strings.Builder
	b.WriteString(post.Body)

	if post.Link != nil {
		fmt.Fprintf(&b, `<p><a href="%s">%s</a>`,
			html.EscapeString(post.Link.Url), html.EscapeString(linkTitle(post.Link)))
		if post.Link.Text != "" {
			b.WriteString(": " + html.EscapeString(post.Link.Text))
		}
		b.WriteString("</p>")
	}

	if post.Poll != nil {
		fmt.Fprintf(&b, "<p><strong>%s</strong></p><ul>", html.EscapeString(post.Poll.Question))
		for _, option := range post.Poll.Options {
			fmt.Fprintf(&b, "<li>%s: %d%% (%d)</li>",
				html.EscapeString(option.Text), option.Percent, option.Votes)
		}
		b.WriteString("</ul>")
	}

	switch {
	case post.Repost != nil:
		fmt.Fprintf(&b, `<blockquote><p>%s wrote:</p>%s</blockquote>`,
			html.EscapeString(post.Repost.Author.DisplayName()), renderContent(*post.Repost))
	case post.RepostRemoved:
		b.WriteString("<blockquote><p>[referenced post removed]</p></blockquote>")
	}

	for _, media := range post.Media {
		switch media.Kind {
		case models.MediaImage:
			src := media.ThumbUrl
			if src == "" {
				src = media.ProxyUrl
			}
			fmt.Fprintf(&b, `<p><a href="%s"><img src="%s" alt="%s"/></a></p>`,
				media.ProxyUrl, src, html.EscapeString(media.Name))
		case models.MediaVideo:
			label := media.Name
			if media.Duration != "" {
				label += " (" + media.Duration + ")"
			}
			fmt.Fprintf(&b, `<p><a href="%s">▶ %s</a></p>`, media.ProxyUrl, html.EscapeString(label))
		default:
			label := media.Name
			if media.Size != "" {
				label += " (" + media.Size + ")"
			}
			fmt.Fprintf(&b, `<p><a href="%s">%s</a></p>`, media.ProxyUrl, html.EscapeString(label))
		}
	}

	return b.String()
}

func linkTitle(link *models.Link) string {
	if link.Title != "" {
		return link.Title
	}
	if link.Host != "" {
		return link.Host
	}
	return link.Url
}
