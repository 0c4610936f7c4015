// Package normalize converts raw upstream post and comment objects into
// the canonical entities served to feeds and the thread viewer. It performs
// no I/O: markup resolution and media rewriting are pure, and a post that
// cannot be normalized is reported, never fatal to its siblings.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"mewefeed/markup"
	"mewefeed/media"
	"mewefeed/models"
)

// Reposts of reposts are cut off to keep adversarial payloads bounded
const maxRepostDepth = 2

type Normalizer struct {
	markup   *markup.Resolver
	rewriter *media.Rewriter
}

func New(resolver *markup.Resolver, rewriter *media.Rewriter) *Normalizer {
	return &Normalizer{markup: resolver, rewriter: rewriter}
}

// NormalizeFeed converts every post of a feed page, skipping and counting
// the ones that fail validation
func (n *Normalizer) NormalizeFeed(rawPosts []models.RawObject, users map[string]models.RawObject) ([]models.Post, int) {
	posts := make([]models.Post, 0, len(rawPosts))
	skipped := 0

	for _, raw := range rawPosts {
		post, err := n.NormalizePost(raw, users)
		if err != nil {
			skipped++
			log.WithFields(log.Fields{
				"id":    raw.String(postIdKeys...),
				"error": err,
			}).Warn("Skipping post that failed normalization")
			continue
		}
		posts = append(posts, post)
	}

	return posts, skipped
}

// NormalizePost converts one raw post object. It fails with a
// ValidationError when the object lacks an identifiable id or author;
// everything else is optional and degrades to a zero value.
func (n *Normalizer) NormalizePost(raw models.RawObject, users map[string]models.RawObject) (models.Post, error) {
	return n.normalizePost(raw, users, 0)
}

func (n *Normalizer) normalizePost(raw models.RawObject, users map[string]models.RawObject, depth int) (models.Post, error) {
	id := raw.String(postIdKeys...)
	if id == "" {
		return models.Post{}, &models.ValidationError{Reason: "post carries no identifiable id"}
	}

	authorId := raw.String(postAuthorKeys...)
	if authorId == "" {
		return models.Post{}, &models.ValidationError{Reason: fmt.Sprintf("post %s carries no author", id)}
	}

	author := resolveAuthor(authorId, users)
	createdAt := raw.Time(createdAtKeys...)
	if createdAt.IsZero() {
		createdAt = raw.Time(updatedAtKeys...)
	}
	text := raw.String(textKeys...)

	resolved := n.markup.Resolve(text, mentionTable(users))

	post := models.Post{
		Id:        id,
		Author:    author,
		CreatedAt: createdAt,
		Body:      resolved.Html,
		Album:     raw.String(albumKeys...),
		HashTags:  raw.Strings(hashTagKeys...),
		Context:   raw.String(groupKeys...),
		Mentions:  resolved.Mentions,
		Title:     titleFor(text, createdAt),
		Reactions: n.reactions(raw.Object("emojis")),
	}

	post.Media = n.postMedia(raw, author, createdAt)

	if link := raw.Object("link"); link != nil {
		post.Link = n.link(link)
	}
	if poll := raw.Object("poll"); poll != nil {
		post.Poll = n.poll(poll)
	}

	if ref := raw.Object("refPost"); ref != nil && depth < maxRepostDepth {
		repost, err := n.normalizePost(ref, users, depth+1)
		if err == nil {
			post.Repost = &repost
		} else {
			log.WithFields(log.Fields{
				"post":  id,
				"error": err,
			}).Warn("Dropping unnormalizable referenced post")
		}
	}
	if raw.Bool("refRemoved") {
		post.RepostRemoved = true
	}

	return post, nil
}

// mentionTable harvests {user id -> display name} from the user objects
// shipped alongside the same feed payload
func mentionTable(users map[string]models.RawObject) markup.MentionTable {
	table := make(markup.MentionTable, len(users))
	for id, user := range users {
		if name := user.String(userNameKeys...); name != "" {
			table[id] = name
		}
	}
	return table
}

func resolveAuthor(id string, users map[string]models.RawObject) models.Author {
	author := models.Author{Id: id}
	if user, ok := users[id]; ok {
		author.Name = user.String(userNameKeys...)
		author.InviteId = user.String(userInviteKeys...)
	}
	return author
}

// titleFor builds the feed entry title: leading text, the creation date
// when the post has no text at all
func titleFor(text string, createdAt time.Time) string {
	if text == "" {
		if createdAt.IsZero() {
			return "Untitled post"
		}
		return createdAt.Format("02 Jan 2006 15:04:05")
	}
	runes := []rune(text)
	if len(runes) > 60 {
		return string(runes[:60]) + "…"
	}
	return text
}

// MissingMedia reports how many media objects the upstream truncated out
// of the inline post payload. Posts with more than four attachments inline
// only the first few and carry the full count separately.
func MissingMedia(raw models.RawObject) int {
	count := int(raw.Int(mediaCountKeys...))
	inline := len(raw.List(mediaListKeys...))
	if count > inline {
		return count - inline
	}
	return 0
}

// postMedia rewrites the post's media objects in upstream order
func (n *Normalizer) postMedia(raw models.RawObject, author models.Author, createdAt time.Time) []models.MediaRef {
	var out []models.MediaRef
	index := 0

	for _, item := range raw.List(mediaListKeys...) {
		if video := item.Object("video"); video != nil {
			if ref, ok := n.videoRef(item, video, author, createdAt, index); ok {
				out = append(out, ref)
				index++
			}
			continue
		}
		if photo := item.Object("photo"); photo != nil {
			if ref, ok := n.photoRef(photo, author, createdAt, index); ok {
				out = append(out, ref)
				index++
			}
		}
	}

	for _, doc := range raw.List(fileListKeys...) {
		if ref, ok := n.fileRef(doc, author, createdAt, index); ok {
			out = append(out, ref)
			index++
		}
	}

	return out
}

func (n *Normalizer) photoRef(photo models.RawObject, author models.Author, createdAt time.Time, index int) (models.MediaRef, bool) {
	template := photo.Object("_links").Object("img").String("href")
	if template == "" {
		return models.MediaRef{}, false
	}

	mime := photo.String(mimeKeys...)
	name := media.SuggestFilename(media.FilenameParts{
		Name:   photo.String(photoNameKeys...),
		Id:     photo.String(photoIdKeys...),
		Mime:   mime,
		Author: author.Name,
		Date:   createdAt,
		Index:  index,
	})

	animated := photo.Bool("animated")
	full := media.Locator{
		Url:  media.FillPhotoTemplate(template, n.rewriter.ImageSize, false),
		Mime: mime,
		Name: name,
		Kind: models.MediaImage,
	}
	thumb := media.Locator{
		Url:  media.FillPhotoTemplate(template, n.rewriter.ThumbSize, !animated),
		Mime: mime,
		Name: name,
		Kind: models.MediaImage,
	}

	return models.MediaRef{
		Kind:     models.MediaImage,
		ProxyUrl: n.rewriter.ProxyUrl(full),
		ThumbUrl: n.rewriter.ProxyUrl(thumb),
		Name:     name,
		Mime:     mime,
		Size:     photoSize(photo),
	}, true
}

func (n *Normalizer) videoRef(item, video models.RawObject, author models.Author, createdAt time.Time, index int) (models.MediaRef, bool) {
	template := video.Object("_links").Object("linkTemplate").String("href")
	if template == "" {
		return models.MediaRef{}, false
	}

	name := media.SuggestFilename(media.FilenameParts{
		Name:   video.String("name"),
		Id:     video.String("id"),
		Mime:   "video/mp4",
		Author: author.Name,
		Date:   createdAt,
		Index:  index,
	})

	ref := models.MediaRef{
		Kind: models.MediaVideo,
		ProxyUrl: n.rewriter.ProxyUrl(media.Locator{
			Url:  media.FillVideoTemplate(template),
			Mime: "video/mp4",
			Name: name,
			Kind: models.MediaVideo,
		}),
		Name:     name,
		Mime:     "video/mp4",
		Duration: video.String("duration"),
	}

	// The poster frame rides along as a photo object
	if photo := item.Object("photo"); photo != nil {
		if poster := photo.Object("_links").Object("img").String("href"); poster != "" {
			ref.ThumbUrl = n.rewriter.ProxyUrl(media.Locator{
				Url:  media.FillPhotoTemplate(poster, n.rewriter.ThumbSize, true),
				Mime: photo.String(mimeKeys...),
				Name: name,
				Kind: models.MediaImage,
			})
		}
		ref.Size = photoSize(photo)
	}

	return ref, true
}

func (n *Normalizer) fileRef(doc models.RawObject, author models.Author, createdAt time.Time, index int) (models.MediaRef, bool) {
	href := doc.Object("_links").Object("url").String("href")
	if href == "" {
		return models.MediaRef{}, false
	}

	mime := doc.String(mimeKeys...)
	name := media.SuggestFilename(media.FilenameParts{
		Name:   doc.String(fileNameKeys...),
		Id:     doc.String("id"),
		Mime:   mime,
		Author: author.Name,
		Date:   createdAt,
		Index:  index,
	})

	bytes := doc.Int(fileSizeKeys...)
	return models.MediaRef{
		Kind: models.MediaFile,
		ProxyUrl: n.rewriter.ProxyUrl(media.Locator{
			Url:  href,
			Mime: mime,
			Name: name,
			Kind: models.MediaFile,
		}),
		Name:  name,
		Mime:  mime,
		Size:  fmt.Sprintf("%d bytes", bytes),
		Bytes: bytes,
	}, true
}

func photoSize(photo models.RawObject) string {
	size := photo.Object("size")
	if size == nil {
		return ""
	}
	return fmt.Sprintf("%dx%d", size.Int("width"), size.Int("height"))
}

func (n *Normalizer) link(raw models.RawObject) *models.Link {
	links := raw.Object("_links")
	return &models.Link{
		Title:    raw.String(linkTitleKeys...),
		Url:      links.Object("url").String("href"),
		Host:     links.Object("urlHost").String("href"),
		Text:     raw.String(linkDescKeys...),
		ThumbUrl: links.Object("thumbnail").String("href"),
	}
}

func (n *Normalizer) poll(raw models.RawObject) *models.Poll {
	options := raw.List("options")

	total := 0
	for _, option := range options {
		total += int(option.Int("votes"))
	}

	poll := &models.Poll{
		Question:   raw.String("question", "text"),
		TotalVotes: total,
	}
	for _, option := range options {
		votes := int(option.Int("votes"))
		percent := 0
		if total > 0 {
			percent = int(math.Round(float64(votes) / float64(total) * 100))
		}
		poll.Options = append(poll.Options, models.PollOption{
			Text:    option.String("text"),
			Votes:   votes,
			Percent: percent,
		})
	}
	return poll
}

// reactions flattens the aggregated emoji reaction counts. Output order is
// stable (by shortcode) so repeated normalization is identical.
func (n *Normalizer) reactions(emojis models.RawObject) []models.Reaction {
	counts := emojis.Object("counts")
	if len(counts) == 0 {
		return nil
	}

	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]models.Reaction, 0, len(codes))
	for _, code := range codes {
		count, _ := counts[code].(float64)
		out = append(out, models.Reaction{Code: code, Count: int(count)})
	}
	return out
}
