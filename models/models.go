package models

import "time"

// Author identifies the user behind a post or comment
type Author struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	InviteId string `json:"inviteId,omitempty"`
}

// DisplayName combines the full name with the invite identifier the way
// MeWe renders contacts. Falls back to the raw id when the name is unknown.
func (a Author) DisplayName() string {
	if a.Name == "" {
		return a.Id
	}
	if a.InviteId == "" {
		return a.Name
	}
	return a.Name + " (" + a.InviteId + ")"
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaFile  MediaKind = "file"
)

// MediaRef is a rewritten media reference. The upstream locator is folded
// into ProxyUrl and never exposed on its own.
type MediaRef struct {
	Kind     MediaKind `json:"kind"`
	ProxyUrl string    `json:"url"`
	ThumbUrl string    `json:"thumb,omitempty"`
	Name     string    `json:"name"`
	Mime     string    `json:"mime,omitempty"`
	Size     string    `json:"size,omitempty"`
	Bytes    int64     `json:"bytes,omitempty"`
	Duration string    `json:"duration,omitempty"`
}

// Link is an external link preview attached to a post or comment
type Link struct {
	Title    string `json:"title"`
	Url      string `json:"url"`
	Host     string `json:"host,omitempty"`
	Text     string `json:"text,omitempty"`
	ThumbUrl string `json:"thumb,omitempty"`
}

type PollOption struct {
	Text    string `json:"text"`
	Votes   int    `json:"votes"`
	Percent int    `json:"percent"`
}

type Poll struct {
	Question   string       `json:"question"`
	TotalVotes int          `json:"totalVotes"`
	Options    []PollOption `json:"options"`
}

// Reaction is an aggregated emoji reaction count
type Reaction struct {
	Code  string `json:"code"`
	Url   string `json:"url,omitempty"`
	Count int    `json:"count"`
}

// Post is the canonical post entity produced by the normalizer. Body holds
// resolved markup with no raw upstream tokens left in it.
type Post struct {
	Id              string     `json:"id"`
	Author          Author     `json:"author"`
	CreatedAt       time.Time  `json:"createdAt"`
	Title           string     `json:"title"`
	Body            string     `json:"body"`
	Album           string     `json:"album,omitempty"`
	HashTags        []string   `json:"hashTags,omitempty"`
	Context         string     `json:"context,omitempty"`
	Media           []MediaRef `json:"media,omitempty"`
	Link            *Link      `json:"link,omitempty"`
	Poll            *Poll      `json:"poll,omitempty"`
	Repost          *Post      `json:"repost,omitempty"`
	RepostRemoved   bool       `json:"repostRemoved,omitempty"`
	Mentions        []string   `json:"mentions,omitempty"`
	Reactions       []Reaction `json:"reactions,omitempty"`
	Comments        []Comment  `json:"comments,omitempty"`
	MissingComments int        `json:"missingComments,omitempty"`
}

// Comment belongs to exactly one post. ParentId, when set, refers to another
// comment of the same post with an earlier or equal CreatedAt; the comment
// set per post always forms a forest.
type Comment struct {
	Id         string     `json:"id"`
	PostId     string     `json:"postId"`
	ParentId   string     `json:"parentId,omitempty"`
	Author     Author     `json:"author"`
	CreatedAt  time.Time  `json:"createdAt"`
	Body       string     `json:"body"`
	Media      []MediaRef `json:"media,omitempty"`
	Link       *Link      `json:"link,omitempty"`
	Reactions  []Reaction `json:"reactions,omitempty"`
	ReplyCount int        `json:"replyCount,omitempty"`
}

// CommentNode is a comment with its resolved children, for thread rendering
type CommentNode struct {
	Comment
	Replies []CommentNode `json:"replies,omitempty"`
}

// Thread is the viewer payload for a single post
type Thread struct {
	Post     Post          `json:"post"`
	Comments []CommentNode `json:"comments"`
}
