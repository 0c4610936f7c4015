package mewe

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	log "github.com/sirupsen/logrus"

	"mewefeed/models"
)

// FeedQuery parameterizes paginated feed fetches
type FeedQuery struct {
	Limit  int
	Pages  int
	Before string
}

// FeedPage is one assembled feed response: raw posts in upstream order plus
// the user objects referenced by them, keyed by user id
type FeedPage struct {
	Posts []models.RawObject
	Users map[string]models.RawObject
}

// Feed fetches the authenticated user's home feed
func (c *Client) Feed(ctx context.Context, q FeedQuery) (*FeedPage, error) {
	return c.pagedFeed(ctx, c.base+"/v2/home/allfeed", q)
}

// UserFeed fetches a single user's posts
func (c *Client) UserFeed(ctx context.Context, userId string, q FeedQuery) (*FeedPage, error) {
	return c.pagedFeed(ctx, c.base+"/v2/home/user/"+url.PathEscape(userId)+"/postsfeed", q)
}

// pagedFeed loops through feed pages following _links.nextPage. Several
// endpoints share this envelope: home feed, user feed, post comments.
func (c *Client) pagedFeed(ctx context.Context, endpoint string, q FeedQuery) (*FeedPage, error) {
	if q.Limit <= 0 {
		q.Limit = 30
	}
	if q.Pages <= 0 {
		q.Pages = 1
	}

	page := &FeedPage{Users: make(map[string]models.RawObject)}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.Before != "" {
		params.Set("b", q.Before)
	}

	for i := 0; i < q.Pages; i++ {
		response, err := c.Get(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}

		posts := response.List("feed")
		if len(posts) == 0 && i == 0 {
			// Either the end of the feed or a private profile
			return nil, &models.NotFoundError{Resource: endpoint}
		}
		page.Posts = append(page.Posts, posts...)

		for _, user := range response.List("users") {
			if id := user.String("id"); id != "" {
				page.Users[id] = user
			}
		}

		next := response.Object("_links").Object("nextPage").String("href")
		if next == "" {
			break
		}

		nextUrl, err := url.Parse(next)
		if err != nil {
			log.WithFields(log.Fields{
				"endpoint": endpoint,
				"href":     next,
			}).Warn("Unparseable next page link, stopping pagination")
			break
		}
		params = nextUrl.Query()
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	return page, nil
}

// Post fetches a single post with its comment envelope
func (c *Client) Post(ctx context.Context, postId string) (models.RawObject, error) {
	return c.Get(ctx, c.base+"/v2/home/post/"+url.PathEscape(postId), nil)
}

// PostComments fetches up to limit comments of a post
func (c *Client) PostComments(ctx context.Context, postId string, limit int) ([]models.RawObject, error) {
	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(limit))

	response, err := c.Get(ctx, c.base+"/v2/home/post/"+url.PathEscape(postId)+"/comments", params)
	if err != nil {
		return nil, err
	}
	return response.List("feed"), nil
}

// CommentReplies fetches up to limit replies of a comment
func (c *Client) CommentReplies(ctx context.Context, commentId string, limit int) ([]models.RawObject, error) {
	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(limit))

	response, err := c.Get(ctx, c.base+"/v2/comments/"+url.PathEscape(commentId)+"/replies", params)
	if err != nil {
		return nil, err
	}
	return response.List("comments"), nil
}

// PostMedias fetches the remaining media objects of a post that carries
// more than the four inlined in the feed payload
func (c *Client) PostMedias(ctx context.Context, post models.RawObject, limit int) ([]models.RawObject, map[string]models.RawObject, error) {
	userId := post.String("userId", "authorId")
	postId := post.String("postItemId", "id")
	medias := post.List("medias", "media")
	if userId == "" || postId == "" || len(medias) == 0 {
		return nil, nil, fmt.Errorf("post %q carries no media continuation anchor", postId)
	}

	params := url.Values{}
	params.Set("skipVideos", "0")
	params.Set("postItemId", medias[0].String("postItemId", "id"))
	params.Set("before", "0")
	params.Set("multiPostId", postId)
	params.Set("after", strconv.Itoa(limit))
	params.Set("order", "1")

	response, err := c.Get(ctx, c.base+"/v2/home/user/"+url.PathEscape(userId)+"/media", params)
	if err != nil {
		return nil, nil, err
	}

	var out []models.RawObject
	for _, item := range response.List("feed") {
		if itemMedias := item.List("medias"); len(itemMedias) > 0 {
			out = append(out, itemMedias[0])
		}
	}

	users := make(map[string]models.RawObject)
	for _, user := range response.List("users") {
		if id := user.String("id"); id != "" {
			users[id] = user
		}
	}
	return out, users, nil
}

// ContactInfo fetches profile information for a contact by user id
func (c *Client) ContactInfo(ctx context.Context, userId string) (models.RawObject, error) {
	return c.Get(ctx, c.base+"/v2/mycontacts/user/"+url.PathEscape(userId), nil)
}
