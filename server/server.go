package server

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"mewefeed/feeds"
	"mewefeed/media"
	"mewefeed/mewe"
	"mewefeed/models"
	"mewefeed/normalize"
	"mewefeed/proxy"
)

const (
	upstreamHome   = "https://mewe.com/myworld"
	upstreamInvite = "https://mewe.com/i/"

	// Comment pages fetched for the thread view
	threadCommentLimit = 500

	avatarSize = "1280x1280"
)

// Session is the slice of the upstream client the handlers consume
type Session interface {
	Identity() models.RawObject
	Feed(ctx context.Context, q mewe.FeedQuery) (*mewe.FeedPage, error)
	UserFeed(ctx context.Context, userId string, q mewe.FeedQuery) (*mewe.FeedPage, error)
	Post(ctx context.Context, postId string) (models.RawObject, error)
	PostComments(ctx context.Context, postId string, limit int) ([]models.RawObject, error)
	CommentReplies(ctx context.Context, commentId string, limit int) ([]models.RawObject, error)
	PostMedias(ctx context.Context, post models.RawObject, limit int) ([]models.RawObject, map[string]models.RawObject, error)
	ContactInfo(ctx context.Context, userId string) (models.RawObject, error)
}

type ServerConfig struct {

	// The public base URL rewritten links point at
	Hostname string

	// The authenticated upstream session
	Client Session

	// The transformation pipeline
	Normalizer *normalize.Normalizer
	Rewriter   *media.Rewriter

	// The media proxy
	Proxy *proxy.Proxy

	// Feed paging defaults
	FeedLimit int
	FeedPages int
}

// Returns a fiber.App instance serving the syndication feeds, the thread
// viewer payloads and the media proxy
func Server(config *ServerConfig) *fiber.App {

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		stop := time.Now()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	app.Get("/myworld", func(c *fiber.Ctx) error {
		query := feedQuery(c, config)

		page, err := config.Client.Feed(c.UserContext(), query)
		if err != nil {
			return sendError(c, err)
		}

		identity := config.Client.Identity()
		title := identity.String("firstName") + " " + identity.String("lastName") + "'s world feed"
		meta := feeds.Metadata{
			Title:       title,
			Link:        upstreamHome,
			Description: title,
			AvatarUrl:   config.avatarUrl(identity),
			Hostname:    config.Hostname,
		}

		return config.sendFeed(c, page, meta)
	})

	userFeed := func(c *fiber.Ctx) error {
		userId := c.Params("userId")
		query := feedQuery(c, config)

		page, err := config.Client.UserFeed(c.UserContext(), userId, query)
		if err != nil {
			return sendError(c, err)
		}

		meta := feeds.Metadata{
			Link:     upstreamHome,
			Hostname: config.Hostname,
		}
		user, ok := page.Users[userId]
		if !ok {
			// Own posts reshared into the page can leave the feed owner out
			// of the user list, the contact endpoint still knows them
			user = config.contactInfo(c.UserContext(), userId)
		}
		if user != nil {
			meta.Title = user.String("name", "displayName")
			meta.AvatarUrl = config.avatarUrl(user)
			if invite := user.String("contactInviteId", "inviteId"); invite != "" {
				meta.Link = upstreamInvite + invite
			}
		}
		if meta.Title == "" {
			meta.Title = userId
		}

		return config.sendFeed(c, page, meta)
	}

	app.Get("/userfeed/:userId", userFeed)
	app.Get("/userfeed_rss/:userId", userFeed)

	app.Get("/viewpost/:postId", func(c *fiber.Ctx) error {
		thread, err := config.thread(c.UserContext(), c.Params("postId"))
		if err != nil {
			return sendError(c, err)
		}
		return c.JSON(thread)
	})

	app.Get("/proxy/:ref", func(c *fiber.Ctx) error {
		key := uuid.New().String()

		result, err := config.Proxy.Fetch(c.UserContext(), c.Params("ref"))
		if err != nil {
			return sendError(c, err)
		}

		log.WithFields(log.Fields{
			"key":  key,
			"name": result.Filename,
			"size": result.ContentLength,
		}).Info("Streaming proxied asset")

		c.Set(fiber.HeaderContentType, result.ContentType)
		if result.Filename != "" {
			c.Set(fiber.HeaderContentDisposition, `inline; filename="`+media.Sanitize(result.Filename)+`"`)
		}
		// Announce the length only when it survives the int conversion
		// on 32-bit platforms, otherwise stream without one
		if length := int(result.ContentLength); result.ContentLength >= 0 && int64(length) == result.ContentLength {
			return c.SendStream(result.Body, length)
		}
		return c.SendStream(result.Body)
	})

	return app
}

func feedQuery(c *fiber.Ctx, config *ServerConfig) mewe.FeedQuery {
	limit, err := strconv.Atoi(c.Query("limit", ""))
	if err != nil || limit < 1 || limit > 100 {
		limit = config.FeedLimit
	}
	pages, err := strconv.Atoi(c.Query("pages", ""))
	if err != nil || pages < 1 || pages > 10 {
		pages = config.FeedPages
	}
	return mewe.FeedQuery{Limit: limit, Pages: pages, Before: c.Query("b", "")}
}

func (config *ServerConfig) sendFeed(c *fiber.Ctx, page *mewe.FeedPage, meta feeds.Metadata) error {
	posts, skipped := config.Normalizer.NormalizeFeed(page.Posts, page.Users)

	document, err := feeds.Assemble(posts, meta)
	if err != nil {
		return sendError(c, err)
	}

	if skipped > 0 {
		log.WithFields(log.Fields{
			"feed":    meta.Title,
			"skipped": skipped,
		}).Warn("Feed assembled with skipped posts")
	}

	c.Set("X-Skipped-Posts", strconv.Itoa(skipped))
	c.Set(fiber.HeaderContentType, "application/rss+xml; charset=utf-8")
	return c.SendString(document)
}

// thread fetches a post with its full comment set and builds the viewer
// payload
func (config *ServerConfig) thread(ctx context.Context, postId string) (*models.Thread, error) {
	response, err := config.Client.Post(ctx, postId)
	if err != nil {
		return nil, err
	}

	raw := response
	if inner := response.Object("post"); inner != nil {
		raw = inner
	}

	users := make(map[string]models.RawObject)
	for _, user := range response.List("users") {
		if id := user.String("id"); id != "" {
			users[id] = user
		}
	}

	// Posts with many attachments inline only the first few media objects
	if missing := normalize.MissingMedia(raw); missing > 0 {
		inline := raw.List("medias", "media")
		medias, mediaUsers, err := config.Client.PostMedias(ctx, raw, missing+len(inline))
		if err != nil {
			log.WithFields(log.Fields{
				"post":  postId,
				"error": err,
			}).Warn("Could not fetch remaining post media")
		} else if len(medias) >= len(inline) {
			full := make([]any, 0, len(medias))
			for _, item := range medias {
				full = append(full, map[string]any(item))
			}
			raw["medias"] = full
			for id, user := range mediaUsers {
				users[id] = user
			}
		}
	}

	post, err := config.Normalizer.NormalizePost(raw, users)
	if err != nil {
		return nil, err
	}

	rawComments, err := config.Client.PostComments(ctx, postId, threadCommentLimit)
	if err != nil {
		// The post renders without its comments rather than failing
		log.WithFields(log.Fields{
			"post":  postId,
			"error": err,
		}).Warn("Could not fetch comments for thread view")
		rawComments = nil
	}

	// Fill in reply subtrees before normalization
	for _, comment := range rawComments {
		if comment.Int("repliesCount", "replyCount") == 0 {
			continue
		}
		commentId := comment.String("id", "commentId")
		replies, err := config.Client.CommentReplies(ctx, commentId, threadCommentLimit)
		if err != nil {
			log.WithFields(log.Fields{
				"comment": commentId,
				"error":   err,
			}).Warn("Could not fetch comment replies")
			continue
		}
		rawReplies := make([]any, 0, len(replies))
		for _, reply := range replies {
			rawReplies = append(rawReplies, map[string]any(reply))
		}
		comment["replies"] = rawReplies
	}

	comments, _ := config.Normalizer.NormalizeComments(postId, rawComments, users)

	if total := raw.Object("comments").Int("total"); total > 0 && int(total) > len(comments) {
		post.MissingComments = int(total) - len(comments)
	}

	return &models.Thread{
		Post:     post,
		Comments: normalize.BuildForest(comments),
	}, nil
}

// contactInfo fetches feed owner metadata, tolerating both the bare user
// object and the enveloped contact response. Failure degrades to nothing.
func (config *ServerConfig) contactInfo(ctx context.Context, userId string) models.RawObject {
	info, err := config.Client.ContactInfo(ctx, userId)
	if err != nil {
		log.WithFields(log.Fields{
			"user":  userId,
			"error": err,
		}).Warn("Could not fetch feed owner info")
		return nil
	}
	if contact := info.Object("contact", "user"); contact != nil {
		return contact
	}
	return info
}

func (config *ServerConfig) avatarUrl(user models.RawObject) string {
	template := user.Object("_links").Object("avatar").String("href")
	if template == "" {
		return ""
	}
	return config.Rewriter.ProxyUrl(media.Locator{
		Url:  media.FillPhotoTemplate(template, avatarSize, false),
		Mime: "image/jpeg",
		Name: user.String("id"),
		Kind: models.MediaImage,
	})
}

// sendError maps the error taxonomy to distinct, stable HTTP outcomes
func sendError(c *fiber.Ctx, err error) error {
	switch {
	case models.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).SendString(err.Error())
	case models.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).SendString("upstream resource not found")
	case models.IsAuth(err):
		return c.Status(fiber.StatusUnauthorized).SendString("upstream session could not be re-authenticated")
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).SendString("upstream fetch timed out")
	default:
		log.WithFields(log.Fields{
			"error": err,
		}).Error("Unhandled upstream failure")
		return c.Status(fiber.StatusBadGateway).SendString("upstream unavailable")
	}
}
