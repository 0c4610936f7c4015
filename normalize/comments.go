package normalize

import (
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"mewefeed/media"
	"mewefeed/models"
)

// NormalizeComments converts a post's raw comment feed, flattening nested
// reply lists, and returns the comments sorted by creation time. Comments
// that fail validation are skipped and counted, never fatal to the post.
func (n *Normalizer) NormalizeComments(postId string, rawComments []models.RawObject, users map[string]models.RawObject) ([]models.Comment, int) {
	var comments []models.Comment
	skipped := 0

	var walk func(raw models.RawObject, parentId string)
	walk = func(raw models.RawObject, parentId string) {
		comment, err := n.NormalizeComment(raw, postId, users)
		if err != nil {
			skipped++
			log.WithFields(log.Fields{
				"post":  postId,
				"error": err,
			}).Warn("Skipping comment that failed normalization")
			return
		}
		if comment.ParentId == "" {
			comment.ParentId = parentId
		}
		comments = append(comments, comment)

		for _, reply := range raw.List("replies") {
			walk(reply, comment.Id)
		}
	}

	for _, raw := range rawComments {
		walk(raw, "")
	}

	// Comments usually arrive date-descending but the rule is sometimes
	// broken upstream, so sort instead of reversing
	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].Id < comments[j].Id
		}
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})

	return comments, skipped
}

// NormalizeComment converts one raw comment object
func (n *Normalizer) NormalizeComment(raw models.RawObject, postId string, users map[string]models.RawObject) (models.Comment, error) {
	id := raw.String(commentIdKeys...)
	if id == "" {
		return models.Comment{}, &models.ValidationError{Reason: "comment carries no identifiable id"}
	}

	authorId := raw.String(commentAuthorKeys...)
	owner := raw.Object("owner")
	if authorId == "" && owner == nil {
		return models.Comment{}, &models.ValidationError{Reason: fmt.Sprintf("comment %s carries no author", id)}
	}

	author := resolveAuthor(authorId, users)
	if owner != nil {
		if name := owner.String(userNameKeys...); name != "" {
			author.Name = name
		}
		if author.Id == "" {
			author.Id = owner.String("id")
		}
	}

	createdAt := raw.Time(createdAtKeys...)
	resolved := n.markup.Resolve(raw.String(textKeys...), mentionTable(users))

	comment := models.Comment{
		Id:         id,
		PostId:     postId,
		ParentId:   raw.String(commentParentKeys...),
		Author:     author,
		CreatedAt:  createdAt,
		Body:       resolved.Html,
		ReplyCount: int(raw.Int(replyCountKeys...)),
		Reactions:  n.reactions(raw.Object("emojis")),
	}

	if photo := raw.Object("photo"); photo != nil {
		if ref, ok := n.photoRef(photo, author, createdAt, 0); ok {
			comment.Media = append(comment.Media, ref)
		}
	}
	if doc := raw.Object("document"); doc != nil {
		if ref, ok := n.commentDocumentRef(doc); ok {
			comment.Media = append(comment.Media, ref)
		}
	}
	if link := raw.Object("link"); link != nil {
		comment.Link = n.link(link)
	}

	return comment, nil
}

// commentDocumentRef rewrites a comment file attachment. Comment documents
// carry a bare type instead of a mime, so the mime is derived from it.
func (n *Normalizer) commentDocumentRef(doc models.RawObject) (models.MediaRef, bool) {
	href := doc.Object("_links").Object("url").String("href")
	if href == "" {
		return models.MediaRef{}, false
	}

	mime := doc.String(mimeKeys...)
	if mime == "" {
		mime = "application/octet-stream"
	}
	name := media.SuggestFilename(media.FilenameParts{
		Name: doc.String(fileNameKeys...),
		Id:   doc.String("id"),
		Mime: mime,
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

// BuildForest arranges a post's comments into parent/child trees. A parent
// reference that is missing, points at a later comment, or participates in
// a cycle reclassifies the comment as a root instead of failing, so any
// tree walk over the result is guaranteed to terminate.
func BuildForest(comments []models.Comment) []models.CommentNode {
	byId := make(map[string]*models.Comment, len(comments))
	for i := range comments {
		byId[comments[i].Id] = &comments[i]
	}

	// Resolve each comment's effective parent with cycle rejection
	parentOf := make(map[string]string, len(comments))
	for i := range comments {
		c := &comments[i]
		parentOf[c.Id] = validParent(c, byId)
	}

	// Input order, not map order, decides where a cycle is cut
	for i := range comments {
		id := comments[i].Id
		parent := parentOf[id]
		if parent == "" {
			continue
		}
		// Walk the chain; any repeat means a cycle, cut it at this comment
		seen := map[string]bool{id: true}
		current := parent
		for current != "" {
			if seen[current] {
				parentOf[id] = ""
				break
			}
			seen[current] = true
			current = parentOf[current]
		}
	}

	type treeNode struct {
		comment  models.Comment
		children []*treeNode
	}

	nodes := make(map[string]*treeNode, len(comments))
	ordered := make([]*treeNode, 0, len(comments))
	for _, c := range comments {
		c.ParentId = parentOf[c.Id]
		n := &treeNode{comment: c}
		nodes[c.Id] = n
		ordered = append(ordered, n)
	}

	var rootNodes []*treeNode
	for _, n := range ordered {
		if parent := parentOf[n.comment.Id]; parent != "" {
			nodes[parent].children = append(nodes[parent].children, n)
		} else {
			rootNodes = append(rootNodes, n)
		}
	}

	var toNode func(n *treeNode) models.CommentNode
	toNode = func(n *treeNode) models.CommentNode {
		out := models.CommentNode{Comment: n.comment}
		for _, child := range n.children {
			out.Replies = append(out.Replies, toNode(child))
		}
		return out
	}

	roots := make([]models.CommentNode, 0, len(rootNodes))
	for _, n := range rootNodes {
		roots = append(roots, toNode(n))
	}
	return roots
}

func validParent(c *models.Comment, byId map[string]*models.Comment) string {
	if c.ParentId == "" || c.ParentId == c.Id {
		return ""
	}
	parent, ok := byId[c.ParentId]
	if !ok {
		// Parent edited or deleted upstream, treat as root
		return ""
	}
	if parent.PostId != c.PostId {
		return ""
	}
	if parent.CreatedAt.After(c.CreatedAt) {
		// No forward references
		return ""
	}
	return c.ParentId
}
