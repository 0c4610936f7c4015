package normalize_test

import (
	"testing"
	"time"

	"mewefeed/models"
	"mewefeed/normalize"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeComments(t *testing.T) {
	n, _ := newNormalizer()

	// Upstream order is date-descending with replies nested under parents
	rawComments := []models.RawObject{
		{
			"id":        "c2",
			"userId":    "u2",
			"createdAt": float64(200),
			"text":      "second",
		},
		{
			"id":           "c1",
			"userId":       "u1",
			"createdAt":    float64(100),
			"text":         "first",
			"repliesCount": float64(1),
			"replies": []any{
				map[string]any{
					"id":        "c3",
					"userId":    "u2",
					"createdAt": float64(300),
					"text":      "a reply",
				},
			},
		},
	}

	comments, skipped := n.NormalizeComments("p1", rawComments, feedUsers())

	assert.Equal(t, 0, skipped)
	require.Len(t, comments, 3)

	assert.Equal(t, "c1", comments[0].Id)
	assert.Equal(t, "c2", comments[1].Id)
	assert.Equal(t, "c3", comments[2].Id)

	assert.Equal(t, "p1", comments[0].PostId)
	assert.Equal(t, "", comments[0].ParentId)
	assert.Equal(t, "c1", comments[2].ParentId, "nested replies inherit the enclosing comment as parent")
	assert.Equal(t, 1, comments[0].ReplyCount)
	assert.Equal(t, "Alice", comments[0].Author.Name)
}

func TestNormalizeCommentsSkipsInvalid(t *testing.T) {
	n, _ := newNormalizer()

	rawComments := []models.RawObject{
		{"userId": "u1", "text": "no id"},
		{"id": "c1", "userId": "u1", "text": "fine"},
	}

	comments, skipped := n.NormalizeComments("p1", rawComments, nil)

	assert.Equal(t, 1, skipped)
	require.Len(t, comments, 1)
	assert.Equal(t, "c1", comments[0].Id)
}

func TestNormalizeCommentOwnerFallback(t *testing.T) {
	n, _ := newNormalizer()

	comment, err := n.NormalizeComment(models.RawObject{
		"id":    "c1",
		"text":  "hi",
		"owner": map[string]any{"id": "u9", "name": "Zed"},
	}, "p1", nil)
	require.NoError(t, err)

	assert.Equal(t, "u9", comment.Author.Id)
	assert.Equal(t, "Zed", comment.Author.Name)
}

func TestNormalizeCommentNoAuthor(t *testing.T) {
	n, _ := newNormalizer()

	_, err := n.NormalizeComment(models.RawObject{"id": "c1", "text": "hi"}, "p1", nil)
	assert.True(t, models.IsValidation(err))
}

func TestNormalizeCommentDocument(t *testing.T) {
	n, _ := newNormalizer()

	comment, err := n.NormalizeComment(models.RawObject{
		"id":     "c1",
		"userId": "u1",
		"document": map[string]any{
			"id":       "d1",
			"fileName": "report.pdf",
			"length":   float64(2048),
			"_links":   map[string]any{"url": map[string]any{"href": "/doc/d1"}},
		},
	}, "p1", nil)
	require.NoError(t, err)

	require.Len(t, comment.Media, 1)
	assert.Equal(t, models.MediaFile, comment.Media[0].Kind)
	assert.Equal(t, "report.pdf", comment.Media[0].Name)
	assert.Equal(t, "application/octet-stream", comment.Media[0].Mime)
	assert.Equal(t, "2048 bytes", comment.Media[0].Size)
}

func commentAt(id, parentId string, at int64) models.Comment {
	return models.Comment{
		Id:        id,
		PostId:    "p1",
		ParentId:  parentId,
		CreatedAt: time.Unix(at, 0).UTC(),
	}
}

func TestBuildForest(t *testing.T) {
	tests := []struct {
		name     string
		comments []models.Comment
		check    func(t *testing.T, forest []models.CommentNode)
	}{
		{
			name: "plain chain",
			comments: []models.Comment{
				commentAt("c1", "", 100),
				commentAt("c2", "c1", 200),
				commentAt("c3", "c2", 300),
			},
			check: func(t *testing.T, forest []models.CommentNode) {
				require.Len(t, forest, 1)
				assert.Equal(t, "c1", forest[0].Id)
				require.Len(t, forest[0].Replies, 1)
				assert.Equal(t, "c2", forest[0].Replies[0].Id)
				require.Len(t, forest[0].Replies[0].Replies, 1)
				assert.Equal(t, "c3", forest[0].Replies[0].Replies[0].Id)
			},
		},
		{
			name: "missing parent reclassifies as root",
			comments: []models.Comment{
				commentAt("c1", "", 100),
				commentAt("c2", "ghost", 200),
			},
			check: func(t *testing.T, forest []models.CommentNode) {
				require.Len(t, forest, 2)
				assert.Equal(t, "c1", forest[0].Id)
				assert.Equal(t, "c2", forest[1].Id)
				assert.Empty(t, forest[1].ParentId)
			},
		},
		{
			name: "forward reference reclassifies as root",
			comments: []models.Comment{
				commentAt("c1", "c2", 100),
				commentAt("c2", "", 200),
			},
			check: func(t *testing.T, forest []models.CommentNode) {
				require.Len(t, forest, 2)
				assert.Empty(t, forest[0].ParentId)
				assert.Empty(t, forest[0].Replies)
			},
		},
		{
			name: "self reference reclassifies as root",
			comments: []models.Comment{
				commentAt("c1", "c1", 100),
			},
			check: func(t *testing.T, forest []models.CommentNode) {
				require.Len(t, forest, 1)
				assert.Empty(t, forest[0].ParentId)
			},
		},
		{
			name: "cycle is cut at the earliest comment",
			comments: []models.Comment{
				commentAt("a", "b", 100),
				commentAt("b", "a", 100),
			},
			check: func(t *testing.T, forest []models.CommentNode) {
				require.Len(t, forest, 1)
				assert.Equal(t, "a", forest[0].Id)
				assert.Empty(t, forest[0].ParentId)
				require.Len(t, forest[0].Replies, 1)
				assert.Equal(t, "b", forest[0].Replies[0].Id)
			},
		},
		{
			name: "parent on another post reclassifies as root",
			comments: []models.Comment{
				{Id: "c1", PostId: "p2", CreatedAt: time.Unix(100, 0).UTC()},
				commentAt("c2", "c1", 200),
			},
			check: func(t *testing.T, forest []models.CommentNode) {
				require.Len(t, forest, 2)
				assert.Empty(t, forest[1].Replies)
			},
		},
		{
			name:     "empty input",
			comments: nil,
			check: func(t *testing.T, forest []models.CommentNode) {
				assert.Empty(t, forest)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, normalize.BuildForest(tt.comments))
		})
	}
}

func TestBuildForestDoesNotMutateInput(t *testing.T) {
	comments := []models.Comment{
		commentAt("c1", "", 100),
		commentAt("c2", "ghost", 200),
	}

	_ = normalize.BuildForest(comments)

	assert.Equal(t, "ghost", comments[1].ParentId, "reclassification happens on copies")
}
