package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"mewefeed/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFromJson(t *testing.T, data string) models.RawObject {
	t.Helper()
	var obj models.RawObject
	require.NoError(t, json.Unmarshal([]byte(data), &obj))
	return obj
}

func TestRawObjectString(t *testing.T) {
	raw := rawFromJson(t, `{"id": "p1", "count": 7, "empty": ""}`)

	assert.Equal(t, "p1", raw.String("id"))
	assert.Equal(t, "p1", raw.String("missing", "id"), "fallback keys are tried in order")
	assert.Equal(t, "7", raw.String("count"), "numeric ids shipped as numbers still read as strings")
	assert.Equal(t, "", raw.String("missing"))
	assert.Equal(t, "", raw.String())

	var nilObj models.RawObject
	assert.Equal(t, "", nilObj.String("anything"), "nil objects answer zero values")
}

func TestRawObjectInt(t *testing.T) {
	raw := rawFromJson(t, `{"count": 7, "textual": "12", "junk": "x"}`)

	assert.Equal(t, int64(7), raw.Int("count"))
	assert.Equal(t, int64(12), raw.Int("textual"))
	assert.Equal(t, int64(0), raw.Int("junk"))
	assert.Equal(t, int64(0), raw.Int("missing"))
}

func TestRawObjectBool(t *testing.T) {
	raw := rawFromJson(t, `{"yes": true, "no": false, "stringy": "true"}`)

	assert.True(t, raw.Bool("yes"))
	assert.False(t, raw.Bool("no"))
	assert.False(t, raw.Bool("stringy"), "booleans are not coerced from strings")
	assert.False(t, raw.Bool("missing"))
}

func TestRawObjectNesting(t *testing.T) {
	raw := rawFromJson(t, `{
		"_links": {"img": {"href": "/photo/ph1"}},
		"feed": [{"id": "p1"}, "not an object", {"id": "p2"}],
		"hashTags": ["a", "b", 3]
	}`)

	assert.Equal(t, "/photo/ph1", raw.Object("_links").Object("img").String("href"))
	assert.Nil(t, raw.Object("missing"))
	assert.Equal(t, "", raw.Object("missing").Object("deeper").String("href"),
		"chained lookups on absent objects stay nil safe")

	list := raw.List("feed")
	require.Len(t, list, 2, "non-object elements are skipped")
	assert.Equal(t, "p1", list[0].String("id"))

	assert.Equal(t, []string{"a", "b"}, raw.Strings("hashTags"))
	assert.Nil(t, raw.List("missing"))
}

func TestRawObjectTime(t *testing.T) {
	raw := rawFromJson(t, `{
		"unix": 1686830400,
		"rfc": "2023-06-15T12:00:00Z",
		"zoned": "2023-06-15T14:00:00+02:00",
		"junk": "yesterday"
	}`)

	expected := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, expected, raw.Time("unix"))
	assert.Equal(t, expected, raw.Time("rfc"))
	assert.Equal(t, expected, raw.Time("zoned"), "offsets normalize to UTC")
	assert.True(t, raw.Time("junk").IsZero())
	assert.True(t, raw.Time("missing").IsZero())
}

func TestRawObjectHas(t *testing.T) {
	raw := rawFromJson(t, `{"present": null}`)

	assert.True(t, raw.Has("present"), "a null value still counts as present")
	assert.False(t, raw.Has("missing"))
	assert.True(t, raw.Has("missing", "present"))
}

func TestAuthorDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		author   models.Author
		expected string
	}{
		{
			name:     "name with invite id",
			author:   models.Author{Id: "u1", Name: "Alice Doe", InviteId: "alice"},
			expected: "Alice Doe (alice)",
		},
		{
			name:     "name only",
			author:   models.Author{Id: "u1", Name: "Alice Doe"},
			expected: "Alice Doe",
		},
		{
			name:     "id fallback",
			author:   models.Author{Id: "u1"},
			expected: "u1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.author.DisplayName())
		})
	}
}
