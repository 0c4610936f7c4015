// Package media rewrites upstream media locators into locally routable
// proxy references. Rewriting is pure and deterministic so repeated feed
// generation yields identical links.
package media

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"mewefeed/models"
)

// Locator carries everything the file proxy needs to fetch the original
// asset again. It is embedded into the proxy reference and never shown to
// clients in raw form.
type Locator struct {
	Url  string           `json:"u"`
	Mime string           `json:"m,omitempty"`
	Name string           `json:"n,omitempty"`
	Kind models.MediaKind `json:"k"`
}

// Ref encodes the locator as an opaque URL-safe reference. Field order is
// fixed by the struct, so the same locator always encodes the same ref.
func (l Locator) Ref() string {
	data, err := json.Marshal(l)
	if err != nil {
		// Locator is a plain string struct, marshalling cannot fail
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeRef recovers a locator from an opaque reference
func DecodeRef(ref string) (Locator, error) {
	var loc Locator
	data, err := base64.RawURLEncoding.DecodeString(ref)
	if err != nil {
		return loc, fmt.Errorf("malformed media reference: %w", err)
	}
	if err := json.Unmarshal(data, &loc); err != nil {
		return loc, fmt.Errorf("malformed media reference: %w", err)
	}
	if loc.Url == "" {
		return loc, fmt.Errorf("media reference carries no locator")
	}
	switch loc.Kind {
	case models.MediaImage, models.MediaVideo, models.MediaFile:
	default:
		return loc, fmt.Errorf("media reference carries unknown kind %q", loc.Kind)
	}
	return loc, nil
}

// Rewriter derives proxy URLs for a configured public hostname
type Rewriter struct {
	// Public base URL, no trailing slash
	Hostname string

	// Image sizes requested from the upstream CDN
	ImageSize string
	ThumbSize string
}

// ProxyUrl returns the stable local URL standing in for the locator
func (r *Rewriter) ProxyUrl(loc Locator) string {
	return strings.TrimRight(r.Hostname, "/") + "/proxy/" + loc.Ref()
}

// FillPhotoTemplate expands the {imageSize} and {static} placeholders of an
// upstream photo URL template. Animated images are served with static=0.
func FillPhotoTemplate(template, size string, static bool) string {
	staticVal := "0"
	if static {
		staticVal = "1"
	}
	return strings.NewReplacer(
		"{imageSize}", size,
		"{static}", staticVal,
	).Replace(template)
}

// FillVideoTemplate expands the {resolution} placeholder of a video link
// template. The original resolution is requested.
func FillVideoTemplate(template string) string {
	return strings.ReplaceAll(template, "{resolution}", "original")
}

// FilenameParts is the metadata available for deriving a download filename
type FilenameParts struct {
	Name   string
	Id     string
	Mime   string
	Author string
	Date   time.Time
	Index  int
}

// mimeExtensions is a fixed table instead of mime.ExtensionsByType to keep
// filename derivation deterministic across platforms
var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"audio/mpeg":      ".mp3",
	"application/pdf": ".pdf",
	"application/zip": ".zip",
	"text/plain":      ".txt",
}

// SuggestFilename derives a filesystem and URL safe filename. Preference
// order: upstream name, media id plus mime extension, author/date/index slug.
func SuggestFilename(parts FilenameParts) string {
	ext := mimeExtensions[parts.Mime]

	if name := Sanitize(parts.Name); name != "" {
		return name
	}
	if id := Sanitize(parts.Id); id != "" {
		return id + ext
	}

	slug := Sanitize(parts.Author)
	if slug == "" {
		slug = "media"
	}
	if !parts.Date.IsZero() {
		slug += "-" + parts.Date.UTC().Format("20060102")
	}
	return fmt.Sprintf("%s-%d%s", slug, parts.Index, ext)
}

// Sanitize strips path separators, control characters and other unsafe
// runes from a filename candidate
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '"' || r == '\'':
			b.WriteRune('_')
		case unicode.IsControl(r):
			// drop
		case unicode.IsSpace(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}
