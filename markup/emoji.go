package markup

import (
	"encoding/json"
	"fmt"
	"os"
)

// defaultEmojis covers the shortcodes the upstream web client ships by
// default. Deployments can extend or override these with an index file.
var defaultEmojis = map[string]string{
	"smile":          "https://cdn.mewe.com/assets/emoji/smile.png",
	"grin":           "https://cdn.mewe.com/assets/emoji/grin.png",
	"laughing":       "https://cdn.mewe.com/assets/emoji/laughing.png",
	"joy":            "https://cdn.mewe.com/assets/emoji/joy.png",
	"wink":           "https://cdn.mewe.com/assets/emoji/wink.png",
	"blush":          "https://cdn.mewe.com/assets/emoji/blush.png",
	"heart":          "https://cdn.mewe.com/assets/emoji/heart.png",
	"heart_eyes":     "https://cdn.mewe.com/assets/emoji/heart_eyes.png",
	"broken_heart":   "https://cdn.mewe.com/assets/emoji/broken_heart.png",
	"thumbsup":       "https://cdn.mewe.com/assets/emoji/thumbsup.png",
	"thumbsdown":     "https://cdn.mewe.com/assets/emoji/thumbsdown.png",
	"clap":           "https://cdn.mewe.com/assets/emoji/clap.png",
	"wave":           "https://cdn.mewe.com/assets/emoji/wave.png",
	"pray":           "https://cdn.mewe.com/assets/emoji/pray.png",
	"fire":           "https://cdn.mewe.com/assets/emoji/fire.png",
	"tada":           "https://cdn.mewe.com/assets/emoji/tada.png",
	"cry":            "https://cdn.mewe.com/assets/emoji/cry.png",
	"sob":            "https://cdn.mewe.com/assets/emoji/sob.png",
	"angry":          "https://cdn.mewe.com/assets/emoji/angry.png",
	"rage":           "https://cdn.mewe.com/assets/emoji/rage.png",
	"thinking":       "https://cdn.mewe.com/assets/emoji/thinking.png",
	"eyes":           "https://cdn.mewe.com/assets/emoji/eyes.png",
	"sunglasses":     "https://cdn.mewe.com/assets/emoji/sunglasses.png",
	"point_up":       "https://cdn.mewe.com/assets/emoji/point_up.png",
	"ok_hand":        "https://cdn.mewe.com/assets/emoji/ok_hand.png",
	"muscle":         "https://cdn.mewe.com/assets/emoji/muscle.png",
	"facepalm":       "https://cdn.mewe.com/assets/emoji/facepalm.png",
	"shrug":          "https://cdn.mewe.com/assets/emoji/shrug.png",
	"star":           "https://cdn.mewe.com/assets/emoji/star.png",
	"100":            "https://cdn.mewe.com/assets/emoji/100.png",
	"rofl":           "https://cdn.mewe.com/assets/emoji/rofl.png",
	"slight_smile":   "https://cdn.mewe.com/assets/emoji/slight_smile.png",
	"upside_down":    "https://cdn.mewe.com/assets/emoji/upside_down.png",
	"exploding_head": "https://cdn.mewe.com/assets/emoji/exploding_head.png",
}

// EmojiIndex maps emoji shortcodes (without colons) to glyph image URLs
type EmojiIndex map[string]string

// DefaultEmojiIndex returns a copy of the built-in shortcode set
func DefaultEmojiIndex() EmojiIndex {
	index := make(EmojiIndex, len(defaultEmojis))
	for code, url := range defaultEmojis {
		index[code] = url
	}
	return index
}

// LoadEmojiIndex merges shortcodes from a JSON file ({"code": "url", ...})
// over the built-in defaults
func LoadEmojiIndex(path string) (EmojiIndex, error) {
	index := DefaultEmojiIndex()
	if path == "" {
		return index, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading emoji index: %w", err)
	}

	var extra map[string]string
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("error parsing emoji index: %w", err)
	}

	for code, url := range extra {
		index[code] = url
	}
	return index, nil
}
