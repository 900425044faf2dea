package research

import (
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// featureKeywords are the selling points worth calling out when seen in a title
var featureKeywords = []string{
	"wireless", "bluetooth", "rgb", "mechanical", "optical",
	"ergonomic", "gaming", "hd", "4k", "usb", "rechargeable",
	"noise-cancelling", "surround", "comfort", "durable",
	"lightweight", "portable", "compatible", "adjustable", "waterproof",
}

var specPattern = regexp.MustCompile(`(?i)\b\d+(?:GB|TB|MHz|GHz|mAh|W|Hz|ms|DPI|CPI)\b`)

var wordSplit = regexp.MustCompile(`[^a-z0-9-]+`)

// ExtractFeatures pulls known selling points and numeric specs out of text
func ExtractFeatures(text string, limit int) []string {
	words := lo.SliceToMap(wordSplit.Split(strings.ToLower(text), -1), func(w string) (string, bool) {
		return w, true
	})
	var found []string
	for _, kw := range featureKeywords {
		if words[kw] {
			found = append(found, displayFeature(kw))
		}
	}
	found = append(found, specPattern.FindAllString(text, -1)...)
	found = lo.Uniq(found)
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found
}

func displayFeature(kw string) string {
	switch kw {
	case "rgb", "hd", "4k", "usb":
		return strings.ToUpper(kw)
	}
	return strings.ToUpper(kw[:1]) + kw[1:]
}

func isImageURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasSuffix(lower, ".jpg") ||
		strings.HasSuffix(lower, ".jpeg") ||
		strings.HasSuffix(lower, ".png") ||
		strings.HasSuffix(lower, ".webp")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
