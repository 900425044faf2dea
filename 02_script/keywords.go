package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// importantWords are descriptors worth searching stock footage for when they show up in a script
var importantWords = []string{
	"gaming", "mouse", "keyboard", "precision", "ergonomic", "rgb",
	"wireless", "mechanical", "optical", "sensor", "design", "technology",
	"performance", "quality", "speed", "accuracy", "comfort", "professional",
	"studio", "headset", "audio", "microphone", "streaming", "equipment",
}

// SearchKeywords combines the given keywords with descriptors found in the
// content, for stock media searches
func SearchKeywords(content string, keywords []string, limit int) []string {
	out := append([]string{}, keywords...)
	seen := lo.SliceToMap(out, func(k string) (string, bool) { return strings.ToLower(k), true })
	lower := strings.ToLower(content)
	for _, w := range importantWords {
		if strings.Contains(lower, w) && !seen[w] {
			out = append(out, w)
			seen[w] = true
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FeatureKeywords derives keywords from the product's own features. It is
// the last resort when no model is reachable.
type FeatureKeywords struct{}

var _ KeywordProvider = FeatureKeywords{}

func (FeatureKeywords) Name() string { return "features" }

func (FeatureKeywords) Resolve(_ context.Context, b Brief) ([]string, error) {
	var out []string
	if b.Data != nil {
		for _, f := range lo.Subset(b.Data.Features, 0, 5) {
			for _, w := range strings.Fields(strings.ToLower(f)) {
				if len(w) > 4 {
					out = append(out, w)
				}
			}
		}
	}
	return lo.Subset(lo.Uniq(out), 0, 10), nil
}

func parseKeywordList(s string, limit int) []string {
	s = strings.ReplaceAll(s, "\n", ",")
	var out []string
	for _, k := range strings.Split(s, ",") {
		k = strings.Trim(strings.TrimSpace(k), `-*."'`)
		k = strings.TrimSpace(k)
		if k == "" || len(k) >= 30 {
			continue
		}
		out = append(out, k)
	}
	out = lo.Uniq(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func joinComma(items []string) string {
	return strings.Join(items, ",")
}

func keywordPrompt(b Brief, count int) string {
	features := "Standard features"
	if b.Data != nil && len(b.Data.Features) > 0 {
		features = strings.Join(lo.Subset(b.Data.Features, 0, 10), "\n")
	}
	base := "None"
	if len(b.Keywords) > 0 {
		base = strings.Join(b.Keywords, ", ")
	}
	return fmt.Sprintf(`You are a product reviewer analyzing %q.

Product Features:
%s

Base Keywords: %s

Generate %d review-focused keywords that a tech reviewer would use, including:
- Performance aspects (speed, efficiency, responsiveness)
- Design elements (build quality, aesthetics, ergonomics)
- User experience terms (comfortable, intuitive, reliable)
- Technical specs (connectivity, battery, materials)
- Value propositions (affordable, premium, worth it)

Return ONLY the keywords as a comma-separated list, no explanations.`, b.Product, features, base, count)
}

func reviewerPrompt(b Brief, targetWords int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a tech enthusiast creating an authentic YouTube Shorts product review.\n\nProduct: %s\n\n", b.Product)
	if b.Data != nil {
		if b.Data.Title != "" {
			fmt.Fprintf(&sb, "Listing: %s\n", b.Data.Title)
		}
		if b.Data.Price != "" {
			fmt.Fprintf(&sb, "Price: %s\n", b.Data.Price)
		}
		if b.Data.Rating > 0 {
			fmt.Fprintf(&sb, "Rating: %.1f stars from %d reviews\n", b.Data.Rating, b.Data.Reviews)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, `Create a natural, conversational review script that feels like talking to a friend.

Script Flow:
1. Hook: start with excitement - "So I've been using this %s and..."
2. Quick Unbox: first impressions, what caught your eye immediately
3. Key Features: talk about %s - use personal experiences
4. Real Testing: share actual usage scenarios
5. Honest Take: quick pros and cons, mention small issues too
6. Value Check: personal take on pricing
7. Final Word: who it's perfect for

Use contractions and plain sentences. Write only the words to be spoken, no labels, timestamps or scene directions.
Length: about %d words.`, b.Product, strings.Join(lo.Subset(b.Keywords, 0, 5), ", "), targetWords)
	return sb.String()
}
