package metadata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"product-promo-pipeline/config"
	"product-promo-pipeline/types"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var baseTags = []string{
	"product review",
	"technology",
	"unboxing",
	"tutorial",
	"how to",
	"comparison",
	"features",
	"innovation",
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "is": true,
	"are": true, "was": true, "were": true, "this": true, "that": true, "it": true,
	"have": true, "from": true, "your": true, "just": true, "been": true, "will": true,
}

// YouTube rejects a tag list longer than this many characters
const maxTagChars = 500

// Generator builds the publishing metadata written next to the final video
type Generator struct {
	cfg    config.MetadataConfig
	upload config.UploadConfig
	log    zerolog.Logger
}

func New(cfg *config.Config, logger zerolog.Logger) *Generator {
	return &Generator{
		cfg:    cfg.Metadata,
		upload: cfg.Upload,
		log:    logger.With().Str("component", "metadata").Logger(),
	}
}

// Run creates title, description and tags for a finished video. product may
// be nil when research found nothing.
func (g *Generator) Run(name string, product *types.ProductData, script *types.Script, now time.Time) *types.VideoMetadata {
	content := ""
	var keywords []string
	if script != nil {
		content = script.Content
		keywords = script.Keywords
	}

	meta := &types.VideoMetadata{
		Title:       g.Title(name),
		Description: g.Description(name, product, content),
		Tags:        g.Tags(name, keywords),
		Keywords:    ExtractKeywords(content, 10),
		CategoryID:  g.cfg.CategoryID,
		Visibility:  g.upload.Visibility,
	}
	if g.upload.SchedulePublish {
		at, err := NextPublishTime(now, g.upload)
		if err != nil {
			g.log.Warn().Err(err).Msg("⚠️  could not schedule publish time")
		} else {
			meta.PublishAt = at.UTC().Format(time.RFC3339)
		}
	}

	g.log.Info().Str("title", meta.Title).Int("tags", len(meta.Tags)).Msg("✅ metadata generated")
	return meta
}

// Title enforces the configured length, counting runes
func (g *Generator) Title(name string) string {
	title := "Product Review"
	if name = strings.TrimSpace(name); name != "" {
		title = name + " Review - Complete Overview"
	}
	r := []rune(title)
	if limit := g.cfg.TitleMaxChars; limit > 3 && len(r) > limit {
		title = string(r[:limit-3]) + "..."
	}
	return title
}

func (g *Generator) Description(name string, product *types.ProductData, content string) string {
	var sb strings.Builder
	if name != "" {
		sb.WriteString(fmt.Sprintf("🎥 %s - Complete Review & Overview\n\n", name))
	} else {
		sb.WriteString("🎥 Product Review & Overview\n\n")
	}

	sb.WriteString("📋 SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	for _, point := range keyPoints(content, 3) {
		sb.WriteString("• " + point + "\n")
	}

	if product != nil {
		var facts []string
		if product.Price != "" {
			facts = append(facts, "💲 Price: "+product.Price)
		}
		if product.Rating > 0 {
			facts = append(facts, fmt.Sprintf("⭐ Rating: %.1f/5 (%d reviews)", product.Rating, product.Reviews))
		}
		if len(facts) > 0 {
			sb.WriteString("\n" + strings.Join(facts, "\n") + "\n")
		}
	}

	if g.cfg.AffiliateLink != "" {
		sb.WriteString("\n🛒 Get yours here: " + g.cfg.AffiliateLink + "\n")
		sb.WriteString("(As an affiliate, I may earn from qualifying purchases.)\n")
	}

	sb.WriteString("\n👍 Don't forget to LIKE, COMMENT, and SUBSCRIBE!\n")
	sb.WriteString("🔔 Turn on notifications to never miss a video!\n\n")

	sb.WriteString("🏷️ TAGS\n")
	sb.WriteString(strings.Join(g.hashtags(name), " "))
	return sb.String()
}

// Tags puts the product first, then the script keywords, then the generic
// review tags. Duplicates are dropped and the YouTube size limit is kept.
func (g *Generator) Tags(name string, keywords []string) []string {
	var tags []string
	if n := strings.ToLower(strings.TrimSpace(name)); n != "" {
		tags = append(tags, n, n+" review")
	}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			tags = append(tags, k)
		}
	}
	tags = lo.Uniq(append(tags, baseTags...))

	out := make([]string, 0, len(tags))
	size := 0
	for _, t := range tags {
		if len(out) == g.cfg.TagsCount || size+len(t) > maxTagChars {
			break
		}
		out = append(out, t)
		size += len(t)
	}
	return out
}

func (g *Generator) hashtags(name string) []string {
	tags := append([]string{}, g.cfg.DefaultHashtags...)
	if h := hashtag(name); h != "" {
		tags = append([]string{h}, tags...)
	}
	return lo.Uniq(tags)
}

// hashtag turns "Desk Lamp 2.0" into "#DeskLamp20"
func hashtag(name string) string {
	var sb strings.Builder
	for _, word := range strings.Fields(name) {
		r := []rune(strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, word))
		if len(r) == 0 {
			continue
		}
		r[0] = unicode.ToUpper(r[0])
		sb.WriteString(string(r))
	}
	if sb.Len() == 0 {
		return ""
	}
	return "#" + sb.String()
}

func keyPoints(content string, n int) []string {
	sentences := lo.FilterMap(strings.Split(content, ". "), func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	return sentences
}

// ExtractKeywords returns the most frequent words longer than three letters
// that are not stop words. Ties are broken alphabetically.
func ExtractKeywords(text string, limit int) []string {
	freq := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len([]rune(w)) > 3 && !stopWords[w] {
			freq[w]++
		}
	}
	words := lo.Keys(freq)
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}

// NextPublishTime returns the next configured weekday at the publish hour in
// the configured timezone, strictly after now.
func NextPublishTime(now time.Time, cfg config.UploadConfig) (time.Time, error) {
	var dows []string
	for _, d := range cfg.PublishDays {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return time.Time{}, fmt.Errorf("unknown publish day %q", d)
		}
		dows = append(dows, strconv.Itoa(int(wd)))
	}
	if len(dows) == 0 {
		return time.Time{}, fmt.Errorf("no publish days configured")
	}

	spec := fmt.Sprintf("CRON_TZ=%s 0 %d * * %s", cfg.PublishTimezone, cfg.PublishHour, strings.Join(lo.Uniq(dows), ","))
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("publish schedule: %w", err)
	}
	return sched.Next(now), nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
