package metadata

import (
	"io"
	"strings"
	"testing"
	"time"

	"product-promo-pipeline/config"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const content = "This lamp lights the whole desk. The arm bends in any direction. " +
	"Battery lasts a full week. Setup takes two minutes."

func newGenerator(mutate func(*config.Config)) *Generator {
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg, zerolog.New(io.Discard))
}

func TestRun(t *testing.T) {
	g := newGenerator(func(c *config.Config) {
		c.Metadata.AffiliateLink = "https://example.com/lamp?tag=me"
	})
	meta := g.Run("Desk Lamp", &types.ProductData{Price: "$49.99", Rating: 4.6, Reviews: 1200},
		&types.Script{Content: content, Keywords: []string{"LED lamp", "desk setup"}}, time.Now())

	require.Equal(t, "Desk Lamp Review - Complete Overview", meta.Title)
	require.Equal(t, "26", meta.CategoryID)
	require.Equal(t, "private", meta.Visibility)
	require.Empty(t, meta.PublishAt)
	require.Equal(t, []string{"desk lamp", "desk lamp review", "led lamp", "desk setup"}, meta.Tags[:4])

	d := meta.Description
	require.True(t, strings.HasPrefix(d, "🎥 Desk Lamp - Complete Review & Overview"))
	require.Contains(t, d, "• This lamp lights the whole desk\n")
	require.Contains(t, d, "• Battery lasts a full week\n")
	require.NotContains(t, d, "Setup takes")
	require.Contains(t, d, "💲 Price: $49.99")
	require.Contains(t, d, "⭐ Rating: 4.6/5 (1200 reviews)")
	require.Contains(t, d, "https://example.com/lamp?tag=me")
	require.Contains(t, d, "#DeskLamp #shorts #review #amazonfinds")
}

func TestRun_NoResearchData(t *testing.T) {
	meta := newGenerator(nil).Run("", nil, nil, time.Now())
	require.Equal(t, "Product Review", meta.Title)
	require.Contains(t, meta.Description, "🎥 Product Review & Overview")
	require.NotContains(t, meta.Description, "Price")
	require.Equal(t, baseTags, meta.Tags)
}

func TestTitle_Truncated(t *testing.T) {
	g := newGenerator(func(c *config.Config) { c.Metadata.TitleMaxChars = 20 })
	title := g.Title("Ergonomische Schreibtischlampe")
	require.Len(t, []rune(title), 20)
	require.True(t, strings.HasSuffix(title, "..."))
}

func TestTags_Limits(t *testing.T) {
	g := newGenerator(func(c *config.Config) { c.Metadata.TagsCount = 3 })
	require.Equal(t, []string{"lamp", "lamp review", "product review"}, g.Tags("Lamp", []string{"LAMP", " "}))

	long := make([]string, 40)
	for i := range long {
		long[i] = strings.Repeat(string(rune('a'+i%26)), 20) + strings.Repeat("x", i)
	}
	g = newGenerator(func(c *config.Config) { c.Metadata.TagsCount = 100 })
	size := 0
	for _, tag := range g.Tags("", long) {
		size += len(tag)
	}
	require.LessOrEqual(t, size, maxTagChars)
}

func TestHashtag(t *testing.T) {
	require.Equal(t, "#DeskLamp20", hashtag("desk lamp 2.0"))
	require.Equal(t, "", hashtag(" !! "))
}

func TestExtractKeywords(t *testing.T) {
	words := ExtractKeywords("Battery battery BATTERY! Lamp lamp. Desk, with this that", 2)
	require.Equal(t, []string{"battery", "lamp"}, words)
	require.Empty(t, ExtractKeywords("", 5))
}

func TestNextPublishTime(t *testing.T) {
	cfg := config.Default().Upload
	cfg.PublishTimezone = "UTC"

	// Friday before the publish hour
	at, err := NextPublishTime(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), cfg)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC), at)

	// Friday after the publish hour rolls over to Tuesday
	at, err = NextPublishTime(time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC), cfg)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC), at)

	// exactly on the hour is not "after now"
	at, err = NextPublishTime(time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC), cfg)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 10, 23, 14, 0, 0, 0, time.UTC), at)

	cfg.PublishDays = []string{"someday"}
	_, err = NextPublishTime(time.Now(), cfg)
	require.Error(t, err)

	cfg.PublishDays = []string{"friday"}
	cfg.PublishTimezone = "Mars/Olympus_Mons"
	_, err = NextPublishTime(time.Now(), cfg)
	require.Error(t, err)
}

func TestRun_SchedulesPublish(t *testing.T) {
	g := newGenerator(func(c *config.Config) {
		c.Upload.SchedulePublish = true
		c.Upload.PublishTimezone = "UTC"
	})
	meta := g.Run("Lamp", nil, nil, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	require.Equal(t, "2026-10-16T14:00:00Z", meta.PublishAt)
}
