package script

import (
	"context"
	"fmt"
	"strings"
	"time"

	"product-promo-pipeline/chain"
	"product-promo-pipeline/config"
	"product-promo-pipeline/fetch"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Brief is everything the writer knows about the product
type Brief struct {
	Product  string
	Keywords []string
	Data     *types.ProductData
}

// ContentProvider writes the narration text
type ContentProvider = chain.Provider[Brief, string]

// KeywordProvider proposes review keywords
type KeywordProvider = chain.Provider[Brief, []string]

// Writer produces the narration script and search keywords for a product
type Writer struct {
	content  *chain.Chain[Brief, string]
	keywords *chain.Chain[Brief, []string]
	cfg      config.ScriptConfig
	log      zerolog.Logger
}

// New creates a Writer over explicit content and keyword chains
func New(content *chain.Chain[Brief, string], keywords *chain.Chain[Brief, []string], cfg config.ScriptConfig, logger zerolog.Logger) *Writer {
	return &Writer{
		content:  content,
		keywords: keywords,
		cfg:      cfg,
		log:      logger.With().Str("component", "script").Logger(),
	}
}

// Run generates keywords (best effort) then the script. Exhaustion of the
// content chain is the only error returned.
func (w *Writer) Run(ctx context.Context, brief Brief) (*types.Script, error) {
	w.log.Info().Str("product", brief.Product).Msg("✍️  generating script")

	keywords := append([]string{}, brief.Keywords...)
	if brief.Data != nil {
		keywords = append(keywords, brief.Data.Features...)
	}
	if w.keywords != nil {
		if res, err := w.keywords.Resolve(ctx, brief); err != nil {
			w.log.Warn().Err(err).Msg("⚠️  keyword generation failed, continuing with base keywords")
		} else {
			keywords = append(keywords, res.Value...)
		}
	}
	keywords = lo.Uniq(lo.Compact(lo.Map(keywords, func(k string, _ int) string { return strings.TrimSpace(k) })))
	if len(keywords) > 15 {
		keywords = keywords[:15]
	}
	brief.Keywords = keywords

	res, err := w.content.Resolve(ctx, brief)
	if err != nil {
		return nil, err
	}
	content := cleanText(res.Value)
	if content == "" {
		return nil, fmt.Errorf("content provider %s returned empty text", res.Provider)
	}

	script := &types.Script{
		Content:  content,
		Keywords: SearchKeywords(content, keywords, w.cfg.SearchKeywords),
		Provider: res.Provider,
	}
	w.log.Info().
		Str("provider", res.Provider).
		Int("words", len(strings.Fields(content))).
		Strs("search_keywords", script.Keywords).
		Msg("✅ script ready")
	return script, nil
}

// Providers builds the content and keyword providers in configured order
func Providers(cfg *config.Config, logger zerolog.Logger) ([]ContentProvider, []KeywordProvider, error) {
	client := fetch.NewClient(time.Duration(cfg.Providers.AttemptTimeoutSec) * time.Second)
	var content []ContentProvider
	var keywords []KeywordProvider
	for _, name := range cfg.Providers.Content {
		switch strings.ToLower(name) {
		case "groq":
			if cfg.Keys.Groq == "" {
				logger.Warn().Msg("GROQ_API_KEY not set, skipping groq")
				continue
			}
			g := NewGroq(client, cfg.Keys.Groq, cfg.Script)
			content = append(content, g)
			keywords = append(keywords, GroqKeywords{g})
		case "openai":
			if cfg.Keys.OpenAI == "" {
				logger.Warn().Msg("OPENAI_API_KEY not set, skipping openai")
				continue
			}
			o := NewOpenAI(cfg.Keys.OpenAI, cfg.Script)
			content = append(content, o)
			keywords = append(keywords, OpenAIKeywords{o})
		case "template":
			content = append(content, Template{})
		default:
			return nil, nil, fmt.Errorf("script: unknown content provider %q", name)
		}
	}
	keywords = append(keywords, FeatureKeywords{})
	return content, keywords, nil
}

// cleanText strips markdown fences and stage labels some models wrap output in
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.ReplaceAll(s, "**", "")
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || (strings.HasPrefix(l, "[") && strings.HasSuffix(l, "]")) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, " ")
}
