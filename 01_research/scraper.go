package research

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"product-promo-pipeline/chain"
	"product-promo-pipeline/config"
	"product-promo-pipeline/fetch"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
)

// Query is what research looks up
type Query struct {
	Product  string
	Keywords []string
}

// Provider finds product data for a query
type Provider = chain.Provider[Query, *types.ProductData]

// Scraper resolves product data through an ordered provider chain
type Scraper struct {
	chain *chain.Chain[Query, *types.ProductData]
	log   zerolog.Logger
}

// New creates a Scraper over an explicit provider chain
func New(c *chain.Chain[Query, *types.ProductData], logger zerolog.Logger) *Scraper {
	return &Scraper{chain: c, log: logger.With().Str("component", "research").Logger()}
}

// Run fetches product data. The returned provider name is the one that answered.
func (s *Scraper) Run(ctx context.Context, q Query) (*types.ProductData, string, error) {
	s.log.Info().Str("product", q.Product).Msg("🔎 researching product")
	res, err := s.chain.Resolve(ctx, q)
	if err != nil {
		return nil, "", err
	}
	data := res.Value
	if data.Name == "" {
		data.Name = q.Product
	}
	s.log.Info().
		Str("provider", res.Provider).
		Int("features", len(data.Features)).
		Int("images", len(data.ImageURLs)).
		Msg("✅ product data ready")
	return data, res.Provider, nil
}

// Providers builds the configured product-data providers in order
func Providers(cfg *config.Config, logger zerolog.Logger) ([]Provider, error) {
	client := fetch.NewClient(time.Duration(cfg.Providers.AttemptTimeoutSec) * time.Second)
	var out []Provider
	for _, name := range cfg.Providers.ProductData {
		p, err := providerByName(name, cfg, client, logger)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func providerByName(name string, cfg *config.Config, client *http.Client, logger zerolog.Logger) (Provider, error) {
	switch strings.ToLower(name) {
	case "serpapi":
		if cfg.Keys.SerpAPI == "" {
			logger.Warn().Msg("SERPAPI_KEY not set, skipping serpapi product search")
			return nil, nil
		}
		return NewSerpAPI(client, cfg.Keys.SerpAPI, cfg.Research), nil
	case "reddit":
		return NewReddit(cfg.Research)
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("research: unknown product data provider %q", name)
	}
}
