package orchestrator

import (
	"time"

	"product-promo-pipeline/01_research"
	"product-promo-pipeline/02_script"
	"product-promo-pipeline/03_audio"
	"product-promo-pipeline/04_visuals"
	"product-promo-pipeline/chain"
	"product-promo-pipeline/config"
	"product-promo-pipeline/media"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
)

// Capability names used for chains, the registry and the run record
const (
	CapProductData = "product_data"
	CapContent     = "content"
	CapKeywords    = "keywords"
	CapNarration   = "narration"
	CapImage       = "image"
	CapStockClip   = "stock_clip"
)

// Chains are the provider chains one run resolves through. ProductData and
// Keywords may be nil; the others are required.
type Chains struct {
	ProductData *chain.Chain[research.Query, *types.ProductData]
	Content     *chain.Chain[script.Brief, string]
	Keywords    *chain.Chain[script.Brief, []string]
	Narration   *chain.Chain[audio.Request, string]
	Images      *chain.Chain[visuals.ImageRequest, string]
	Clips       *chain.Chain[visuals.ClipRequest, []types.MediaFile]
}

// ChainOptions derives per-attempt timeout and retry policy from config
func ChainOptions(cfg *config.Config, registry *chain.Registry, logger zerolog.Logger) chain.Options {
	return chain.Options{
		AttemptTimeout: time.Duration(cfg.Providers.AttemptTimeoutSec) * time.Second,
		Retry: chain.RetryPolicy{
			MaxRetries: cfg.Providers.MaxRetries,
			Delay:      time.Duration(cfg.Providers.RetryDelaySec) * time.Second,
		},
		Registry: registry,
		Logger:   logger,
	}
}

// BuildChains builds every chain in the order the providers section lists them
func BuildChains(cfg *config.Config, ffmpeg media.Runner, registry *chain.Registry, logger zerolog.Logger) (*Chains, error) {
	opts := ChainOptions(cfg, registry, logger)

	productData, err := research.Providers(cfg, logger)
	if err != nil {
		return nil, err
	}
	content, keywords, err := script.Providers(cfg, logger)
	if err != nil {
		return nil, err
	}
	narration, err := audio.Providers(cfg, logger)
	if err != nil {
		return nil, err
	}
	images, err := visuals.ImageProviders(cfg, ffmpeg, logger)
	if err != nil {
		return nil, err
	}
	clips, err := visuals.ClipProviders(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Chains{
		ProductData: chain.New(CapProductData, productData, opts),
		Content:     chain.New(CapContent, content, opts),
		Keywords:    chain.New(CapKeywords, keywords, opts),
		Narration:   chain.New(CapNarration, narration, opts),
		Images:      chain.New(CapImage, images, opts),
		Clips:       chain.New(CapStockClip, clips, opts),
	}, nil
}
