package visuals

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"product-promo-pipeline/chain"
	"product-promo-pipeline/config"
	"product-promo-pipeline/fetch"
	"product-promo-pipeline/media"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// ErrNoVisuals means neither pool could be filled
var ErrNoVisuals = errors.New("no visual assets could be resolved")

// Request is what the assembler needs to fill both pools
type Request struct {
	RunID     string
	Product   string
	Keywords  []string
	ImageURLs []string
	Videos    int
	Images    int
	Dir       string
}

// Pools are the resolved files, in the order slots will consume them
type Pools struct {
	Videos       []types.MediaFile
	Images       []types.MediaFile
	ClipProvider string
}

// Assembler coordinates stock clip and image resolution for one run
type Assembler struct {
	clips   *chain.Chain[ClipRequest, []types.MediaFile]
	images  *chain.Chain[ImageRequest, string]
	workers int
	log     zerolog.Logger
}

// NewAssembler builds an Assembler over explicit clip and image chains
func NewAssembler(clips *chain.Chain[ClipRequest, []types.MediaFile], images *chain.Chain[ImageRequest, string], workers int, logger zerolog.Logger) *Assembler {
	if workers < 1 {
		workers = 1
	}
	return &Assembler{
		clips:   clips,
		images:  images,
		workers: workers,
		log:     logger.With().Str("component", "visuals").Logger(),
	}
}

// Resolve fills the video pool with one batch request and the image pool
// with one request per image slot, all bounded by the worker limit. A
// failing chain only shrinks its pool; ErrNoVisuals is returned when both
// pools end up empty.
func (a *Assembler) Resolve(ctx context.Context, req Request) (*Pools, error) {
	a.log.Info().Int("videos", req.Videos).Int("images", req.Images).Msg("🎞️  resolving visual assets")
	if err := os.MkdirAll(req.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create visuals dir: %w", err)
	}

	var (
		pools  Pools
		images = make([]types.MediaFile, req.Images)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	if req.Videos > 0 && a.clips != nil {
		g.Go(func() error {
			res, err := a.clips.Resolve(gctx, ClipRequest{
				RunID:    req.RunID,
				Keywords: req.Keywords,
				Count:    req.Videos,
				Dir:      req.Dir,
			})
			if err != nil {
				a.log.Warn().Err(err).Msg("⚠️  stock clips unavailable")
				return nil
			}
			pools.Videos = lo.Slice(res.Value, 0, req.Videos)
			pools.ClipProvider = res.Provider
			return nil
		})
	}
	for i := 0; i < req.Images && a.images != nil; i++ {
		i := i
		g.Go(func() error {
			res, err := a.images.Resolve(gctx, ImageRequest{
				Index:     i,
				Product:   req.Product,
				Keywords:  req.Keywords,
				ImageURLs: req.ImageURLs,
				Dir:       req.Dir,
			})
			if err != nil {
				a.log.Warn().Err(err).Int("image", i).Msg("⚠️  image unavailable")
				return nil
			}
			images[i] = types.MediaFile{Path: res.Value, Kind: types.Image, Provenance: res.Provider}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pools.Images = lo.Filter(images, func(m types.MediaFile, _ int) bool { return m.Path != "" })
	a.log.Info().
		Int("videos", len(pools.Videos)).
		Int("images", len(pools.Images)).
		Str("clip_provider", pools.ClipProvider).
		Msg("✅ visual pools ready")
	if len(pools.Videos) == 0 && len(pools.Images) == 0 {
		return &pools, ErrNoVisuals
	}
	return &pools, nil
}

// Bind attaches each planned slot to the pool file it consumes
func Bind(slots []types.SegmentSlot, pools *Pools) []types.ResolvedAsset {
	assets := make([]types.ResolvedAsset, 0, len(slots))
	for _, s := range slots {
		pool := pools.Images
		if s.Kind == types.Video {
			pool = pools.Videos
		}
		if s.PoolIndex < 0 || s.PoolIndex >= len(pool) {
			continue
		}
		f := pool[s.PoolIndex]
		assets = append(assets, types.ResolvedAsset{
			SlotIndex:  s.Index,
			SourcePath: f.Path,
			SourceKind: s.Kind,
			Provenance: f.Provenance,
		})
	}
	return assets
}

// ImageProviders builds the configured image providers in order
func ImageProviders(cfg *config.Config, ffmpeg media.Runner, logger zerolog.Logger) ([]ImageProvider, error) {
	client := fetch.NewClient(time.Duration(cfg.Providers.AttemptTimeoutSec) * time.Second)
	var out []ImageProvider
	for _, name := range cfg.Providers.Image {
		switch strings.ToLower(name) {
		case "product":
			out = append(out, NewProductImages(client, cfg.Keys.SerpAPI, logger))
		case "pexels":
			if cfg.Keys.Pexels == "" {
				logger.Warn().Msg("PEXELS_API_KEY not set, skipping pexels photos")
				continue
			}
			out = append(out, NewPexelsPhotos(client, cfg.Keys.Pexels))
		case "pollinations":
			out = append(out, NewPollinations(client, cfg.Visuals))
		case "huggingface":
			if cfg.Keys.HuggingFace == "" {
				logger.Warn().Msg("HUGGINGFACE_API_KEY not set, skipping huggingface images")
				continue
			}
			out = append(out, NewHuggingFaceImage(client, cfg.Keys.HuggingFace, cfg.Visuals.HFImageModel, cfg.Providers.RetryStatus))
		case "placeholder":
			out = append(out, NewPlaceholder(ffmpeg, cfg))
		default:
			return nil, fmt.Errorf("visuals: unknown image provider %q", name)
		}
	}
	return out, nil
}

// ClipProviders builds the configured stock clip providers in order
func ClipProviders(cfg *config.Config, logger zerolog.Logger) ([]ClipProvider, error) {
	client := fetch.NewClient(time.Duration(cfg.Providers.AttemptTimeoutSec) * time.Second)
	var out []ClipProvider
	for _, name := range cfg.Providers.StockClip {
		switch strings.ToLower(name) {
		case "pexels":
			if cfg.Keys.Pexels == "" {
				logger.Warn().Msg("PEXELS_API_KEY not set, skipping pexels videos")
				continue
			}
			out = append(out, NewPexelsVideos(client, cfg.Keys.Pexels, cfg.Providers.Workers, logger))
		case "pixabay":
			if cfg.Keys.Pixabay == "" {
				logger.Warn().Msg("PIXABAY_API_KEY not set, skipping pixabay videos")
				continue
			}
			out = append(out, NewPixabay(client, cfg.Keys.Pixabay, cfg.Providers.Workers, logger))
		case "library":
			lib, err := NewLibrary(cfg.Paths, logger)
			if err != nil {
				return nil, err
			}
			out = append(out, lib)
		default:
			return nil, fmt.Errorf("visuals: unknown stock clip provider %q", name)
		}
	}
	return out, nil
}
