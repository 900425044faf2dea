package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"product-promo-pipeline/chain"
	"product-promo-pipeline/config"
	"product-promo-pipeline/fetch"
	"product-promo-pipeline/media"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
)

// Request asks a provider to speak Text into a file under Dir
type Request struct {
	Text string
	Dir  string
}

// Provider synthesizes narration and returns the written file path
type Provider = chain.Provider[Request, string]

// Generator turns the script into one narration track
type Generator struct {
	chain *chain.Chain[Request, string]
	probe media.Prober
	log   zerolog.Logger
}

// New creates a Generator over an explicit narration chain
func New(c *chain.Chain[Request, string], probe media.Prober, logger zerolog.Logger) *Generator {
	return &Generator{chain: c, probe: probe, log: logger.With().Str("component", "audio").Logger()}
}

// Run synthesizes the narration. Chain exhaustion is returned; a failed
// duration probe is not, and leaves DurationSec at zero for the caller to handle.
func (g *Generator) Run(ctx context.Context, text, outputDir string) (*types.NarrationAsset, error) {
	g.log.Info().Int("chars", len(text)).Msg("🎙️  generating narration")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("narration text is empty")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	res, err := g.chain.Resolve(ctx, Request{Text: text, Dir: outputDir})
	if err != nil {
		return nil, err
	}
	asset := &types.NarrationAsset{Path: res.Value, Provider: res.Provider}

	dur, err := g.probe.Duration(ctx, res.Value)
	if err != nil {
		g.log.Warn().Err(err).Msg("⚠️  could not measure narration duration")
		return asset, nil
	}
	asset.DurationSec = dur
	g.log.Info().Str("provider", res.Provider).Float64("duration", dur).Str("file", res.Value).Msg("✅ narration ready")
	return asset, nil
}

// Providers builds the configured narration providers in order
func Providers(cfg *config.Config, logger zerolog.Logger) ([]Provider, error) {
	client := fetch.NewClient(time.Duration(cfg.Providers.AttemptTimeoutSec) * time.Second)
	var out []Provider
	for _, name := range cfg.Providers.Narration {
		switch strings.ToLower(name) {
		case "huggingface":
			if cfg.Keys.HuggingFace == "" {
				logger.Warn().Msg("HUGGINGFACE_API_KEY not set, skipping huggingface tts")
				continue
			}
			out = append(out, NewHuggingFace(client, cfg.Keys.HuggingFace, cfg.Audio.HFModel, cfg.Providers.RetryStatus))
		case "edge-tts":
			out = append(out, NewEdgeTTS(cfg.Audio, logger))
		case "command":
			if cfg.Audio.Command == "" {
				logger.Warn().Msg("audio.command not set, skipping command tts")
				continue
			}
			out = append(out, NewCommand(cfg.Audio, logger))
		default:
			return nil, fmt.Errorf("audio: unknown narration provider %q", name)
		}
	}
	return out, nil
}

func outPath(dir, ext string) string {
	return filepath.Join(dir, "narration"+ext)
}
