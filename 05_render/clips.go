package render

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"product-promo-pipeline/config"
	"product-promo-pipeline/media"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
)

const hookColor = "0xFF6B35"

// Compositor renders normalized clips and joins them into timelines.
// Every clip it produces has the same canvas, frame rate and codec, so
// the concat demuxer and xfade can both consume them unchanged.
type Compositor struct {
	ffmpeg media.Runner
	probe  media.Prober
	enc    media.Encoding
	cfg    config.CompositeConfig
	vis    config.VisualsConfig
	font   string
	log    zerolog.Logger
}

func New(ffmpeg media.Runner, probe media.Prober, cfg *config.Config, logger zerolog.Logger) *Compositor {
	return &Compositor{
		ffmpeg: ffmpeg,
		probe:  probe,
		enc:    media.EncodingFrom(cfg),
		cfg:    cfg.Composite,
		vis:    cfg.Visuals,
		font:   cfg.Engagement.FontFile,
		log:    logger.With().Str("component", "render").Logger(),
	}
}

// RenderSlot turns one bound asset into a clip for its slot
func (c *Compositor) RenderSlot(ctx context.Context, slot types.SegmentSlot, asset types.ResolvedAsset, dir string) (types.RenderedClip, error) {
	if asset.SlotIndex != slot.Index {
		return types.RenderedClip{}, fmt.Errorf("asset for slot %d bound to slot %d", asset.SlotIndex, slot.Index)
	}
	out := filepath.Join(dir, fmt.Sprintf("slot_%02d.mp4", slot.Index))
	var (
		d   float64
		err error
	)
	switch slot.Kind {
	case types.Image:
		d = math.Min(slot.PlannedDuration, c.vis.ImageMaxSec)
		err = c.renderImage(ctx, asset.SourcePath, d, out)
	case types.Video:
		d = slot.PlannedDuration
		err = c.renderVideo(ctx, asset.SourcePath, d, out)
	default:
		err = fmt.Errorf("unknown slot kind %q", slot.Kind)
	}
	if err != nil {
		return types.RenderedClip{}, fmt.Errorf("render slot %d: %w", slot.Index, err)
	}
	return types.RenderedClip{SlotIndex: slot.Index, Path: out, ActualDuration: d}, nil
}

// canvas fills the frame, cropping instead of letterboxing
func (c *Compositor) canvas() []*media.Filter {
	return []*media.Filter{
		media.NewFilter("scale").
			Set("w", strconv.Itoa(c.enc.Width)).
			Set("h", strconv.Itoa(c.enc.Height)).
			Set("force_original_aspect_ratio", "increase"),
		media.NewFilter("crop").
			Set("w", strconv.Itoa(c.enc.Width)).
			Set("h", strconv.Itoa(c.enc.Height)),
		media.NewFilter("setsar").Set("sar", "1"),
	}
}

func (c *Compositor) fades(d float64) []*media.Filter {
	f := c.vis.FadeSec
	if f <= 0 || d <= 2*f {
		return nil
	}
	return []*media.Filter{
		media.NewFilter("fade").Set("t", "in").Set("st", "0").Set("d", media.Seconds(f)),
		media.NewFilter("fade").Set("t", "out").Set("st", media.Seconds(d-f)).Set("d", media.Seconds(f)),
	}
}

// renderImage applies a slow pan/zoom to a still image
func (c *Compositor) renderImage(ctx context.Context, img string, d float64, out string) error {
	frames := int(math.Round(d * float64(c.enc.FPS)))
	if frames < 1 {
		frames = 1
	}
	step := (c.vis.ZoomMax - 1.0) / float64(frames)
	filters := append(c.canvas(),
		media.NewFilter("zoompan").
			Expr("z", fmt.Sprintf("min(1+%.6f*on,%.3f)", step, c.vis.ZoomMax)).
			Expr("x", "iw/2-(iw/zoom/2)").
			Expr("y", "ih/2-(ih/zoom/2)").
			Set("d", strconv.Itoa(frames)).
			Set("s", c.enc.Size()).
			Set("fps", strconv.Itoa(c.enc.FPS)),
	)
	filters = append(filters, c.fades(d)...)
	graph := media.NewGraph().Chain(nil, "", filters...)
	if err := graph.Validate(); err != nil {
		return err
	}

	args := []string{"-i", img, "-vf", graph.String(), "-frames:v", strconv.Itoa(frames), "-t", media.Seconds(d)}
	args = append(args, c.enc.VideoArgs()...)
	args = append(args, "-an", out)
	return c.ffmpeg.Run(ctx, args...)
}

// renderVideo trims a stock clip to d, looping it first when it is shorter
func (c *Compositor) renderVideo(ctx context.Context, clip string, d float64, out string) error {
	var args []string
	if clipDur, err := c.probe.Duration(ctx, clip); err == nil && clipDur < d {
		loops := int(d/clipDur) + 1
		args = append(args, "-stream_loop", strconv.Itoa(loops))
	}
	filters := append(c.canvas(), media.NewFilter("fps").Set("fps", strconv.Itoa(c.enc.FPS)))
	filters = append(filters, c.fades(d)...)
	graph := media.NewGraph().Chain(nil, "", filters...)
	if err := graph.Validate(); err != nil {
		return err
	}

	args = append(args, "-i", clip, "-t", media.Seconds(d), "-vf", graph.String())
	args = append(args, c.enc.VideoArgs()...)
	args = append(args, "-an", out)
	return c.ffmpeg.Run(ctx, args...)
}

// RenderHook renders the opening text card
func (c *Compositor) RenderHook(ctx context.Context, text string, d float64, dir string) (types.RenderedClip, error) {
	out := filepath.Join(dir, "hook.mp4")
	draw := c.cardText(text, 100)
	if err := c.renderCard(ctx, hookColor, d, out, draw); err != nil {
		return types.RenderedClip{}, fmt.Errorf("render hook: %w", err)
	}
	return types.RenderedClip{SlotIndex: types.HookSlot, Path: out, ActualDuration: d}, nil
}

// RenderIntro renders the product name card with a short alpha fade
func (c *Compositor) RenderIntro(ctx context.Context, productName string, dir string) (types.RenderedClip, error) {
	d := c.cfg.IntroSec
	out := filepath.Join(dir, "intro.mp4")
	fade := math.Min(0.2, d/4)
	draw := c.cardText(productName, 90).Expr("alpha", fmt.Sprintf(
		"if(lt(t,%[1]s),t/%[1]s,if(lt(t,%[2]s),1,(%[3]s-t)/%[1]s))",
		media.Seconds(fade), media.Seconds(d-fade), media.Seconds(d),
	))
	if err := c.renderCard(ctx, c.cfg.BackgroundColor, d, out, draw); err != nil {
		return types.RenderedClip{}, fmt.Errorf("render intro: %w", err)
	}
	return types.RenderedClip{SlotIndex: types.IntroSlot, Path: out, ActualDuration: d}, nil
}

// RenderOutro normalizes the configured outro clip. It returns nil when no
// outro is configured or the file is missing.
func (c *Compositor) RenderOutro(ctx context.Context, dir string) (*types.RenderedClip, error) {
	if c.cfg.OutroPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(c.cfg.OutroPath); err != nil {
		c.log.Warn().Str("path", c.cfg.OutroPath).Msg("outro clip not found, skipping")
		return nil, nil
	}
	d, err := c.probe.Duration(ctx, c.cfg.OutroPath)
	if err != nil {
		return nil, fmt.Errorf("probe outro: %w", err)
	}
	out := filepath.Join(dir, "outro.mp4")
	if err := c.renderVideo(ctx, c.cfg.OutroPath, d, out); err != nil {
		return nil, fmt.Errorf("render outro: %w", err)
	}
	return &types.RenderedClip{SlotIndex: types.OutroSlot, Path: out, ActualDuration: d}, nil
}

func (c *Compositor) cardText(text string, size int) *media.Filter {
	f := media.NewFilter("drawtext").
		Set("expansion", "none").
		Text("text", text).
		Set("fontsize", strconv.Itoa(size)).
		Set("fontcolor", "white").
		Expr("x", "(w-text_w)/2").
		Expr("y", "(h-text_h)/2")
	if c.font != "" {
		f.Text("fontfile", c.font)
	}
	return f
}

func (c *Compositor) renderCard(ctx context.Context, color string, d float64, out string, draw *media.Filter) error {
	graph := media.NewGraph().Chain(nil, "", draw)
	if err := graph.Validate(); err != nil {
		return err
	}
	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%s:d=%s:r=%d", color, c.enc.Size(), media.Seconds(d), c.enc.FPS),
		"-vf", graph.String(),
		"-t", media.Seconds(d),
	}
	args = append(args, c.enc.VideoArgs()...)
	args = append(args, "-an", out)
	return c.ffmpeg.Run(ctx, args...)
}
