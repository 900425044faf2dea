package orchestrator

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"product-promo-pipeline/01_research"
	"product-promo-pipeline/02_script"
	"product-promo-pipeline/03_audio"
	"product-promo-pipeline/04_visuals"
	"product-promo-pipeline/05_render"
	"product-promo-pipeline/06_sync"
	"product-promo-pipeline/07_music"
	"product-promo-pipeline/08_engagement"
	"product-promo-pipeline/09_metadata"
	"product-promo-pipeline/10_upload"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// run is the mutable state of one Orchestrator.Run
type run struct {
	o     *Orchestrator
	req   Request
	state *types.PipelineState
	dir   string
	log   zerolog.Logger
	mu    sync.Mutex

	planner *visuals.Planner
	comp    *render.Compositor
	engage  *engagement.Overlay
	aligner *timing.Synchronizer

	// filled in stage order
	data      *types.ProductData
	script    *types.Script
	narration *types.NarrationAsset
	pattern   []types.SlotKind
	videos    int
	images    int
	pools     *visuals.Pools
	clips     []types.RenderedClip
	style     types.TransitionStyle
	expected  float64
	factor    *timing.SpeedFactor
	timeline  *types.Timeline
}

func newRun(o *Orchestrator, req Request, state *types.PipelineState) *run {
	log := o.log.With().Str("run_id", state.RunID).Str("product", req.Product).Logger()
	return &run{
		o:       o,
		req:     req,
		state:   state,
		dir:     filepath.Join(o.cfg.Paths.Work, state.RunID),
		log:     log,
		planner: visuals.NewPlanner(o.cfg.Visuals, o.opts.Rand),
		comp:    render.New(o.ffmpeg, o.probe, o.cfg, log),
		engage:  engagement.New(o.ffmpeg, o.probe, o.cfg, o.opts.Rand, log),
		aligner: timing.New(o.cfg.Sync),
	}
}

// fetchContext gathers product data (best effort) and writes the script
func (r *run) fetchContext(ctx context.Context) error {
	r.data = &types.ProductData{Name: r.req.Product}
	if r.o.chains.ProductData != nil {
		data, provider, err := research.New(r.o.chains.ProductData, r.log).Run(ctx, research.Query{
			Product:  r.req.Product,
			Keywords: r.req.Keywords,
		})
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			r.warn(err, "product research failed, continuing without product data")
		default:
			r.data = data
			r.state.RecordProvider(CapProductData, provider)
		}
	}
	r.state.ProductData = r.data

	scr, err := script.New(r.o.chains.Content, r.o.chains.Keywords, r.o.cfg.Script, r.log).Run(ctx, script.Brief{
		Product:  r.req.Product,
		Keywords: r.req.Keywords,
		Data:     r.data,
	})
	if err != nil {
		return err
	}
	r.script = scr
	r.state.Script = scr
	r.state.RecordProvider(CapContent, scr.Provider)
	return nil
}

// planAudio synthesizes the narration. An unknown length is recorded and
// the planner falls back to its default segment length.
func (r *run) planAudio(ctx context.Context) error {
	n, err := audio.New(r.o.chains.Narration, r.o.probe, r.log).Run(ctx, r.script.Content, filepath.Join(r.dir, "audio"))
	if err != nil {
		return err
	}
	r.narration = n
	r.state.Narration = n
	r.state.RecordProvider(CapNarration, n.Provider)
	if n.DurationSec <= 0 {
		r.warn(&timing.SyncAnomaly{Narration: n.DurationSec}, "narration length unknown, using default segment length")
	}
	return nil
}

func (r *run) planVisuals(_ context.Context) error {
	pattern, err := visuals.ParsePattern(r.o.cfg.Visuals.PatternUnit, r.o.cfg.Visuals.PatternRepeat)
	if err != nil {
		return err
	}
	r.pattern = pattern
	r.videos, r.images = r.planner.Demand(pattern)
	r.log.Info().Int("slots", len(pattern)).Int("videos", r.videos).Int("images", r.images).Msg("📐 visual pattern planned")
	return nil
}

// resolveAssets fills both pools. Short pools only mean fewer slots.
func (r *run) resolveAssets(ctx context.Context) error {
	pools, err := visuals.NewAssembler(r.o.chains.Clips, r.o.chains.Images, r.o.cfg.Providers.Workers, r.log).
		Resolve(ctx, visuals.Request{
			RunID:     r.state.RunID,
			Product:   r.req.Product,
			Keywords:  r.script.Keywords,
			ImageURLs: r.data.ImageURLs,
			Videos:    r.videos,
			Images:    r.images,
			Dir:       filepath.Join(r.dir, "visuals"),
		})
	if err != nil {
		return err
	}
	if len(pools.Videos) < r.videos {
		r.warn(nil, fmt.Sprintf("stock clips short: %d of %d video slots can be filled", len(pools.Videos), r.videos))
	}
	if len(pools.Images) < r.images {
		r.warn(nil, fmt.Sprintf("images short: %d of %d image slots can be filled", len(pools.Images), r.images))
	}
	if pools.ClipProvider != "" {
		r.state.RecordProvider(CapStockClip, pools.ClipProvider)
	}
	if len(pools.Images) > 0 {
		r.state.RecordProvider(CapImage, pools.Images[0].Provenance)
	}
	r.pools = pools
	return nil
}

// renderSegments plans the slots against what was resolved and renders
// them together with the hook, intro and outro cards. A slot that fails to
// render is dropped.
func (r *run) renderSegments(ctx context.Context) error {
	dir := filepath.Join(r.dir, "clips")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create clips dir: %w", err)
	}

	// hook and intro are part of the visual total
	var total float64
	if n := r.narration.DurationSec; n > 0 {
		total = math.Max(0, n-r.o.cfg.Composite.HookSec-r.o.cfg.Composite.IntroSec)
	}
	slots := r.planner.Plan(r.pattern, len(r.pools.Videos), len(r.pools.Images), total)
	assets := visuals.Bind(slots, r.pools)
	r.state.Slots = slots
	r.state.Assets = assets
	bySlot := lo.KeyBy(slots, func(s types.SegmentSlot) int { return s.Index })
	r.log.Info().Int("slots", len(slots)).Float64("planned", total).Msg("🎬 rendering segments")

	var (
		hook, intro, outro *types.RenderedClip
		rendered           = make([]*types.RenderedClip, len(assets))
		card               = r.engage.Hook(r.req.Product)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.cfg.Providers.Workers)

	g.Go(func() error {
		clip, err := r.comp.RenderHook(gctx, card.Text, card.Duration, dir)
		if err != nil {
			return r.dropped(gctx, err, "hook card skipped")
		}
		hook = &clip
		return nil
	})
	g.Go(func() error {
		clip, err := r.comp.RenderIntro(gctx, r.req.Product, dir)
		if err != nil {
			return r.dropped(gctx, err, "intro card skipped")
		}
		intro = &clip
		return nil
	})
	g.Go(func() error {
		clip, err := r.comp.RenderOutro(gctx, dir)
		if err != nil {
			return r.dropped(gctx, err, "outro skipped")
		}
		outro = clip
		return nil
	})
	for i, a := range assets {
		i, a := i, a
		g.Go(func() error {
			clip, err := r.comp.RenderSlot(gctx, bySlot[a.SlotIndex], a, dir)
			if err != nil {
				return r.dropped(gctx, err, fmt.Sprintf("slot %d dropped", a.SlotIndex))
			}
			rendered[i] = &clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	segments := lo.FilterMap(rendered, func(c *types.RenderedClip, _ int) (types.RenderedClip, bool) {
		if c == nil {
			return types.RenderedClip{}, false
		}
		return *c, true
	})
	if len(segments) == 0 {
		return render.ErrNoClips
	}

	var clips []types.RenderedClip
	if hook != nil {
		clips = append(clips, *hook)
	}
	if intro != nil {
		clips = append(clips, *intro)
	}
	clips = append(clips, segments...)
	if outro != nil {
		clips = append(clips, *outro)
	}
	r.clips = clips
	r.log.Info().Int("clips", len(clips)).Int("segments", len(segments)).Msg("✅ segments rendered")
	return nil
}

// dropped reports a non-fatal render failure. Cancellation is returned so
// the group stops.
func (r *run) dropped(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.warn(err, msg)
	return nil
}

// synchronize predicts the composite length and decides the speed factor
func (r *run) synchronize(_ context.Context) error {
	r.style = types.TransitionStyle(r.o.cfg.Composite.Transition)
	if len(r.clips) < 2 || len(r.clips) > r.o.cfg.Composite.CrossfadeMaxClip {
		r.style = types.Cut
	}
	r.expected = render.TimelineDuration(r.clips, r.style, r.o.cfg.Composite.CrossfadeSec)
	r.align(r.expected)
	return nil
}

func (r *run) align(visual float64) {
	n := r.narration.DurationSec
	factor, err := r.aligner.Align(visual, n)
	r.factor = factor
	r.state.SpeedRatio = 0
	switch {
	case err != nil:
		r.log.Warn().Err(err).Msg("⚠️  skipping retime")
	case factor == nil:
		r.log.Info().Float64("visual", visual).Float64("narration", n).Msg("⏱️  visuals within tolerance")
	default:
		r.state.SpeedRatio = factor.Ratio
		r.log.Info().Float64("visual", visual).Float64("narration", n).Float64("ratio", factor.Ratio).Msg("⏱️  visuals will be retimed")
		if factor.Extreme {
			r.warn(nil, fmt.Sprintf("extreme speed ratio %.3f (visual %.2fs, narration %.2fs)", factor.Ratio, visual, n))
		}
	}
}

// composite joins the clips, lays the optional music bed and merges the
// narration
func (r *run) composite(ctx context.Context) error {
	tl, err := r.comp.Composite(ctx, r.clips, r.style, r.dir)
	if err != nil {
		return err
	}
	if math.Abs(tl.Duration-r.expected) > 1e-6 {
		r.log.Info().Str("transition", string(tl.Transition)).Msg("timeline length changed, re-aligning")
		r.align(tl.Duration)
	}

	mode := render.MergeMode(r.o.cfg.Sync.MergeMode)
	if r.o.cfg.Music.Enabled && mode == render.Replace {
		r.log.Info().Msg("music bed enabled, mixing narration over it")
		mode = render.Mix
	}
	if mode == render.Mix {
		bedded, err := music.New(r.o.ffmpeg, r.o.cfg, r.log).Apply(ctx, tl, r.narration.DurationSec, r.dir)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			r.warn(err, "music bed unavailable")
		default:
			tl = bedded
		}
	}

	merged, err := r.comp.MergeNarration(ctx, tl, r.narration.Path, mode, r.factor, r.dir)
	if err != nil {
		return err
	}
	// -shortest stops at whichever of video and narration ends first
	if n := r.narration.DurationSec; n > 0 {
		merged.Duration = math.Min(merged.Duration, n)
	}
	r.timeline = merged
	r.state.Timeline = merged
	return nil
}

// overlay burns in the key points and the call to action. Failures keep
// the previous timeline.
func (r *run) overlay(ctx context.Context) error {
	tl := r.timeline
	points := r.engage.Points(tl.Duration, r.script.Content)

	next, err := r.engage.BurnIn(ctx, tl, points, r.dir)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.warn(err, "key points skipped")
	}
	next, err = r.engage.CallToAction(ctx, next, r.o.cfg.Engagement.CTAText, r.dir)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.warn(err, "call to action skipped")
	}
	r.timeline = next
	r.state.Timeline = next
	return nil
}

// finalize copies the video out of the work dir and writes its metadata.
// Upload is attempted last and never fails the run.
func (r *run) finalize(ctx context.Context) error {
	out := r.o.cfg.Paths.Output
	if err := os.MkdirAll(out, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	base := filepath.Join(out, fmt.Sprintf("%s_%s", slug(r.req.Product), r.state.RunID))
	final := base + ".mp4"
	if err := copyFile(r.timeline.Path, final); err != nil {
		return fmt.Errorf("copy final video: %w", err)
	}
	r.state.VideoFile = final

	meta := metadata.New(r.o.cfg, r.log).Run(r.req.Product, r.data, r.script, r.o.opts.Now())
	r.state.Metadata = meta
	saveJSON(base+".json", meta, r.log)
	if err := os.WriteFile(base+"_description.txt", []byte(meta.Description), 0644); err != nil {
		r.warn(err, "could not save description")
	}
	r.log.Info().Str("video", final).Msg("📦 video saved")

	pub := r.o.opts.Publisher
	if !pub.Enabled() {
		return nil
	}
	res, err := pub.Run(ctx, final, meta)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.warn(err, "upload failed")
		return nil
	}
	r.state.YouTubeID = res.VideoID
	r.state.YouTubeURL = res.VideoURL
	if _, err := upload.LogUpload(res, final, r.o.cfg.Paths.Logs, meta); err != nil {
		r.warn(err, "could not log upload")
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slug turns a product name into a file-name-safe prefix
func slug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(s) > 40 {
		s = strings.TrimRight(s[:40], "-")
	}
	if s == "" {
		return "product"
	}
	return s
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
