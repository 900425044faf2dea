package engagement

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"product-promo-pipeline/config"
	"product-promo-pipeline/media"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var hookPhrases = []string{
	"Wait Until You See This!",
	"You Won't Believe This!",
	"This Changed Everything!",
	"Watch This First!",
	"Don't Skip This!",
	"Game Changer Alert!",
	"Shocking Results!",
}

// sentenceEnd splits on terminal punctuation followed by space or end of
// text, so "$49.99" stays in one piece.
var sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)`)

// HookCard is the opening text card
type HookCard struct {
	Text     string
	Duration float64
}

// OverlayFailure is a burn-in that could not be applied. The timeline
// returned alongside it is the unmodified input.
type OverlayFailure struct {
	Op  string
	Err error
}

func (e *OverlayFailure) Error() string { return fmt.Sprintf("overlay %s: %v", e.Op, e.Err) }

func (e *OverlayFailure) Unwrap() error { return e.Err }

// Overlay adds the attention devices: hook card, timed key points and the
// closing call to action.
type Overlay struct {
	ffmpeg  media.Runner
	probe   media.Prober
	enc     media.Encoding
	cfg     config.EngagementConfig
	hookSec float64

	mu  sync.Mutex
	rnd *rand.Rand
	log zerolog.Logger
}

func New(ffmpeg media.Runner, probe media.Prober, cfg *config.Config, rnd *rand.Rand, logger zerolog.Logger) *Overlay {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Overlay{
		ffmpeg:  ffmpeg,
		probe:   probe,
		enc:     media.EncodingFrom(cfg),
		cfg:     cfg.Engagement,
		hookSec: cfg.Composite.HookSec,
		rnd:     rnd,
		log:     logger.With().Str("component", "engagement").Logger(),
	}
}

// Hook picks one of the fixed hook phrases
func (o *Overlay) Hook(productName string) HookCard {
	o.mu.Lock()
	phrase := hookPhrases[o.rnd.Intn(len(hookPhrases))]
	o.mu.Unlock()
	o.log.Debug().Str("product", productName).Str("hook", phrase).Msg("hook chosen")
	return HookCard{Text: phrase, Duration: o.hookSec}
}

// Points spreads the first sentences of content evenly over a video of
// length total. Every point ends by total and no two points overlap.
func (o *Overlay) Points(total float64, content string) []types.OverlayPoint {
	if total <= 0 || math.IsNaN(total) {
		return nil
	}
	sentences := lo.FilterMap(sentenceEnd.Split(content, -1), func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return truncateRunes(s, o.cfg.MaxChars), s != ""
	})
	if len(sentences) > o.cfg.MaxPoints {
		sentences = sentences[:o.cfg.MaxPoints]
	}
	if len(sentences) == 0 {
		return nil
	}

	slots := float64(len(sentences) + 1)
	d := math.Min(o.cfg.PointSec, total/slots)
	points := make([]types.OverlayPoint, len(sentences))
	for i, s := range sentences {
		start := total * float64(i+1) / slots
		limit := total
		if i+1 < len(sentences) {
			limit = total * float64(i+2) / slots
		}
		points[i] = types.OverlayPoint{Text: s, Start: start, Duration: fitWithin(start, math.Min(d, limit-start), limit)}
	}
	return points
}

// fitWithin shrinks d until start+d does not pass limit in float arithmetic
func fitWithin(start, d, limit float64) float64 {
	for d > 0 && start+d > limit {
		d = math.Nextafter(d, 0)
	}
	return math.Max(d, 0)
}

// BurnIn draws every point in a single pass. On any failure the input
// timeline is returned together with an *OverlayFailure.
func (o *Overlay) BurnIn(ctx context.Context, tl *types.Timeline, points []types.OverlayPoint, dir string) (*types.Timeline, error) {
	if len(points) == 0 {
		return tl, nil
	}
	o.log.Info().Int("points", len(points)).Msg("💬 burning in key points")
	filters := make([]*media.Filter, 0, len(points))
	for _, p := range points {
		filters = append(filters, o.drawtext(p.Text, o.cfg.FontSize, o.cfg.FontColor, "h-th-300").
			Enable("points", media.Window{Start: p.Start, End: p.End()}))
	}
	graph := media.NewGraph().Chain(nil, "", filters...).Within(tl.Duration)
	return o.render(ctx, "points", tl, graph, filepath.Join(dir, "points.mp4"))
}

// CallToAction shows text over the last seconds of the timeline. The
// current file is probed because earlier stages may have retimed it.
func (o *Overlay) CallToAction(ctx context.Context, tl *types.Timeline, text, dir string) (*types.Timeline, error) {
	total := tl.Duration
	if d, err := o.probe.Duration(ctx, tl.Path); err == nil {
		total = d
	} else {
		o.log.Warn().Err(err).Msg("could not probe timeline, using computed duration")
	}
	if total <= 0 {
		return tl, &OverlayFailure{Op: "cta", Err: fmt.Errorf("timeline has no duration")}
	}
	w := media.Window{Start: math.Max(0, total-o.cfg.CTAWindowSec), End: total}
	o.log.Info().Str("text", text).Float64("start", w.Start).Msg("📣 adding call to action")

	draw := o.drawtext(text, o.cfg.FontSize+6, "yellow", "h-th-200").Enable("cta", w)
	graph := media.NewGraph().Chain(nil, "", draw).Within(total)
	next, err := o.render(ctx, "cta", tl, graph, filepath.Join(dir, "cta.mp4"))
	if err == nil {
		next.Duration = total
	}
	return next, err
}

func (o *Overlay) drawtext(text string, size int, color, y string) *media.Filter {
	f := media.NewFilter("drawtext").
		Set("expansion", "none").
		Text("text", text).
		Set("fontsize", strconv.Itoa(size)).
		Set("fontcolor", color).
		Set("box", "1").
		Set("boxcolor", o.cfg.BoxColor).
		Set("boxborderw", "12").
		Expr("x", "(w-text_w)/2").
		Expr("y", y)
	if o.cfg.FontFile != "" {
		f.Text("fontfile", o.cfg.FontFile)
	}
	return f
}

func (o *Overlay) render(ctx context.Context, op string, tl *types.Timeline, graph *media.Graph, out string) (*types.Timeline, error) {
	if err := graph.Validate(); err != nil {
		o.log.Warn().Err(err).Str("op", op).Msg("⚠️  overlay rejected, keeping timeline")
		return tl, &OverlayFailure{Op: op, Err: err}
	}
	args := []string{"-i", tl.Path, "-vf", graph.String()}
	args = append(args, o.enc.VideoArgs()...)
	if tl.HasAudio {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-an")
	}
	args = append(args, out)
	if err := o.ffmpeg.Run(ctx, args...); err != nil {
		o.log.Warn().Err(err).Str("op", op).Msg("⚠️  overlay failed, keeping timeline")
		return tl, &OverlayFailure{Op: op, Err: err}
	}
	next := *tl
	next.Path = out
	return &next, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
