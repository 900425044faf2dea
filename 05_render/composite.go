package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"product-promo-pipeline/06_sync"
	"product-promo-pipeline/media"
	"product-promo-pipeline/types"
)

// ErrNoClips means there was nothing to composite
var ErrNoClips = errors.New("no clips to composite")

// MergeMode is how narration is combined with the timeline audio
type MergeMode string

const (
	Replace MergeMode = "replace"
	Mix     MergeMode = "mix"
)

// TimelineDuration is the length of clips joined with style. Crossfades
// overlap neighbours by overlap seconds.
func TimelineDuration(clips []types.RenderedClip, style types.TransitionStyle, overlap float64) float64 {
	var total float64
	for _, c := range clips {
		total += c.ActualDuration
	}
	if style == types.Crossfade && len(clips) > 1 {
		total -= overlap * float64(len(clips)-1)
	}
	return total
}

// XfadeOffsets returns the offset of each transition. Transition i starts
// when the accumulated output so far reaches its last overlap seconds.
func XfadeOffsets(clips []types.RenderedClip, overlap float64) []float64 {
	if len(clips) < 2 {
		return nil
	}
	offsets := make([]float64, 0, len(clips)-1)
	acc := clips[0].ActualDuration
	for _, c := range clips[1:] {
		offsets = append(offsets, acc-overlap)
		acc += c.ActualDuration - overlap
	}
	return offsets
}

// Composite joins clips in order into one silent timeline. Crossfades are
// used for short sequences; a failed crossfade render falls back to cuts.
func (c *Compositor) Composite(ctx context.Context, clips []types.RenderedClip, style types.TransitionStyle, dir string) (*types.Timeline, error) {
	if len(clips) == 0 {
		return nil, ErrNoClips
	}
	out := filepath.Join(dir, "timeline.mp4")
	if len(clips) == 1 {
		if err := copyFile(clips[0].Path, out); err != nil {
			return nil, fmt.Errorf("copy single clip: %w", err)
		}
		return c.timeline(out, clips, types.Cut), nil
	}

	if style == types.Crossfade && len(clips) <= c.cfg.CrossfadeMaxClip {
		err := c.crossfade(ctx, clips, out)
		if err == nil {
			return c.timeline(out, clips, types.Crossfade), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn().Err(err).Msg("⚠️  crossfade failed, falling back to cuts")
	}

	if err := c.concat(ctx, clips, dir, out); err != nil {
		return nil, fmt.Errorf("concat clips: %w", err)
	}
	return c.timeline(out, clips, types.Cut), nil
}

func (c *Compositor) timeline(path string, clips []types.RenderedClip, style types.TransitionStyle) *types.Timeline {
	tl := &types.Timeline{
		Path:       path,
		Clips:      clips,
		Transition: style,
		Duration:   TimelineDuration(clips, style, c.cfg.CrossfadeSec),
	}
	c.log.Info().
		Int("clips", len(clips)).
		Str("transition", string(style)).
		Float64("duration", tl.Duration).
		Msg("✅ timeline composited")
	return tl
}

func (c *Compositor) crossfade(ctx context.Context, clips []types.RenderedClip, out string) error {
	graph := media.NewGraph()
	fps := strconv.Itoa(c.enc.FPS)
	for i := range clips {
		graph.Chain([]string{fmt.Sprintf("%d:v", i)}, fmt.Sprintf("v%d", i),
			media.NewFilter("fps").Set("fps", fps),
			media.NewFilter("settb").Set("expr", "AVTB"),
			media.NewFilter("setsar").Set("sar", "1"),
		)
	}
	prev := "v0"
	for i, offset := range XfadeOffsets(clips, c.cfg.CrossfadeSec) {
		next := fmt.Sprintf("x%d", i+1)
		graph.Chain([]string{prev, fmt.Sprintf("v%d", i+1)}, next,
			media.NewFilter("xfade").
				Set("transition", "fade").
				Set("duration", media.Seconds(c.cfg.CrossfadeSec)).
				Set("offset", media.Seconds(offset)),
		)
		prev = next
	}
	if err := graph.Validate(); err != nil {
		return err
	}

	var args []string
	for _, clip := range clips {
		args = append(args, "-i", clip.Path)
	}
	args = append(args, "-filter_complex", graph.String(), "-map", "["+prev+"]")
	args = append(args, c.enc.VideoArgs()...)
	args = append(args, "-an", out)
	return c.ffmpeg.Run(ctx, args...)
}

func (c *Compositor) concat(ctx context.Context, clips []types.RenderedClip, dir, out string) error {
	listFile := filepath.Join(dir, "concat.txt")
	var lines []string
	for _, clip := range clips {
		abs, err := filepath.Abs(clip.Path)
		if err != nil {
			return err
		}
		lines = append(lines, "file '"+strings.ReplaceAll(abs, "'", `'\''`)+"'")
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return err
	}
	args := []string{"-f", "concat", "-safe", "0", "-i", listFile}
	args = append(args, c.enc.VideoArgs()...)
	args = append(args, "-an", out)
	return c.ffmpeg.Run(ctx, args...)
}

// MergeNarration lays the narration over the timeline and retimes the
// video by factor when given. Replace drops any timeline audio. Mix blends
// the narration with the timeline audio, which must already span the
// narration; without timeline audio it falls back to Replace.
func (c *Compositor) MergeNarration(ctx context.Context, tl *types.Timeline, narration string, mode MergeMode, factor *timing.SpeedFactor, dir string) (*types.Timeline, error) {
	if mode == Mix && !tl.HasAudio {
		c.log.Warn().Msg("⚠️  mix requested but timeline has no audio, replacing instead")
		mode = Replace
	}
	out := filepath.Join(dir, "merged.mp4")
	args := []string{"-i", tl.Path, "-i", narration}
	duration := factor.Apply(tl.Duration)

	switch mode {
	case Mix:
		graph := media.NewGraph()
		video := "0:v:0"
		if factor != nil {
			graph.Chain([]string{"0:v"}, "vout", factor.Filters(c.enc.FPS)...)
			video = "[vout]"
		}
		graph.Chain([]string{"0:a", "1:a"}, "aout",
			media.NewFilter("amix").Set("inputs", "2").Set("duration", "shortest"))
		if err := graph.Validate(); err != nil {
			return nil, err
		}
		args = append(args,
			"-filter_complex", graph.String(),
			"-map", video, "-map", "[aout]",
		)
		if factor != nil {
			args = append(args, c.enc.VideoArgs()...)
		} else {
			args = append(args, "-c:v", "copy")
		}
	default:
		args = append(args, "-map", "0:v:0", "-map", "1:a:0")
		if factor != nil {
			graph := media.NewGraph().Chain(nil, "", factor.Filters(c.enc.FPS)...)
			if err := graph.Validate(); err != nil {
				return nil, err
			}
			args = append(args, "-filter:v", graph.String())
			args = append(args, c.enc.VideoArgs()...)
		} else {
			args = append(args, "-c:v", "copy")
		}
	}
	args = append(args, "-c:a", "aac", "-b:a", "192k", "-shortest", "-movflags", "+faststart", out)

	c.log.Info().Str("mode", string(mode)).Bool("retimed", factor != nil).Msg("🔊 merging narration")
	if err := c.ffmpeg.Run(ctx, args...); err != nil {
		return nil, fmt.Errorf("merge narration: %w", err)
	}
	return &types.Timeline{
		Path:       out,
		Clips:      tl.Clips,
		Duration:   duration,
		Transition: tl.Transition,
		HasAudio:   true,
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
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
