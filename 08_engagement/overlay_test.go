package engagement

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"product-promo-pipeline/config"
	"product-promo-pipeline/media/mediatest"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const review = "So I've been using this lamp for a month. It costs $49.99 and it's worth it! " +
	"The light is warm and even. Setup took two minutes? The arm holds any angle. " +
	"Battery lasts all week. I'd buy it again."

func newOverlay(runner *mediatest.Runner, probe *mediatest.Prober) *Overlay {
	return New(runner, probe, config.Default(), rand.New(rand.NewSource(1)), zerolog.New(io.Discard))
}

func TestHook(t *testing.T) {
	o := newOverlay(nil, nil)
	for i := 0; i < 20; i++ {
		card := o.Hook("Desk Lamp")
		require.Contains(t, hookPhrases, card.Text)
		require.Equal(t, 3.0, card.Duration)
	}
}

func TestPoints_EvenlySpacedWithinVideo(t *testing.T) {
	o := newOverlay(nil, nil)
	points := o.Points(60, review)
	require.Len(t, points, 5)
	require.Equal(t, "So I've been using this lamp for a month", points[0].Text)
	require.Equal(t, "It costs $49.99 and it's worth it", points[1].Text)

	for i, p := range points {
		require.InDelta(t, 10.0*float64(i+1), p.Start, 1e-9)
		require.InDelta(t, 2.0, p.Duration, 1e-9)
		require.LessOrEqual(t, p.End(), 60.0)
		require.LessOrEqual(t, len([]rune(p.Text)), 50)
		if i > 0 {
			require.LessOrEqual(t, points[i-1].End(), p.Start)
		}
	}
}

func TestPoints_ShortVideoShrinksDuration(t *testing.T) {
	o := newOverlay(nil, nil)
	for _, total := range []float64{0.5, 3, 7.2, 11.99} {
		points := o.Points(total, review)
		for i, p := range points {
			require.LessOrEqual(t, p.End(), total+1e-9)
			if i > 0 {
				require.LessOrEqual(t, points[i-1].End(), p.Start+1e-9)
			}
		}
	}
	require.InDelta(t, 0.5, o.Points(3, review)[0].Duration, 1e-9)
}

func TestPoints_NeverPassTheEnd(t *testing.T) {
	o := newOverlay(nil, nil)
	for total := 0.0001; total <= 20; total += 0.0007 {
		points := o.Points(total, review)
		require.NotEmpty(t, points)
		for i, p := range points {
			if p.End() > total {
				t.Fatalf("total=%v point %d ends at %v", total, i, p.End())
			}
			if i > 0 && points[i-1].End() > p.Start {
				t.Fatalf("total=%v point %d overlaps the previous one", total, i)
			}
		}
	}
}

func TestPoints_Edges(t *testing.T) {
	o := newOverlay(nil, nil)
	require.Empty(t, o.Points(0, review))
	require.Empty(t, o.Points(-5, review))
	require.Empty(t, o.Points(30, "   "))

	long := strings.Repeat("word ", 30) + "end."
	points := o.Points(30, long)
	require.Len(t, points, 1)
	require.Len(t, []rune(points[0].Text), 49)
}

func TestBurnIn(t *testing.T) {
	runner := &mediatest.Runner{}
	o := newOverlay(runner, &mediatest.Prober{})
	tl := &types.Timeline{Path: "merged.mp4", Duration: 60, HasAudio: true}

	out, err := o.BurnIn(context.Background(), tl, o.Points(60, review), t.TempDir())
	require.NoError(t, err)
	require.NotEqual(t, tl.Path, out.Path)
	require.Equal(t, 1, runner.Count())

	vf := mediatest.ArgAfter(runner.Calls[0], "-vf")
	require.Equal(t, 5, strings.Count(vf, "drawtext="))
	require.Contains(t, vf, "enable='between(t,10.000,12.000)'")
	require.Contains(t, vf, `It costs $49.99 and it\\\'s worth it`)
	require.Equal(t, "copy", mediatest.ArgAfter(runner.Calls[0], "-c:a"))
}

func TestBurnIn_InvalidWindowsKeepTimeline(t *testing.T) {
	runner := &mediatest.Runner{}
	o := newOverlay(runner, &mediatest.Prober{})
	tl := &types.Timeline{Path: "merged.mp4", Duration: 10}

	out, err := o.BurnIn(context.Background(), tl, []types.OverlayPoint{
		{Text: "a", Start: 1, Duration: 2},
		{Text: "b", Start: 2, Duration: 2},
	}, t.TempDir())
	var failure *OverlayFailure
	require.ErrorAs(t, err, &failure)
	require.Same(t, tl, out)
	require.Zero(t, runner.Count())

	out, err = o.BurnIn(context.Background(), tl, []types.OverlayPoint{{Text: "late", Start: 9, Duration: 2}}, t.TempDir())
	require.Error(t, err)
	require.Same(t, tl, out)
}

func TestBurnIn_FFmpegFailureKeepsTimeline(t *testing.T) {
	runner := &mediatest.Runner{FailWhen: func([]string) bool { return true }}
	o := newOverlay(runner, &mediatest.Prober{})
	tl := &types.Timeline{Path: "merged.mp4", Duration: 60}

	out, err := o.BurnIn(context.Background(), tl, o.Points(60, review), t.TempDir())
	require.Error(t, err)
	require.Same(t, tl, out)
}

func TestCallToAction_UsesProbedDuration(t *testing.T) {
	runner := &mediatest.Runner{}
	probe := &mediatest.Prober{}
	probe.Set("points.mp4", 58.5)
	o := newOverlay(runner, probe)

	out, err := o.CallToAction(context.Background(), &types.Timeline{Path: "points.mp4", Duration: 60}, "Get Yours Now!", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 58.5, out.Duration)
	require.Contains(t, mediatest.ArgAfter(runner.Calls[0], "-vf"), "enable='between(t,53.500,58.500)'")
}

func TestCallToAction_ShortVideoStartsAtZero(t *testing.T) {
	runner := &mediatest.Runner{}
	o := newOverlay(runner, &mediatest.Prober{Err: errors.New("no ffprobe")})

	_, err := o.CallToAction(context.Background(), &types.Timeline{Path: "x.mp4", Duration: 3}, "Get Yours Now!", t.TempDir())
	require.NoError(t, err)
	require.Contains(t, mediatest.ArgAfter(runner.Calls[0], "-vf"), "between(t,0.000,3.000)")

	_, err = o.CallToAction(context.Background(), &types.Timeline{Path: "x.mp4"}, "Get Yours Now!", t.TempDir())
	require.Error(t, err)
}
