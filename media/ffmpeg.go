// Package media wraps the ffmpeg and ffprobe binaries the pipeline drives.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"product-promo-pipeline/config"

	"github.com/rs/zerolog"
)

// Runner executes one ffmpeg invocation
type Runner interface {
	Run(ctx context.Context, args ...string) error
}

// RenderFailure is a non-zero ffmpeg exit with the tail of its stderr
type RenderFailure struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *RenderFailure) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg: %v: %s", e.Err, e.Stderr)
}

func (e *RenderFailure) Unwrap() error { return e.Err }

// FFmpeg runs the real binary with a hard per-invocation timeout
type FFmpeg struct {
	bin     string
	timeout time.Duration
	log     zerolog.Logger
}

var _ Runner = (*FFmpeg)(nil)

func NewFFmpeg(cfg config.FFmpegConfig, logger zerolog.Logger) *FFmpeg {
	return &FFmpeg{
		bin:     cfg.Binary,
		timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		log:     logger.With().Str("component", "ffmpeg").Logger(),
	}
}

func (f *FFmpeg) Run(ctx context.Context, args ...string) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	f.log.Debug().Strs("args", full).Msg("exec")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.bin, full...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return &RenderFailure{Args: full, Stderr: tail(stderr.String(), 600), Err: err}
	}
	return nil
}

// Encoding holds the output settings shared by every rendered clip
type Encoding struct {
	Width  int
	Height int
	FPS    int
	Preset string
	CRF    int
}

func EncodingFrom(cfg *config.Config) Encoding {
	return Encoding{
		Width:  cfg.Visuals.Width,
		Height: cfg.Visuals.Height,
		FPS:    cfg.Visuals.FPS,
		Preset: cfg.FFmpeg.Preset,
		CRF:    cfg.FFmpeg.CRF,
	}
}

// VideoArgs are the H.264 output flags
func (e Encoding) VideoArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", e.Preset,
		"-crf", strconv.Itoa(e.CRF),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(e.FPS),
	}
}

// Size is the canvas as WxH
func (e Encoding) Size() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Seconds formats a duration the way every ffmpeg argument in this repo expects
func Seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
