package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"product-promo-pipeline/config"
)

// Prober measures media duration in seconds
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFprobe asks ffprobe for the container duration
type FFprobe struct {
	bin     string
	timeout time.Duration
}

var _ Prober = (*FFprobe)(nil)

func NewFFprobe(cfg config.FFmpegConfig) *FFprobe {
	return &FFprobe{bin: cfg.Probe, timeout: 30 * time.Second}
}

func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, p.bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return ParseDuration(string(out))
}

// ParseDuration reads ffprobe's bare duration output
func ParseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("no duration reported")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("non-positive duration %v", d)
	}
	return d, nil
}
