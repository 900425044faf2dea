package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"product-promo-pipeline/config"

	"github.com/rs/zerolog"
)

// Command runs a local TTS program. Transient exec failures are retried
// with a growing pause; the attempt context bounds the whole thing.
type Command struct {
	name    string
	argv    func(text, out string) (string, []string)
	retries int
	pause   time.Duration
	log     zerolog.Logger
}

var _ Provider = (*Command)(nil)

// NewEdgeTTS speaks through Microsoft's free edge-tts CLI
func NewEdgeTTS(cfg config.AudioConfig, logger zerolog.Logger) *Command {
	voice := cfg.Voice
	return &Command{
		name: "edge-tts",
		argv: func(text, out string) (string, []string) {
			return "edge-tts", []string{"--voice", voice, "--text", text, "--write-media", out}
		},
		retries: cfg.CommandRetries,
		pause:   2 * time.Second,
		log:     logger.With().Str("component", "audio").Logger(),
	}
}

// NewCommand runs a user-supplied program taking --text and --output
func NewCommand(cfg config.AudioConfig, logger zerolog.Logger) *Command {
	bin := strings.TrimSpace(cfg.Command)
	return &Command{
		name: "command",
		argv: func(text, out string) (string, []string) {
			if strings.HasSuffix(bin, ".py") {
				return "python3", []string{bin, "--text", text, "--output", out}
			}
			return bin, []string{"--text", text, "--output", out}
		},
		retries: cfg.CommandRetries,
		pause:   2 * time.Second,
		log:     logger.With().Str("component", "audio").Logger(),
	}
}

func (c *Command) Name() string { return c.name }

func (c *Command) Resolve(ctx context.Context, r Request) (string, error) {
	out := outPath(r.Dir, ".mp3")
	bin, args := c.argv(r.Text, out)
	if _, err := exec.LookPath(bin); err != nil {
		return "", fmt.Errorf("%s not available: %w", bin, err)
	}

	attempts := c.retries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, bin, args...)
		cmd.Stderr = &stderr
		if err = cmd.Run(); err == nil {
			if fi, statErr := os.Stat(out); statErr != nil || fi.Size() == 0 {
				err = fmt.Errorf("%s produced no audio", c.name)
			} else {
				return out, nil
			}
		} else {
			err = fmt.Errorf("%s: %w: %s", c.name, err, strings.TrimSpace(stderr.String()))
		}
		if ctx.Err() != nil || attempt == attempts {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("TTS attempt failed, retrying")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * c.pause):
		}
	}
	return "", err
}
