package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"product-promo-pipeline/config"
	"product-promo-pipeline/media"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
)

// ErrNoTrack means no music file matches the requested style
var ErrNoTrack = errors.New("no background track available")

// Bed lays a looped, faded music track under a silent timeline so the
// narration can be mixed over it.
type Bed struct {
	ffmpeg media.Runner
	cfg    config.MusicConfig
	dir    string
	tags   map[string][]string // music filename → style tags
	log    zerolog.Logger
}

func New(ffmpeg media.Runner, cfg *config.Config, logger zerolog.Logger) *Bed {
	return &Bed{
		ffmpeg: ffmpeg,
		cfg:    cfg.Music,
		dir:    cfg.Paths.AssetsMusic,
		tags:   loadMusicTags(cfg.Paths.MusicTags),
		log:    logger.With().Str("component", "music").Logger(),
	}
}

// Pick returns the track for a style: a tagged file first, then
// <style>.mp3 in the music dir, then any tagged file.
func (b *Bed) Pick(style string) (string, error) {
	style = strings.ToLower(strings.TrimSpace(style))
	files := make([]string, 0, len(b.tags))
	for f := range b.tags {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, f := range files {
		for _, tag := range b.tags[f] {
			if strings.ToLower(tag) == style {
				if p := filepath.Join(b.dir, f); exists(p) {
					return p, nil
				}
			}
		}
	}
	if style != "" {
		if p := filepath.Join(b.dir, style+".mp3"); exists(p) {
			return p, nil
		}
	}
	for _, f := range files {
		if p := filepath.Join(b.dir, f); exists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w for style %q", ErrNoTrack, style)
}

// Apply returns a copy of tl with the music bed as its audio track. The bed
// lasts length seconds so it spans the narration even when the video is
// retimed later; length <= 0 means the timeline length.
func (b *Bed) Apply(ctx context.Context, tl *types.Timeline, length float64, dir string) (*types.Timeline, error) {
	track, err := b.Pick(b.cfg.Style)
	if err != nil {
		return nil, err
	}
	d := length
	if d <= 0 {
		d = tl.Duration
	}
	filters := []*media.Filter{
		media.NewFilter("volume").Set("volume", fmt.Sprintf("%.2f", b.cfg.Volume)),
	}
	if fade := b.cfg.FadeSec; fade > 0 && d > 2*fade {
		filters = append(filters,
			media.NewFilter("afade").Set("t", "in").Set("st", "0").Set("d", media.Seconds(fade)),
			media.NewFilter("afade").Set("t", "out").Set("st", media.Seconds(d-fade)).Set("d", media.Seconds(fade)),
		)
	}
	graph := media.NewGraph().Chain([]string{"1:a"}, "bed", filters...)
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	out := filepath.Join(dir, "timeline_music.mp4")
	err = b.ffmpeg.Run(ctx,
		"-i", tl.Path,
		"-stream_loop", "-1",
		"-i", track,
		"-filter_complex", graph.String(),
		"-map", "0:v:0",
		"-map", "[bed]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-t", media.Seconds(d),
		out,
	)
	if err != nil {
		return nil, fmt.Errorf("lay music bed: %w", err)
	}
	b.log.Info().Str("track", filepath.Base(track)).Str("style", b.cfg.Style).Msg("🎵 music bed added")

	next := *tl
	next.Path = out
	next.HasAudio = true
	return &next, nil
}

func loadMusicTags(path string) map[string][]string {
	tags := make(map[string][]string)
	data, err := os.ReadFile(path)
	if err != nil {
		return tags
	}
	_ = json.Unmarshal(data, &tags)
	return tags
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
