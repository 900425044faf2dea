// Package timing reconciles the visual timeline length with the narration.
package timing

import (
	"fmt"
	"math"
	"strconv"

	"product-promo-pipeline/config"
	"product-promo-pipeline/media"
)

// SyncAnomaly means the narration length is unusable for alignment
type SyncAnomaly struct {
	Visual    float64
	Narration float64
}

func (e *SyncAnomaly) Error() string {
	return fmt.Sprintf("sync anomaly: narration duration %v (visual %s s)", e.Narration, media.Seconds(e.Visual))
}

// SpeedFactor is the playback rate applied to the video track. A ratio
// above 1 speeds the visuals up.
type SpeedFactor struct {
	Ratio   float64 `json:"ratio"`
	Extreme bool    `json:"extreme"`
}

// Filters remaps video timestamps so a track of length v lasts v/Ratio
func (f *SpeedFactor) Filters(fps int) []*media.Filter {
	return []*media.Filter{
		media.NewFilter("setpts").Set("expr", "PTS/"+strconv.FormatFloat(f.Ratio, 'f', 6, 64)),
		media.NewFilter("fps").Set("fps", strconv.Itoa(fps)),
	}
}

// Apply is the retimed length of a track of length d
func (f *SpeedFactor) Apply(d float64) float64 {
	if f == nil || f.Ratio <= 0 {
		return d
	}
	return d / f.Ratio
}

// Synchronizer decides whether the visuals need retiming
type Synchronizer struct {
	tolerance   float64
	extremeLow  float64
	extremeHigh float64
}

func New(cfg config.SyncConfig) *Synchronizer {
	return &Synchronizer{
		tolerance:   cfg.ToleranceSec,
		extremeLow:  cfg.ExtremeLow,
		extremeHigh: cfg.ExtremeHigh,
	}
}

// Align compares visual length v with narration length n. Within tolerance
// it returns no factor. The ratio is never clamped; ratios outside the
// extreme bounds are flagged for the caller to report.
func (s *Synchronizer) Align(v, n float64) (*SpeedFactor, error) {
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, &SyncAnomaly{Visual: v, Narration: n}
	}
	if math.Abs(v-n) <= s.tolerance {
		return nil, nil
	}
	ratio := v / n
	return &SpeedFactor{
		Ratio:   ratio,
		Extreme: ratio < s.extremeLow || ratio > s.extremeHigh,
	}, nil
}
