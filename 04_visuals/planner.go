package visuals

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"product-promo-pipeline/config"
	"product-promo-pipeline/types"
)

// ParsePattern expands a unit such as "VVVVI" repeat times into slot kinds
func ParsePattern(unit string, repeat int) ([]types.SlotKind, error) {
	unit = strings.ToUpper(strings.TrimSpace(unit))
	if unit == "" {
		return nil, fmt.Errorf("visuals: empty pattern")
	}
	if repeat < 1 {
		repeat = 1
	}
	kinds := make([]types.SlotKind, 0, len(unit)*repeat)
	for r := 0; r < repeat; r++ {
		for _, c := range unit {
			switch c {
			case 'V':
				kinds = append(kinds, types.Video)
			case 'I':
				kinds = append(kinds, types.Image)
			default:
				return nil, fmt.Errorf("visuals: unknown pattern symbol %q in %q", c, unit)
			}
		}
	}
	return kinds, nil
}

// Planner lays the visual pattern out against the narration length
type Planner struct {
	cfg config.VisualsConfig
	rnd *rand.Rand
}

// NewPlanner uses rnd for jitter. A nil rnd is seeded from the clock.
func NewPlanner(cfg config.VisualsConfig, rnd *rand.Rand) *Planner {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, rnd: rnd}
}

// Demand counts the video and image slots in a pattern
func (p *Planner) Demand(pattern []types.SlotKind) (videos, images int) {
	for _, k := range pattern {
		if k == types.Video {
			videos++
		} else {
			images++
		}
	}
	return videos, images
}

// BaseDuration is the per-slot length before jitter
func (p *Planner) BaseDuration(total float64, slots int) float64 {
	if total <= 0 || math.IsNaN(total) || slots <= 0 {
		return p.cfg.DefaultSegmentSec
	}
	return clamp(total/float64(slots), p.cfg.MinSegmentSec, p.cfg.MaxSegmentSec)
}

// Plan walks the pattern in order and takes the next file from the matching
// pool. When a pool runs dry its slots are skipped, never substituted.
func (p *Planner) Plan(pattern []types.SlotKind, videos, images int, total float64) []types.SegmentSlot {
	base := p.BaseDuration(total, len(pattern))
	var (
		slots     []types.SegmentSlot
		nextVideo int
		nextImage int
	)
	for i, kind := range pattern {
		var pool int
		switch kind {
		case types.Video:
			if nextVideo >= videos {
				continue
			}
			pool = nextVideo
			nextVideo++
		case types.Image:
			if nextImage >= images {
				continue
			}
			pool = nextImage
			nextImage++
		default:
			continue
		}
		slots = append(slots, types.SegmentSlot{
			Index:           i,
			Kind:            kind,
			PlannedDuration: p.jitter(base),
			PoolIndex:       pool,
		})
	}
	return slots
}

func (p *Planner) jitter(base float64) float64 {
	offset := (p.rnd.Float64()*2 - 1) * p.cfg.JitterSec
	return clamp(base+offset, p.cfg.MinSegmentSec, p.cfg.JitterCeilingSec)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
