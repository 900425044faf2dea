// Package orchestrator runs one product through every pipeline stage in a
// fixed order and keeps the run record.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"product-promo-pipeline/10_upload"
	"product-promo-pipeline/config"
	"product-promo-pipeline/media"
	"product-promo-pipeline/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stage names one step of a run
type Stage string

const (
	FetchContext   Stage = "FetchContext"
	PlanAudio      Stage = "PlanAudio"
	PlanVisuals    Stage = "PlanVisuals"
	ResolveAssets  Stage = "ResolveAssets"
	RenderSegments Stage = "RenderSegments"
	Synchronize    Stage = "Synchronize"
	Composite      Stage = "Composite"
	Overlay        Stage = "Overlay"
	Finalize       Stage = "Finalize"
)

// StageError is the error a run fails with
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Request is one product to make a video for
type Request struct {
	Product  string
	Keywords []string
}

// Publisher uploads the finished video
type Publisher interface {
	Enabled() bool
	Run(ctx context.Context, videoFile string, meta *types.VideoMetadata) (*upload.Result, error)
}

// Options are the optional collaborators of an Orchestrator
type Options struct {
	// Rand drives segment jitter and hook choice. Nil seeds from the clock.
	Rand      *rand.Rand
	Publisher Publisher
	Now       func() time.Time
}

type Orchestrator struct {
	cfg    *config.Config
	chains *Chains
	ffmpeg media.Runner
	probe  media.Prober
	opts   Options
	log    zerolog.Logger
}

func New(cfg *config.Config, chains *Chains, ffmpeg media.Runner, probe media.Prober, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Publisher == nil {
		opts.Publisher = upload.New(cfg, logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		cfg:    cfg,
		chains: chains,
		ffmpeg: ffmpeg,
		probe:  probe,
		opts:   opts,
		log:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run produces one video. The returned state is never nil once the run has
// started, even on failure; its JSON copy is written to the logs dir. The
// per-run working dir is removed before Run returns unless run.keep_work_dir
// is set.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*types.PipelineState, error) {
	req.Product = strings.TrimSpace(req.Product)
	if req.Product == "" {
		return nil, errors.New("product name is required")
	}
	if o.chains == nil || o.chains.Content == nil || o.chains.Narration == nil {
		return nil, errors.New("content and narration chains are required")
	}

	runID := uuid.NewString()
	state := &types.PipelineState{
		RunID:     runID,
		Product:   req.Product,
		StartedAt: o.opts.Now().UTC().Format(time.RFC3339),
	}
	r := newRun(o, req, state)

	r.log.Info().Str("work_dir", r.dir).Msg("🎬 pipeline starting")
	err := r.execute(ctx)

	state.CompletedAt = o.opts.Now().UTC().Format(time.RFC3339)
	if err != nil {
		state.Error = err.Error()
		r.log.Error().Err(err).Msg("❌ pipeline failed")
	} else {
		r.log.Info().Str("video", state.VideoFile).Msg("✅ pipeline complete")
	}
	o.saveState(state)
	return state, err
}

func (r *run) execute(ctx context.Context) error {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return &StageError{Stage: FetchContext, Err: fmt.Errorf("create work dir: %w", err)}
	}
	defer r.cleanup()

	steps := []struct {
		stage Stage
		fn    func(context.Context) error
	}{
		{FetchContext, r.fetchContext},
		{PlanAudio, r.planAudio},
		{PlanVisuals, r.planVisuals},
		{ResolveAssets, r.resolveAssets},
		{RenderSegments, r.renderSegments},
		{Synchronize, r.synchronize},
		{Composite, r.composite},
		{Overlay, r.overlay},
		{Finalize, r.finalize},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: s.stage, Err: err}
		}
		r.state.Stage = string(s.stage)
		r.log.Info().Msgf("━━━ %s ━━━", s.stage)
		if err := s.fn(ctx); err != nil {
			return &StageError{Stage: s.stage, Err: err}
		}
	}
	return nil
}

func (r *run) cleanup() {
	if r.o.cfg.Run.KeepWorkDir {
		r.log.Info().Str("work_dir", r.dir).Msg("keeping work dir")
		return
	}
	if err := os.RemoveAll(r.dir); err != nil {
		r.log.Warn().Err(err).Str("work_dir", r.dir).Msg("could not remove work dir")
	}
}

// warn logs a non-fatal problem and records it on the run state. Safe for
// concurrent use.
func (r *run) warn(err error, msg string) {
	r.log.Warn().Err(err).Msg("⚠️  " + msg)
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	r.mu.Lock()
	r.state.Warn(msg)
	r.mu.Unlock()
}

func (o *Orchestrator) saveState(state *types.PipelineState) {
	dir := o.cfg.Paths.Logs
	if err := os.MkdirAll(dir, 0755); err != nil {
		o.log.Warn().Err(err).Msg("could not create logs dir")
		return
	}
	saveJSON(filepath.Join(dir, "pipeline_state_"+state.RunID+".json"), state, o.log)
}

func saveJSON(path string, v interface{}, log zerolog.Logger) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not marshal JSON")
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not save JSON")
	}
}
