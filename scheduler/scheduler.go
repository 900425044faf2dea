// Package scheduler runs the pipeline over a list of products, once or on
// a cron schedule.
package scheduler

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"product-promo-pipeline/orchestrator"
	"product-promo-pipeline/types"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Runner makes one video
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*types.PipelineState, error)
}

// ReadProducts parses a products file. Each non-empty line is a product
// name, optionally followed by "|" and comma separated keywords. Lines
// starting with # are ignored.
func ReadProducts(path string) ([]orchestrator.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reqs []orchestrator.Request
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, kw, _ := strings.Cut(line, "|")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		keywords := lo.Compact(lo.Map(strings.Split(kw, ","), func(k string, _ int) string {
			return strings.TrimSpace(k)
		}))
		reqs = append(reqs, orchestrator.Request{Product: name, Keywords: keywords})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return reqs, nil
}

// Summary is the outcome of one batch
type Summary struct {
	Succeeded []string
	Failed    map[string]error
}

// RunBatch makes one video per request, in order. A failed product is
// logged and the batch moves on; cancellation stops the batch.
func RunBatch(ctx context.Context, runner Runner, reqs []orchestrator.Request, logger zerolog.Logger) Summary {
	sum := Summary{Failed: make(map[string]error)}
	for i, req := range reqs {
		if ctx.Err() != nil {
			logger.Warn().Int("remaining", len(reqs)-i).Msg("batch cancelled")
			break
		}
		logger.Info().Str("product", req.Product).Int("n", i+1).Int("of", len(reqs)).Msg("📦 processing product")
		state, err := runner.Run(ctx, req)
		if err != nil {
			logger.Error().Err(err).Str("product", req.Product).Msg("❌ product failed, continuing")
			sum.Failed[req.Product] = err
			continue
		}
		logger.Info().Str("product", req.Product).Str("video", state.VideoFile).Msg("✅ product done")
		sum.Succeeded = append(sum.Succeeded, req.Product)
	}
	logger.Info().Int("succeeded", len(sum.Succeeded)).Int("failed", len(sum.Failed)).Msg("batch finished")
	return sum
}

// Scheduler re-reads the products file and runs the batch on every cron tick
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	products string
	ctx      context.Context
	log      zerolog.Logger
}

// New registers the batch under a standard five-field cron spec (or a
// descriptor such as "@daily"). A tick that fires while the previous batch
// is still running is skipped.
func New(spec, productsFile string, runner Runner, logger zerolog.Logger) (*Scheduler, error) {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger}
	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner:   runner,
		products: productsFile,
		ctx:      context.Background(),
		log:      logger,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule until ctx is done, then waits for a running
// batch to notice the cancellation and return.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info().Time("next", e.Next).Msg("⏰ scheduler started")
	}
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) tick() {
	reqs, err := ReadProducts(s.products)
	if err != nil {
		s.log.Error().Err(err).Str("file", s.products).Msg("could not read products")
		return
	}
	if len(reqs) == 0 {
		s.log.Warn().Str("file", s.products).Msg("no products to process")
		return
	}
	RunBatch(s.ctx, s.runner, reqs, s.log)
}

// cronLogger adapts zerolog to cron's logger interface
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
