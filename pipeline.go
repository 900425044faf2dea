package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"product-promo-pipeline/chain"
	"product-promo-pipeline/config"
	"product-promo-pipeline/media"
	"product-promo-pipeline/orchestrator"
	"product-promo-pipeline/scheduler"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to config.yaml")
		product    = flag.String("product", "", "Product to make a video for (default: first line of the products file)")
		keywords   = flag.String("keywords", "", "Comma separated search keywords for the product")
		batch      = flag.Bool("batch", false, "Make one video per line of the products file")
		cronSpec   = flag.String("cron", "", "Run the batch on this cron schedule (overrides schedule.cron)")
		serve      = flag.Bool("schedule", false, "Run the batch on schedule.cron until interrupted")
		logLevel   = flag.String("log-level", "info", "Log level (debug|info|warn|error)")
	)
	flag.Parse()

	// Load .env for local dev; CI injects secrets as env vars
	_ = godotenv.Load()

	logger := newLogger(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("config", *configPath).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ffmpeg := media.NewFFmpeg(cfg.FFmpeg, logger)
	registry := chain.NewRegistry()
	chains, err := orchestrator.BuildChains(cfg, ffmpeg, registry, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build provider chains")
	}
	pipeline := orchestrator.New(cfg, chains, ffmpeg, media.NewFFprobe(cfg.FFmpeg), orchestrator.Options{}, logger)

	if *cronSpec != "" {
		cfg.Schedule.Cron = *cronSpec
		*serve = true
	}

	switch {
	case *serve:
		if cfg.Schedule.Cron == "" {
			logger.Fatal().Msg("no cron schedule: set schedule.cron or pass -cron")
		}
		s, err := scheduler.New(cfg.Schedule.Cron, cfg.Schedule.ProductsFile, pipeline, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid schedule")
		}
		s.Start(ctx)

	case *batch:
		reqs, err := scheduler.ReadProducts(cfg.Schedule.ProductsFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.Schedule.ProductsFile).Msg("could not read products")
		}
		if len(reqs) == 0 {
			logger.Fatal().Str("file", cfg.Schedule.ProductsFile).Msg("no products to process")
		}
		sum := scheduler.RunBatch(ctx, pipeline, reqs, logger)
		if len(sum.Succeeded) == 0 {
			os.Exit(1)
		}

	default:
		req := orchestrator.Request{
			Product:  strings.TrimSpace(*product),
			Keywords: splitKeywords(*keywords),
		}
		if req.Product == "" {
			reqs, err := scheduler.ReadProducts(cfg.Schedule.ProductsFile)
			if err != nil || len(reqs) == 0 {
				logger.Fatal().Err(err).Msg("no product given: pass -product or add one to the products file")
			}
			req = reqs[0]
		}
		state, err := pipeline.Run(ctx, req)
		if err != nil {
			var stageErr *orchestrator.StageError
			if errors.As(err, &stageErr) {
				logger.Error().Str("stage", string(stageErr.Stage)).Msg("run stopped")
			}
			os.Exit(1)
		}
		logger.Info().
			Str("video", state.VideoFile).
			Strs("warnings", state.Warnings).
			Interface("providers", registry.Snapshot()).
			Msg("🎉 done")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()
}

func splitKeywords(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(k string, _ int) string {
		return strings.TrimSpace(k)
	}))
}
