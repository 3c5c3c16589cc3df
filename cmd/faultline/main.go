package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/faultline/faultline/internal/corpus"
	"github.com/faultline/faultline/internal/diagram"
	"github.com/faultline/faultline/internal/draft"
	"github.com/faultline/faultline/internal/engine"
	"github.com/faultline/faultline/internal/fallback"
	"github.com/faultline/faultline/internal/logging"
	"github.com/faultline/faultline/internal/nav"
	"github.com/faultline/faultline/internal/router"
	"github.com/faultline/faultline/internal/store"
	"github.com/faultline/faultline/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "faultline:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "faultline.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	compiler := diagram.NewCompiler()
	registry := corpus.NewRegistry(st, compiler, logger)
	navigator := nav.NewNavigator(registry, cfg.HistoryMax, logger)

	safety, err := router.NewSafetyRules(cfg.SafetyRules)
	if err != nil {
		return err
	}

	matcher, err := router.NewMatcher(router.OpenAIEmbeddingFunc(cfg.Backend.APIKey, ""))
	if err != nil {
		return err
	}

	// Without an API key the research backend stays off; RESEARCH degrades
	// to CLARIFY and similarity scoring returns no match.
	var generator *fallback.Generator
	if cfg.Backend.APIKey != "" {
		parser, err := fallback.NewParser()
		if err != nil {
			return err
		}
		provider := fallback.NewOpenAIProvider(cfg.Backend.APIKey, cfg.Backend.Model)
		generator = fallback.NewGenerator(provider, parser, cfg.Backend.Timeout, logger)
	} else {
		logger.Warn("no backend api key configured, research route disabled")
	}

	promoter := draft.NewPromoter(st, compiler, logger)

	svc := engine.NewService(engine.Config{
		Store:     st,
		Registry:  registry,
		Navigator: navigator,
		Matcher:   matcher,
		Safety:    safety,
		Generator: generator,
		Promoter:  promoter,
		Logger:    logger,
	})

	sweeper, err := corpus.NewSweeper(st, registry, cfg.Sweep.Schedule, cfg.Sweep.Retention, cfg.Sweep.ReviewSLA, logger)
	if err != nil {
		return err
	}
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	logger.Info("faultline starting",
		slog.String("db", cfg.DBPath),
		slog.Int("history_max", cfg.HistoryMax),
		slog.Bool("research_enabled", generator != nil))

	srv := mcp.NewFaultlineServer(svc, logger)
	return srv.Serve(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
