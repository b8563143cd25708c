package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"photo-screener/api/internal/app"
	"photo-screener/api/internal/config"
	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/export"
	"photo-screener/api/internal/gateway"
	"photo-screener/api/internal/handle"
	"photo-screener/api/internal/httpserver"
	"photo-screener/api/internal/live"
	"photo-screener/api/internal/orchestrator"
	"photo-screener/api/internal/screen"
	"photo-screener/api/internal/screen/gemini"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("screener-gateway stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set, /v1/analyze will answer 500")
	}
	if cfg.APIKey == "" {
		logger.Warn("SCREENER_API_KEY is not set, /v1/analyze and the proxy will answer 500")
	}

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	analyzer := screen.NewAnalyzer(gemini.New(cfg.GeminiAPIKey), cfg.GeminiModels, logger)
	forwarder := gateway.New(cfg.AnalyzeURL, cfg.APIKey, cfg.RequestTimeout)

	// рабочее пространство ходит в собственный прокси, как браузерный клиент
	ws := orchestrator.New(
		gateway.New(cfg.ProxyURL, "", cfg.RequestTimeout),
		backend.Criteria,
		orchestrator.Options{Concurrency: cfg.ScreenConcurrency, MaxDimension: cfg.MaxImageDimension},
		logger,
	)

	deps := handle.Deps{
		Config:     cfg,
		Analyzer:   analyzer,
		Forwarder:  forwarder,
		Criteria:   backend.Criteria,
		Workspace:  ws,
		Composer:   export.NewComposer(8, time.Hour, logger),
		Logos:      export.ParseSources(cfg.LogoSources, 10*time.Second),
		Background: ctx,
		Logger:     logger,
	}
	if repo := backend.Screenings(); repo != nil {
		deps.Audit = repo
	}

	// хаб создаётся до handle, проверка Origin берёт ту же политику
	origins := handle.NewOriginPolicy(cfg.AllowedOrigins)
	hub := live.NewHub(origins.CheckOrigin, logger)
	go hub.Run(ctx)
	deps.Hub = hub

	unsubCriteria := backend.Criteria.Subscribe(func(set criteria.Set) {
		hub.Publish(live.TopicCriteria, "criteria.updated", set)
	})
	defer unsubCriteria()
	unsubPhotos := ws.Subscribe(func(ev orchestrator.Event) {
		hub.Publish(live.TopicPhotos, ev.Type, ev)
	})
	defer unsubPhotos()

	h := handle.New(deps)
	r := httpserver.NewRouter(logger, "ok")
	h.Register(r)

	logger.Info("screener-gateway starting",
		zap.String("port", cfg.Port),
		zap.Strings("models", cfg.GeminiModels),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Int("concurrency", cfg.ScreenConcurrency),
	)
	return httpserver.New(":"+cfg.Port, r, logger).Run(ctx, cfg.ShutdownTimeout)
}
