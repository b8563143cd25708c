package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"photo-screener/api/internal/app"
	"photo-screener/api/internal/config"
	"photo-screener/api/internal/export"
	"photo-screener/api/internal/gateway"
	"photo-screener/api/internal/httpserver"
	"photo-screener/api/internal/orchestrator"
	"photo-screener/api/internal/telegram"
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

	if cfg.TelegramBotToken == "" {
		logger.Fatal("TELEGRAM_BOT_TOKEN is not set")
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal("bot stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return err
	}
	bot.Debug = false
	logger.Info("telegram authorized", zap.String("bot", bot.Self.UserName))

	// бот обращается к шлюзу анализа напрямую, с общим секретом
	analyzer := gateway.New(cfg.AnalyzeURL, cfg.APIKey, cfg.RequestTimeout)
	opts := orchestrator.Options{Concurrency: cfg.ScreenConcurrency, MaxDimension: cfg.MaxImageDimension}

	r := &telegram.Router{
		Bot:      bot,
		Criteria: backend.Criteria,
		Composer: export.NewComposer(8, time.Hour, logger),
		Logos:    export.ParseSources(cfg.LogoSources, 10*time.Second),
		Logger:   logger.Named("telegram"),
		NewWorkspace: func(chatID int64) *orchestrator.Workspace {
			return orchestrator.New(analyzer, backend.Criteria, opts, logger.With(zap.Int64("chat_id", chatID)))
		},
	}
	d := telegram.NewDispatcher(r.HandleUpdate, 10*time.Minute)
	defer d.Wait()

	router := httpserver.NewRouter(logger, "ok")
	router.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if backend.DB != nil {
			pingCtx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := backend.DB.PingContext(pingCtx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := "0.0.0.0:" + cfg.Port
	g, gctx := errgroup.WithContext(ctx)

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		if err := startWebhookMode(gctx, bot, router, webhookURL, d, logger); err != nil {
			return err
		}
	} else {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			logger.Warn("delete webhook failed", zap.Error(err))
		}
		g.Go(func() error {
			runPolling(gctx, bot, d, logger)
			return nil
		})
	}

	g.Go(func() error {
		return httpserver.New(addr, router, logger).Run(gctx, cfg.ShutdownTimeout)
	})
	return g.Wait()
}

// ---------------- Modes -----------------

func startWebhookMode(ctx context.Context, bot *tgbotapi.BotAPI, router chi.Router, baseURL string, d *telegram.Dispatcher, logger *zap.Logger) error {
	// секретный путь вебхука
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}

	router.Post(path, func(w http.ResponseWriter, req *http.Request) {
		upd, err := bot.HandleUpdate(req)
		if err != nil {
			logger.Warn("bad webhook update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		d.Dispatch(ctx, *upd)
		w.WriteHeader(http.StatusOK)
	})
	logger.Info("webhook registered", zap.String("path", path))
	return nil
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") { // HTTP 429 от Telegram
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return 2 * time.Second
		}
	}
	return 1 * time.Second
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, d *telegram.Dispatcher, logger *zap.Logger) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		if ctx.Err() != nil {
			logger.Info("polling: context cancelled")
			return
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30 // long polling timeout (sec)

		updates, err := bot.GetUpdates(u)
		if err != nil {
			delay := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			logger.Warn("polling error", zap.Error(err), zap.Duration("retry_in", delay))
			sleep(ctx, delay)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			d.Dispatch(ctx, upd)
		}

		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ---------------- Helpers -----------------

func shortHash(s string) string {
	// лёгкий хэш для пути вебхука (не крипто, но стабильно для токена)
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	// 16-символный hex
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
