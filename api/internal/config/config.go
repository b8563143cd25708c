package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"photo-screener/api/internal/util"
)

// Заголовок, которым прокси и бот подписывают запросы к шлюзу анализа.
const APIKeyHeader = "x-screener-api-key"

const (
	CriteriaBackendFile     = "file"
	CriteriaBackendPostgres = "postgres"
)

type Config struct {
	Port string

	LogLevel  string
	LogFormat string

	// Секреты: без значений по умолчанию, проверяются в обработчиках (fail closed).
	GeminiAPIKey string
	APIKey       string

	GeminiModels []string

	// Куда прокси пересылает запрос, и куда рабочее пространство шлёт фото.
	AnalyzeURL string
	ProxyURL   string

	AllowedOrigins []string

	CriteriaBackend string
	CriteriaFile    string
	DatabaseURL     string

	MaxImageDimension int
	ScreenConcurrency int
	LogoSources       []string

	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration

	TelegramBotToken string
	WebhookURL       string
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: bad integer %q", k, v)
	}
	return n, nil
}

func getEnvDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: bad duration %q", k, v)
	}
	return d, nil
}

func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8000"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		APIKey:       strings.TrimSpace(os.Getenv("SCREENER_API_KEY")),

		GeminiModels:   util.SplitList(getEnv("GEMINI_MODELS", "gemini-2.5-flash,gemini-2.0-flash")),
		AllowedOrigins: util.SplitList(os.Getenv("ALLOWED_ORIGINS")),

		CriteriaBackend: strings.ToLower(getEnv("CRITERIA_BACKEND", CriteriaBackendFile)),
		CriteriaFile:    getEnv("CRITERIA_FILE", "screening_criteria.json"),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),

		LogoSources: util.SplitList(getEnv("LOGO_SOURCES", "assets/logo.png")),

		TelegramBotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		WebhookURL:       strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
	}

	local := "http://127.0.0.1:" + cfg.Port
	cfg.AnalyzeURL = getEnv("ANALYZE_URL", local+"/v1/analyze")
	cfg.ProxyURL = getEnv("PROXY_URL", local+"/v1/proxy/analyze")

	var err error
	if cfg.MaxImageDimension, err = getEnvInt("MAX_IMAGE_DIMENSION", 1600); err != nil {
		return nil, err
	}
	if cfg.ScreenConcurrency, err = getEnvInt("SCREEN_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	maxBody, err := getEnvInt("MAX_BODY_BYTES", 25<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxBodyBytes = int64(maxBody)
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ScreenConcurrency < 1 {
		return fmt.Errorf("SCREEN_CONCURRENCY must be >= 1, got %d", c.ScreenConcurrency)
	}
	if c.MaxImageDimension < 0 {
		return fmt.Errorf("MAX_IMAGE_DIMENSION must be >= 0, got %d", c.MaxImageDimension)
	}
	if len(c.GeminiModels) == 0 {
		return fmt.Errorf("GEMINI_MODELS is empty")
	}
	switch c.CriteriaBackend {
	case CriteriaBackendFile:
	case CriteriaBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("CRITERIA_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("CRITERIA_BACKEND: unknown backend %q (file|postgres)", c.CriteriaBackend)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT: unknown format %q (json|console)", c.LogFormat)
	}
	return nil
}

// NewLogger строит zap-логгер по LOG_LEVEL / LOG_FORMAT.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
