package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("SCREENER_API_KEY", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Empty(t, cfg.GeminiAPIKey, "secrets have no literal defaults")
	assert.Empty(t, cfg.APIKey, "secrets have no literal defaults")
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-2.0-flash"}, cfg.GeminiModels)
	assert.Equal(t, "http://127.0.0.1:9090/v1/analyze", cfg.AnalyzeURL)
	assert.Equal(t, "http://127.0.0.1:9090/v1/proxy/analyze", cfg.ProxyURL)
	assert.Equal(t, 1, cfg.ScreenConcurrency)
	assert.Equal(t, 1600, cfg.MaxImageDimension)
	assert.Equal(t, CriteriaBackendFile, cfg.CriteriaBackend)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("GEMINI_MODELS", "m1")
	t.Setenv("SCREEN_CONCURRENCY", "3")
	t.Setenv("REQUEST_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"m1"}, cfg.GeminiModels)
	assert.Equal(t, 3, cfg.ScreenConcurrency)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"zero concurrency": {"SCREEN_CONCURRENCY", "0"},
		"bad int":          {"MAX_IMAGE_DIMENSION", "big"},
		"bad duration":     {"REQUEST_TIMEOUT", "soon"},
		"unknown backend":  {"CRITERIA_BACKEND", "redis"},
		"postgres no dsn":  {"CRITERIA_BACKEND", "postgres"},
		"bad log format":   {"LOG_FORMAT", "xml"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)
}
