package screen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/util"
)

var analysesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "screener_analyses_total",
		Help: "Model calls made by the analysis gateway, by model and outcome.",
	},
	[]string{"model", "outcome"},
)

// Engine - низкоуровневый вызов AI-сервиса: картинка + инструкция -> сырой текст ответа.
type Engine interface {
	Name() string
	Generate(ctx context.Context, model string, image []byte, mime, prompt string) (string, error)
}

// Analyzer перебирает модели по порядку и возвращает первый корректный вердикт.
type Analyzer struct {
	engine Engine
	models []string
	logger *zap.Logger
}

func NewAnalyzer(engine Engine, models []string, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		engine: engine,
		models: append([]string(nil), models...),
		logger: logger.Named("analyzer"),
	}
}

func (a *Analyzer) Models() []string { return append([]string(nil), a.models...) }

// Analyze возвращает вердикт по картинке и набору критериев.
// Если все модели отказали, возвращается последняя ошибка, обёрнутая в ErrUpstream.
func (a *Analyzer) Analyze(ctx context.Context, image []byte, mime string, set criteria.Set) (Result, string, error) {
	if len(a.models) == 0 {
		return Result{}, "", fmt.Errorf("%w: no models configured", ErrUpstream)
	}
	prompt := BuildPrompt(set)

	var lastErr error
	for _, model := range a.models {
		if err := ctx.Err(); err != nil {
			return Result{}, "", err
		}
		txt, err := a.engine.Generate(ctx, model, image, mime, prompt)
		if errors.Is(err, ErrNotConfigured) {
			return Result{}, "", err
		}
		if err == nil {
			var res Result
			res, err = ParseResult(txt)
			if err == nil {
				analysesTotal.WithLabelValues(model, strings.ToLower(string(res.Status))).Inc()
				return res, model, nil
			}
		}
		analysesTotal.WithLabelValues(model, "error").Inc()
		a.logger.Warn("model attempt failed", zap.String("engine", a.engine.Name()), zap.String("model", model), zap.Error(err))
		lastErr = fmt.Errorf("%s: %w", model, err)
	}
	return Result{}, "", fmt.Errorf("%w: %w", ErrUpstream, lastErr)
}

// ParseResult разбирает JSON-ответ модели; пустой или некорректный ответ - ErrMalformed.
func ParseResult(txt string) (Result, error) {
	txt = util.StripCodeFences(txt)
	if txt == "" {
		return Result{}, fmt.Errorf("%w: empty response", ErrMalformed)
	}
	var r Result
	if err := json.Unmarshal([]byte(txt), &r); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r.normalize()
}
