package handle

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"photo-screener/api/internal/config"
	"photo-screener/api/internal/screen"
	"photo-screener/api/internal/util"
)

func encodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// Analyze - шлюз анализа: проверяет общий секрет, тело запроса и вызывает AI-сервис.
func (h *Handle) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if h.cfg.APIKey == "" {
		h.logger.Error("SCREENER_API_KEY is not configured, rejecting analysis request")
		writeError(w, http.StatusInternalServerError, "server is not configured")
		return
	}
	got := r.Header.Get(config.APIKeyHeader)
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.APIKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := h.decodeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	res, model, err := h.analyzer.Analyze(ctx, req.image, req.mime, req.set)
	if err != nil {
		if errors.Is(err, screen.ErrNotConfigured) {
			h.logger.Error("GEMINI_API_KEY is not configured")
			writeError(w, http.StatusInternalServerError, "AI service is not configured")
			return
		}
		h.logger.Warn("analysis failed", zap.Int("image_bytes", len(req.image)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "analysis failed: "+util.Truncate(err.Error(), 300))
		return
	}

	if h.audit != nil {
		actx, acancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		if err := h.audit.Record(actx, req.image, model, req.set, res); err != nil {
			h.logger.Warn("audit record failed", zap.Error(err))
		}
		acancel()
	}

	h.logger.Info("analysis done",
		zap.String("model", model),
		zap.String("status", string(res.Status)),
		zap.Int("reasons", len(res.Reasons)),
		zap.Int("criteria", len(req.set)),
	)
	writeJSON(w, http.StatusOK, res)
}
