package handle

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Proxy принимает запрос браузера без секрета, добавляет секрет и пересылает в шлюз анализа.
// Статус и тело ответа шлюза возвращаются как есть.
func (h *Handle) Proxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	req, err := h.decodeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.cfg.APIKey == "" {
		h.logger.Error("SCREENER_API_KEY is not configured, proxy cannot authenticate")
		writeError(w, http.StatusInternalServerError, "server is not configured")
		return
	}

	body, err := json.Marshal(req.wire())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode request: "+err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	code, raw, err := h.forwarder.Forward(ctx, body)
	if err != nil {
		h.logger.Warn("proxy forward failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "analysis gateway is unreachable")
		return
	}
	if code != http.StatusOK {
		h.logger.Info("analysis gateway returned error", zap.Int("status", code))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(raw)
}
