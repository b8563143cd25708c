package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"photo-screener/api/internal/config"
	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/screen"
	"photo-screener/api/internal/util"
)

// maxResponseBytes ограничивает чтение ответа шлюза.
const maxResponseBytes = 1 << 20

// StatusError - шлюз ответил не 200.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway %d: %s", e.Code, e.Message)
}

// Client ходит в шлюз анализа (или в прокси) по HTTP.
// Если APIKey задан, он передаётся в заголовке x-screener-api-key.
type Client struct {
	URL    string
	APIKey string
	httpc  *http.Client
}

func New(url, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		URL:    url,
		APIKey: apiKey,
		httpc:  &http.Client{Timeout: timeout},
	}
}

// Forward отправляет готовое тело и возвращает статус и тело ответа как есть.
func (c *Client) Forward(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set(config.APIKeyHeader, c.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// Analyze - типизированная обёртка над Forward.
func (c *Client) Analyze(ctx context.Context, image, mime string, set criteria.Set) (screen.Result, error) {
	if set == nil {
		set = criteria.Set{}
	}
	payload, err := json.Marshal(screen.Request{ImageBase64: image, MimeType: mime, Criteria: set})
	if err != nil {
		return screen.Result{}, err
	}

	code, raw, err := c.Forward(ctx, payload)
	if err != nil {
		return screen.Result{}, err
	}
	if code != http.StatusOK {
		return screen.Result{}, &StatusError{Code: code, Message: errorMessage(raw)}
	}

	res, err := screen.ParseResult(string(raw))
	if err != nil {
		return screen.Result{}, err
	}
	return res, nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return util.Truncate(strings.TrimSpace(string(raw)), 200)
}
