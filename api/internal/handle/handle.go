package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"photo-screener/api/internal/config"
	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/export"
	"photo-screener/api/internal/live"
	"photo-screener/api/internal/orchestrator"
	"photo-screener/api/internal/screen"
	"photo-screener/api/internal/store"
	"photo-screener/api/internal/util"
)

// Analyzer - анализ картинки с перебором моделей.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mime string, set criteria.Set) (screen.Result, string, error)
}

// Forwarder отправляет тело запроса в шлюз анализа.
type Forwarder interface {
	Forward(ctx context.Context, body []byte) (int, []byte, error)
}

// Audit - журнал вердиктов.
type Audit interface {
	Record(ctx context.Context, image []byte, model string, set criteria.Set, res screen.Result) error
	Recent(ctx context.Context, limit int) ([]store.ScreeningRow, error)
	FindByHash(ctx context.Context, imageHash, model string, maxAge time.Duration) (*store.ScreeningRow, error)
}

// Deps - всё, что нужно обработчикам. Nil-зависимость отключает свою группу маршрутов.
type Deps struct {
	Config    *config.Config
	Analyzer  Analyzer
	Forwarder Forwarder
	Audit     Audit
	Criteria  *criteria.Editor
	Workspace *orchestrator.Workspace
	Composer  *export.Composer
	Logos     []export.LogoSource
	Hub       *live.Hub
	// Background - контекст жизни сервера для фоновых прогонов.
	Background context.Context
	Logger     *zap.Logger
}

type Handle struct {
	cfg       *config.Config
	analyzer  Analyzer
	forwarder Forwarder
	audit     Audit
	criteria  *criteria.Editor
	ws        *orchestrator.Workspace
	composer  *export.Composer
	logos     []export.LogoSource
	hub       *live.Hub
	origins   *OriginPolicy
	bg        context.Context
	logger    *zap.Logger
}

func New(d Deps) *Handle {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Config == nil {
		d.Config = &config.Config{}
	}
	if d.Background == nil {
		d.Background = context.Background()
	}
	return &Handle{
		cfg:       d.Config,
		analyzer:  d.Analyzer,
		forwarder: d.Forwarder,
		audit:     d.Audit,
		criteria:  d.Criteria,
		ws:        d.Workspace,
		composer:  d.Composer,
		logos:     d.Logos,
		hub:       d.Hub,
		origins:   NewOriginPolicy(d.Config.AllowedOrigins),
		bg:        d.Background,
		logger:    d.Logger.Named("handle"),
	}
}

// Origins - политика источников, общая для CORS и WebSocket.
func (h *Handle) Origins() *OriginPolicy { return h.origins }

// Register вешает маршруты на роутер.
func (h *Handle) Register(r chi.Router) {
	gateway := h.origins.CORS("POST, OPTIONS")
	if h.analyzer != nil {
		r.With(gateway).HandleFunc("/v1/analyze", h.Analyze)
	}
	if h.forwarder != nil {
		r.With(gateway).HandleFunc("/v1/proxy/analyze", h.Proxy)
	}

	api := h.origins.CORS("GET, POST, PUT, PATCH, DELETE, OPTIONS")
	if h.criteria != nil {
		r.Route("/v1/criteria", func(r chi.Router) {
			r.Use(api)
			r.Get("/", h.ListCriteria)
			r.Put("/", h.ReplaceCriteria)
			r.Post("/", h.AddCriterion)
			r.Post("/reset", h.ResetCriteria)
			r.Patch("/{id}", h.UpdateCriterion)
			r.Delete("/{id}", h.RemoveCriterion)
			if h.hub != nil {
				r.Get("/live", h.CriteriaLive)
			}
		})
	}
	if h.ws != nil {
		r.Route("/v1/photos", func(r chi.Router) {
			r.Use(api)
			r.Get("/", h.ListPhotos)
			r.Post("/", h.UploadPhotos)
			r.Delete("/", h.ClearPhotos)
			r.Post("/screen", h.ScreenPending)
			if h.hub != nil {
				r.Get("/live", h.PhotosLive)
			}
			r.Get("/{id}", h.GetPhoto)
			r.Delete("/{id}", h.DeletePhoto)
			r.Post("/{id}/retry", h.RetryPhoto)
			r.Post("/{id}/reset", h.ResetPhoto)
			if h.composer != nil {
				r.Get("/{id}/export", h.ExportPhoto)
			}
		})
	}
	if h.audit != nil {
		r.With(api).HandleFunc("/v1/screenings", h.ListScreenings)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// requestContext - дедлайн из X-Request-Timeout или timeoutSec, иначе REQUEST_TIMEOUT.
func (h *Handle) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := h.cfg.RequestTimeout
	if deadline <= 0 {
		deadline = 120 * time.Second
	}
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}

func (h *Handle) maxBody() int64 {
	if h.cfg.MaxBodyBytes > 0 {
		return h.cfg.MaxBodyBytes
	}
	return 25 << 20
}

// analyzeReq - тело запроса к шлюзу и прокси. Criteria - указатель, чтобы отличить null от [].
type analyzeReq struct {
	ImageBase64 string        `json:"imageBase64"`
	MimeType    string        `json:"mimeType"`
	Criteria    *criteria.Set `json:"criteria"`
}

// validated - проверенный запрос, с которым работает логика.
type validated struct {
	image []byte
	mime  string
	set   criteria.Set
}

func (v validated) wire() screen.Request {
	return screen.Request{
		ImageBase64: encodeBase64(v.image),
		MimeType:    v.mime,
		Criteria:    v.set,
	}
}

var errBadRequest = errors.New("bad request")

// decodeRequest читает и проверяет тело до любой бизнес-логики.
func (h *Handle) decodeRequest(w http.ResponseWriter, r *http.Request) (validated, error) {
	var req analyzeReq
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody()))
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return validated{}, badRequest("request body is too large")
		}
		return validated{}, badRequest("bad json: " + err.Error())
	}
	if strings.TrimSpace(req.ImageBase64) == "" {
		return validated{}, badRequest("imageBase64 is required")
	}
	if req.Criteria == nil {
		return validated{}, badRequest("criteria is required")
	}
	set := req.Criteria.Normalize()
	if err := set.Validate(); err != nil {
		return validated{}, badRequest(err.Error())
	}
	img, hint, err := util.DecodeBase64MaybeDataURL(req.ImageBase64)
	if err != nil || len(img) == 0 {
		return validated{}, badRequest("imageBase64 is not valid base64")
	}
	mime := util.PickMIME(req.MimeType, hint, img)
	if !strings.HasPrefix(mime, "image/") {
		return validated{}, badRequest("mimeType must be an image type")
	}
	return validated{image: img, mime: mime, set: set}, nil
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() error { return errBadRequest }

func badRequest(msg string) error { return &requestError{msg: msg} }
