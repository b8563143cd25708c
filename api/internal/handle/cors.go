package handle

import (
	"net/http"
	"strings"

	"photo-screener/api/internal/config"
)

// OriginPolicy - список разрешённых источников браузера.
// Пустой список запрещает все кросс-доменные запросы.
type OriginPolicy struct {
	allowed map[string]struct{}
}

func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			p.allowed[o] = struct{}{}
		}
	}
	return p
}

func (p *OriginPolicy) Allowed(origin string) bool {
	_, ok := p.allowed[strings.TrimRight(origin, "/")]
	return ok
}

// CheckOrigin - для апгрейда WebSocket: без Origin пускаем, иначе по списку.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || p.Allowed(origin)
}

// CORS проверяет Origin; запросы без Origin (сервер, CLI) проходят без проверки.
// Разрешённый preflight получает 204, запрещённый источник - 403 без Access-Control-Allow-Origin.
func (p *OriginPolicy) CORS(methods string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if r.Method == http.MethodOptions {
					w.Header().Set("Allow", methods)
					w.WriteHeader(http.StatusNoContent)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if !p.Allowed(origin) {
				writeError(w, http.StatusForbidden, "origin not allowed")
				return
			}

			hdr := w.Header()
			hdr.Set("Access-Control-Allow-Origin", origin)
			hdr.Add("Vary", "Origin")
			hdr.Set("Access-Control-Allow-Methods", methods)
			hdr.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Timeout, "+config.APIKeyHeader)
			hdr.Set("Access-Control-Expose-Headers", "X-Export-Warning")
			hdr.Set("Access-Control-Max-Age", "600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
