package screen

import (
	"errors"
	"fmt"
	"strings"

	"photo-screener/api/internal/criteria"
)

var (
	// ErrMalformed - пустой или невалидный ответ модели; запрос можно повторить.
	ErrMalformed = errors.New("malformed model output")
	// ErrUpstream - ни одна модель не дала корректного ответа.
	ErrUpstream = errors.New("upstream analysis failed")
	// ErrNotConfigured - на сервере не задан ключ AI-сервиса.
	ErrNotConfigured = errors.New("AI service key is not configured")
)

type Verdict string

const (
	Pass Verdict = "PASS"
	Fail Verdict = "FAIL"
)

// Request - тело запроса к шлюзу анализа и к прокси.
type Request struct {
	ImageBase64 string       `json:"imageBase64"`
	MimeType    string       `json:"mimeType"`
	Criteria    criteria.Set `json:"criteria"`
}

// Result - структурированный вердикт модели.
type Result struct {
	Status   Verdict  `json:"status"`
	Reasons  []string `json:"reasons"`
	Feedback string   `json:"feedback"`
}

func (r Result) Passed() bool { return r.Status == Pass }

// normalize приводит вердикт к каноничному виду и проверяет его.
func (r Result) normalize() (Result, error) {
	r.Status = Verdict(strings.ToUpper(strings.TrimSpace(string(r.Status))))
	if r.Status != Pass && r.Status != Fail {
		return Result{}, fmt.Errorf("%w: status %q is not PASS or FAIL", ErrMalformed, r.Status)
	}
	reasons := make([]string, 0, len(r.Reasons))
	for _, s := range r.Reasons {
		if s = strings.TrimSpace(s); s != "" {
			reasons = append(reasons, s)
		}
	}
	r.Reasons = reasons
	r.Feedback = strings.TrimSpace(r.Feedback)
	return r, nil
}
