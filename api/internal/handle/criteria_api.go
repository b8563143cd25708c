package handle

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/live"
)

// criteriaResp - ответ всех ручек критериев. Warning не пуст, если набор не удалось сохранить.
type criteriaResp struct {
	Criteria criteria.Set `json:"criteria"`
	Warning  string       `json:"warning,omitempty"`
}

func (h *Handle) ListCriteria(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, criteriaResp{Criteria: h.criteria.Criteria()})
}

// ReplaceCriteria принимает массив или {"criteria": [...]}.
func (h *Handle) ReplaceCriteria(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	var set criteria.Set
	if err := json.Unmarshal(raw, &set); err != nil {
		var doc struct {
			Criteria *criteria.Set `json:"criteria"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil || doc.Criteria == nil {
			writeError(w, http.StatusBadRequest, "expected an array of criteria")
			return
		}
		set = *doc.Criteria
	}
	if set == nil {
		writeError(w, http.StatusBadRequest, "criteria is required")
		return
	}
	out, err := h.criteria.Replace(r.Context(), set)
	h.writeCriteria(w, out, err)
}

func (h *Handle) AddCriterion(w http.ResponseWriter, r *http.Request) {
	var c criteria.Criterion
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	out, err := h.criteria.Add(r.Context(), c)
	h.writeCriteriaStatus(w, http.StatusCreated, out, err)
}

func (h *Handle) UpdateCriterion(w http.ResponseWriter, r *http.Request) {
	var p criteria.Patch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	out, err := h.criteria.Update(r.Context(), chi.URLParam(r, "id"), p)
	h.writeCriteria(w, out, err)
}

func (h *Handle) RemoveCriterion(w http.ResponseWriter, r *http.Request) {
	out, err := h.criteria.Remove(r.Context(), chi.URLParam(r, "id"))
	h.writeCriteria(w, out, err)
}

func (h *Handle) ResetCriteria(w http.ResponseWriter, r *http.Request) {
	out, err := h.criteria.Reset(r.Context())
	h.writeCriteria(w, out, err)
}

// CriteriaLive - WebSocket: сначала снимок, затем criteria.updated при каждом изменении.
func (h *Handle) CriteriaLive(w http.ResponseWriter, r *http.Request) {
	h.hub.Serve(live.TopicCriteria, func() live.Message {
		return live.Message{Type: "criteria.snapshot", Data: h.criteria.Criteria()}
	})(w, r)
}

func (h *Handle) writeCriteria(w http.ResponseWriter, set criteria.Set, err error) {
	h.writeCriteriaStatus(w, http.StatusOK, set, err)
}

func (h *Handle) writeCriteriaStatus(w http.ResponseWriter, code int, set criteria.Set, err error) {
	switch {
	case err == nil:
		writeJSON(w, code, criteriaResp{Criteria: set})
	case errors.Is(err, criteria.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, criteria.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case set != nil:
		// сохранить не удалось, но набор в памяти уже действует
		writeJSON(w, code, criteriaResp{Criteria: set, Warning: "criteria were not synced: " + err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
