package handle

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
)

// ListScreenings - журнал вердиктов: ?hash=<sha256>[&model=] или последние ?limit=.
func (h *Handle) ListScreenings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	q := r.URL.Query()
	if hash := q.Get("hash"); hash != "" {
		row, err := h.audit.FindByHash(r.Context(), hash, q.Get("model"), 0)
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no screening for this image")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, row)
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	rows, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"screenings": rows})
}
