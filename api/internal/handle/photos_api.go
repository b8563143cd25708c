package handle

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"photo-screener/api/internal/export"
	"photo-screener/api/internal/live"
	"photo-screener/api/internal/orchestrator"
)

type photosResp struct {
	Photos  []orchestrator.Photo `json:"photos"`
	Summary orchestrator.Summary `json:"summary"`
}

func (h *Handle) ListPhotos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, photosResp{Photos: h.ws.List(), Summary: h.ws.Summary()})
}

// UploadPhotos принимает multipart с полями files; каждая картинка становится записью pending.
func (h *Handle) UploadPhotos(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "bad multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	added := make([]orchestrator.Photo, 0, len(files))
	var rejected []string
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			rejected = append(rejected, fh.Filename)
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			rejected = append(rejected, fh.Filename)
			continue
		}
		p, err := h.ws.Add(path.Base(fh.Filename), data, fh.Header.Get("Content-Type"))
		if err != nil {
			rejected = append(rejected, fh.Filename)
			continue
		}
		added = append(added, p)
	}
	if len(added) == 0 {
		writeError(w, http.StatusBadRequest, "no readable files: "+strings.Join(rejected, ", "))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"photos": added, "rejected": rejected})
}

func (h *Handle) GetPhoto(w http.ResponseWriter, r *http.Request) {
	p, err := h.ws.Get(chi.URLParam(r, "id"))
	if err != nil {
		writePhotoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handle) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Delete(chi.URLParam(r, "id")); err != nil {
		writePhotoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handle) ClearPhotos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": h.ws.Clear()})
}

// ScreenPending запускает прогон pending-записей в фоне (202).
// С ?wait=true ждёт окончания и возвращает отчёт.
func (h *Handle) ScreenPending(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		rep, err := h.ws.RunPending(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "batch interrupted: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rep)
		return
	}

	queued := h.ws.Summary().Pending
	go func() {
		if _, err := h.ws.RunPending(h.bg); err != nil {
			h.logger.Warn("background batch interrupted", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (h *Handle) RetryPhoto(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()
	p, err := h.ws.Retry(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writePhotoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handle) ResetPhoto(w http.ResponseWriter, r *http.Request) {
	p, err := h.ws.Reset(chi.URLParam(r, "id"))
	if err != nil {
		writePhotoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ExportPhoto отдаёт снимок с рамкой и логотипом; при сбое - оригинал и X-Export-Warning.
func (h *Handle) ExportPhoto(w http.ResponseWriter, r *http.Request) {
	p, err := h.ws.Exportable(chi.URLParam(r, "id"))
	if err != nil {
		writePhotoError(w, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	out, warning := h.composer.ComposeOrOriginal(ctx, p.Data, h.logos)

	mime := "image/jpeg"
	name := export.FileName(p.Filename)
	if warning != "" {
		mime = p.MIMEType
		name = p.Filename
		w.Header().Set("X-Export-Warning", warning)
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// PhotosLive - WebSocket: снимок списка, затем события photo.*.
func (h *Handle) PhotosLive(w http.ResponseWriter, r *http.Request) {
	h.hub.Serve(live.TopicPhotos, func() live.Message {
		return live.Message{Type: "photos.snapshot", Data: photosResp{Photos: h.ws.List(), Summary: h.ws.Summary()}}
	})(w, r)
}

func writePhotoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrBusy), errors.Is(err, orchestrator.ErrNotPassed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
