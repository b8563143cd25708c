package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"photo-screener/api/internal/imageprep"
	"photo-screener/api/internal/screen"
	"photo-screener/api/internal/util"
)

var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "screener_photo_transitions_total",
		Help: "Photo record status transitions, by target status.",
	},
	[]string{"status"},
)

type outcome int

const (
	outcomeDropped outcome = iota
	outcomePass
	outcomeFail
	outcomeError
)

// Workspace хранит записи о снимках и прогоняет их через анализатор.
type Workspace struct {
	analyzer Analyzer
	criteria CriteriaSource
	opts     Options
	logger   *zap.Logger

	// slots ограничивает число одновременных анализов, включая Retry.
	slots chan struct{}

	mu     sync.Mutex
	photos map[string]*Photo
	order  []string

	// emitMu держится от изменения записи до конца рассылки события,
	// поэтому подписчики видят события в порядке изменений.
	emitMu  sync.Mutex
	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	now func() time.Time
}

func New(analyzer Analyzer, src CriteriaSource, opts Options, logger *zap.Logger) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Workspace{
		analyzer: analyzer,
		criteria: src,
		opts:     opts,
		logger:   logger.Named("orchestrator"),
		slots:    make(chan struct{}, opts.Concurrency),
		photos:   make(map[string]*Photo),
		subs:     make(map[int]func(Event)),
		now:      time.Now,
	}
}

// Subscribe регистрирует получателя событий. Колбэк не должен менять Workspace.
func (w *Workspace) Subscribe(fn func(Event)) func() {
	w.subsMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = fn
	w.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.subsMu.Lock()
			delete(w.subs, id)
			w.subsMu.Unlock()
		})
	}
}

// commitLocked вызывается под w.mu; отпускает его и рассылает событие.
func (w *Workspace) commitLocked(ev Event) {
	w.emitMu.Lock()
	w.mu.Unlock()
	defer w.emitMu.Unlock()

	w.subsMu.Lock()
	fns := make([]func(Event), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.subsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func updated(p *Photo) Event {
	c := p.clone()
	return Event{Type: EventUpdated, ID: p.ID, Photo: &c}
}

// Add создаёт запись в статусе pending.
func (w *Workspace) Add(filename string, data []byte, mime string) (Photo, error) {
	if len(data) == 0 {
		return Photo{}, ErrEmpty
	}
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		if sniffed := util.SniffImageMIME(data); sniffed != "" {
			mime = sniffed
		}
	}
	if mime == "" {
		mime = "application/octet-stream"
	}

	now := w.now()
	p := &Photo{
		ID:        uuid.NewString(),
		Filename:  filename,
		MIMEType:  mime,
		Size:      len(data),
		Status:    StatusPending,
		Reasons:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
		Data:      append([]byte(nil), data...),
	}

	w.mu.Lock()
	w.photos[p.ID] = p
	w.order = append(w.order, p.ID)
	out := p.clone()
	ev := Event{Type: EventAdded, ID: p.ID, Photo: &out}
	w.commitLocked(ev)

	transitionsTotal.WithLabelValues(string(StatusPending)).Inc()
	w.logger.Debug("photo added", zap.String("id", p.ID), zap.String("filename", filename), zap.Int("bytes", len(data)))
	return out, nil
}

// List возвращает записи в порядке загрузки.
func (w *Workspace) List() []Photo {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Photo, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.photos[id].clone())
	}
	return out
}

func (w *Workspace) Get(id string) (Photo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.photos[id]
	if !ok {
		return Photo{}, ErrNotFound
	}
	return p.clone(), nil
}

// Exportable возвращает запись, только если она прошла проверку.
func (w *Workspace) Exportable(id string) (Photo, error) {
	p, err := w.Get(id)
	if err != nil {
		return Photo{}, err
	}
	if p.Status != StatusPass {
		return Photo{}, fmt.Errorf("%w: status is %s", ErrNotPassed, p.Status)
	}
	return p, nil
}

// Delete удаляет запись; ответ анализа, пришедший позже, будет отброшен.
func (w *Workspace) Delete(id string) error {
	w.mu.Lock()
	if _, ok := w.photos[id]; !ok {
		w.mu.Unlock()
		return ErrNotFound
	}
	delete(w.photos, id)
	for i, x := range w.order {
		if x == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	w.commitLocked(Event{Type: EventDeleted, ID: id})
	return nil
}

// Clear удаляет все записи и возвращает их число.
func (w *Workspace) Clear() int {
	w.mu.Lock()
	n := len(w.photos)
	w.photos = make(map[string]*Photo)
	w.order = nil
	w.commitLocked(Event{Type: EventCleared})
	return n
}

// Reset возвращает запись в pending. Идущий анализ для неё будет отброшен.
func (w *Workspace) Reset(id string) (Photo, error) {
	w.mu.Lock()
	p, ok := w.photos[id]
	if !ok {
		w.mu.Unlock()
		return Photo{}, ErrNotFound
	}
	p.gen++
	p.Status = StatusPending
	p.Reasons = []string{}
	p.Feedback = ""
	p.Error = ""
	p.UpdatedAt = w.now()
	out := p.clone()
	w.commitLocked(updated(p))
	transitionsTotal.WithLabelValues(string(StatusPending)).Inc()
	return out, nil
}

func (w *Workspace) Summary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	var s Summary
	for _, p := range w.photos {
		s.Total++
		switch p.Status {
		case StatusPending:
			s.Pending++
		case StatusAnalyzing:
			s.Analyzing++
		case StatusPass:
			s.Pass++
		case StatusFail:
			s.Fail++
		case StatusError:
			s.Error++
		}
	}
	return s
}

type task struct {
	id   string
	gen  uint64
	data []byte
}

// claimLocked переводит запись в analyzing и выдаёт задачу с новым поколением.
func (w *Workspace) claimLocked(p *Photo) task {
	p.gen++
	p.Status = StatusAnalyzing
	p.Error = ""
	p.UpdatedAt = w.now()
	return task{id: p.ID, gen: p.gen, data: p.Data}
}

// RunPending прогоняет все записи, бывшие pending на момент вызова,
// через очередь с ограничением Options.Concurrency.
// Ошибка одного снимка не прерывает пакет.
func (w *Workspace) RunPending(ctx context.Context) (BatchReport, error) {
	w.mu.Lock()
	var ids []string
	for _, id := range w.order {
		if w.photos[id].Status == StatusPending {
			ids = append(ids, id)
		}
	}
	w.mu.Unlock()

	var (
		g      errgroup.Group
		repMu  sync.Mutex
		report BatchReport
	)
	g.SetLimit(w.opts.Concurrency)

	for _, id := range ids {
		g.Go(func() error {
			w.mu.Lock()
			p, ok := w.photos[id]
			if !ok || p.Status != StatusPending {
				w.mu.Unlock()
				return nil
			}
			t := w.claimLocked(p)
			w.commitLocked(updated(p))
			transitionsTotal.WithLabelValues(string(StatusAnalyzing)).Inc()

			o := w.run(ctx, t)

			repMu.Lock()
			defer repMu.Unlock()
			report.Processed++
			switch o {
			case outcomePass:
				report.Passed++
			case outcomeFail:
				report.Failed++
			case outcomeError:
				report.Errored++
			case outcomeDropped:
				report.Dropped++
			}
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Info("batch finished",
		zap.Int("processed", report.Processed),
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Int("errored", report.Errored),
		zap.Int("dropped", report.Dropped),
	)
	return report, ctx.Err()
}

// Retry повторно анализирует запись в любом статусе, кроме analyzing.
// Выполняется синхронно и возвращает запись после анализа.
func (w *Workspace) Retry(ctx context.Context, id string) (Photo, error) {
	w.mu.Lock()
	p, ok := w.photos[id]
	if !ok {
		w.mu.Unlock()
		return Photo{}, ErrNotFound
	}
	if p.Status == StatusAnalyzing {
		w.mu.Unlock()
		return Photo{}, ErrBusy
	}
	t := w.claimLocked(p)
	w.commitLocked(updated(p))
	transitionsTotal.WithLabelValues(string(StatusAnalyzing)).Inc()

	w.run(ctx, t)
	return w.Get(id)
}

// run готовит картинку, берёт снимок критериев и вызывает анализатор.
func (w *Workspace) run(ctx context.Context, t task) outcome {
	if err := ctx.Err(); err != nil {
		return w.finish(t, screen.Result{}, err)
	}
	select {
	case w.slots <- struct{}{}:
	case <-ctx.Done():
		return w.finish(t, screen.Result{}, ctx.Err())
	}
	defer func() { <-w.slots }()

	payload, err := imageprep.Prepare(t.data, w.opts.MaxDimension)
	if err != nil {
		return w.finish(t, screen.Result{}, err)
	}
	set := w.criteria.Criteria()

	start := time.Now()
	res, err := w.analyzer.Analyze(ctx, payload.Base64, payload.MIMEType, set)
	w.logger.Debug("analysis returned",
		zap.String("id", t.id),
		zap.Int("payload_bytes", payload.Bytes),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	return w.finish(t, res, err)
}

// finish применяет результат, если запись существует и её поколение не сменилось.
func (w *Workspace) finish(t task, res screen.Result, err error) outcome {
	w.mu.Lock()
	p, ok := w.photos[t.id]
	if !ok || p.gen != t.gen {
		w.mu.Unlock()
		w.logger.Info("dropping stale analysis result", zap.String("id", t.id), zap.Bool("deleted", !ok))
		return outcomeDropped
	}

	var o outcome
	p.UpdatedAt = w.now()
	switch {
	case err != nil:
		o = outcomeError
		p.Status = StatusError
		p.Reasons = []string{}
		p.Feedback = ""
		p.Error = errorText(err)
	case res.Passed():
		o = outcomePass
		p.Status = StatusPass
		p.Reasons = append([]string{}, res.Reasons...)
		p.Feedback = res.Feedback
	default:
		o = outcomeFail
		p.Status = StatusFail
		p.Reasons = append([]string{}, res.Reasons...)
		p.Feedback = res.Feedback
	}
	status := p.Status
	w.commitLocked(updated(p))

	transitionsTotal.WithLabelValues(string(status)).Inc()
	if err != nil {
		w.logger.Warn("photo analysis failed", zap.String("id", t.id), zap.Error(err))
	}
	return o
}

func errorText(err error) string {
	switch {
	case errors.Is(err, imageprep.ErrDecode):
		return "image cannot be decoded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "analysis interrupted: " + err.Error()
	}
	return util.Truncate(err.Error(), 300)
}
