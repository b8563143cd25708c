package orchestrator

import (
	"context"
	"errors"
	"time"

	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/screen"
)

var (
	ErrNotFound  = errors.New("photo not found")
	ErrBusy      = errors.New("photo is being analyzed")
	ErrEmpty     = errors.New("photo is empty")
	ErrNotPassed = errors.New("photo has not passed screening")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusPass      Status = "pass"
	StatusFail      Status = "fail"
	StatusError     Status = "error"
)

// Photo - запись о загруженном снимке. Data не меняется после Add.
type Photo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	MIMEType  string    `json:"mimeType"`
	Size      int       `json:"size"`
	Status    Status    `json:"status"`
	Reasons   []string  `json:"reasons"`
	Feedback  string    `json:"feedback,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Data []byte `json:"-"`

	gen uint64
}

func (p *Photo) clone() Photo {
	out := *p
	out.Reasons = append([]string{}, p.Reasons...)
	return out
}

const (
	EventAdded   = "photo.added"
	EventUpdated = "photo.updated"
	EventDeleted = "photo.deleted"
	EventCleared = "photos.cleared"
)

// Event - изменение в рабочем пространстве; Photo пуст для удаления и очистки.
type Event struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Photo *Photo `json:"photo,omitempty"`
}

// Analyzer - удалённый анализ подготовленной картинки.
type Analyzer interface {
	Analyze(ctx context.Context, imageBase64, mime string, set criteria.Set) (screen.Result, error)
}

// CriteriaSource отдаёт актуальный снимок критериев.
type CriteriaSource interface {
	Criteria() criteria.Set
}

// StaticCriteria - неизменяемый набор, для CLI и тестов.
type StaticCriteria criteria.Set

func (s StaticCriteria) Criteria() criteria.Set { return criteria.Set(s).Clone() }

type Options struct {
	// Concurrency - сколько анализов идёт одновременно; 0 и меньше - 1.
	Concurrency  int
	MaxDimension int
}

// Summary - количество записей по статусам.
type Summary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Analyzing int `json:"analyzing"`
	Pass      int `json:"pass"`
	Fail      int `json:"fail"`
	Error     int `json:"error"`
}

// BatchReport - итог одного прогона RunPending.
type BatchReport struct {
	Processed int `json:"processed"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Errored   int `json:"errored"`
	// Dropped - ответы для удалённых или сброшенных за время анализа записей.
	Dropped int `json:"dropped"`
}
