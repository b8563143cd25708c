package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/screen"
)

var ErrNotFound = sql.ErrNoRows

type ScreeningRepo struct{ DB *sql.DB }

func NewScreeningRepo(db *sql.DB) *ScreeningRepo { return &ScreeningRepo{DB: db} }

// ScreeningRow - одна запись журнала проверок.
type ScreeningRow struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	ImageHash string        `json:"imageHash"`
	Model     string        `json:"model"`
	Result    screen.Result `json:"result"`
	Criteria  criteria.Set  `json:"criteria"`
}

// ImageHash - ключ картинки в журнале.
func ImageHash(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// Record пишет вердикт в журнал. Реализует запись аудита для шлюза анализа.
func (r *ScreeningRepo) Record(ctx context.Context, image []byte, model string, set criteria.Set, res screen.Result) error {
	reasons, _ := json.Marshal(nonNil(res.Reasons))
	if set == nil {
		set = criteria.Set{}
	}
	crit, _ := json.Marshal(set)
	const q = `
insert into screenings (id, image_hash, model, status, reasons, feedback, criteria)
values ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.DB.ExecContext(ctx, q,
		uuid.NewString(), ImageHash(image), model, string(res.Status), reasons, res.Feedback, crit,
	)
	return err
}

const selectRow = `
select id::text, created_at, image_hash, model, status, reasons, coalesce(feedback,''), criteria
from screenings`

func scanRow(sc interface{ Scan(...any) error }) (ScreeningRow, error) {
	var (
		row      ScreeningRow
		status   string
		reasons  []byte
		critJSON []byte
	)
	if err := sc.Scan(&row.ID, &row.CreatedAt, &row.ImageHash, &row.Model, &status, &reasons, &row.Result.Feedback, &critJSON); err != nil {
		return ScreeningRow{}, err
	}
	row.Result.Status = screen.Verdict(status)
	if err := json.Unmarshal(reasons, &row.Result.Reasons); err != nil || row.Result.Reasons == nil {
		row.Result.Reasons = []string{}
	}
	if err := json.Unmarshal(critJSON, &row.Criteria); err != nil || row.Criteria == nil {
		row.Criteria = criteria.Set{}
	}
	return row, nil
}

// Recent - последние записи, новые сначала.
func (r *ScreeningRepo) Recent(ctx context.Context, limit int) ([]ScreeningRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, selectRow+` order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ScreeningRow, 0, limit)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FindByHash достаёт самую свежую запись по (image_hash, model).
// Если maxAge > 0 - проверяет "свежесть", иначе игнорирует возраст.
func (r *ScreeningRepo) FindByHash(ctx context.Context, imageHash, model string, maxAge time.Duration) (*ScreeningRow, error) {
	q := selectRow + ` where image_hash = $1 and ($2 = '' or model = $2) order by created_at desc limit 1`
	row, err := scanRow(r.DB.QueryRowContext(ctx, q, imageHash, model))
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && time.Since(row.CreatedAt) > maxAge {
		return nil, ErrNotFound
	}
	return &row, nil
}

// PurgeOlderThan удаляет старые записи журнала.
func (r *ScreeningRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	res, err := r.DB.ExecContext(ctx, `delete from screenings where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
