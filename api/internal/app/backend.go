// Package app собирает общие для бинарников зависимости: базу и хранилище критериев.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"photo-screener/api/internal/config"
	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/store"
)

type Backend struct {
	Criteria *criteria.Editor
	// DB == nil, если Postgres не настроен.
	DB *sql.DB

	closers []func()
}

// OpenBackend открывает Postgres (если задан DATABASE_URL или выбран postgres-бэкенд),
// применяет миграции и поднимает редактор критериев поверх нужного хранилища.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	if cfg.DatabaseURL != "" || cfg.CriteriaBackend == config.CriteriaBackendPostgres {
		dsn := store.ResolveDSN(cfg.DatabaseURL)
		if err := store.Migrate(dsn, logger); err != nil {
			return nil, err
		}
		db, err := store.Open(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		b.DB = db
		b.closers = append(b.closers, func() { _ = db.Close() })
	}

	var st criteria.Store
	switch cfg.CriteriaBackend {
	case config.CriteriaBackendPostgres:
		pg := criteria.NewPGStore(b.DB, logger)
		b.closers = append(b.closers, func() { _ = pg.Close() })
		st = pg
	default:
		fs := criteria.NewFileStore(cfg.CriteriaFile, logger)
		b.closers = append(b.closers, func() { _ = fs.Close() })
		st = fs
	}

	ed, err := criteria.NewEditor(ctx, st, logger)
	if err != nil {
		return nil, fmt.Errorf("criteria: %w", err)
	}
	b.Criteria = ed
	b.closers = append(b.closers, ed.Close)

	logger.Info("backend ready",
		zap.String("criteria_backend", cfg.CriteriaBackend),
		zap.Bool("postgres", b.DB != nil),
		zap.Int("criteria", len(ed.Criteria())),
	)
	ok = true
	return b, nil
}

// Screenings - журнал вердиктов, nil без Postgres.
func (b *Backend) Screenings() *store.ScreeningRepo {
	if b.DB == nil {
		return nil
	}
	return store.NewScreeningRepo(b.DB)
}

// Close закрывает ресурсы в обратном порядке.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
