package criteria

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	// SharedDocID - id общего документа с критериями.
	SharedDocID = "shared-criteria"
	// NotifyChannel - канал Postgres NOTIFY об изменении набора.
	NotifyChannel = "criteria_changed"
)

// PGStore - общий набор критериев в Postgres (таблица criteria_sets).
// Последняя запись побеждает; изменения рассылаются через LISTEN/NOTIFY.
type PGStore struct {
	DB     *sql.DB
	DocID  string
	logger *zap.Logger
	subs   subscribers

	listenOnce sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewPGStore(db *sql.DB, logger *zap.Logger) *PGStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PGStore{
		DB:     db,
		DocID:  SharedDocID,
		logger: logger.Named("criteria.pg"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Load не падает: без строки или при ошибке чтения отдаёт значения по умолчанию.
func (s *PGStore) Load(ctx context.Context) (Set, error) {
	set, err := s.load(ctx)
	if err != nil {
		s.logger.Error("load shared criteria failed, using defaults", zap.Error(err))
		return Defaults(), nil
	}
	return set, nil
}

// load отличает ошибку от пустого документа; отсутствие строки не ошибка.
func (s *PGStore) load(ctx context.Context) (Set, error) {
	const q = `select criteria from criteria_sets where id = $1`
	var js []byte
	err := s.DB.QueryRowContext(ctx, q, s.DocID).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query criteria: %w", err)
	}
	set, err := decodeSet(js)
	if err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	return set, nil
}

// refresh перечитывает документ после NOTIFY; при ошибке подписчики не трогаются.
func (s *PGStore) refresh(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	set, err := s.load(loadCtx)
	if err != nil {
		s.logger.Warn("reload after notify failed, keeping current criteria", zap.Error(err))
		return
	}
	s.subs.notify(set)
}

func (s *PGStore) Save(ctx context.Context, set Set) error {
	if set == nil {
		set = Set{}
	}
	js, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
insert into criteria_sets(id, criteria, updated_at)
values ($1, $2, now())
on conflict (id)
do update set criteria = excluded.criteria, updated_at = now()`
	if _, err := tx.ExecContext(ctx, upsert, s.DocID, js); err != nil {
		return fmt.Errorf("upsert criteria: %w", err)
	}
	// NOTIFY уходит подписчикам только после commit
	if _, err := tx.ExecContext(ctx, `select pg_notify($1, $2)`, NotifyChannel, s.DocID); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PGStore) Subscribe(fn func(Set)) func() {
	id := s.subs.add(fn)
	s.listenOnce.Do(func() {
		s.wg.Add(1)
		go s.listenLoop()
	})
	return func() { s.subs.remove(id) }
}

// Close останавливает LISTEN-цикл.
func (s *PGStore) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *PGStore) listenLoop() {
	defer s.wg.Done()
	delay := time.Second
	const maxDelay = 15 * time.Second
	for {
		err := s.listen(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("criteria listener dropped, reconnecting", zap.Error(err), zap.Duration("retry_in", delay))
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxDelay {
			delay = maxDelay
		}
	}
}

// listen держит отдельное соединение и ждёт уведомлений до ошибки или отмены.
func (s *PGStore) listen(ctx context.Context) error {
	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "listen "+NotifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.logger.Info("listening for criteria changes", zap.String("channel", NotifyChannel))

	for {
		var payload string
		err := conn.Raw(func(driverConn any) error {
			c, ok := driverConn.(*stdlib.Conn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", driverConn)
			}
			n, err := c.Conn().WaitForNotification(ctx)
			if err != nil {
				return err
			}
			payload = n.Payload
			return nil
		})
		if err != nil {
			return err
		}
		if payload != s.DocID {
			continue
		}
		s.refresh(ctx)
	}
}
