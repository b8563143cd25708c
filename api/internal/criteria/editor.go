package criteria

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Patch - частичное обновление критерия; nil-поля не меняются.
type Patch struct {
	Label      *string     `json:"label,omitempty"`
	Type       *Kind       `json:"type,omitempty"`
	Strictness *Strictness `json:"strictness,omitempty"`
}

// Editor держит текущий снимок набора и единственный пишет его в Store.
// При ошибке сохранения снимок в памяти остаётся действующим (не синхронизирован).
type Editor struct {
	store  Store
	logger *zap.Logger

	// writeMu держится от чтения снимка до Save: правки в процессе не теряются
	writeMu sync.Mutex

	mu    sync.RWMutex
	cur   Set
	unsub func()
}

func NewEditor(ctx context.Context, store Store, logger *zap.Logger) (*Editor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	set, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load criteria: %w", err)
	}
	e := &Editor{store: store, logger: logger.Named("criteria"), cur: set}
	e.unsub = store.Subscribe(func(s Set) {
		e.mu.Lock()
		e.cur = s
		e.mu.Unlock()
	})
	return e, nil
}

// Criteria возвращает копию текущего набора.
func (e *Editor) Criteria() Set {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := e.cur.Clone()
	if out == nil {
		out = Set{}
	}
	return out
}

func (e *Editor) Subscribe(fn func(Set)) func() { return e.store.Subscribe(fn) }

func (e *Editor) Replace(ctx context.Context, set Set) (Set, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.replaceLocked(ctx, set)
}

func (e *Editor) replaceLocked(ctx context.Context, set Set) (Set, error) {
	set = set.Normalize()
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return e.commit(ctx, set)
}

func (e *Editor) Add(ctx context.Context, c Criterion) (Set, error) {
	if strings.TrimSpace(c.ID) == "" {
		c.ID = uuid.NewString()
	}
	return e.mutate(ctx, func(cur Set) (Set, error) {
		return append(cur, c), nil
	})
}

func (e *Editor) Update(ctx context.Context, id string, p Patch) (Set, error) {
	return e.mutate(ctx, func(cur Set) (Set, error) {
		i := cur.Index(id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		c := cur[i]
		if p.Label != nil {
			c.Label = *p.Label
		}
		if p.Type != nil {
			c.Type = *p.Type
		}
		if p.Strictness != nil {
			c.Strictness = *p.Strictness
		}
		cur[i] = c
		return cur, nil
	})
}

func (e *Editor) Remove(ctx context.Context, id string) (Set, error) {
	return e.mutate(ctx, func(cur Set) (Set, error) {
		i := cur.Index(id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return append(cur[:i], cur[i+1:]...), nil
	})
}

func (e *Editor) Reset(ctx context.Context) (Set, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.commit(ctx, Defaults())
}

func (e *Editor) mutate(ctx context.Context, fn func(Set) (Set, error)) (Set, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	next, err := fn(e.Criteria())
	if err != nil {
		return nil, err
	}
	return e.replaceLocked(ctx, next)
}

func (e *Editor) commit(ctx context.Context, set Set) (Set, error) {
	e.mu.Lock()
	e.cur = set.Clone()
	e.mu.Unlock()
	if err := e.store.Save(ctx, set); err != nil {
		e.logger.Error("save criteria failed, keeping unsynced in-memory set", zap.Error(err))
		return set.Clone(), fmt.Errorf("save criteria: %w", err)
	}
	return set.Clone(), nil
}

func (e *Editor) Close() {
	if e.unsub != nil {
		e.unsub()
	}
}
