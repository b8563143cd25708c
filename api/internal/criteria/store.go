package criteria

import (
	"context"
	"sync"
)

// Store - источник набора критериев.
// Load при ошибке чтения возвращает набор по умолчанию (и логирует), а не ошибку.
type Store interface {
	Load(ctx context.Context) (Set, error)
	Save(ctx context.Context, set Set) error
	// Subscribe вызывает fn при каждом изменении набора; возвращает отписку.
	Subscribe(fn func(Set)) (unsubscribe func())
}

// subscribers - общий для хранилищ список колбэков.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Set)
}

func (s *subscribers) add(fn func(Set)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(Set))
	}
	s.next++
	s.fns[s.next] = fn
	return s.next
}

func (s *subscribers) remove(id int) {
	s.mu.Lock()
	delete(s.fns, id)
	s.mu.Unlock()
}

func (s *subscribers) notify(set Set) {
	s.mu.Lock()
	fns := make([]func(Set), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(set.Clone())
	}
}
