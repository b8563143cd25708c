package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const chatQueueSize = 64

// Dispatcher обрабатывает разные чаты параллельно, а апдейты одного чата по порядку.
type Dispatcher struct {
	handle func(context.Context, tgbotapi.Update)
	idle   time.Duration

	mu     sync.Mutex
	queues map[int64]chan tgbotapi.Update
	wg     sync.WaitGroup
}

func NewDispatcher(handle func(context.Context, tgbotapi.Update), idle time.Duration) *Dispatcher {
	if idle <= 0 {
		idle = time.Minute
	}
	return &Dispatcher{handle: handle, idle: idle, queues: make(map[int64]chan tgbotapi.Update)}
}

func updateChatID(upd tgbotapi.Update) int64 {
	switch {
	case upd.Message != nil && upd.Message.Chat != nil:
		return upd.Message.Chat.ID
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil && upd.CallbackQuery.Message.Chat != nil:
		return upd.CallbackQuery.Message.Chat.ID
	}
	return 0
}

// Dispatch ставит апдейт в очередь его чата; ждёт, если очередь полна.
func (d *Dispatcher) Dispatch(ctx context.Context, upd tgbotapi.Update) {
	cid := updateChatID(upd)
	for ctx.Err() == nil {
		if d.enqueue(ctx, cid, upd) {
			return
		}
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, cid int64, upd tgbotapi.Update) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[cid]
	if !ok {
		q = make(chan tgbotapi.Update, chatQueueSize)
		d.queues[cid] = q
		d.wg.Add(1)
		go d.worker(ctx, cid, q)
	}
	select {
	case q <- upd:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) worker(ctx context.Context, cid int64, q chan tgbotapi.Update) {
	defer d.wg.Done()
	t := time.NewTimer(d.idle)
	defer t.Stop()
	for {
		select {
		case upd := <-q:
			d.handle(ctx, upd)
			t.Reset(d.idle)
		case <-t.C:
			d.mu.Lock()
			if len(q) == 0 {
				delete(d.queues, cid)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			t.Reset(d.idle)
		case <-ctx.Done():
			d.mu.Lock()
			delete(d.queues, cid)
			d.mu.Unlock()
			return
		}
	}
}

// Wait ждёт завершения всех обработчиков (после отмены контекста или простоя).
func (d *Dispatcher) Wait() { d.wg.Wait() }
