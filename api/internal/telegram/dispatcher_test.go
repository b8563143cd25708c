package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatMessage(chat int64, id int) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{MessageID: id, Chat: &tgbotapi.Chat{ID: chat}}}
}

func TestDispatcherKeepsChatOrder(t *testing.T) {
	var mu sync.Mutex
	got := map[int64][]int{}
	seen := func(chat int64) []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), got[chat]...)
	}

	release := make(chan struct{})
	d := NewDispatcher(func(_ context.Context, upd tgbotapi.Update) {
		cid := upd.Message.Chat.ID
		if cid == 1 && upd.Message.MessageID == 0 {
			<-release
		}
		mu.Lock()
		got[cid] = append(got[cid], upd.Message.MessageID)
		mu.Unlock()
	}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		d.Wait()
	}()

	for i := 0; i < 5; i++ {
		d.Dispatch(ctx, chatMessage(1, i))
		d.Dispatch(ctx, chatMessage(2, i))
	}

	// второй чат не ждёт занятый первый
	require.Eventually(t, func() bool { return len(seen(2)) == 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, seen(1))

	close(release)
	require.Eventually(t, func() bool { return len(seen(1)) == 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen(1))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen(2))
}

func TestDispatcherWorkerExitsWhenIdle(t *testing.T) {
	done := make(chan struct{}, 1)
	d := NewDispatcher(func(context.Context, tgbotapi.Update) { done <- struct{}{} }, 10*time.Millisecond)

	d.Dispatch(context.Background(), chatMessage(7, 1))
	<-done

	waited := make(chan struct{})
	go func() {
		d.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("idle worker did not exit")
	}

	d.mu.Lock()
	assert.Empty(t, d.queues)
	d.mu.Unlock()
}

func TestUpdateChatID(t *testing.T) {
	assert.Equal(t, int64(5), updateChatID(chatMessage(5, 1)))
	assert.Equal(t, int64(9), updateChatID(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 9}},
	}}))
	assert.Equal(t, int64(0), updateChatID(tgbotapi.Update{}))
}
