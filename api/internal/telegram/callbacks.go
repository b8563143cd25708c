package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID

	ws, ok := r.chats.lookup(cid)
	if !ok {
		r.send(cid, "Фото не найдены: пришлите их заново.")
		return
	}

	switch {
	case strings.HasPrefix(cb.Data, cbExport):
		r.sendExport(ctx, cid, ws, strings.TrimPrefix(cb.Data, cbExport))
	case strings.HasPrefix(cb.Data, cbRetry):
		id := strings.TrimPrefix(cb.Data, cbRetry)
		for i, p := range ws.List() {
			if p.ID == id {
				r.retryPhoto(ctx, cid, ws, i+1, id)
				return
			}
		}
		r.send(cid, "Фото уже удалено.")
	}
}
