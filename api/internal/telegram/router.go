package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/export"
	"photo-screener/api/internal/orchestrator"
	"photo-screener/api/internal/util"
)

// Bot - часть tgbotapi.BotAPI, которой пользуется роутер.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	Bot      Bot
	Criteria *criteria.Editor
	Composer *export.Composer
	Logos    []export.LogoSource
	Logger   *zap.Logger

	// NewWorkspace создаёт рабочее пространство для нового чата.
	NewWorkspace func(chatID int64) *orchestrator.Workspace

	HTTPClient *http.Client
	Debounce   time.Duration

	chats   chats
	batches sync.Map // key -> *photoBatch
}

func (r *Router) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Router) workspace(chatID int64) *orchestrator.Workspace {
	return r.chats.get(chatID, r.NewWorkspace)
}

// HandleUpdate разбирает один апдейт: сначала callback, потом команды, потом фото.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := *upd.Message

	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, msg)
	case msg.Document != nil:
		r.acceptDocument(ctx, msg)
	default:
		r.send(msg.Chat.ID, "Пришлите фото или альбом, затем /screen. Справка: /help")
	}
}

func (r *Router) HandleCommand(ctx context.Context, msg tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "criteria":
		r.send(cid, formatCriteria(r.Criteria.Criteria()))
	case "ban":
		label, strictness := parseForbidden(args)
		r.addCriterion(ctx, cid, criteria.Criterion{Label: label, Type: criteria.Forbidden, Strictness: strictness})
	case "want":
		r.addCriterion(ctx, cid, criteria.Criterion{Label: args, Type: criteria.Desired})
	case "unset":
		r.removeCriterion(ctx, cid, args)
	case "status":
		ws := r.workspace(cid)
		r.send(cid, formatStatus(ws.List(), ws.Summary()))
	case "screen":
		r.screen(ctx, cid)
	case "retry":
		r.retry(ctx, cid, args)
	case "export":
		r.export(ctx, cid, args)
	case "clear":
		n := 0
		if ws, ok := r.chats.lookup(cid); ok {
			n = ws.Clear()
		}
		r.send(cid, fmt.Sprintf("Удалено фото: %d", n))
	default:
		r.send(cid, "Неизвестная команда. Справка: /help")
	}
}

func (r *Router) addCriterion(ctx context.Context, cid int64, c criteria.Criterion) {
	c.Label = strings.TrimSpace(c.Label)
	if c.Label == "" {
		r.send(cid, "Укажите текст критерия, например: /ban размытие high")
		return
	}
	set, err := r.Criteria.Add(ctx, c)
	if err != nil && set == nil {
		r.SendError(cid, err)
		return
	}
	if err != nil {
		r.logger().Warn("criteria saved locally only", zap.Error(err))
	}
	r.send(cid, formatCriteria(set))
}

func (r *Router) removeCriterion(ctx context.Context, cid int64, args string) {
	set := r.Criteria.Criteria()
	i, ok := parseIndex(args, len(set))
	if !ok {
		r.send(cid, indexHint(len(set)))
		return
	}
	set, err := r.Criteria.Remove(ctx, set[i].ID)
	if err != nil && set == nil {
		r.SendError(cid, err)
		return
	}
	r.send(cid, formatCriteria(set))
}

func (r *Router) screen(ctx context.Context, cid int64) {
	ws := r.workspace(cid)
	if ws.Summary().Pending == 0 {
		r.send(cid, "Нет фото, ожидающих проверки. Пришлите фото.")
		return
	}
	r.send(cid, "Проверяю фото…")
	rep, err := ws.RunPending(ctx)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	r.logger().Info("chat batch screened",
		zap.Int64("chat_id", cid),
		zap.Int("processed", rep.Processed),
		zap.Int("passed", rep.Passed),
		zap.Int("failed", rep.Failed),
		zap.Int("errored", rep.Errored),
	)
	r.SendResult(cid, ws.List(), rep)
}

func (r *Router) retry(ctx context.Context, cid int64, args string) {
	ws := r.workspace(cid)
	photos := ws.List()
	i, ok := parseIndex(args, len(photos))
	if !ok {
		r.send(cid, indexHint(len(photos)))
		return
	}
	r.retryPhoto(ctx, cid, ws, i+1, photos[i].ID)
}

func (r *Router) retryPhoto(ctx context.Context, cid int64, ws *orchestrator.Workspace, n int, id string) {
	p, err := ws.Retry(ctx, id)
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		r.send(cid, "Это фото ещё проверяется.")
	case errors.Is(err, orchestrator.ErrNotFound):
		r.send(cid, "Фото уже удалено.")
	case err != nil:
		r.SendError(cid, err)
	default:
		r.send(cid, formatPhoto(n, p))
	}
}

func (r *Router) export(ctx context.Context, cid int64, args string) {
	ws := r.workspace(cid)
	photos := ws.List()
	i, ok := parseIndex(args, len(photos))
	if !ok {
		r.send(cid, indexHint(len(photos)))
		return
	}
	r.sendExport(ctx, cid, ws, photos[i].ID)
}

func (r *Router) sendExport(ctx context.Context, cid int64, ws *orchestrator.Workspace, id string) {
	p, err := ws.Exportable(id)
	switch {
	case errors.Is(err, orchestrator.ErrNotPassed):
		r.send(cid, "Экспорт доступен только для прошедших проверку фото.")
		return
	case errors.Is(err, orchestrator.ErrNotFound):
		r.send(cid, "Фото уже удалено.")
		return
	case err != nil:
		r.SendError(cid, err)
		return
	}

	out, warning := r.Composer.ComposeOrOriginal(ctx, p.Data, r.Logos)
	doc := tgbotapi.NewDocument(cid, tgbotapi.FileBytes{Name: export.FileName(p.Filename), Bytes: out})
	if warning != "" {
		doc.Caption = "Не удалось добавить рамку, отправляю оригинал: " + warning
	}
	if _, err := r.Bot.Send(doc); err != nil {
		r.logger().Error("send export failed", zap.Int64("chat_id", cid), zap.Error(err))
	}
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, util.Truncate(text, maxMessageLen))
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// SendResult отправляет итог прогона с кнопками экспорта и повтора.
func (r *Router) SendResult(chatID int64, photos []orchestrator.Photo, rep orchestrator.BatchReport) {
	msg := tgbotapi.NewMessage(chatID, util.Truncate(formatReport(photos, rep), maxMessageLen))
	if kb, ok := resultKeyboard(photos); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) SendError(chatID int64, err error) {
	r.logger().Error("chat request failed", zap.Int64("chat_id", chatID), zap.Error(err))
	r.send(chatID, fmt.Sprintf("Ошибка: %v", err))
}
