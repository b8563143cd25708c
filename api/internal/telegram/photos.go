package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxDownloadBytes - лимит Bot API на скачивание файла.
const maxDownloadBytes = 20 << 20

func (r *Router) acceptPhoto(ctx context.Context, msg tgbotapi.Message) {
	// последний размер - самый крупный
	ph := msg.Photo[len(msg.Photo)-1]
	name := fmt.Sprintf("telegram_%d_%s.jpg", msg.MessageID, ph.FileUniqueID)
	r.accept(ctx, msg, ph.FileID, name, "image/jpeg")
}

func (r *Router) acceptDocument(ctx context.Context, msg tgbotapi.Message) {
	doc := msg.Document
	if !strings.HasPrefix(doc.MimeType, "image/") {
		r.send(msg.Chat.ID, "Принимаются только изображения.")
		return
	}
	name := path.Base(doc.FileName)
	if doc.FileName == "" {
		name = fmt.Sprintf("telegram_%d_%s", msg.MessageID, doc.FileUniqueID)
	}
	r.accept(ctx, msg, doc.FileID, name, doc.MimeType)
}

func (r *Router) accept(ctx context.Context, msg tgbotapi.Message, fileID, name, mime string) {
	cid := msg.Chat.ID
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	data, err := r.download(ctx, url)
	if err != nil {
		r.SendError(cid, fmt.Errorf("скачивание: %w", err))
		return
	}
	if _, err := r.workspace(cid).Add(name, data, mime); err != nil {
		r.SendError(cid, err)
		return
	}

	key := "chat:" + fmt.Sprint(cid)
	if msg.MediaGroupID != "" {
		key = "grp:" + msg.MediaGroupID
	}
	bi, _ := r.batches.LoadOrStore(key, &photoBatch{ChatID: cid, Key: key})
	b := bi.(*photoBatch)

	b.mu.Lock()
	b.count++
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(r.debounce(), func() { r.flushBatch(key) })
	b.mu.Unlock()
}

// flushBatch подтверждает приём пачки фото одним сообщением.
func (r *Router) flushBatch(key string) {
	bi, ok := r.batches.LoadAndDelete(key)
	if !ok {
		return
	}
	b := bi.(*photoBatch)
	b.mu.Lock()
	n, chatID := b.count, b.ChatID
	b.mu.Unlock()
	if n == 0 {
		return
	}
	pending := r.workspace(chatID).Summary().Pending
	r.send(chatID, fmt.Sprintf("Принято фото: %d. Ожидают проверки: %d. Запустить: /screen", n, pending))
}

func (r *Router) debounce() time.Duration {
	if r.Debounce > 0 {
		return r.Debounce
	}
	return debounce
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("file is larger than %d bytes", maxDownloadBytes)
	}
	return data, nil
}

func (r *Router) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}
