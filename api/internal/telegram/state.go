package telegram

import (
	"sync"
	"time"

	"photo-screener/api/internal/orchestrator"
)

const (
	debounce = 1200 * time.Millisecond
	// лимит Telegram на длину сообщения
	maxMessageLen = 3900
)

// photoBatch копит подтверждение для альбома, чтобы ответить одним сообщением.
type photoBatch struct {
	ChatID int64
	Key    string // "grp:<mediaGroupID>" | "chat:<chatID>"

	mu    sync.Mutex
	count int
	timer *time.Timer
}

// chats - рабочее пространство на каждый чат.
type chats struct {
	m sync.Map // chatID -> *orchestrator.Workspace
}

func (c *chats) get(chatID int64, create func(chatID int64) *orchestrator.Workspace) *orchestrator.Workspace {
	if v, ok := c.m.Load(chatID); ok {
		return v.(*orchestrator.Workspace)
	}
	v, _ := c.m.LoadOrStore(chatID, create(chatID))
	return v.(*orchestrator.Workspace)
}

func (c *chats) lookup(chatID int64) (*orchestrator.Workspace, bool) {
	v, ok := c.m.Load(chatID)
	if !ok {
		return nil, false
	}
	return v.(*orchestrator.Workspace), true
}
