package live

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

const (
	TopicCriteria = "criteria"
	TopicPhotos   = "photos"
)

// Message - то, что получает браузер.
type Message struct {
	Type      string    `json:"type"`
	Topic     string    `json:"topic"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	topic string
	hello []byte
}

// Hub рассылает события подписчикам по темам. Картой клиентов владеет только Run.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan Message
	done       chan struct{}

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub; checkOrigin nil - разрешены все источники.
func NewHub(checkOrigin func(r *http.Request) bool, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.Named("live"),
	}
}

// Run обрабатывает подписки и рассылку до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[string]map[*client]struct{})
	defer func() {
		close(h.done)
		for _, set := range clients {
			for c := range set {
				close(c.send)
			}
		}
	}()

	drop := func(c *client) {
		set, ok := clients[c.topic]
		if !ok {
			return
		}
		if _, ok := set[c]; !ok {
			return
		}
		delete(set, c)
		close(c.send)
		if len(set) == 0 {
			delete(clients, c.topic)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			if clients[c.topic] == nil {
				clients[c.topic] = make(map[*client]struct{})
			}
			clients[c.topic][c] = struct{}{}
			if c.hello != nil {
				c.send <- c.hello
			}

		case c := <-h.unregister:
			drop(c)

		case msg := <-h.broadcast:
			raw, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warn("marshal live message", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			for c := range clients[msg.Topic] {
				select {
				case c.send <- raw:
				default:
					// медленный клиент
					drop(c)
				}
			}
		}
	}
}

// Publish ставит сообщение в очередь рассылки; при переполнении сообщение теряется.
func (h *Hub) Publish(topic, typ string, data any) {
	msg := Message{Type: typ, Topic: topic, Data: data, Timestamp: time.Now().UTC()}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Warn("live broadcast queue full, message dropped", zap.String("topic", topic), zap.String("type", typ))
	}
}

// Serve - обработчик WebSocket для одной темы. hello уходит клиенту сразу после регистрации,
// поэтому всё опубликованное после его получения клиент тоже получит.
func (h *Hub) Serve(topic string, hello func() Message) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade уже ответил клиенту
			h.logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), topic: topic}

		if hello != nil {
			msg := hello()
			msg.Topic = topic
			msg.Timestamp = time.Now().UTC()
			if raw, err := json.Marshal(msg); err == nil {
				c.hello = raw
			}
		}

		select {
		case h.register <- c:
		case <-h.done:
			conn.Close()
			return
		}

		go c.writePump()
		c.readPump()
	}
}

// readPump только следит за закрытием соединения и pong-ами.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
