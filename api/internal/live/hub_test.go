package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestHubDeliversByTopic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, zaptest.NewLogger(t))
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()

	mux := http.NewServeMux()
	mux.Handle("/criteria", hub.Serve(TopicCriteria, func() Message {
		return Message{Type: "criteria.snapshot", Data: []string{"a"}}
	}))
	mux.Handle("/photos", hub.Serve(TopicPhotos, func() Message {
		return Message{Type: "photos.snapshot"}
	}))
	srv := httptest.NewServer(mux)

	crit := dial(t, srv, "/criteria")
	photos := dial(t, srv, "/photos")

	hello := readMessage(t, crit)
	assert.Equal(t, "criteria.snapshot", hello["type"])
	assert.Equal(t, TopicCriteria, hello["topic"])

	assert.Equal(t, "photos.snapshot", readMessage(t, photos)["type"])

	hub.Publish(TopicPhotos, "photo.updated", map[string]string{"id": "p1"})
	m := readMessage(t, photos)
	assert.Equal(t, "photo.updated", m["type"])
	assert.Equal(t, map[string]any{"id": "p1"}, m["data"])

	hub.Publish(TopicCriteria, "criteria.updated", []string{"b"})
	m = readMessage(t, crit)
	assert.Equal(t, "criteria.updated", m["type"])
	assert.Equal(t, []any{"b"}, m["data"])

	require.NoError(t, photos.Close())
	cancel()
	<-runDone

	// после остановки хаб закрывает соединения
	_ = crit.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := crit.ReadMessage()
	assert.Error(t, err)
	require.NoError(t, crit.Close())

	srv.Close()

	// после остановки Publish не блокируется
	hub.Publish(TopicPhotos, "photo.updated", nil)
}

func TestHubRejectsDisallowedOrigin(t *testing.T) {
	hub := NewHub(func(r *http.Request) bool { return r.Header.Get("Origin") == "https://ok.example" }, zaptest.NewLogger(t))
	srv := httptest.NewServer(hub.Serve(TopicPhotos, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
