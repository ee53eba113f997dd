package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFeedReconnectsAfterDrops forces the server side to close the
// connection three times in a row and asserts the feed counts exactly
// three reconnects and keeps streaming afterward.
func TestFeedReconnectsAfterDrops(t *testing.T) {
	origWait := reconnectWait
	reconnectWait = 10 * time.Millisecond
	defer func() { reconnectWait = origWait }()

	var accepts atomic.Int32
	const drops = 3

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := accepts.Add(1)
		if n <= drops {
			// Drop the connection immediately without ever sending a
			// message, simulating a feed that fails before its first tick.
			return
		}

		// Past the drop count: answer one subscribe read, then push a
		// message and hold the connection open so the feed settles.
		conn.ReadMessage()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"ok":true}`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	var messages atomic.Int32
	feed := NewFeed(FeedConfig{ExchangeName: "test", WSURL: wsURL}, func(conn *websocket.Conn) error {
		return conn.WriteJSON(map[string]string{"op": "subscribe"})
	}, func(msg []byte) {
		messages.Add(1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return messages.Load() > 0
	}, 2*time.Second, 10*time.Millisecond, "feed never resumed streaming after drops")

	reconnects, wsMessages, lastMsg := feed.Stats()
	assert.Equal(t, drops, reconnects)
	assert.GreaterOrEqual(t, wsMessages, uint64(1))
	assert.False(t, lastMsg.IsZero())

	cancel()
	<-done
}
