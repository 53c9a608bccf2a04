package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"prodflow/internal/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, room uuid.UUID) (*Hub, string) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, room)
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev events.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestHub_DeliversOnlyRoomEvents(t *testing.T) {
	room := uuid.New()
	hub, url := newTestHub(t, room)
	conn := dial(t, url)

	require.Eventually(t, func() bool { return hub.Subscribers(room) == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, events.Event{Type: events.ProgressRecorded, RoomID: uuid.New(), BatchNumber: "OTHER"}))
	require.NoError(t, hub.Publish(ctx, events.Event{Type: events.ProgressRecorded, RoomID: room, BatchNumber: "B-1", Progress: 5}))

	ev := readEvent(t, conn)
	assert.Equal(t, "B-1", ev.BatchNumber)
	assert.Equal(t, 5, ev.Progress)
}

func TestHub_WildcardSubscriberSeesEveryRoom(t *testing.T) {
	hub, url := newTestHub(t, uuid.Nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Subscribers(uuid.Nil) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), events.Event{Type: events.BatchMoved, RoomID: uuid.New(), BatchNumber: "B-2"}))
	assert.Equal(t, events.BatchMoved, readEvent(t, conn).Type)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	room := uuid.New()
	hub, url := newTestHub(t, room)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Subscribers(room) == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers(room) == 0 }, 2*time.Second, 10*time.Millisecond)

	// publishing with nobody listening is fine
	assert.NoError(t, hub.Publish(context.Background(), events.Event{RoomID: room}))
}

func TestHub_CloseRefusesNewClients(t *testing.T) {
	room := uuid.New()
	hub, url := newTestHub(t, room)
	hub.Close()

	conn := dial(t, url)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, hub.Subscribers(room))
}
