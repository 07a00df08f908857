package websocket

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startHubServer runs a hub behind an httptest server that upgrades
// every request on / and registers it, the way the HTTP layer does.
func startHubServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	go hub.Run()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		hub.Register <- client
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// testConn splits newline-coalesced frames back into single messages.
type testConn struct {
	*websocket.Conn
	pending [][]byte
}

func dial(t *testing.T, url string) *testConn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testConn{Conn: conn}
}

func (c *testConn) readEvent(t *testing.T) map[string]any {
	t.Helper()
	for len(c.pending) == 0 {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		for _, part := range bytes.Split(data, []byte{'\n'}) {
			if len(part) > 0 {
				c.pending = append(c.pending, part)
			}
		}
	}
	var msg map[string]any
	require.NoError(t, json.Unmarshal(c.pending[0], &msg))
	c.pending = c.pending[1:]
	return msg
}

// expectSilence asserts no further message arrives. The read deadline
// poisons the connection, so this must be the last use of it.
func (c *testConn) expectSilence(t *testing.T) {
	t.Helper()
	require.Empty(t, c.pending, "unexpected buffered message")
	c.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, data, err := c.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected message: %s", data)
	}
	netErr, ok := err.(net.Error)
	require.True(t, ok, "expected timeout, got %v", err)
	assert.True(t, netErr.Timeout())
}

func TestGreetingOnConnect(t *testing.T) {
	_, url := startHubServer(t)
	c := dial(t, url)

	msg := c.readEvent(t)
	assert.Equal(t, EVENT_SERVER_INFO, msg["event"])
	assert.Equal(t, "connected", msg["message"])
	assert.NotEmpty(t, msg["sessionId"])
	assert.Greater(t, msg["time"], 0.0)
}

func TestSessionIDsAreUnique(t *testing.T) {
	_, url := startHubServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)

	id1 := c1.readEvent(t)["sessionId"]
	id2 := c2.readEvent(t)["sessionId"]
	assert.NotEqual(t, id1, id2)
}

func TestCommandRelayedToAllIncludingSender(t *testing.T) {
	_, url := startHubServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)
	c1.readEvent(t)
	c2.readEvent(t)

	err := c1.WriteJSON(map[string]string{"event": "command", "type": "TAKE_PHOTO"})
	require.NoError(t, err)

	for _, c := range []*testConn{c1, c2} {
		msg := c.readEvent(t)
		assert.Equal(t, EVENT_COMMAND, msg["event"])
		assert.Equal(t, "TAKE_PHOTO", msg["type"])
	}
}

func TestHeartbeatAnswersSenderOnly(t *testing.T) {
	_, url := startHubServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)
	c1.readEvent(t)
	c2.readEvent(t)

	require.NoError(t, c1.WriteJSON(map[string]string{"event": "ping"}))

	pong := c1.readEvent(t)
	assert.Equal(t, EVENT_PONG, pong["event"])
	assert.Greater(t, pong["time"], 0.0)

	c2.expectSilence(t)
}

func TestNotifyNewPhotoReachesAllClients(t *testing.T) {
	hub, url := startHubServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)
	c1.readEvent(t)
	c2.readEvent(t)

	hub.NotifyNewPhoto("photo_20240301_080000.jpg", 1709280000, true)

	for _, c := range []*testConn{c1, c2} {
		msg := c.readEvent(t)
		assert.Equal(t, EVENT_NEW_PHOTO, msg["event"])
		assert.Equal(t, "photo_20240301_080000.jpg", msg["filename"])
		assert.Equal(t, float64(1709280000), msg["timestamp"])
		assert.Equal(t, true, msg["has_location"])
	}
}

func TestNoReplayForLateJoiner(t *testing.T) {
	hub, url := startHubServer(t)
	c1 := dial(t, url)
	c1.readEvent(t)

	hub.NotifyNewPhoto("photo_20240301_080000.jpg", 1709280000, false)
	c1.readEvent(t)

	late := dial(t, url)
	greeting := late.readEvent(t)
	assert.Equal(t, EVENT_SERVER_INFO, greeting["event"])
	late.expectSilence(t)
}

func TestDisconnectRemovesMembershipImmediately(t *testing.T) {
	hub, url := startHubServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)
	c1.readEvent(t)
	c2.readEvent(t)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, c1.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	// The survivor still gets broadcasts and the dead peer causes no error.
	hub.NotifyNewPhoto("photo_20240301_090000.jpg", 1709283600, false)
	msg := c2.readEvent(t)
	assert.Equal(t, EVENT_NEW_PHOTO, msg["event"])
}

func TestQueueFailsOnFullBuffer(t *testing.T) {
	c := &Client{Send: make(chan []byte, 1)}

	assert.True(t, c.queue([]byte("first")))
	assert.False(t, c.queue([]byte("second")), "full buffer must refuse, not block")
}

func TestDropIsIdempotentAndStopsDelivery(t *testing.T) {
	hub := NewHub()
	c := &Client{Hub: hub, Send: make(chan []byte, 1)}
	hub.Clients[c] = true

	hub.drop(c)
	hub.drop(c) // read pump and broadcast path may both report the same client

	assert.Zero(t, hub.ClientCount())
	assert.False(t, c.queue([]byte("late")), "queue after drop must refuse, not panic")
}

func TestUnknownEventsAreIgnored(t *testing.T) {
	_, url := startHubServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)
	c1.readEvent(t)
	c2.readEvent(t)

	require.NoError(t, c1.WriteJSON(map[string]string{"event": "mystery"}))
	require.NoError(t, c1.WriteJSON(map[string]string{"event": "command", "type": "TOGGLE_FLASH"}))

	// Only the command comes through; the unknown event was dropped.
	msg := c2.readEvent(t)
	assert.Equal(t, EVENT_COMMAND, msg["event"])
	assert.Equal(t, "TOGGLE_FLASH", msg["type"])
}
