// Package integration contains end-to-end tests for the presence relay.
//
// These tests run the full stack: a real HTTP server, WebSocket upgrades,
// the hub's run loop, and the wire protocol, verifying the documented
// delivery semantics from the outside.
package integration

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talenthub/presence-relay/internal/relay"
	"github.com/talenthub/presence-relay/test/testhelpers"
)

// testOrigin is part of the default allow-list.
const testOrigin = "http://localhost:8080"

const waitShort = 300 * time.Millisecond

func setupRelayServer(t *testing.T, cfg *relay.Config) (*relay.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	relay.SetConfig(cfg)
	hub := relay.NewHub()
	go hub.Run()

	testServer := httptest.NewServer(relay.SetupRoutes(hub))
	t.Cleanup(func() {
		testServer.Close()
		_ = hub.Shutdown(2 * time.Second)
		relay.SetConfig(nil)
	})
	return hub, testServer
}

// twoUsers connects two sessions and declares them as u1 and u2, waiting for
// both to observe the full online set.
func twoUsers(t *testing.T, serverURL string) (a, b *websocket.Conn) {
	t.Helper()

	a = testhelpers.Dial(t, serverURL, testOrigin)
	testhelpers.JoinAs(t, a, "u1", []string{"u1"})

	b = testhelpers.Dial(t, serverURL, testOrigin)
	testhelpers.JoinAs(t, b, "u2", []string{"u1", "u2"})
	testhelpers.WaitForUsersOnline(t, a, []string{"u1", "u2"}, 2*time.Second)

	return a, b
}

func TestPresenceFanOut(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)
	twoUsers(t, testServer.URL)
}

func TestNotificationDeliveredToPersonalRoom(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)
	a, b := twoUsers(t, testServer.URL)

	testhelpers.SendEvent(t, b, "send-notification", map[string]any{
		"userId": "u1",
		"title":  "hi",
	})

	data := testhelpers.WaitForEvent(t, a, "new-notification", 2*time.Second)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "hi", payload["title"])

	// The sender is not a member of room u1 and receives nothing.
	testhelpers.ExpectNoEvent(t, b, waitShort)
}

func TestConversationMessageDualDelivery(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)
	a, b := twoUsers(t, testServer.URL)

	testhelpers.SendEvent(t, a, "join-room", map[string]any{"roomId": "conv-1"})
	testhelpers.SendEvent(t, b, "join-room", map[string]any{"roomId": "conv-1"})

	testhelpers.SendEvent(t, a, "send-message", map[string]any{
		"toUserId":       "u2",
		"conversationId": "conv-1",
		"text":           "hello",
	})

	// B receives new-message exactly twice: once via u2's personal room and
	// once via conv-1. Documented duplicate delivery, not a bug.
	for i := 0; i < 2; i++ {
		data := testhelpers.WaitForEvent(t, b, "new-message", 2*time.Second)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.Equal(t, "hello", payload["text"])
	}
	testhelpers.ExpectNoEvent(t, b, waitShort)

	// A is a member of conv-1 and is not excluded from its own broadcast.
	data := testhelpers.WaitForEvent(t, a, "new-message", 2*time.Second)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "hello", payload["text"])
	testhelpers.ExpectNoEvent(t, a, waitShort)
}

func TestReadReceiptEchoedUnchanged(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)
	a, b := twoUsers(t, testServer.URL)

	testhelpers.SendEvent(t, a, "mark-message-read", map[string]any{
		"messageId":   "m1",
		"recipientId": "u2",
	})

	data := testhelpers.WaitForEvent(t, b, "message-read", 2*time.Second)
	assert.JSONEq(t, `{"messageId":"m1","recipientId":"u2"}`, string(data))
}

func TestTypingIndicators(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)
	a, b := twoUsers(t, testServer.URL)

	testhelpers.SendEvent(t, a, "typing-start", map[string]any{
		"userId":      "u1",
		"recipientId": "u2",
	})
	data := testhelpers.WaitForEvent(t, b, "user-typing", 2*time.Second)
	assert.JSONEq(t, `{"userId":"u1","isTyping":true}`, string(data))

	testhelpers.SendEvent(t, a, "typing-stop", map[string]any{
		"userId":      "u1",
		"recipientId": "u2",
	})
	data = testhelpers.WaitForEvent(t, b, "user-typing", 2*time.Second)
	assert.JSONEq(t, `{"userId":"u1","isTyping":false}`, string(data))
}

func TestPingPong(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)

	conn := testhelpers.Dial(t, testServer.URL, testOrigin)
	testhelpers.SendEvent(t, conn, "ping", nil)
	testhelpers.WaitForEvent(t, conn, "pong", 2*time.Second)
}

func TestMalformedEventsDoNotBreakTheSession(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)

	conn := testhelpers.Dial(t, testServer.URL, testOrigin)

	// Missing required field, unknown event, invalid JSON: all dropped.
	testhelpers.SendEvent(t, conn, "send-message", map[string]any{"text": "no recipient"})
	testhelpers.SendEvent(t, conn, "self-destruct", nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	// The session is still alive and serviced.
	testhelpers.SendEvent(t, conn, "ping", nil)
	testhelpers.WaitForEvent(t, conn, "pong", 2*time.Second)
}

func TestDisconnectUpdatesPresenceAndHealth(t *testing.T) {
	hub, testServer := setupRelayServer(t, nil)
	a, b := twoUsers(t, testServer.URL)

	require.NoError(t, a.Close())

	testhelpers.WaitForUsersOnline(t, b, []string{"u2"}, 2*time.Second)
	assert.Equal(t, []string{"u2"}, hub.Presence().Snapshot())
}
