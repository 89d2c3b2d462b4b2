// Package testhelpers provides common utilities for testing the presence
// relay: dialing WebSocket sessions against a test server and exchanging
// protocol events with it.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// Envelope is the wire frame exchanged with the relay.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebSocketURL converts a test server base URL into the relay's ws endpoint.
func WebSocketURL(serverURL string) string {
	return strings.Replace(serverURL, "http", "ws", 1) + "/ws"
}

// Dial opens a WebSocket session against the relay, presenting the given
// origin. The connection is closed automatically at test cleanup.
func Dial(t *testing.T, serverURL, origin string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(WebSocketURL(serverURL), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err, "failed to dial relay websocket")

	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one protocol frame.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data map[string]any) {
	t.Helper()

	frame := map[string]any{"event": event}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(t, conn.WriteJSON(frame))
}

// ReceiveEvent reads the next protocol frame, failing the test on timeout.
func ReceiveEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "expected a frame before the deadline")

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// WaitForEvent reads frames until one with the wanted name arrives, skipping
// interleaved frames such as users-online broadcasts.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) json.RawMessage {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %q event", event)
		}
		env := ReceiveEvent(t, conn, remaining)
		if env.Event == event {
			return env.Data
		}
	}
}

// WaitForUsersOnline reads users-online broadcasts until the online set
// matches the expected user ids. Presence is eventually consistent, so stale
// intermediate snapshots are skipped.
func WaitForUsersOnline(t *testing.T, conn *websocket.Conn, want []string, timeout time.Duration) {
	t.Helper()

	sorted := append([]string(nil), want...)
	sort.Strings(sorted)

	deadline := time.Now().Add(timeout)
	var last []string
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for online set %v; last seen %v", sorted, last)
		}

		env := ReceiveEvent(t, conn, remaining)
		if env.Event != "users-online" {
			continue
		}

		var users []string
		require.NoError(t, json.Unmarshal(env.Data, &users))
		sort.Strings(users)
		last = users
		if equalStrings(users, sorted) {
			return
		}
	}
}

// ExpectNoEvent asserts that no frame arrives within the window.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no frame, got %s", raw)
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of frame: %v", err)
}

// JoinAs declares the connection's identity and waits until the relay
// confirms the expected online set.
func JoinAs(t *testing.T, conn *websocket.Conn, userID string, online []string) {
	t.Helper()

	SendEvent(t, conn, "join-user-room", map[string]any{"userId": userID})
	WaitForUsersOnline(t, conn, online, 2*time.Second)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
