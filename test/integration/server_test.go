package integration

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talenthub/presence-relay/test/testhelpers"
)

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)

	var body struct {
		Status      string `json:"status"`
		OnlineUsers int    `json:"onlineUsers"`
		Uptime      int64  `json:"uptime"`
	}
	resp := getJSON(t, testServer.URL+"/health", &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.OnlineUsers)
	assert.GreaterOrEqual(t, body.Uptime, int64(0))
}

func TestHealthEndpointCountsOnlineUsers(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)

	conn := testhelpers.Dial(t, testServer.URL, testOrigin)
	testhelpers.JoinAs(t, conn, "u1", []string{"u1"})

	var body struct {
		OnlineUsers int `json:"onlineUsers"`
	}
	getJSON(t, testServer.URL+"/health", &body)
	assert.Equal(t, 1, body.OnlineUsers)

	require.NoError(t, conn.Close())

	// Teardown is asynchronous; poll until the count converges.
	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get(testServer.URL + "/health")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		var after struct {
			OnlineUsers int `json:"onlineUsers"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&after); err != nil {
			return false
		}
		return after.OnlineUsers == 0
	}, 2*time.Second, 50*time.Millisecond)
}

func TestOnlineUsersEndpoint(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)

	connA := testhelpers.Dial(t, testServer.URL, testOrigin)
	testhelpers.JoinAs(t, connA, "zed", []string{"zed"})
	connB := testhelpers.Dial(t, testServer.URL, testOrigin)
	testhelpers.JoinAs(t, connB, "alice", []string{"alice", "zed"})

	var body struct {
		Count int      `json:"count"`
		Users []string `json:"users"`
	}
	resp := getJSON(t, testServer.URL+"/users/online", &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, []string{"alice", "zed"}, body.Users)
}

func TestUnknownRouteReturns404(t *testing.T) {
	_, testServer := setupRelayServer(t, nil)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(testServer.URL + "/nope")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
